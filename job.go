package zonecount

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/ease-lab/zonecount/counters"
	"github.com/ease-lab/zonecount/internal/pkg/corfs"
)

const (
	// maxReduceGoroutines bounds the keys reduced concurrently by one reduce task.
	maxReduceGoroutines = 10
	maxLineSize         = 1024 * 1024
)

// Job is the logical container for a MapReduce job
type Job struct {
	Map           Mapper
	Reduce        Reducer
	Combine       Combiner
	PartitionFunc PartitionFunc

	// Counters receives the job's named counters. Remote tasks ship their
	// counters back to the driver, which merges them here.
	Counters *counters.Registry

	fileSystem       corfs.FileSystem
	fileSystemType   corfs.FileSystemType
	config           *config
	intermediateBins uint
	outputPath       string

	bytesRead    int64
	bytesWritten int64
}

func (j *Job) counters() *counters.Registry {
	return j.Counters
}

func (j *Job) addBytesRead(n int64) {
	atomic.AddInt64(&j.bytesRead, n)
}

func (j *Job) addBytesWritten(n int64) {
	atomic.AddInt64(&j.bytesWritten, n)
}

func (j *Job) env() TaskEnv {
	return TaskEnv{
		fileSystem: j.fileSystem,
		sideInputs: j.config.SideInputs,
	}
}

// Logic for running a single map task
func (j *Job) runMapper(ctx context.Context, mapperID uint, splits []inputSplit) error {
	emitter := newMapperEmitter(j.intermediateBins, mapperID, j.outputPath, j.fileSystem)
	if j.PartitionFunc != nil {
		emitter.partitionFunc = j.PartitionFunc
	}
	emitter.combiner = j.Combine

	for _, split := range splits {
		err := j.runMapperSplit(ctx, split, &emitter)
		if err != nil {
			return err
		}
	}

	if err := emitter.close(ctx); err != nil {
		return fmt.Errorf("map task %d: %w", mapperID, err)
	}
	j.addBytesWritten(emitter.bytesWritten())
	return nil
}

// runMapperSplit runs the mapper on a single inputSplit. The mapper is
// called with the input file name as key and one line as value.
func (j *Job) runMapperSplit(ctx context.Context, split inputSplit, emitter Emitter) error {
	inputSource, err := j.fileSystem.OpenReader(split.Filename, split.StartOffset)
	if err != nil {
		return err
	}
	defer inputSource.Close()

	scanner := bufio.NewScanner(inputSource)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	var bytesRead int64
	splitter := countingSplitFunc(bufio.ScanLines, &bytesRead)
	scanner.Split(splitter)

	// The first line belongs to the previous split, unless the split starts the file
	if split.StartOffset != 0 {
		scanner.Scan()
	}

	// A line belongs to the split holding the newline that precedes it, so
	// stop once the next line starts past the end of the split
	for bytesRead <= split.Size() && scanner.Scan() {
		j.Map.Map(ctx, split.Filename, scanner.Text(), emitter)
	}

	j.addBytesRead(bytesRead)
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s at offset %d: %w", split.Filename, split.StartOffset, err)
	}
	return nil
}

// Logic for running a single reduce task
func (j *Job) runReducer(ctx context.Context, binID uint) error {
	if setup, ok := j.Reduce.(ReducerSetup); ok {
		if err := setup.SetupReducer(ctx, j.env()); err != nil {
			return fmt.Errorf("reduce task %d setup: %w", binID, err)
		}
	}

	// Determine the intermediate data files this reducer is responsible for
	path := j.fileSystem.Join(j.outputPath, fmt.Sprintf("map-bin%d-*", binID))
	files, err := j.fileSystem.ListFiles(path)
	if err != nil {
		return err
	}

	data := make(map[string][]string)
	var bytesRead int64

	for _, file := range files {
		fileContent, err := j.fileSystem.ReadFile(file.Name, 0)
		if err != nil {
			return err
		}
		bytesRead += int64(len(fileContent))

		// Feed intermediate data into reducers
		decoder := json.NewDecoder(bytes.NewReader(fileContent))
		for decoder.More() {
			var kv keyValue
			if err := decoder.Decode(&kv); err != nil {
				return fmt.Errorf("decoding %s: %w", file.Name, err)
			}
			data[kv.Key] = append(data[kv.Key], kv.Value)
		}
	}

	var waitGroup sync.WaitGroup
	sem := semaphore.NewWeighted(maxReduceGoroutines)

	buffer := new(bytes.Buffer)
	emitter := newReducerEmitter(buffer)
	for key, values := range data {
		if err := sem.Acquire(ctx, 1); err != nil {
			waitGroup.Wait()
			return fmt.Errorf("failed to run reducer: failed to acquire semaphore: %w", err)
		}
		waitGroup.Add(1)
		go func(key string, values []string) {
			defer waitGroup.Done()
			defer sem.Release(1)

			keyIter := sliceIterator(values)
			j.Reduce.Reduce(ctx, key, keyIter, emitter)
			// Unblock the feeding goroutine if the reducer stopped early
			for range keyIter.Iter() {
			}
		}(key, values)
	}

	waitGroup.Wait()

	path = j.fileSystem.Join(j.outputPath, fmt.Sprintf("output-part-%d", binID))
	if err := j.fileSystem.WriteFile(path, buffer.Bytes()); err != nil {
		return err
	}

	j.addBytesWritten(emitter.bytesWritten())
	j.addBytesRead(bytesRead)

	// Delete intermediate map data
	if j.config.Cleanup {
		for _, file := range files {
			if err := j.fileSystem.Delete(file.Name); err != nil {
				log.Error(err)
			}
		}
	}
	return nil
}

// inputSplits calculates all input files' inputSplits.
// inputSplits also determines and saves the number of intermediate bins that will be used during the shuffle.
func (j *Job) inputSplits(inputs []string, maxSplitSize int64) []inputSplit {
	fileInfos := make([]corfs.FileInfo, 0)
	for _, inputPath := range inputs {
		fileList, err := j.fileSystem.ListFiles(inputPath)
		if err != nil {
			log.Warn(err)
			continue
		}

		for _, fInfo := range fileList {
			if isEngineFile(fInfo.Name) {
				continue
			}
			fileInfos = append(fileInfos, fInfo)
		}
	}

	splits := make([]inputSplit, 0)
	var totalSize int64
	for _, fInfo := range fileInfos {
		totalSize += fInfo.Size
		splits = append(splits, splitInputFile(fInfo, maxSplitSize)...)
	}
	if len(splits) > 0 {
		log.Debugf("Average split size: %s", humanize.Bytes(uint64(totalSize)/uint64(len(splits))))
	}

	j.intermediateBins = 1
	if j.config.ReduceBinSize > 0 {
		j.intermediateBins = uint(float64(totalSize/j.config.ReduceBinSize) * 1.25)
	}
	if j.intermediateBins == 0 {
		j.intermediateBins = 1
	}

	return splits
}

// isEngineFile reports whether name is intermediate or output data of a
// previous run that happens to sit next to the inputs.
func isEngineFile(name string) bool {
	base := name[strings.LastIndexAny(name, `/\`)+1:]
	return strings.HasPrefix(base, "map-bin") || strings.HasPrefix(base, "output-part-")
}

// NewJob creates a new job from a Mapper and Reducer.
func NewJob(mapper Mapper, reducer Reducer) *Job {
	return &Job{
		Map:      mapper,
		Reduce:   reducer,
		Counters: counters.NewRegistry(),
		config:   &config{},
	}
}
