package zonecount

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ease-lab/zonecount/internal/pkg/corfs"
)

// Emitter enables mappers, combiners and reducers to yield key-value pairs.
type Emitter interface {
	Emit(ctx context.Context, key, value string) error
	close(ctx context.Context) error
	bytesWritten() int64
}

// PartitionFunc defines a function that can be used to segment map keys into intermediate buckets
type PartitionFunc func(key string, numBins uint) uint

// reducerEmitter is a threadsafe emitter.
type reducerEmitter struct {
	writer       io.Writer
	mut          *sync.Mutex
	writtenBytes int64
}

// newReducerEmitter initializes and returns a new reducerEmitter
func newReducerEmitter(writer io.Writer) *reducerEmitter {
	return &reducerEmitter{
		writer: writer,
		mut:    &sync.Mutex{},
	}
}

// Emit yields a key-value pair to the framework.
func (e *reducerEmitter) Emit(ctx context.Context, key, value string) error {
	e.mut.Lock()
	defer e.mut.Unlock()

	n, err := fmt.Fprintf(e.writer, "%s\t%s\n", key, value)
	e.writtenBytes += int64(n)
	return err
}

// close terminates the reducerEmitter. close must not be called more than once
func (e *reducerEmitter) close(ctx context.Context) error {
	return nil
}

func (e *reducerEmitter) bytesWritten() int64 {
	e.mut.Lock()
	defer e.mut.Unlock()
	return e.writtenBytes
}

// mapperEmitter is an emitter that partitions keys written to it.
// mapperEmitter maintains a buffer per bin. Keys are partitioned into one of numBins
// intermediate "shuffle" bins. Each bin is written as a separate file when the
// emitter is closed. When a combiner is set, values are grouped by key within
// each bin and combined before being written.
type mapperEmitter struct {
	numBins       uint                         // number of intermediate shuffle bins
	buffers       map[uint]*bytes.Buffer       // serialized key/value pairs per bin
	grouped       map[uint]map[string][]string // values per key per bin, when combining
	combiner      Combiner                     // optional per-bin combiner
	fs            corfs.FileSystem             // filesystem to write bins to
	mapperID      uint                         // numeric identifier of the mapper using this emitter
	outDir        string                       // folder to save map output to
	partitionFunc PartitionFunc                // PartitionFunc to use when partitioning map output keys into intermediate bins
	writtenBytes  int64                        // counter for number of bytes written from emitted key/val pairs
}

// Initializes a new mapperEmitter
func newMapperEmitter(numBins uint, mapperID uint, outDir string, fs corfs.FileSystem) mapperEmitter {
	return mapperEmitter{
		numBins:       numBins,
		buffers:       make(map[uint]*bytes.Buffer, numBins),
		grouped:       make(map[uint]map[string][]string, numBins),
		fs:            fs,
		mapperID:      mapperID,
		outDir:        outDir,
		partitionFunc: hashPartition,
	}
}

// hashPartition partitions a key to one of numBins shuffle bins
func hashPartition(key string, numBins uint) uint {
	h := fnv.New64()
	h.Write([]byte(key))
	return uint(h.Sum64() % uint64(numBins))
}

// Emit yields a key-value pair to the framework.
func (me *mapperEmitter) Emit(ctx context.Context, key, value string) error {
	bin := me.partitionFunc(key, me.numBins)
	if bin >= me.numBins {
		return fmt.Errorf("partition func returned bin %d, only %d bins", bin, me.numBins)
	}

	if me.combiner != nil {
		keys, exists := me.grouped[bin]
		if !exists {
			keys = make(map[string][]string)
			me.grouped[bin] = keys
		}
		keys[key] = append(keys[key], value)
		return nil
	}

	return me.write(bin, key, value)
}

func (me *mapperEmitter) write(bin uint, key, value string) error {
	buffer, exists := me.buffers[bin]
	if !exists {
		buffer = new(bytes.Buffer)
		me.buffers[bin] = buffer
	}

	data, err := json.Marshal(keyValue{Key: key, Value: value})
	if err != nil {
		log.Error(err)
		return err
	}

	data = append(data, '\n')
	_, err = buffer.Write(data)
	return err
}

// binEmitter collects a combiner's output for a single bin.
type binEmitter struct {
	parent *mapperEmitter
	bin    uint
	key    string
}

func (be *binEmitter) Emit(ctx context.Context, key, value string) error {
	if key != be.key {
		return fmt.Errorf("combiner changed key %q to %q", be.key, key)
	}
	return be.parent.write(be.bin, key, value)
}

func (be *binEmitter) close(ctx context.Context) error { return nil }

func (be *binEmitter) bytesWritten() int64 { return 0 }

// combine runs the combiner over every key of every bin.
func (me *mapperEmitter) combine(ctx context.Context) error {
	for bin, keys := range me.grouped {
		sortedKeys := make([]string, 0, len(keys))
		for key := range keys {
			sortedKeys = append(sortedKeys, key)
		}
		sort.Strings(sortedKeys)

		for _, key := range sortedKeys {
			emitter := &binEmitter{parent: me, bin: bin, key: key}
			values := sliceIterator(keys[key])
			me.combiner.Combine(ctx, key, values, emitter)
			for range values.Iter() {
			}
		}
	}
	me.grouped = make(map[uint]map[string][]string)
	return nil
}

func (me *mapperEmitter) binPath(bin uint) string {
	return me.fs.Join(me.outDir, fmt.Sprintf("map-bin%d-%d.out", bin, me.mapperID))
}

// close flushes every bin to the filesystem. Must not be called more than once
func (me *mapperEmitter) close(ctx context.Context) error {
	if me.combiner != nil {
		if err := me.combine(ctx); err != nil {
			return err
		}
	}

	for bin, buffer := range me.buffers {
		if err := me.fs.WriteFile(me.binPath(bin), buffer.Bytes()); err != nil {
			return err
		}
		me.writtenBytes += int64(buffer.Len())
	}
	me.buffers = make(map[uint]*bytes.Buffer)
	return nil
}

func (me *mapperEmitter) bytesWritten() int64 {
	return me.writtenBytes
}
