package zonecount

import (
	"encoding/json"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/ease-lab/zonecount/internal/pkg/corfs"
)

// Phase is a descriptor of the phase (i.e. Map or Reduce) of a Job
type Phase int

// Descriptors of the Job phase
const (
	MapPhase Phase = iota
	ReducePhase
)

func (p Phase) String() string {
	switch p {
	case MapPhase:
		return "map"
	case ReducePhase:
		return "reduce"
	}
	return "unknown"
}

// task defines a serialized description of a single unit of work
// in a MapReduce job, as well as the necessary information for a
// remote executor to initialize itself and begin working.
type task struct {
	JobNumber        int                  `json:"jobNumber"`
	Phase            Phase                `json:"phase"`
	BinID            uint                 `json:"binId"`
	IntermediateBins uint                 `json:"intermediateBins"`
	Splits           []inputSplit         `json:"splits,omitempty"`
	FileSystemType   corfs.FileSystemType `json:"fileSystemType"`
	WorkingLocation  string               `json:"workingLocation"`
	Cleanup          bool                 `json:"cleanup"`
	SideInputs       map[string]string    `json:"sideInputs,omitempty"`
}

// taskResult is what a remote executor returns to the driver.
type taskResult struct {
	BytesRead    int              `json:"bytesRead"`
	BytesWritten int              `json:"bytesWritten"`
	Counters     map[string]int64 `json:"counters,omitempty"`
}

// newTask describes a task of job for a remote executor.
func newTask(job *Job, jobNumber int, phase Phase, binID uint, splits []inputSplit) task {
	return task{
		JobNumber:        jobNumber,
		Phase:            phase,
		BinID:            binID,
		IntermediateBins: job.intermediateBins,
		Splits:           splits,
		FileSystemType:   job.fileSystemType,
		WorkingLocation:  job.outputPath,
		Cleanup:          job.config.Cleanup,
		SideInputs:       job.config.SideInputs,
	}
}

// apply prepares job to run t in this process.
func (t task) apply(job *Job) {
	job.fileSystemType = t.FileSystemType
	job.fileSystem = corfs.InitFilesystem(t.FileSystemType)
	job.intermediateBins = t.IntermediateBins
	job.outputPath = t.WorkingLocation
	job.config.Cleanup = t.Cleanup
	job.config.SideInputs = t.SideInputs
}

// prepareResult serializes the job's statistics and resets them, so a warm
// worker reports only what the current task did.
func prepareResult(job *Job) string {
	result := taskResult{
		BytesRead:    int(atomic.SwapInt64(&job.bytesRead, 0)),
		BytesWritten: int(atomic.SwapInt64(&job.bytesWritten, 0)),
		Counters:     job.counters().Drain(),
	}

	payload, _ := json.Marshal(result)
	return string(payload)
}

func loadTaskResult(payload []byte) taskResult {
	var result taskResult
	if err := json.Unmarshal(payload, &result); err != nil {
		log.Errorf("%s", err)
	}
	return result
}

// collect folds a remote task's result into the driver-side job.
func (r taskResult) collect(job *Job) {
	job.addBytesRead(int64(r.BytesRead))
	job.addBytesWritten(int64(r.BytesWritten))
	job.counters().Merge(r.Counters)
}
