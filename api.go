package zonecount

import (
	"context"
	"fmt"

	"github.com/ease-lab/zonecount/internal/pkg/corfs"
)

// Mapper defines the behavior for the map phase of a job. key is the name
// of the input file, value is one input line.
type Mapper interface {
	Map(ctx context.Context, key, value string, emitter Emitter)
}

// Reducer defines the behavior for the reduce phase of a job.
type Reducer interface {
	Reduce(ctx context.Context, key string, values ValueIterator, emitter Emitter)
}

// Combiner pre-aggregates the values a single map task emitted for one key,
// before they are written to a shuffle bin. A combiner must emit under the
// key it was given, and reducing its output must give the same result as
// reducing its input.
type Combiner interface {
	Combine(ctx context.Context, key string, values ValueIterator, emitter Emitter)
}

// ReducerSetup is implemented by reducers that need to prepare state, such
// as side-input lookup tables, before a reduce task processes any key. A
// setup error fails the task without producing output.
type ReducerSetup interface {
	SetupReducer(ctx context.Context, env TaskEnv) error
}

// TaskEnv describes the environment a task runs in.
type TaskEnv struct {
	fileSystem corfs.FileSystem
	sideInputs map[string]string
}

// FileSystem returns the filesystem holding the job's working data.
func (e TaskEnv) FileSystem() corfs.FileSystem {
	return e.fileSystem
}

// SideInput returns the filesystem and path of the named side input.
func (e TaskEnv) SideInput(name string) (corfs.FileSystem, string, error) {
	path, ok := e.sideInputs[name]
	if !ok || path == "" {
		return nil, "", fmt.Errorf("side input %q is not registered", name)
	}
	return corfs.InferFilesystem(path), path, nil
}

// ValueIterator iterates over a sequence of values. This is used
// during the reduce and combine phases, wherein a reducer is given
// a key and all values associated with that key.
type ValueIterator struct {
	values <-chan string
}

// Iter iterates over all the values in the iterator.
func (v ValueIterator) Iter() <-chan string {
	return v.values
}

func newValueIterator(c <-chan string) ValueIterator {
	return ValueIterator{values: c}
}

// sliceIterator feeds values into a ValueIterator from a goroutine.
func sliceIterator(values []string) ValueIterator {
	c := make(chan string)
	go func() {
		defer close(c)
		for _, v := range values {
			c <- v
		}
	}()
	return newValueIterator(c)
}

// keyValue is the wire format of intermediate data.
type keyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
