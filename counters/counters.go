// Package counters provides named event counters that are passed into
// pipeline components, so skip and fallback events can be inspected by a
// driver or a test without parsing log output.
package counters

import (
	"sort"
	"sync"
)

// Counter names shared by the pipeline components.
const (
	NullRecord     = "extract.null_record"
	MissingField   = "extract.missing_field"
	NotIntegerType = "extract.not_integer_type"
	NullOrEmpty    = "extract.null_or_empty"
	NonPositive    = "extract.non_positive"
	RecordError    = "extract.record_error"

	UndecodableRecord = "input.undecodable_record"

	LookupEmptySource   = "lookup.empty_source"
	LookupTableEmpty    = "lookup.table_empty"
	LookupMalformedID   = "lookup.malformed_id"
	LookupTooFewFields  = "lookup.too_few_fields"
	LookupEntriesLoaded = "lookup.entries_loaded"
	LookupNotLoaded     = "lookup.not_loaded"

	IDNotFound = "join.id_not_found"
)

// Counters receives counter increments.
type Counters interface {
	Inc(name string, delta int64)
}

// Noop discards every increment.
var Noop Counters = noop{}

type noop struct{}

func (noop) Inc(string, int64) {}

// Registry is a threadsafe set of named counters.
type Registry struct {
	mut    sync.Mutex
	values map[string]int64
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{values: make(map[string]int64)}
}

// Inc adds delta to the named counter.
func (r *Registry) Inc(name string, delta int64) {
	r.mut.Lock()
	r.values[name] += delta
	r.mut.Unlock()
}

// Get returns the current value of the named counter.
func (r *Registry) Get(name string) int64 {
	r.mut.Lock()
	defer r.mut.Unlock()
	return r.values[name]
}

// Snapshot returns a copy of all counters.
func (r *Registry) Snapshot() map[string]int64 {
	r.mut.Lock()
	defer r.mut.Unlock()

	out := make(map[string]int64, len(r.values))
	for name, v := range r.values {
		out[name] = v
	}
	return out
}

// Drain returns all counters and resets the registry. Task handlers running
// in long-lived containers use it to report per-task counts.
func (r *Registry) Drain() map[string]int64 {
	r.mut.Lock()
	defer r.mut.Unlock()

	out := r.values
	r.values = make(map[string]int64, len(out))
	return out
}

// Merge adds every counter in values to the registry.
func (r *Registry) Merge(values map[string]int64) {
	r.mut.Lock()
	defer r.mut.Unlock()
	for name, v := range values {
		r.values[name] += v
	}
}

// Names returns the sorted names of all counters that have been touched.
func (r *Registry) Names() []string {
	r.mut.Lock()
	names := make([]string, 0, len(r.values))
	for name := range r.values {
		names = append(names, name)
	}
	r.mut.Unlock()

	sort.Strings(names)
	return names
}
