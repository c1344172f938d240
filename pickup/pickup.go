// Package pickup counts taxi trips per pickup location and labels each
// count with its zone name.
//
// Map extracts the pickup location of every trip record and emits it with a
// count of one. Combine sums the counts of one map task per location, Reduce
// sums the partial counts and joins the total against the zone lookup
// table, which is loaded from a side input before the first key is reduced.
package pickup

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/ease-lab/zonecount"
	"github.com/ease-lab/zonecount/aggregate"
	"github.com/ease-lab/zonecount/counters"
	"github.com/ease-lab/zonecount/records"
	"github.com/ease-lab/zonecount/zones"
)

const (
	// ZonesSideInput is the default side input holding the zone lookup CSV.
	ZonesSideInput = "zones"

	defaultCacheSize = 4
)

var one = aggregate.Format(1)

// Config configures an App. Zero values select the defaults.
type Config struct {
	// LocationField is the record field holding the pickup location.
	LocationField string
	// Schema declares field types, e.g. "PULocationID=INT32". Undeclared
	// fields are inferred from the input.
	Schema string
	// SideInput names the side input holding the zone lookup CSV.
	SideInput string
	// CacheSize bounds the lookup tables kept by a worker process.
	CacheSize int
}

func (c Config) withDefaults() Config {
	if c.LocationField == "" {
		c.LocationField = records.DefaultLocationField
	}
	if c.SideInput == "" {
		c.SideInput = ZonesSideInput
	}
	if c.CacheSize <= 0 {
		c.CacheSize = defaultCacheSize
	}
	return c
}

// App implements the Mapper, Combiner, ReducerSetup and Reducer of the
// pickup count.
type App struct {
	config    Config
	counters  counters.Counters
	decoder   *records.Decoder
	extractor *records.Extractor
	tables    *zones.Cache

	mut      sync.RWMutex
	resolver *zones.Resolver
}

// New returns an App reporting to c.
func New(cfg Config, c counters.Counters) (*App, error) {
	cfg = cfg.withDefaults()
	if c == nil {
		c = counters.Noop
	}

	var schema *records.Schema
	if cfg.Schema != "" {
		var err error
		schema, err = records.ParseSchema(cfg.Schema)
		if err != nil {
			return nil, fmt.Errorf("invalid schema: %w", err)
		}
	}

	tables, err := zones.NewCache(cfg.CacheSize)
	if err != nil {
		return nil, err
	}

	return &App{
		config:    cfg,
		counters:  c,
		decoder:   records.NewDecoder(schema),
		extractor: records.NewExtractor(cfg.LocationField, c),
		tables:    tables,
	}, nil
}

// Configure makes job run an App that reports to the job's counters.
func Configure(job *zonecount.Job, cfg Config) error {
	app, err := New(cfg, job.Counters)
	if err != nil {
		return err
	}
	job.Map = app
	job.Combine = app
	job.Reduce = app
	return nil
}

// NewJob returns a job running an App.
func NewJob(cfg Config) (*zonecount.Job, error) {
	job := zonecount.NewJob(nil, nil)
	if err := Configure(job, cfg); err != nil {
		return nil, err
	}
	return job, nil
}

// Map emits (location, 1) for every trip record with a valid pickup location.
func (a *App) Map(ctx context.Context, key, value string, emitter zonecount.Emitter) {
	if strings.TrimSpace(value) == "" {
		return
	}

	row, err := a.decoder.Decode(value)
	if err != nil {
		a.counters.Inc(counters.UndecodableRecord, 1)
		log.WithField("input", key).Debugf("Skipping undecodable record: %s", err)
		return
	}

	id, err := a.extractor.Extract(row)
	if err != nil {
		return
	}

	if err := emitter.Emit(ctx, formatID(id), one); err != nil {
		log.Error(err)
	}
}

// Combine emits the partial count of one location within a map task.
func (a *App) Combine(ctx context.Context, key string, values zonecount.ValueIterator, emitter zonecount.Emitter) {
	counts, err := collect(values)
	if err != nil {
		log.WithField("key", key).Error(err)
		return
	}

	_, partial := aggregate.Combine(key, counts)
	if err := emitter.Emit(ctx, key, aggregate.Format(partial)); err != nil {
		log.Error(err)
	}
}

// SetupReducer loads the zone lookup table. An unavailable table fails the
// reduce task.
func (a *App) SetupReducer(ctx context.Context, env zonecount.TaskEnv) error {
	fs, path, err := env.SideInput(a.config.SideInput)
	if err != nil {
		return fmt.Errorf("%w: %v", zones.ErrLookupUnavailable, err)
	}

	table, err := a.tables.Load(fs, path, a.counters)
	if err != nil {
		return err
	}
	log.Debugf("Zone lookup %s has %d entries", path, table.Len())

	a.mut.Lock()
	a.resolver = zones.NewResolver(table, a.counters)
	a.mut.Unlock()
	return nil
}

// Reduce emits the labelled total count of one location. Keys are skipped
// when no lookup table has been loaded.
func (a *App) Reduce(ctx context.Context, key string, values zonecount.ValueIterator, emitter zonecount.Emitter) {
	resolver, err := a.currentResolver()
	if err != nil {
		a.counters.Inc(counters.LookupNotLoaded, 1)
		log.WithField("key", key).Error(err)
		return
	}

	counts, err := collect(values)
	if err != nil {
		log.WithField("key", key).Error(err)
		return
	}

	id, err := parseID(key)
	if err != nil {
		log.WithField("key", key).Error(err)
		return
	}

	_, total := aggregate.Reduce(id, counts)
	row := resolver.Resolve(id, total)
	if err := emitter.Emit(ctx, row.Label, aggregate.Format(row.Total)); err != nil {
		log.Error(err)
	}
}

func (a *App) currentResolver() (*zones.Resolver, error) {
	a.mut.RLock()
	defer a.mut.RUnlock()
	if a.resolver == nil {
		return nil, fmt.Errorf("%w: reducer was not set up", zones.ErrLookupUnavailable)
	}
	return a.resolver, nil
}

func collect(values zonecount.ValueIterator) ([]int64, error) {
	raw := make([]string, 0)
	for v := range values.Iter() {
		raw = append(raw, v)
	}
	return aggregate.Parse(raw)
}

func formatID(id records.LocationID) string {
	return strconv.FormatInt(int64(id), 10)
}

func parseID(key string) (records.LocationID, error) {
	v, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid location key %q: %w", key, err)
	}
	return records.LocationID(v), nil
}
