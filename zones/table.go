// Package zones loads the taxi zone lookup table and uses it to label
// aggregated pickup counts.
package zones

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/ease-lab/zonecount/counters"
	"github.com/ease-lab/zonecount/internal/pkg/corfs"
	"github.com/ease-lab/zonecount/records"
)

// Placeholders used when the lookup source leaves a field empty.
const (
	DefaultBorough = "Unknown Borough"
	DefaultZone    = "Unknown Zone"
)

const maxLineSize = 1024 * 1024

// ErrLookupUnavailable is returned when the lookup source cannot be
// opened or read. A worker must not reduce anything after seeing it.
var ErrLookupUnavailable = errors.New("zone lookup unavailable")

// ZoneEntry describes one taxi zone.
type ZoneEntry struct {
	Borough string
	Zone    string
}

// Label renders the entry as "{zone} ({borough})".
func (e ZoneEntry) Label() string {
	return fmt.Sprintf("%s (%s)", e.Zone, e.Borough)
}

// Table maps location identifiers to zones. It is read-only once built.
type Table struct {
	entries map[records.LocationID]ZoneEntry
}

// Lookup returns the entry for id.
func (t *Table) Lookup(id records.LocationID) (ZoneEntry, bool) {
	if t == nil {
		return ZoneEntry{}, false
	}
	e, ok := t.entries[id]
	return e, ok
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// builder accumulates lookup lines into a Table.
type builder struct {
	entries  map[records.LocationID]ZoneEntry
	counters counters.Counters
	lines    int
}

func newBuilder(c counters.Counters) *builder {
	if c == nil {
		c = counters.Noop
	}
	return &builder{
		entries:  make(map[records.LocationID]ZoneEntry),
		counters: c,
	}
}

func cleanField(field string) string {
	field = strings.TrimSpace(field)
	field = strings.Trim(field, `"`)
	return strings.TrimSpace(field)
}

func (b *builder) add(line string) {
	b.lines++
	if b.lines == 1 {
		// header
		return
	}

	fields := strings.Split(line, ",")
	if len(fields) < 3 {
		b.counters.Inc(counters.LookupTooFewFields, 1)
		log.Warnf("Skipping zone lookup line %d (too few fields): %q", b.lines, line)
		return
	}

	id, err := strconv.ParseInt(cleanField(fields[0]), 10, 64)
	if err != nil {
		b.counters.Inc(counters.LookupMalformedID, 1)
		log.Warnf("Skipping zone lookup line %d (malformed location id): %q", b.lines, line)
		return
	}

	entry := ZoneEntry{
		Borough: cleanField(fields[1]),
		Zone:    cleanField(fields[2]),
	}
	if entry.Borough == "" {
		entry.Borough = DefaultBorough
	}
	if entry.Zone == "" {
		entry.Zone = DefaultZone
	}
	b.entries[records.LocationID(id)] = entry
}

func (b *builder) finish(source string) *Table {
	if b.lines == 0 {
		b.counters.Inc(counters.LookupEmptySource, 1)
		log.Warnf("Zone lookup %s is empty or has no header", source)
	}
	if len(b.entries) == 0 {
		b.counters.Inc(counters.LookupTableEmpty, 1)
		log.Warnf("Zone lookup %s produced no entries, every location will be reported as unknown", source)
	}
	b.counters.Inc(counters.LookupEntriesLoaded, int64(len(b.entries)))
	log.Debugf("Loaded %d zone lookup entries from %s", len(b.entries), source)

	return &Table{entries: b.entries}
}

// Build builds a Table from the lines of a lookup CSV. The first line is a
// header. Malformed lines are counted and skipped; later lines win over
// earlier lines with the same identifier.
func Build(lines []string, c counters.Counters) *Table {
	b := newBuilder(c)
	for _, line := range lines {
		b.add(line)
	}
	return b.finish("input")
}

// Read builds a Table from r. A read error fails the whole build.
func Read(r io.Reader, c counters.Counters) (*Table, error) {
	return read(r, c, "input")
}

func read(r io.Reader, c counters.Counters, source string) (*Table, error) {
	// Counts are staged so that a failed read leaves no trace of a
	// partial table.
	staged := counters.NewRegistry()
	b := newBuilder(staged)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		b.add(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrLookupUnavailable, source, err)
	}

	table := b.finish(source)
	if c != nil {
		for name, v := range staged.Snapshot() {
			c.Inc(name, v)
		}
	}
	return table, nil
}

// Load builds a Table from the lookup file at path.
func Load(fs corfs.FileSystem, path string, c counters.Counters) (*Table, error) {
	reader, err := fs.OpenReader(path, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupUnavailable, err)
	}
	defer reader.Close()

	return read(reader, c, path)
}
