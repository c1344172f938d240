package zones

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ease-lab/zonecount/counters"
	"github.com/ease-lab/zonecount/records"
)

// OutputRow is one line of the final report.
type OutputRow struct {
	Label string
	Total int64
}

// NotFoundLabel is the label reported for identifiers missing from the
// lookup table.
func NotFoundLabel(id records.LocationID) string {
	return fmt.Sprintf("%s ID:%d (%s)", DefaultZone, id, DefaultBorough)
}

// Resolver labels aggregated counts using a lookup Table.
type Resolver struct {
	table    *Table
	counters counters.Counters
}

// NewResolver returns a Resolver over table.
func NewResolver(table *Table, c counters.Counters) *Resolver {
	if c == nil {
		c = counters.Noop
	}
	return &Resolver{table: table, counters: c}
}

// Resolve builds the output row for id. Identifiers missing from the table
// get a synthesized label and are counted; they are never dropped. Labels
// never contain control characters.
func (r *Resolver) Resolve(id records.LocationID, total int64) OutputRow {
	entry, ok := r.table.Lookup(id)
	if !ok {
		r.counters.Inc(counters.IDNotFound, 1)
		return OutputRow{Label: NotFoundLabel(id), Total: total}
	}
	return OutputRow{Label: outputLabel(entry.Label()), Total: total}
}

func outputLabel(label string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, label)
}
