// Package report ranks the rows of a job's output files.
package report

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"github.com/ease-lab/zonecount/internal/pkg/corfs"
)

// Row is one "label<TAB>count" line of reduce output.
type Row struct {
	Label string
	Count int64
}

// ReadRows parses output lines from r. Malformed lines are skipped and
// counted.
func ReadRows(r io.Reader) ([]Row, int, error) {
	rows := make([]Row, 0)
	skipped := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		row, err := parseRow(line)
		if err != nil {
			log.WithField("line", line).Debugf("Skipping malformed line: %s", err)
			skipped++
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped, scanner.Err()
}

func parseRow(line string) (Row, error) {
	parts := strings.Split(line, "\t")
	if len(parts) != 2 {
		return Row{}, fmt.Errorf("expected 2 fields, got %d", len(parts))
	}
	count, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return Row{}, fmt.Errorf("count is not an integer: %w", err)
	}
	return Row{Label: parts[0], Count: count}, nil
}

// ReadFiles parses every file in paths.
func ReadFiles(fs corfs.FileSystem, paths []string) ([]Row, int, error) {
	rows := make([]Row, 0)
	skipped := 0
	for _, path := range paths {
		reader, err := fs.OpenReader(path, 0)
		if err != nil {
			return nil, 0, err
		}
		fileRows, fileSkipped, err := ReadRows(reader)
		reader.Close()
		if err != nil {
			return nil, 0, fmt.Errorf("reading %s: %w", path, err)
		}
		rows = append(rows, fileRows...)
		skipped += fileSkipped
	}
	return rows, skipped, nil
}

// TopN returns the n rows with the largest counts, ties broken by label.
// rows is not modified.
func TopN(rows []Row, n int) []Row {
	sorted := make([]Row, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Count != sorted[j].Count {
			return sorted[i].Count > sorted[j].Count
		}
		return sorted[i].Label < sorted[j].Label
	})
	if n >= 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// Print writes a ranked listing of rows to w.
func Print(w io.Writer, rows []Row) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No data processed.")
		return err
	}
	if _, err := fmt.Fprintf(w, "Top %d Busiest Pickup Locations:\n", len(rows)); err != nil {
		return err
	}
	for i, row := range rows {
		if _, err := fmt.Fprintf(w, "%d. %s: %s\n", i+1, row.Label, humanize.Comma(row.Count)); err != nil {
			return err
		}
	}
	return nil
}
