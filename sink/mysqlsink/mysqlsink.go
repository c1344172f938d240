// Package mysqlsink imports pickup counts into a MySQL table.
package mysqlsink

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
	log "github.com/sirupsen/logrus"

	"github.com/ease-lab/zonecount/report"
)

var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config configures the import of output rows.
type Config struct {
	Table       string `json:"table"`
	LabelColumn string `json:"labelcolumn"`
	CountColumn string `json:"countcolumn"`
	Replace     bool   `json:"replace"`
	BatchSize   int    `json:"batchsize"`
}

// WithDefaults fills in unset fields.
func (c *Config) WithDefaults() {
	if c.LabelColumn == "" {
		c.LabelColumn = "zone"
	}
	if c.CountColumn == "" {
		c.CountColumn = "pickups"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
}

func quoteIdentifier(s string) (string, error) {
	if !identifierRe.MatchString(s) {
		return "", fmt.Errorf("invalid identifier: %s", s)
	}
	return "`" + s + "`", nil
}

// Open connects to the MySQL server described by dsn.
func Open(dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	return sql.Open("mysql", cfg.FormatDSN())
}

type statements struct {
	create   string
	truncate string
	table    string
	label    string
	count    string
}

func newStatements(cfg Config) (statements, error) {
	table, err := quoteIdentifier(cfg.Table)
	if err != nil {
		return statements{}, err
	}
	label, err := quoteIdentifier(cfg.LabelColumn)
	if err != nil {
		return statements{}, err
	}
	count, err := quoteIdentifier(cfg.CountColumn)
	if err != nil {
		return statements{}, err
	}

	return statements{
		create: fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  %s VARCHAR(255) NOT NULL,
  %s BIGINT NOT NULL,
  PRIMARY KEY (%s)
)`, table, label, count, label),
		truncate: fmt.Sprintf(`TRUNCATE TABLE %s`, table),
		table:    table,
		label:    label,
		count:    count,
	}, nil
}

// upsert builds a multi-row upsert of n rows.
func (s statements) upsert(n int) string {
	values := make([]string, n)
	for i := range values {
		values[i] = "(?, ?)"
	}
	return fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES %s ON DUPLICATE KEY UPDATE %s=VALUES(%s)",
		s.table, s.label, s.count, strings.Join(values, ","), s.count, s.count)
}

// mergeLabels sums the counts of rows sharing a label, keeping the order in
// which labels first appear. Distinct locations may share a zone label.
func mergeLabels(rows []report.Row) []report.Row {
	index := make(map[string]int, len(rows))
	merged := make([]report.Row, 0, len(rows))
	for _, row := range rows {
		if i, ok := index[row.Label]; ok {
			merged[i].Count += row.Count
			continue
		}
		index[row.Label] = len(merged)
		merged = append(merged, row)
	}
	return merged
}

// Write upserts rows into the configured table in one transaction. Rows
// sharing a label are imported as one row holding their summed count.
func Write(ctx context.Context, db *sql.DB, cfg Config, rows []report.Row) error {
	cfg.WithDefaults()
	if cfg.Table == "" {
		return fmt.Errorf("target table is required")
	}
	stmts, err := newStatements(cfg)
	if err != nil {
		return err
	}

	rows = mergeLabels(rows)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, stmts.create); err != nil {
		return err
	}
	if cfg.Replace {
		if _, err := tx.ExecContext(ctx, stmts.truncate); err != nil {
			return err
		}
	}

	for start := 0; start < len(rows); start += cfg.BatchSize {
		end := start + cfg.BatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]

		args := make([]interface{}, 0, len(batch)*2)
		for _, row := range batch {
			args = append(args, row.Label, row.Count)
		}
		if _, err := tx.ExecContext(ctx, stmts.upsert(len(batch)), args...); err != nil {
			return fmt.Errorf("upserting rows %d-%d: %w", start, end-1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	log.Infof("Imported %d rows into %s", len(rows), cfg.Table)
	return nil
}
