package mysqlsink

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ease-lab/zonecount/report"
)

// recorder is a database/sql driver that records executed statements.
type recorder struct {
	mut       sync.Mutex
	queries   []string
	args      [][]driver.NamedValue
	committed bool
	failOn    string
}

func (r *recorder) Open(name string) (driver.Conn, error) {
	return &recordingConn{r}, nil
}

type recordingConn struct {
	r *recorder
}

func (c *recordingConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *recordingConn) Close() error { return nil }

func (c *recordingConn) Begin() (driver.Tx, error) { return &recordingTx{c.r}, nil }

func (c *recordingConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.r.mut.Lock()
	defer c.r.mut.Unlock()
	if c.r.failOn != "" && strings.Contains(query, c.r.failOn) {
		return nil, errors.New("deadlock found")
	}
	c.r.queries = append(c.r.queries, query)
	c.r.args = append(c.r.args, args)
	return driver.RowsAffected(len(args) / 2), nil
}

type recordingTx struct {
	r *recorder
}

func (tx *recordingTx) Commit() error {
	tx.r.mut.Lock()
	tx.r.committed = true
	tx.r.mut.Unlock()
	return nil
}

func (tx *recordingTx) Rollback() error { return nil }

var (
	registerOnce sync.Once
	current      *recorder
)

// forwardingDriver lets every test install its own recorder.
type forwardingDriver struct{}

func (forwardingDriver) Open(name string) (driver.Conn, error) {
	return current.Open(name)
}

func openRecorder(t *testing.T) (*sql.DB, *recorder) {
	t.Helper()
	registerOnce.Do(func() { sql.Register("zonecount-recorder", forwardingDriver{}) })
	current = &recorder{}
	db, err := sql.Open("zonecount-recorder", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, current
}

func TestWrite(t *testing.T) {
	db, rec := openRecorder(t)
	rows := []report.Row{
		{Label: "Jamaica (Queens)", Count: 2},
		{Label: "Unknown Zone ID:7 (Unknown Borough)", Count: 1},
		{Label: "JFK Airport (Queens)", Count: 1200},
	}

	err := Write(context.Background(), db, Config{Table: "pickups_by_zone", BatchSize: 2}, rows)
	require.NoError(t, err)

	require.Len(t, rec.queries, 3)
	assert.Contains(t, rec.queries[0], "CREATE TABLE IF NOT EXISTS `pickups_by_zone`")
	assert.Equal(t, "INSERT INTO `pickups_by_zone` (`zone`, `pickups`) VALUES (?, ?),(?, ?) ON DUPLICATE KEY UPDATE `pickups`=VALUES(`pickups`)", rec.queries[1])
	assert.Len(t, rec.args[1], 4)
	assert.Equal(t, "Jamaica (Queens)", rec.args[1][0].Value)
	assert.Equal(t, int64(2), rec.args[1][1].Value)
	assert.Len(t, rec.args[2], 2)
	assert.True(t, rec.committed)
}

func TestWriteSumsSharedLabels(t *testing.T) {
	db, rec := openRecorder(t)
	rows := []report.Row{
		{Label: "Corona (Queens)", Count: 40},
		{Label: "Jamaica (Queens)", Count: 2},
		{Label: "Corona (Queens)", Count: 15},
	}

	err := Write(context.Background(), db, Config{Table: "pickups", Replace: true}, rows)
	require.NoError(t, err)

	require.Len(t, rec.queries, 3)
	assert.Equal(t, "TRUNCATE TABLE `pickups`", rec.queries[1])
	require.Len(t, rec.args[2], 4)
	assert.Equal(t, "Corona (Queens)", rec.args[2][0].Value)
	assert.Equal(t, int64(55), rec.args[2][1].Value)
	assert.Equal(t, "Jamaica (Queens)", rec.args[2][2].Value)
	assert.Equal(t, int64(2), rec.args[2][3].Value)
	assert.Len(t, rows, 3)
	assert.Equal(t, int64(40), rows[0].Count)
}

func TestWriteReplace(t *testing.T) {
	db, rec := openRecorder(t)

	err := Write(context.Background(), db, Config{Table: "pickups", Replace: true}, nil)
	require.NoError(t, err)
	require.Len(t, rec.queries, 2)
	assert.Equal(t, "TRUNCATE TABLE `pickups`", rec.queries[1])
}

func TestWriteFailureIsNotCommitted(t *testing.T) {
	db, rec := openRecorder(t)
	rec.failOn = "INSERT"

	err := Write(context.Background(), db, Config{Table: "pickups"}, []report.Row{{Label: "a", Count: 1}})
	assert.Error(t, err)
	assert.False(t, rec.committed)
}

func TestWriteRejectsBadIdentifiers(t *testing.T) {
	db, rec := openRecorder(t)

	assert.Error(t, Write(context.Background(), db, Config{}, nil))
	assert.Error(t, Write(context.Background(), db, Config{Table: "pickups; DROP TABLE x"}, nil))
	assert.Error(t, Write(context.Background(), db, Config{Table: "pickups", LabelColumn: "zone name"}, nil))
	assert.Empty(t, rec.queries)
}

func TestOpenRejectsInvalidDSN(t *testing.T) {
	_, err := Open("not a dsn")
	assert.Error(t, err)

	db, err := Open("user:secret@tcp(127.0.0.1:3306)/taxi")
	require.NoError(t, err)
	db.Close()
}
