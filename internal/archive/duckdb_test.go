package archive

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCountDriver is a minimal driver whose statements execute but cannot
// report an affected-row count.
type stubCountDriver struct{}

func (stubCountDriver) Open(string) (driver.Conn, error) { return stubCountConn{}, nil }

type stubCountConn struct{}

func (stubCountConn) Prepare(string) (driver.Stmt, error) { return stubCountStmt{}, nil }
func (stubCountConn) Close() error                        { return nil }
func (stubCountConn) Begin() (driver.Tx, error)           { return nil, errors.New("unsupported") }

type stubCountStmt struct{}

func (stubCountStmt) Close() error  { return nil }
func (stubCountStmt) NumInput() int { return -1 }
func (stubCountStmt) Exec([]driver.Value) (driver.Result, error) {
	return stubCountResult{}, nil
}
func (stubCountStmt) Query([]driver.Value) (driver.Rows, error) {
	return nil, errors.New("unsupported")
}

type stubCountResult struct{}

func (stubCountResult) LastInsertId() (int64, error) { return 0, nil }
func (stubCountResult) RowsAffected() (int64, error) {
	return 0, errors.New("row count unavailable")
}

func init() {
	sql.Register("stubcount", stubCountDriver{})
}

func TestDuckDBArchive_PruneRowCountError(t *testing.T) {
	db, err := sql.Open("stubcount", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	a := &DuckDBArchive{db: db, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	removed, err := a.Prune(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row count unavailable")
	assert.Zero(t, removed)
}
