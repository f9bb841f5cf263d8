package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		in      string
		want    string
	}{
		{"sqlite untouched", SQLite, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{"postgres numbered", Postgres, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{"postgres keeps quoted", Postgres, "SELECT '?' FROM t WHERE a = ?", "SELECT '?' FROM t WHERE a = $1"},
		{"no placeholders", Postgres, "DELETE FROM t", "DELETE FROM t"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Rebind(tt.dialect, tt.in))
		})
	}
}

func TestDialectForDriver(t *testing.T) {
	assert.Equal(t, Postgres, DialectForDriver("pgx"))
	assert.Equal(t, Postgres, DialectForDriver("postgres"))
	assert.Equal(t, SQLite, DialectForDriver("sqlite"))
	assert.Equal(t, SQLite, DialectForDriver(""))
}

// closedDB returns a handle that has already been closed.
func closedDB(t *testing.T) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()
	require.NoError(t, db.Close())
	require.NoError(t, mock.ExpectationsWereMet())
	return db
}

func TestIsClosed(t *testing.T) {
	db := closedDB(t)

	_, err := db.ExecContext(context.Background(), `INSERT INTO t(v) VALUES ('x')`)
	require.Error(t, err)
	assert.True(t, IsClosed(err))
	assert.True(t, IsClosed(fmt.Errorf("wrapped: %w", err)))
	assert.True(t, IsClosed(sql.ErrConnDone))

	assert.False(t, IsClosed(nil))
	assert.False(t, IsClosed(errors.New("boom")))
}

func TestWrapError(t *testing.T) {
	db := closedDB(t)
	_, closedErr := db.ExecContext(context.Background(), `SELECT 1`)
	require.Error(t, closedErr)

	err := WrapError("failed to get document 1", closedErr)
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "failed to get document 1")

	plain := WrapError("failed to insert", errors.New("constraint"))
	assert.NotErrorIs(t, plain, common.ErrStoreUnavailable)
	assert.Equal(t, "failed to insert: constraint", plain.Error())
}
