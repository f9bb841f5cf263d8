package database

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dmitrijs2005/storagecrypt/internal/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableNames(t *testing.T, db *sql.DB) []string {
	t.Helper()
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		names = append(names, n)
	}
	require.NoError(t, rows.Err())
	return names
}

func TestOpen_SQLiteRunsMigrations(t *testing.T) {
	ctx := context.Background()

	db, dialect, err := Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	assert.Equal(t, dbx.SQLite, dialect)
	names := tableNames(t, db)
	assert.Contains(t, names, "documents")
	assert.Contains(t, names, "accounts")
	assert.Contains(t, names, "metadata")
}

func TestRunMigrations_Idempotent(t *testing.T) {
	ctx := context.Background()

	db, _, err := Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, RunMigrations(ctx, db, dbx.SQLite))
}

func TestRootUniqueIndex(t *testing.T) {
	ctx := context.Background()

	db, _, err := Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	insert := `INSERT INTO documents (parent_id, display_name, mime_type, key_alias, backend, account_name)
		VALUES (-1, 'root', 'inode/directory', 'default', 's3', 'a')`
	_, err = db.ExecContext(ctx, insert)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, insert)
	require.Error(t, err, "a second root for the same account must be rejected")
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, _, err := Open(context.Background(), "nope", "x")
	require.Error(t, err)
}
