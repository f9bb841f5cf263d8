package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/storagecrypt/internal/dbx"
)

type SQLRepository struct {
	db      dbx.DBTX
	dialect dbx.Dialect
}

func NewSQLRepository(db dbx.DBTX, dialect dbx.Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

func (r *SQLRepository) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	row := r.db.QueryRowContext(ctx, dbx.Rebind(r.dialect, `SELECT value FROM metadata WHERE key = ?`), key)
	switch err := row.Scan(&value); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, dbx.WrapError(fmt.Sprintf("failed to read %q", key), err)
	}
	return value, nil
}

func (r *SQLRepository) Set(ctx context.Context, key string, value []byte) error {
	query := dbx.Rebind(r.dialect, `INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`)
	if _, err := r.db.ExecContext(ctx, query, key, value); err != nil {
		return dbx.WrapError(fmt.Sprintf("failed to write %q", key), err)
	}
	return nil
}
