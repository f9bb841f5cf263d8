package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/dbx"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
)

const columns = `backend, name, default_key_alias, last_change_id, sync_state, quota_total, quota_used, quota_updated_at`

type SQLRepository struct {
	db      dbx.DBTX
	dialect dbx.Dialect
}

func NewSQLRepository(db dbx.DBTX, dialect dbx.Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		a              models.Account
		backend, state string
		updatedAt      int64
	)
	err := row.Scan(&backend, &a.Name, &a.DefaultKeyAlias, &a.LastChangeID, &state,
		&a.Quota.Total, &a.Quota.Used, &updatedAt)
	if err != nil {
		return nil, err
	}
	a.Backend = models.BackendType(backend)
	a.SyncState = models.SyncState(state)
	if updatedAt != 0 {
		a.Quota.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	}
	return &a, nil
}

func (r *SQLRepository) exec(ctx context.Context, msg, query string, args ...any) (sql.Result, error) {
	res, err := r.db.ExecContext(ctx, dbx.Rebind(r.dialect, query), args...)
	if err != nil {
		return nil, dbx.WrapError(msg, err)
	}
	return res, nil
}

func (r *SQLRepository) execOne(ctx context.Context, msg, query string, args ...any) error {
	res, err := r.exec(ctx, msg, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbx.WrapError("failed to get rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", msg, common.ErrNotFound)
	}
	return nil
}

func (r *SQLRepository) list(ctx context.Context, msg, query string, args ...any) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx, dbx.Rebind(r.dialect, query), args...)
	if err != nil {
		return nil, dbx.WrapError(msg, err)
	}
	defer rows.Close()

	result := []*models.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, dbx.WrapError("failed to scan account row", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.WrapError("failed to iterate account rows", err)
	}
	return result, nil
}

func (r *SQLRepository) Get(ctx context.Context, backend models.BackendType, name string) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx,
		dbx.Rebind(r.dialect, `SELECT `+columns+` FROM accounts WHERE backend = ? AND name = ?`),
		string(backend), name)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbx.WrapError(fmt.Sprintf("failed to get account %s/%s", backend, name), err)
	}
	return a, nil
}

func (r *SQLRepository) GetAll(ctx context.Context) ([]*models.Account, error) {
	return r.list(ctx, "failed to list accounts",
		`SELECT `+columns+` FROM accounts ORDER BY backend, name`)
}

func (r *SQLRepository) GetBySyncState(ctx context.Context, state models.SyncState) ([]*models.Account, error) {
	return r.list(ctx, fmt.Sprintf("failed to list %s accounts", state),
		`SELECT `+columns+` FROM accounts WHERE sync_state = ? ORDER BY backend, name`, string(state))
}

func (r *SQLRepository) CreateOrUpdate(ctx context.Context, a *models.Account) error {
	state := a.SyncState
	if state == "" {
		state = models.StateDone
	}
	_, err := r.exec(ctx, fmt.Sprintf("failed to save account %s/%s", a.Backend, a.Name), `
		INSERT INTO accounts (backend, name, default_key_alias, last_change_id, sync_state)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(backend, name) DO UPDATE SET default_key_alias = excluded.default_key_alias
	`, string(a.Backend), a.Name, a.DefaultKeyAlias, a.LastChangeID, string(state))
	return err
}

func (r *SQLRepository) UpdateSyncState(ctx context.Context, backend models.BackendType, name string, state models.SyncState) error {
	return r.execOne(ctx, fmt.Sprintf("failed to set state of account %s/%s", backend, name),
		`UPDATE accounts SET sync_state = ? WHERE backend = ? AND name = ?`,
		string(state), string(backend), name)
}

func (r *SQLRepository) CompareAndSetSyncState(ctx context.Context, backend models.BackendType, name string, from, to models.SyncState) (bool, error) {
	res, err := r.exec(ctx, fmt.Sprintf("failed to set state of account %s/%s", backend, name),
		`UPDATE accounts SET sync_state = ? WHERE backend = ? AND name = ? AND sync_state = ?`,
		string(to), string(backend), name, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbx.WrapError("failed to get rows affected", err)
	}
	return n > 0, nil
}

func (r *SQLRepository) ResetSyncState(ctx context.Context, from, to models.SyncState) (int64, error) {
	res, err := r.exec(ctx, fmt.Sprintf("failed to reset %s accounts", from),
		`UPDATE accounts SET sync_state = ? WHERE sync_state = ?`, string(to), string(from))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbx.WrapError("failed to get rows affected", err)
	}
	return n, nil
}

func (r *SQLRepository) UpdateLastChangeID(ctx context.Context, backend models.BackendType, name, cursor string) error {
	return r.execOne(ctx, fmt.Sprintf("failed to set cursor of account %s/%s", backend, name),
		`UPDATE accounts SET last_change_id = ? WHERE backend = ? AND name = ?`,
		cursor, string(backend), name)
}

func (r *SQLRepository) UpdateQuota(ctx context.Context, backend models.BackendType, name string, q models.Quota) error {
	var updatedAt int64
	if !q.UpdatedAt.IsZero() {
		updatedAt = q.UpdatedAt.UnixMilli()
	}
	return r.execOne(ctx, fmt.Sprintf("failed to set quota of account %s/%s", backend, name),
		`UPDATE accounts SET quota_total = ?, quota_used = ?, quota_updated_at = ? WHERE backend = ? AND name = ?`,
		q.Total, q.Used, updatedAt, string(backend), name)
}

func (r *SQLRepository) Delete(ctx context.Context, backend models.BackendType, name string) error {
	_, err := r.exec(ctx, fmt.Sprintf("failed to delete account %s/%s", backend, name),
		`DELETE FROM accounts WHERE backend = ? AND name = ?`, string(backend), name)
	return err
}
