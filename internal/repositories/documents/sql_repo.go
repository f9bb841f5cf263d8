package documents

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

const columns = `id, parent_id, display_name, mime_type, key_alias, file_name, modified_at, size,
	backend, account_name, entry_id, entry_version, change_context,
	upload_state, download_state, deletion_state`

var stateColumns = map[models.SyncAction]string{
	models.ActionUpload:   "upload_state",
	models.ActionDownload: "download_state",
	models.ActionDeletion: "deletion_state",
}

// SQLRepository works on SQLite and PostgreSQL; queries are written with '?'
// and rebound for the configured dialect.
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

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		d                         models.Document
		modifiedAt                int64
		backend                   string
		upload, download, deleted string
	)
	err := row.Scan(&d.ID, &d.ParentID, &d.DisplayName, &d.MimeType, &d.KeyAlias, &d.FileName, &modifiedAt, &d.Size,
		&backend, &d.AccountName, &d.EntryID, &d.EntryVersion, &d.ChangeContext,
		&upload, &download, &deleted)
	if err != nil {
		return nil, err
	}

	d.Backend = models.BackendType(backend)
	if modifiedAt != 0 {
		d.ModifiedAt = time.UnixMilli(modifiedAt).UTC()
	}
	for action, state := range map[models.SyncAction]string{
		models.ActionUpload:   upload,
		models.ActionDownload: download,
		models.ActionDeletion: deleted,
	} {
		if state != "" {
			d.SetSyncState(action, models.SyncState(state))
		}
	}
	return &d, nil
}

func stateValue(d *models.Document, action models.SyncAction) string {
	s, _ := d.SyncState(action)
	return string(s)
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func (r *SQLRepository) queryOne(ctx context.Context, msg, query string, args ...any) (*models.Document, error) {
	row := r.db.QueryRowContext(ctx, dbx.Rebind(r.dialect, query), args...)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbx.WrapError(msg, err)
	}
	return d, nil
}

func (r *SQLRepository) queryMany(ctx context.Context, msg, query string, args ...any) ([]*models.Document, error) {
	rows, err := r.db.QueryContext(ctx, dbx.Rebind(r.dialect, query), args...)
	if err != nil {
		return nil, dbx.WrapError(msg, err)
	}
	defer rows.Close()

	result := []*models.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, dbx.WrapError("failed to scan document row", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.WrapError("failed to iterate document rows", err)
	}
	return result, nil
}

func (r *SQLRepository) GetByID(ctx context.Context, id int64) (*models.Document, error) {
	return r.queryOne(ctx, fmt.Sprintf("failed to get document %d", id),
		`SELECT `+columns+` FROM documents WHERE id = ?`, id)
}

func (r *SQLRepository) GetByEntryID(ctx context.Context, backend models.BackendType, account, entryID string) (*models.Document, error) {
	return r.queryOne(ctx, fmt.Sprintf("failed to get document by entry %s", entryID),
		`SELECT `+columns+` FROM documents WHERE backend = ? AND account_name = ? AND entry_id = ? ORDER BY id LIMIT 1`,
		string(backend), account, entryID)
}

func (r *SQLRepository) GetByKeyAlias(ctx context.Context, alias string) ([]*models.Document, error) {
	return r.queryMany(ctx, fmt.Sprintf("failed to get documents by key alias %s", alias),
		`SELECT `+columns+` FROM documents WHERE key_alias = ? ORDER BY id`, alias)
}

func (r *SQLRepository) GetBySyncState(ctx context.Context, action models.SyncAction, state models.SyncState) ([]*models.Document, error) {
	col, ok := stateColumns[action]
	if !ok {
		return nil, fmt.Errorf("unknown sync action %q", action)
	}
	return r.queryMany(ctx, fmt.Sprintf("failed to get documents by %s state %s", action, state),
		`SELECT `+columns+` FROM documents WHERE `+col+` = ? ORDER BY id`, string(state))
}

func (r *SQLRepository) GetByAccount(ctx context.Context, backend models.BackendType, account string) ([]*models.Document, error) {
	return r.queryMany(ctx, fmt.Sprintf("failed to get documents of %s/%s", backend, account),
		`SELECT `+columns+` FROM documents WHERE backend = ? AND account_name = ? ORDER BY id`,
		string(backend), account)
}

func (r *SQLRepository) GetRoot(ctx context.Context, backend models.BackendType, account string) (*models.Document, error) {
	return r.queryOne(ctx, fmt.Sprintf("failed to get root of %s/%s", backend, account),
		`SELECT `+columns+` FROM documents WHERE parent_id = ? AND backend = ? AND account_name = ?`,
		models.RootParentID, string(backend), account)
}

func (r *SQLRepository) GetRoots(ctx context.Context) ([]*models.Document, error) {
	return r.queryMany(ctx, "failed to get roots",
		`SELECT `+columns+` FROM documents WHERE parent_id = ? ORDER BY id`, models.RootParentID)
}

func (r *SQLRepository) GetChildren(ctx context.Context, parentID int64) ([]*models.Document, error) {
	return r.queryMany(ctx, fmt.Sprintf("failed to get children of %d", parentID),
		`SELECT `+columns+` FROM documents WHERE parent_id = ? ORDER BY display_name, id`, parentID)
}

func (r *SQLRepository) GetChild(ctx context.Context, parentID int64, name string) (*models.Document, error) {
	return r.queryOne(ctx, fmt.Sprintf("failed to get child %q of %d", name, parentID),
		`SELECT `+columns+` FROM documents WHERE parent_id = ? AND display_name = ? ORDER BY id LIMIT 1`,
		parentID, name)
}

func (r *SQLRepository) Insert(ctx context.Context, d *models.Document) error {
	query := `INSERT INTO documents (parent_id, display_name, mime_type, key_alias, file_name, modified_at, size,
			backend, account_name, entry_id, entry_version, change_context,
			upload_state, download_state, deletion_state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, dbx.Rebind(r.dialect, query),
		d.ParentID, d.DisplayName, d.MimeType, d.KeyAlias, d.FileName, millis(d.ModifiedAt), d.Size,
		string(d.Backend), d.AccountName, d.EntryID, d.EntryVersion, d.ChangeContext,
		stateValue(d, models.ActionUpload), stateValue(d, models.ActionDownload), stateValue(d, models.ActionDeletion),
	).Scan(&d.ID)
	if err != nil {
		return dbx.WrapError(fmt.Sprintf("failed to insert document %q", d.DisplayName), err)
	}
	return nil
}

func (r *SQLRepository) Update(ctx context.Context, d *models.Document) error {
	query := `UPDATE documents SET parent_id = ?, display_name = ?, mime_type = ?, key_alias = ?, file_name = ?,
			modified_at = ?, size = ?, backend = ?, account_name = ?, entry_id = ?, entry_version = ?,
			change_context = ?, upload_state = ?, download_state = ?, deletion_state = ?
		WHERE id = ?`

	res, err := r.db.ExecContext(ctx, dbx.Rebind(r.dialect, query),
		d.ParentID, d.DisplayName, d.MimeType, d.KeyAlias, d.FileName,
		millis(d.ModifiedAt), d.Size, string(d.Backend), d.AccountName, d.EntryID, d.EntryVersion,
		d.ChangeContext, stateValue(d, models.ActionUpload), stateValue(d, models.ActionDownload), stateValue(d, models.ActionDeletion),
		d.ID)
	if err != nil {
		return dbx.WrapError(fmt.Sprintf("failed to update document %d", d.ID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbx.WrapError("failed to get rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("failed to update document %d: %w", d.ID, common.ErrNotFound)
	}
	return nil
}

func (r *SQLRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, dbx.Rebind(r.dialect, `DELETE FROM documents WHERE id = ?`), id)
	if err != nil {
		return dbx.WrapError(fmt.Sprintf("failed to delete document %d", id), err)
	}
	return nil
}
