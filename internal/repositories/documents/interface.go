// Package documents persists encrypted document records: the Document Tree
// Store. Lookups that find nothing return (nil, nil); list lookups return an
// empty slice. A closed database yields common.ErrStoreUnavailable.
package documents

import (
	"context"

	"github.com/dmitrijs2005/storagecrypt/internal/models"
)

type Repository interface {
	GetByID(ctx context.Context, id int64) (*models.Document, error)
	GetByEntryID(ctx context.Context, backend models.BackendType, account, entryID string) (*models.Document, error)
	GetByKeyAlias(ctx context.Context, alias string) ([]*models.Document, error)
	GetBySyncState(ctx context.Context, action models.SyncAction, state models.SyncState) ([]*models.Document, error)
	GetByAccount(ctx context.Context, backend models.BackendType, account string) ([]*models.Document, error)
	GetRoot(ctx context.Context, backend models.BackendType, account string) (*models.Document, error)
	GetRoots(ctx context.Context) ([]*models.Document, error)
	GetChildren(ctx context.Context, parentID int64) ([]*models.Document, error)
	GetChild(ctx context.Context, parentID int64, name string) (*models.Document, error)

	// Insert stores a new document and sets its ID.
	Insert(ctx context.Context, d *models.Document) error
	// Update rewrites every column of an existing document.
	Update(ctx context.Context, d *models.Document) error
	Delete(ctx context.Context, id int64) error
}
