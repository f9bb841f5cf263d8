// Package accounts persists backend accounts: their change cursor, quota
// snapshot and synchronization state.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/storagecrypt/internal/models"
)

type Repository interface {
	// Get returns (nil, nil) when the account is unknown.
	Get(ctx context.Context, backend models.BackendType, name string) (*models.Account, error)
	GetAll(ctx context.Context) ([]*models.Account, error)
	GetBySyncState(ctx context.Context, state models.SyncState) ([]*models.Account, error)

	// CreateOrUpdate registers an account. An existing row keeps its cursor,
	// state and quota; only the default key alias is refreshed.
	CreateOrUpdate(ctx context.Context, a *models.Account) error

	UpdateSyncState(ctx context.Context, backend models.BackendType, name string, state models.SyncState) error
	// CompareAndSetSyncState moves the account from one state to another and
	// reports whether it was in the from state.
	CompareAndSetSyncState(ctx context.Context, backend models.BackendType, name string, from, to models.SyncState) (bool, error)
	// ResetSyncState moves every account in state from to state to.
	ResetSyncState(ctx context.Context, from, to models.SyncState) (int64, error)

	UpdateLastChangeID(ctx context.Context, backend models.BackendType, name, cursor string) error
	UpdateQuota(ctx context.Context, backend models.BackendType, name string, q models.Quota) error
	Delete(ctx context.Context, backend models.BackendType, name string) error
}
