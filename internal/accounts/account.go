package accounts

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/dmitrijs2005/storagecrypt/internal/remote"
)

// Account is a persisted account together with its backend.
type Account struct {
	models.Account

	storage  remote.Storage
	registry *Registry
}

// Storage is nil when the account has no configured backend.
func (a *Account) Storage() remote.Storage {
	return a.storage
}

// Refresh reloads the persisted fields.
func (a *Account) Refresh(ctx context.Context) error {
	m, err := a.registry.repo.Get(ctx, a.Backend, a.Name)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("account %s: %w", a.StorageText(), common.ErrNotFound)
	}
	a.Account = *m
	return nil
}

func (a *Account) UpdateSyncState(ctx context.Context, state models.SyncState) error {
	if err := a.registry.repo.UpdateSyncState(ctx, a.Backend, a.Name, state); err != nil {
		return err
	}
	a.SyncState = state
	return nil
}

func (a *Account) SetLastChangeID(ctx context.Context, cursor string) error {
	if err := a.registry.repo.UpdateLastChangeID(ctx, a.Backend, a.Name, cursor); err != nil {
		return err
	}
	a.LastChangeID = cursor
	return nil
}

// RefreshQuota asks the backend for the current usage and stores it.
func (a *Account) RefreshQuota(ctx context.Context) error {
	if a.storage == nil {
		return nil
	}
	q, err := a.storage.Quota(ctx, a.Name)
	if err != nil {
		return err
	}
	q.UpdatedAt = a.registry.clock.Now().UTC()
	if err := a.registry.repo.UpdateQuota(ctx, a.Backend, a.Name, q); err != nil {
		return err
	}
	a.Quota = q
	return nil
}
