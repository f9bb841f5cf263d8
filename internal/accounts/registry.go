// Package accounts binds persisted backend accounts to their RemoteStorage
// and drives the account-level synchronization state.
package accounts

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/logging"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/dmitrijs2005/storagecrypt/internal/remote"
	accountsrepo "github.com/dmitrijs2005/storagecrypt/internal/repositories/accounts"
	"github.com/jonboulle/clockwork"
)

type key struct {
	backend models.BackendType
	name    string
}

// Registry resolves accounts by backend and name. Accounts found in the store
// without a configured backend still load, with a nil Storage.
type Registry struct {
	repo   accountsrepo.Repository
	clock  clockwork.Clock
	logger logging.Logger

	mu       sync.RWMutex
	storages map[key]remote.Storage
}

func NewRegistry(repo accountsrepo.Repository, clock clockwork.Clock, logger logging.Logger) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		repo:     repo,
		clock:    clock,
		logger:   logger.With("module", "accounts"),
		storages: make(map[key]remote.Storage),
	}
}

// Register persists a configured account and binds storage to it.
func (r *Registry) Register(ctx context.Context, a models.Account, storage remote.Storage) (*Account, error) {
	if a.Backend == models.BackendUnsynchronized || a.Name == "" {
		return nil, fmt.Errorf("%w: account %s/%q", common.ErrInvalidConfiguration, a.Backend, a.Name)
	}
	if a.DefaultKeyAlias == "" {
		a.DefaultKeyAlias = common.DefaultKeyAlias
	}
	if err := r.repo.CreateOrUpdate(ctx, &a); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.storages[key{a.Backend, a.Name}] = storage
	r.mu.Unlock()

	return r.Get(ctx, a.Backend, a.Name)
}

func (r *Registry) bind(m *models.Account) *Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return &Account{Account: *m, storage: r.storages[key{m.Backend, m.Name}], registry: r}
}

func (r *Registry) bindAll(list []*models.Account) []*Account {
	out := make([]*Account, 0, len(list))
	for _, m := range list {
		out = append(out, r.bind(m))
	}
	return out
}

// Get returns (nil, nil) for an unknown account.
func (r *Registry) Get(ctx context.Context, backend models.BackendType, name string) (*Account, error) {
	m, err := r.repo.Get(ctx, backend, name)
	if err != nil || m == nil {
		return nil, err
	}
	return r.bind(m), nil
}

func (r *Registry) All(ctx context.Context) ([]*Account, error) {
	list, err := r.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return r.bindAll(list), nil
}

func (r *Registry) WithSyncState(ctx context.Context, state models.SyncState) ([]*Account, error) {
	list, err := r.repo.GetBySyncState(ctx, state)
	if err != nil {
		return nil, err
	}
	return r.bindAll(list), nil
}

// Plan requests a change sync for the account. Only an idle (Done) account
// moves to Planned; a planned or running one is left alone.
func (r *Registry) Plan(ctx context.Context, backend models.BackendType, name string) (bool, error) {
	ok, err := r.repo.CompareAndSetSyncState(ctx, backend, name, models.StateDone, models.StatePlanned)
	if err != nil {
		return false, err
	}
	if ok {
		r.logger.Debug(ctx, "sync planned", "backend", backend, "account", name)
	}
	return ok, nil
}

// PlanAll plans every idle account and returns how many were planned.
func (r *Registry) PlanAll(ctx context.Context) (int, error) {
	list, err := r.repo.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range list {
		ok, err := r.Plan(ctx, a.Backend, a.Name)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// ResetRunning moves accounts stranded in Running back to Done.
func (r *Registry) ResetRunning(ctx context.Context) (int64, error) {
	n, err := r.repo.ResetSyncState(ctx, models.StateRunning, models.StateDone)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Warn(ctx, "reset stranded running accounts", "count", n)
	}
	return n, nil
}
