// Package documents is the Encrypted Document Repository. It loads and saves
// documents through the Document Tree Store and hands them out fully wired:
// every returned Document knows its key material, its backing file system and
// its account.
package documents

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/storagecrypt/internal/accounts"
	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/logging"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/dmitrijs2005/storagecrypt/internal/remote"
	documentsrepo "github.com/dmitrijs2005/storagecrypt/internal/repositories/documents"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

// Keys resolves key aliases. A nil Keys means the key store is locked:
// documents can be browsed but not encrypted or decrypted.
type Keys interface {
	Key(alias string) ([]byte, error)
	DefaultAlias() string
}

type Options struct {
	Store    documentsrepo.Repository
	Accounts *accounts.Registry
	Keys     Keys
	Fs       afero.Fs
	// DataDir holds the ciphertext backing files.
	DataDir string
	Clock   clockwork.Clock
	Logger  logging.Logger
}

type Repository struct {
	store    documentsrepo.Repository
	accounts *accounts.Registry
	keys     Keys
	fs       afero.Fs
	dataDir  string
	clock    clockwork.Clock
	logger   logging.Logger
}

func NewRepository(opts Options) *Repository {
	r := &Repository{
		store:    opts.Store,
		accounts: opts.Accounts,
		keys:     opts.Keys,
		fs:       opts.Fs,
		dataDir:  opts.DataDir,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
	if r.fs == nil {
		r.fs = afero.NewOsFs()
	}
	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	if r.logger == nil {
		r.logger = logging.Nop()
	}
	r.logger = r.logger.With("module", "documents")
	return r
}

func (r *Repository) defaultAlias() string {
	if r.keys != nil && r.keys.DefaultAlias() != "" {
		return r.keys.DefaultAlias()
	}
	return common.DefaultKeyAlias
}

type accountCache map[string]*accounts.Account

func (r *Repository) wrap(ctx context.Context, m *models.Document, cache accountCache) (*Document, error) {
	d := &Document{Document: *m, repo: r}
	if m.IsUnsynchronized() || r.accounts == nil {
		return d, nil
	}

	k := string(m.Backend) + "/" + m.AccountName
	a, ok := cache[k]
	if !ok {
		var err error
		a, err = r.accounts.Get(ctx, m.Backend, m.AccountName)
		if err != nil {
			return nil, err
		}
		if cache != nil {
			cache[k] = a
		}
	}
	d.account = a
	return d, nil
}

func (r *Repository) wrapOne(ctx context.Context, m *models.Document, err error) (*Document, error) {
	if err != nil || m == nil {
		return nil, err
	}
	return r.wrap(ctx, m, nil)
}

func (r *Repository) wrapAll(ctx context.Context, list []*models.Document, err error) ([]*Document, error) {
	if err != nil {
		return nil, err
	}
	cache := accountCache{}
	out := make([]*Document, 0, len(list))
	for _, m := range list {
		d, err := r.wrap(ctx, m, cache)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Root returns the root of the backend/account pair, or nil.
func (r *Repository) Root(ctx context.Context, backend models.BackendType, account string) (*Document, error) {
	m, err := r.store.GetRoot(ctx, backend, account)
	return r.wrapOne(ctx, m, err)
}

func (r *Repository) Roots(ctx context.Context) ([]*Document, error) {
	list, err := r.store.GetRoots(ctx)
	return r.wrapAll(ctx, list, err)
}

func (r *Repository) ByID(ctx context.Context, id int64) (*Document, error) {
	m, err := r.store.GetByID(ctx, id)
	return r.wrapOne(ctx, m, err)
}

// ByBackendEntry returns the local document bound to a remote entry of the
// account, or nil.
func (r *Repository) ByBackendEntry(ctx context.Context, account *models.Account, entryID string) (*Document, error) {
	m, err := r.store.GetByEntryID(ctx, account.Backend, account.Name, entryID)
	return r.wrapOne(ctx, m, err)
}

func (r *Repository) ByKeyAlias(ctx context.Context, alias string) ([]*Document, error) {
	list, err := r.store.GetByKeyAlias(ctx, alias)
	return r.wrapAll(ctx, list, err)
}

func (r *Repository) ByAccount(ctx context.Context, account *models.Account) ([]*Document, error) {
	list, err := r.store.GetByAccount(ctx, account.Backend, account.Name)
	return r.wrapAll(ctx, list, err)
}

func (r *Repository) BySyncState(ctx context.Context, action models.SyncAction, state models.SyncState) ([]*Document, error) {
	list, err := r.store.GetBySyncState(ctx, action, state)
	return r.wrapAll(ctx, list, err)
}

func (r *Repository) newRoot(backend models.BackendType, account, name, alias string) *Document {
	return &Document{
		Document: models.Document{
			ParentID:    models.RootParentID,
			DisplayName: name,
			MimeType:    models.FolderMimeType,
			KeyAlias:    alias,
			ModifiedAt:  r.clock.Now().UTC(),
			Backend:     backend,
			AccountName: account,
		},
		repo: r,
	}
}

// GenerateRoots computes, without persisting anything, the unsynchronized
// root followed by one root per registered account in backend order.
func (r *Repository) GenerateRoots(ctx context.Context) ([]*Document, error) {
	roots := []*Document{
		r.newRoot(models.BackendUnsynchronized, "", string(models.BackendUnsynchronized), r.defaultAlias()),
	}
	if r.accounts == nil {
		return roots, nil
	}

	all, err := r.accounts.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("error retrieving accounts: %w", err)
	}

	for _, backend := range models.BackendTypes() {
		for _, a := range all {
			if a.Backend != backend || backend == models.BackendUnsynchronized {
				continue
			}
			alias := a.DefaultKeyAlias
			if alias == "" {
				alias = r.defaultAlias()
			}
			root := r.newRoot(a.Backend, a.Name, a.StorageText(), alias)
			root.account = a
			roots = append(roots, root)
		}
	}
	return roots, nil
}

// UpdateRoots inserts every generated root missing from the store and
// returns how many were inserted. Running it again inserts nothing.
func (r *Repository) UpdateRoots(ctx context.Context) (int, error) {
	roots, err := r.GenerateRoots(ctx)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, root := range roots {
		existing, err := r.store.GetRoot(ctx, root.Backend, root.AccountName)
		if err != nil {
			return inserted, err
		}
		if existing != nil {
			continue
		}
		if err := r.store.Insert(ctx, &root.Document); err != nil {
			return inserted, fmt.Errorf("error saving root %q: %w", root.DisplayName, err)
		}
		r.logger.Info(ctx, "root created", "backend", root.Backend, "account", root.AccountName, "id", root.ID)
		inserted++
	}
	return inserted, nil
}

// CompleteChanges turns a full remote listing into a delta: every uploaded
// document of the account whose entry is missing from changes gets a
// synthesized deletion. It runs at most once per change set.
func (r *Repository) CompleteChanges(ctx context.Context, account *models.Account, changes *remote.Changes) error {
	if changes.DeltaMode {
		return nil
	}

	list, err := r.store.GetByAccount(ctx, account.Backend, account.Name)
	if err != nil {
		return fmt.Errorf("error retrieving documents of %s: %w", account.StorageText(), err)
	}

	for _, d := range list {
		if d.IsRoot() || d.EntryID == "" || uploadPending(d) {
			continue
		}
		if !changes.Contains(d.EntryID) {
			changes.Add(remote.NewDeletion(d.EntryID))
		}
	}
	changes.DeltaMode = true
	return nil
}

// uploadPending is true for a document whose local state has not reached
// the backend yet. Its entry may be missing from the listing for a while.
func uploadPending(d *models.Document) bool {
	state, ok := d.SyncState(models.ActionUpload)
	return !ok || state != models.StateDone
}
