// Package testutil builds the collaborators shared by package tests: an
// in-memory store with a registry and a document repository on top, unlocked
// keys, and an in-memory remote backend.
package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/storagecrypt/internal/accounts"
	"github.com/dmitrijs2005/storagecrypt/internal/cryptox"
	"github.com/dmitrijs2005/storagecrypt/internal/database"
	"github.com/dmitrijs2005/storagecrypt/internal/documents"
	"github.com/dmitrijs2005/storagecrypt/internal/metacodec"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/dmitrijs2005/storagecrypt/internal/remote"
	accountsrepo "github.com/dmitrijs2005/storagecrypt/internal/repositories/accounts"
	documentsrepo "github.com/dmitrijs2005/storagecrypt/internal/repositories/documents"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// DataDir is where Env keeps backing files inside Fs.
const DataDir = "/data"

// Epoch is the start time of every Env clock.
var Epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type Env struct {
	DB        *sql.DB
	Accounts  *accounts.Registry
	Store     *documentsrepo.SQLRepository
	Documents *documents.Repository
	Keys      *cryptox.KeyManager
	Codec     *metacodec.Codec
	Fs        afero.Fs
	Clock     *clockwork.FakeClock
}

// NewEnv opens a fresh in-memory SQLite store. The key manager has the
// default alias and "work" unlocked.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	ctx := context.Background()

	db, dialect, err := database.Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	keys, err := cryptox.NewKeyManager(cryptox.DeriveMasterKey([]byte("secret"), []byte("salt-salt-salt-salt")), "default", "work")
	require.NoError(t, err)

	codec, err := metacodec.New(keys, 0)
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(Epoch)
	fs := afero.NewMemMapFs()
	store := documentsrepo.NewSQLRepository(db, dialect)
	registry := accounts.NewRegistry(accountsrepo.NewSQLRepository(db, dialect), clock, nil)

	return &Env{
		DB:       db,
		Accounts: registry,
		Store:    store,
		Documents: documents.NewRepository(documents.Options{
			Store:    store,
			Accounts: registry,
			Keys:     keys,
			Fs:       fs,
			DataDir:  DataDir,
			Clock:    clock,
		}),
		Keys:  keys,
		Codec: codec,
		Fs:    fs,
		Clock: clock,
	}
}

// AddAccount registers an account bound to storage and creates its root.
func (e *Env) AddAccount(t *testing.T, backend models.BackendType, name string, storage *FakeStorage) (*accounts.Account, *documents.Document) {
	t.Helper()
	ctx := context.Background()

	var st remote.Storage
	if storage != nil {
		st = storage
	}
	a, err := e.Accounts.Register(ctx, models.Account{Backend: backend, Name: name, DefaultKeyAlias: "default"}, st)
	require.NoError(t, err)

	_, err = e.Documents.UpdateRoots(ctx)
	require.NoError(t, err)

	root, err := e.Documents.Root(ctx, backend, name)
	require.NoError(t, err)
	require.NotNil(t, root)
	if storage != nil {
		require.NoError(t, root.UpdateRemoteEntry(ctx, storage.RootID, 0))
	}
	return a, root
}

// Token encodes metadata for a file or folder name.
func (e *Env) Token(t *testing.T, name, mimeType string) string {
	t.Helper()
	tok, err := e.Codec.Encode(metacodec.Metadata{DisplayName: name, MimeType: mimeType, KeyAlias: "default"})
	require.NoError(t, err)
	return tok
}

// Close closes the store early to simulate an unavailable database.
func (e *Env) Close(t *testing.T) {
	t.Helper()
	require.NoError(t, e.DB.Close())
}
