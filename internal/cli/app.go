package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/storagecrypt/internal/accounts"
	"github.com/dmitrijs2005/storagecrypt/internal/changesync"
	"github.com/dmitrijs2005/storagecrypt/internal/config"
	"github.com/dmitrijs2005/storagecrypt/internal/cryptox"
	"github.com/dmitrijs2005/storagecrypt/internal/database"
	"github.com/dmitrijs2005/storagecrypt/internal/documents"
	"github.com/dmitrijs2005/storagecrypt/internal/logging"
	"github.com/dmitrijs2005/storagecrypt/internal/metacodec"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/dmitrijs2005/storagecrypt/internal/netx"
	"github.com/dmitrijs2005/storagecrypt/internal/process"
	accountsrepo "github.com/dmitrijs2005/storagecrypt/internal/repositories/accounts"
	documentsrepo "github.com/dmitrijs2005/storagecrypt/internal/repositories/documents"
	"github.com/dmitrijs2005/storagecrypt/internal/services"
	"github.com/dmitrijs2005/storagecrypt/internal/transfer"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

// App wires the store, the configured accounts and, once unlocked, the keys
// and the document repository.
type App struct {
	cfg    *config.Config
	logger logging.Logger
	fs     afero.Fs
	clock  clockwork.Clock

	db       *sql.DB
	store    *documentsrepo.SQLRepository
	accounts *accounts.Registry
	keyStore services.KeyStore

	keys  *cryptox.KeyManager
	codec *metacodec.Codec
	docs  *documents.Repository
}

// newStorage is a test seam for NewStorage.
var newStorage = NewStorage

// Open connects to the store and registers the configured accounts.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger, fsys afero.Fs) (*App, error) {
	db, dialect, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	clock := clockwork.NewRealClock()
	app := &App{
		cfg:      cfg,
		logger:   logger,
		fs:       fsys,
		clock:    clock,
		db:       db,
		store:    documentsrepo.NewSQLRepository(db, dialect),
		accounts: accounts.NewRegistry(accountsrepo.NewSQLRepository(db, dialect), clock, logger),
		keyStore: services.NewKeyStore(db, dialect),
	}

	for _, ac := range cfg.Accounts {
		st, err := newStorage(ctx, ac)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("account %s (%s): %w", ac.Type, ac.Name, err)
		}
		_, err = app.accounts.Register(ctx, models.Account{
			Backend:         ac.Type,
			Name:            ac.Name,
			DefaultKeyAlias: ac.DefaultKeyAlias,
		}, st)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return app, nil
}

func (a *App) Close() error {
	if a.keys != nil {
		a.keys.Wipe()
	}
	return a.db.Close()
}

// Unlock opens the key store with password and builds the document
// repository. Missing roots are created.
func (a *App) Unlock(ctx context.Context, password []byte) error {
	keys, err := a.keyStore.Unlock(ctx, password)
	if err != nil {
		return err
	}
	codec, err := metacodec.New(keys, a.cfg.MetadataCacheSize)
	if err != nil {
		keys.Wipe()
		return err
	}

	a.keys, a.codec = keys, codec
	a.docs = documents.NewRepository(documents.Options{
		Store:    a.store,
		Accounts: a.accounts,
		Keys:     keys,
		Fs:       a.fs,
		DataDir:  a.cfg.DataDir,
		Clock:    a.clock,
		Logger:   a.logger,
	})
	if _, err := a.docs.UpdateRoots(ctx); err != nil {
		return err
	}
	return nil
}

func (a *App) requireUnlocked() error {
	if a.docs == nil {
		return errors.New("key store is locked")
	}
	return nil
}

func (a *App) connectivity() netx.Connectivity {
	if a.cfg.ConnectivityProbeAddr == "" {
		return netx.Always()
	}
	return netx.NewConnectivity(a.cfg.ConnectivityProbeAddr, netx.DefaultProbeTimeout)
}

func (a *App) changeSync(control *process.Control, listener process.Listener) *changesync.Engine {
	return changesync.New(changesync.Options{
		Accounts:     a.accounts,
		Documents:    a.docs,
		Decoder:      a.codec,
		Connectivity: a.connectivity(),
		Clock:        a.clock,
		PassDelay:    a.cfg.PassDelay,
		Control:      control,
		Listener:     listener,
		Logger:       a.logger,
	})
}

func (a *App) transfer(control *process.Control, listener process.Listener) *transfer.Process {
	return transfer.New(a.docs, a.codec,
		transfer.WithClock(a.clock),
		transfer.WithControl(control),
		transfer.WithListener(listener),
		transfer.WithLogger(a.logger),
	)
}
