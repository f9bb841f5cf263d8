// Package services contains application services of StorageCrypt. This file
// defines the key store: master password initialization, unlocking and the
// registry of key aliases.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/cryptox"
	"github.com/dmitrijs2005/storagecrypt/internal/dbx"
	"github.com/dmitrijs2005/storagecrypt/internal/repositories/metadata"
)

const (
	saltKey     = "keystore.salt"
	verifierKey = "keystore.verifier"
	aliasesKey  = "keystore.aliases"

	saltSize = 32
)

// KeyStore guards the master key behind a password.
//
// Contract:
//   - Initialize: create salt and verifier for a new password; fails with
//     common.ErrAlreadyInitialized when a password is already set.
//   - Unlock: check the password and return a KeyManager with every known
//     alias unlocked; common.ErrNotInitialized or common.ErrUnauthorized on failure.
//   - AddAlias: register a new alias and unlock it in km.
type KeyStore interface {
	Initialized(ctx context.Context) (bool, error)
	Initialize(ctx context.Context, password []byte) error
	Unlock(ctx context.Context, password []byte) (*cryptox.KeyManager, error)
	AddAlias(ctx context.Context, km *cryptox.KeyManager, alias string) error
}

type keyStore struct {
	db      *sql.DB
	dialect dbx.Dialect
}

func NewKeyStore(db *sql.DB, dialect dbx.Dialect) KeyStore {
	return &keyStore{db: db, dialect: dialect}
}

func (k *keyStore) repo(db dbx.DBTX) metadata.Repository {
	return metadata.NewSQLRepository(db, k.dialect)
}

func (k *keyStore) Initialized(ctx context.Context) (bool, error) {
	salt, err := k.repo(k.db).Get(ctx, saltKey)
	if err != nil {
		return false, err
	}
	return salt != nil, nil
}

func (k *keyStore) Initialize(ctx context.Context, password []byte) error {
	ok, err := k.Initialized(ctx)
	if err != nil {
		return err
	}
	if ok {
		return common.ErrAlreadyInitialized
	}

	salt := common.GenerateRandByteArray(saltSize)
	master := cryptox.DeriveMasterKey(password, salt)
	defer common.WipeByteArray(master)
	verifier := cryptox.MakeVerifier(master)

	aliases, err := json.Marshal([]string{common.DefaultKeyAlias})
	if err != nil {
		return err
	}

	return dbx.WithTx(ctx, k.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := k.repo(tx)
		if err := repo.Set(ctx, saltKey, salt); err != nil {
			return err
		}
		if err := repo.Set(ctx, verifierKey, verifier); err != nil {
			return err
		}
		return repo.Set(ctx, aliasesKey, aliases)
	})
}

func (k *keyStore) Unlock(ctx context.Context, password []byte) (*cryptox.KeyManager, error) {
	repo := k.repo(k.db)

	salt, err := repo.Get(ctx, saltKey)
	if err != nil {
		return nil, err
	}
	verifier, err := repo.Get(ctx, verifierKey)
	if err != nil {
		return nil, err
	}
	if salt == nil || verifier == nil {
		return nil, common.ErrNotInitialized
	}

	master := cryptox.DeriveMasterKey(password, salt)
	defer common.WipeByteArray(master)

	if subtle.ConstantTimeCompare(verifier, cryptox.MakeVerifier(master)) == 0 {
		return nil, common.ErrUnauthorized
	}

	aliases, err := k.aliases(ctx, repo)
	if err != nil {
		return nil, err
	}
	return cryptox.NewKeyManager(master, common.DefaultKeyAlias, aliases...)
}

func (k *keyStore) aliases(ctx context.Context, repo metadata.Repository) ([]string, error) {
	raw, err := repo.Get(ctx, aliasesKey)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var aliases []string
	if err := json.Unmarshal(raw, &aliases); err != nil {
		return nil, fmt.Errorf("decode key aliases: %w", err)
	}
	return aliases, nil
}

func (k *keyStore) AddAlias(ctx context.Context, km *cryptox.KeyManager, alias string) error {
	if err := km.Add(alias); err != nil {
		return err
	}

	return dbx.WithTx(ctx, k.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := k.repo(tx)
		aliases, err := k.aliases(ctx, repo)
		if err != nil {
			return err
		}
		if slices.Contains(aliases, alias) {
			return nil
		}
		raw, err := json.Marshal(append(aliases, alias))
		if err != nil {
			return err
		}
		return repo.Set(ctx, aliasesKey, raw)
	})
}
