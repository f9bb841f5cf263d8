package cryptox

import (
	"fmt"
	"slices"
	"sync"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
)

// KeyManager hands out the keys of every unlocked alias. Aliases are derived
// from the master key on demand and cached.
type KeyManager struct {
	mu           sync.RWMutex
	master       []byte
	keys         map[string][]byte
	defaultAlias string
}

// NewKeyManager unlocks defaultAlias and every alias in aliases.
func NewKeyManager(master []byte, defaultAlias string, aliases ...string) (*KeyManager, error) {
	k := &KeyManager{
		master:       slices.Clone(master),
		keys:         make(map[string][]byte),
		defaultAlias: defaultAlias,
	}
	for _, alias := range append([]string{defaultAlias}, aliases...) {
		if err := k.Add(alias); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// Add derives and unlocks alias. Adding a known alias is a no-op.
func (k *KeyManager) Add(alias string) error {
	if alias == "" {
		return fmt.Errorf("empty key alias: %w", common.ErrInvalidConfiguration)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.keys[alias]; ok {
		return nil
	}
	key, err := DeriveAliasKey(k.master, alias)
	if err != nil {
		return err
	}
	k.keys[alias] = key
	return nil
}

// Key returns the key for alias or common.ErrKeyNotFound.
func (k *KeyManager) Key(alias string) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	key, ok := k.keys[alias]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrKeyNotFound, alias)
	}
	return key, nil
}

func (k *KeyManager) DefaultAlias() string {
	return k.defaultAlias
}

// Aliases lists unlocked aliases in sorted order.
func (k *KeyManager) Aliases() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	out := make([]string, 0, len(k.keys))
	for alias := range k.keys {
		out = append(out, alias)
	}
	slices.Sort(out)
	return out
}

// Wipe zeroes all key material. The manager is unusable afterwards.
func (k *KeyManager) Wipe() {
	k.mu.Lock()
	defer k.mu.Unlock()

	common.WipeByteArray(k.master)
	for alias, key := range k.keys {
		common.WipeByteArray(key)
		delete(k.keys, alias)
	}
}
