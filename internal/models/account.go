package models

import (
	"fmt"
	"time"
)

// Quota is the last known storage usage of an account.
type Quota struct {
	Total     int64
	Used      int64
	UpdatedAt time.Time
}

// Account binds a remote backend under a user-chosen name.
type Account struct {
	Backend         BackendType
	Name            string
	DefaultKeyAlias string
	// LastChangeID is the remote change cursor adopted after the last clean sync.
	LastChangeID string
	SyncState    SyncState
	Quota        Quota
}

// StorageText is the human readable identity used in results and logs.
func (a *Account) StorageText() string {
	return fmt.Sprintf("%s (%s)", a.Backend, a.Name)
}
