// Package remote defines the capability every remote backend offers to the
// synchronization core, plus the change-feed value types it returns.
package remote

import (
	"context"
	"io"

	"github.com/dmitrijs2005/storagecrypt/internal/models"
)

// Document describes one remote entry as reported by a backend.
type Document struct {
	ID          string
	Name        string
	ParentID    string
	Version     int64
	Folder      bool
	AccountName string
	Size        int64
}

// ProgressAdapter lets a backend report feed retrieval progress and observe
// cancellation while it pages through a listing.
type ProgressAdapter interface {
	SetMax(max int64)
	SetProgress(progress int64)
	IsCanceled() bool
}

// Storage is the per-backend capability used by the synchronization core.
// Every failure is wrapped with common.ErrRemote. Lookups that find nothing
// return (nil, nil).
type Storage interface {
	// Root returns the backend folder that holds the account's tree,
	// creating it when missing.
	Root(ctx context.Context, account string) (*Document, error)

	// Changes returns the changes since the given cursor. An empty cursor
	// requests everything.
	Changes(ctx context.Context, account, since string, progress ProgressAdapter) (*Changes, error)

	Folder(ctx context.Context, account, folderID string) (*Document, error)
	CreateFolder(ctx context.Context, account, parentID, name string) (*Document, error)
	Upload(ctx context.Context, account, parentID, name string, r io.Reader, size int64) (*Document, error)
	Update(ctx context.Context, account, entryID string, r io.Reader, size int64) (*Document, error)
	Download(ctx context.Context, account, entryID string, w io.Writer) (*Document, error)
	Delete(ctx context.Context, account, entryID string) error
	Quota(ctx context.Context, account string) (models.Quota, error)
}

type nopProgress struct{}

// NopProgress ignores progress and is never canceled.
func NopProgress() ProgressAdapter { return nopProgress{} }

func (nopProgress) SetMax(int64)      {}
func (nopProgress) SetProgress(int64) {}
func (nopProgress) IsCanceled() bool  { return false }
