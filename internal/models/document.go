// Package models holds the persisted records of StorageCrypt: encrypted
// documents, backend accounts and their synchronization states.
package models

import "time"

// BackendType identifies the kind of remote storage a tree is bound to.
type BackendType string

const (
	// BackendUnsynchronized is the local-only tree. Its documents never get
	// Upload or Download states.
	BackendUnsynchronized BackendType = "unsynchronized"
	BackendS3             BackendType = "s3"
	BackendFolder         BackendType = "folder"
)

// BackendTypes lists every backend in root generation order.
func BackendTypes() []BackendType {
	return []BackendType{BackendUnsynchronized, BackendS3, BackendFolder}
}

// SyncAction is a direction a document can be propagating in.
type SyncAction string

const (
	ActionUpload   SyncAction = "upload"
	ActionDownload SyncAction = "download"
	ActionDeletion SyncAction = "deletion"
)

// SyncState is the progress of one SyncAction or of an account sync.
type SyncState string

const (
	StatePlanned SyncState = "planned"
	StateRunning SyncState = "running"
	StateDone    SyncState = "done"
)

const (
	// RootParentID is the parent id of every root document.
	RootParentID int64 = -1

	FolderMimeType  = "inode/directory"
	DefaultMimeType = "application/octet-stream"

	// FolderMetadataFileName names the remote file that carries a folder's
	// metadata token inside the folder itself.
	FolderMetadataFileName = ".metadata"
)

// Document is one node of the local encrypted tree. Parent links are ids;
// the store is the arena.
type Document struct {
	ID          int64
	ParentID    int64
	DisplayName string
	MimeType    string
	KeyAlias    string

	// FileName is the backing ciphertext file inside the data directory.
	// Folders have none.
	FileName   string
	ModifiedAt time.Time
	Size       int64

	Backend       BackendType
	AccountName   string
	EntryID       string
	EntryVersion  int64
	ChangeContext string

	SyncStates map[SyncAction]SyncState
}

func (d *Document) IsRoot() bool {
	return d.ParentID == RootParentID
}

func (d *Document) IsFolder() bool {
	return d.MimeType == FolderMimeType
}

func (d *Document) IsUnsynchronized() bool {
	return d.Backend == BackendUnsynchronized
}

// SyncState returns the state of action and whether the action applies.
func (d *Document) SyncState(action SyncAction) (SyncState, bool) {
	s, ok := d.SyncStates[action]
	return s, ok
}

// SetSyncState records state for action, allocating the map if needed.
func (d *Document) SetSyncState(action SyncAction, state SyncState) {
	if d.SyncStates == nil {
		d.SyncStates = make(map[SyncAction]SyncState, 3)
	}
	d.SyncStates[action] = state
}
