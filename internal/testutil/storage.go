package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/dmitrijs2005/storagecrypt/internal/remote"
)

type entry struct {
	doc  remote.Document
	data []byte
}

// FakeStorage is an in-memory remote.Storage. Changes returns the queued
// change sets first and a full listing once the queue is empty.
type FakeStorage struct {
	mu sync.Mutex

	RootID  string
	entries map[string]*entry
	queue   []*remote.Changes
	nextID  int
	version int64

	ChangesErr error
	QuotaErr   error
	UploadErr  error
	Total      int64

	ChangesCalls int
	FolderCalls  int
}

func NewFakeStorage() *FakeStorage {
	s := &FakeStorage{RootID: "root", entries: make(map[string]*entry)}
	s.entries[s.RootID] = &entry{doc: remote.Document{ID: s.RootID, Folder: true}}
	return s
}

// Queue makes the next Changes call return ch.
func (s *FakeStorage) Queue(ch *remote.Changes) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, ch)
}

// Put stores an entry as the backend would after an upload and returns it.
func (s *FakeStorage) Put(parentID, name string, folder bool, data []byte) *remote.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(parentID, name, folder, data)
}

func (s *FakeStorage) put(parentID, name string, folder bool, data []byte) *remote.Document {
	s.nextID++
	s.version++
	e := &entry{
		doc: remote.Document{
			ID:       "e" + strconv.Itoa(s.nextID),
			Name:     name,
			ParentID: parentID,
			Version:  s.version,
			Folder:   folder,
			Size:     int64(len(data)),
		},
		data: bytes.Clone(data),
	}
	s.entries[e.doc.ID] = e
	d := e.doc
	return &d
}

// Entry returns a copy of the stored entry and its content.
func (s *FakeStorage) Entry(id string) (*remote.Document, []byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, nil, false
	}
	d := e.doc
	return &d, bytes.Clone(e.data), true
}

// Len counts entries other than the root.
func (s *FakeStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries) - 1
}

func (s *FakeStorage) Root(ctx context.Context, account string) (*remote.Document, error) {
	d, _, _ := s.Entry(s.RootID)
	d.AccountName = account
	return d, nil
}

func (s *FakeStorage) Changes(ctx context.Context, account, since string, progress remote.ProgressAdapter) (*remote.Changes, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ChangesCalls++

	if s.ChangesErr != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrRemote, s.ChangesErr)
	}
	if len(s.queue) > 0 {
		ch := s.queue[0]
		s.queue = s.queue[1:]
		return ch, nil
	}

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		if id != s.RootID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	changes := remote.NewChanges()
	for _, id := range ids {
		d := s.entries[id].doc
		d.AccountName = account
		if d.Folder {
			changes.AddFolder(remote.NewChange(&d))
		} else {
			changes.Add(remote.NewChange(&d))
		}
	}
	changes.LastChangeID = strconv.FormatInt(s.version, 10)
	return changes, nil
}

func (s *FakeStorage) Folder(ctx context.Context, account, folderID string) (*remote.Document, error) {
	s.mu.Lock()
	s.FolderCalls++
	s.mu.Unlock()

	d, _, ok := s.Entry(folderID)
	if !ok || !d.Folder {
		return nil, nil
	}
	d.AccountName = account
	return d, nil
}

func (s *FakeStorage) CreateFolder(ctx context.Context, account, parentID, name string) (*remote.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[parentID]; !ok {
		return nil, fmt.Errorf("%w: parent %s missing", common.ErrRemote, parentID)
	}
	return s.put(parentID, name, true, nil), nil
}

func (s *FakeStorage) Upload(ctx context.Context, account, parentID, name string, r io.Reader, size int64) (*remote.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrRemote, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UploadErr != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrRemote, s.UploadErr)
	}
	if _, ok := s.entries[parentID]; !ok {
		return nil, fmt.Errorf("%w: parent %s missing", common.ErrRemote, parentID)
	}
	return s.put(parentID, name, false, data), nil
}

func (s *FakeStorage) Update(ctx context.Context, account, entryID string, r io.Reader, size int64) (*remote.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrRemote, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UploadErr != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrRemote, s.UploadErr)
	}
	e, ok := s.entries[entryID]
	if !ok {
		return nil, fmt.Errorf("%w: entry %s missing", common.ErrRemote, entryID)
	}
	s.version++
	e.data = bytes.Clone(data)
	e.doc.Version = s.version
	e.doc.Size = int64(len(data))
	d := e.doc
	return &d, nil
}

func (s *FakeStorage) Download(ctx context.Context, account, entryID string, w io.Writer) (*remote.Document, error) {
	d, data, ok := s.Entry(entryID)
	if !ok {
		return nil, fmt.Errorf("%w: entry %s missing", common.ErrRemote, entryID)
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *FakeStorage) Delete(ctx context.Context, account, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if e.doc.ParentID == entryID {
			delete(s.entries, id)
		}
	}
	delete(s.entries, entryID)
	return nil
}

func (s *FakeStorage) Quota(ctx context.Context, account string) (models.Quota, error) {
	if s.QuotaErr != nil {
		return models.Quota{}, fmt.Errorf("%w: %w", common.ErrRemote, s.QuotaErr)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var used int64
	for _, e := range s.entries {
		used += int64(len(e.data))
	}
	return models.Quota{Total: s.Total, Used: used}, nil
}
