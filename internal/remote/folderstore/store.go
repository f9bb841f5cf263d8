// Package folderstore is the RemoteStorage variant for a mounted folder, such
// as a network share or a directory kept in sync by another tool.
//
// Entry ids are slash separated paths relative to the base directory, with
// "/" naming the base itself. Versions are modification times in
// nanoseconds. Changes always answers with a full listing.
package folderstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/dmitrijs2005/storagecrypt/internal/remote"
	"github.com/spf13/afero"
)

const rootID = "/"

type Store struct {
	fs    afero.Fs
	base  string
	quota int64
}

// New serves the tree under base. quota is reported as the account total;
// zero means unknown.
func New(fsys afero.Fs, base string, quota int64) *Store {
	return &Store{fs: fsys, base: base, quota: quota}
}

func remoteErr(op, id string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", common.ErrRemote, op, id, err)
}

func (s *Store) path(id string) string {
	return filepath.Join(s.base, filepath.FromSlash(strings.TrimPrefix(id, "/")))
}

func childID(parentID, name string) string {
	return path.Join(parentID, name)
}

func parentOf(id string) string {
	if id == rootID {
		return ""
	}
	return path.Dir(id)
}

func (s *Store) describe(account, id string, info fs.FileInfo) *remote.Document {
	d := &remote.Document{
		ID:          id,
		Name:        path.Base(id),
		ParentID:    parentOf(id),
		Version:     info.ModTime().UnixNano(),
		Folder:      info.IsDir(),
		AccountName: account,
	}
	if !d.Folder {
		d.Size = info.Size()
	}
	return d
}

func (s *Store) stat(account, id string) (*remote.Document, error) {
	info, err := s.fs.Stat(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, remoteErr("stat", id, err)
	}
	return s.describe(account, id, info), nil
}

func (s *Store) Root(ctx context.Context, account string) (*remote.Document, error) {
	if err := s.fs.MkdirAll(s.base, 0o700); err != nil {
		return nil, remoteErr("create root", rootID, err)
	}
	return s.stat(account, rootID)
}

func (s *Store) Changes(ctx context.Context, account, since string, progress remote.ProgressAdapter) (*remote.Changes, error) {
	if progress == nil {
		progress = remote.NopProgress()
	}

	changes := remote.NewChanges()
	var newest int64
	var seen int64

	err := afero.Walk(s.fs, s.base, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if progress.IsCanceled() {
			return common.ErrCanceled
		}

		rel, err := filepath.Rel(s.base, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if strings.HasSuffix(info.Name(), partSuffix) {
			return nil
		}

		d := s.describe(account, "/"+filepath.ToSlash(rel), info)
		if d.Folder {
			changes.AddFolder(remote.NewChange(d))
		} else {
			changes.Add(remote.NewChange(d))
		}
		newest = max(newest, d.Version)
		seen++
		progress.SetProgress(seen)
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrCanceled) {
			return nil, err
		}
		return nil, remoteErr("list", rootID, err)
	}

	changes.LastChangeID = strconv.FormatInt(newest, 10)
	progress.SetMax(seen)
	return changes, nil
}

func (s *Store) Folder(ctx context.Context, account, folderID string) (*remote.Document, error) {
	d, err := s.stat(account, folderID)
	if err != nil || d == nil || !d.Folder {
		return nil, err
	}
	return d, nil
}

func (s *Store) CreateFolder(ctx context.Context, account, parentID, name string) (*remote.Document, error) {
	id := childID(parentID, name)
	if err := s.fs.MkdirAll(s.path(id), 0o700); err != nil {
		return nil, remoteErr("create folder", id, err)
	}
	return s.stat(account, id)
}

const partSuffix = ".part"

func (s *Store) write(account, id string, r io.Reader) (*remote.Document, error) {
	target := s.path(id)
	tmp := target + partSuffix

	f, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, remoteErr("write", id, err)
	}
	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = s.fs.Rename(tmp, target)
	}
	if err != nil {
		_ = s.fs.Remove(tmp)
		return nil, remoteErr("write", id, err)
	}
	return s.stat(account, id)
}

func (s *Store) Upload(ctx context.Context, account, parentID, name string, r io.Reader, size int64) (*remote.Document, error) {
	parent, err := s.Folder(ctx, account, parentID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, remoteErr("upload", parentID, os.ErrNotExist)
	}
	return s.write(account, childID(parentID, name), r)
}

func (s *Store) Update(ctx context.Context, account, entryID string, r io.Reader, size int64) (*remote.Document, error) {
	d, err := s.stat(account, entryID)
	if err != nil {
		return nil, err
	}
	if d == nil || d.Folder {
		return nil, remoteErr("update", entryID, os.ErrNotExist)
	}
	return s.write(account, entryID, r)
}

func (s *Store) Download(ctx context.Context, account, entryID string, w io.Writer) (*remote.Document, error) {
	f, err := s.fs.Open(s.path(entryID))
	if err != nil {
		return nil, remoteErr("download", entryID, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, remoteErr("download", entryID, err)
	}
	if info.IsDir() {
		return nil, remoteErr("download", entryID, common.ErrTypeConflict)
	}
	if _, err := io.Copy(w, f); err != nil {
		return nil, remoteErr("download", entryID, err)
	}
	return s.describe(account, entryID, info), nil
}

func (s *Store) Delete(ctx context.Context, account, entryID string) error {
	if entryID == rootID || entryID == "" {
		return remoteErr("delete", entryID, common.ErrInvalidConfiguration)
	}
	if err := s.fs.RemoveAll(s.path(entryID)); err != nil {
		return remoteErr("delete", entryID, err)
	}
	return nil
}

func (s *Store) Quota(ctx context.Context, account string) (models.Quota, error) {
	var used int64
	err := afero.Walk(s.fs, s.base, func(_ string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			used += info.Size()
		}
		return nil
	})
	if err != nil {
		return models.Quota{}, remoteErr("quota", rootID, err)
	}
	return models.Quota{Total: s.quota, Used: used}, nil
}
