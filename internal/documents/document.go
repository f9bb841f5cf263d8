package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"time"

	"github.com/dmitrijs2005/storagecrypt/internal/accounts"
	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/cryptox"
	"github.com/dmitrijs2005/storagecrypt/internal/metacodec"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/dmitrijs2005/storagecrypt/internal/remote"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Document is a stored document together with its collaborators. It is only
// obtained from a Repository.
type Document struct {
	models.Document

	repo    *Repository
	account *accounts.Account
}

// Account is nil for the unsynchronized tree and for documents of an
// account that is no longer registered.
func (d *Document) Account() *accounts.Account {
	return d.account
}

// IsBackendRoot reports whether d is the root of a synchronized account.
func (d *Document) IsBackendRoot() bool {
	return d.IsRoot() && !d.IsUnsynchronized()
}

func (d *Document) Key() ([]byte, error) {
	if d.repo.keys == nil {
		return nil, fmt.Errorf("key store locked: %w", common.ErrKeyNotFound)
	}
	return d.repo.keys.Key(d.KeyAlias)
}

// Metadata is the record a remote entry name carries for d.
func (d *Document) Metadata() metacodec.Metadata {
	return metacodec.Metadata{DisplayName: d.DisplayName, MimeType: d.MimeType, KeyAlias: d.KeyAlias}
}

func (d *Document) Parent(ctx context.Context) (*Document, error) {
	if d.IsRoot() {
		return nil, nil
	}
	return d.repo.ByID(ctx, d.ParentID)
}

func (d *Document) Children(ctx context.Context) ([]*Document, error) {
	list, err := d.repo.store.GetChildren(ctx, d.ID)
	return d.repo.wrapAll(ctx, list, err)
}

// Child returns the child with the given display name, or nil.
func (d *Document) Child(ctx context.Context, name string) (*Document, error) {
	m, err := d.repo.store.GetChild(ctx, d.ID, name)
	return d.repo.wrapOne(ctx, m, err)
}

func (d *Document) newChild(name, mimeType, keyAlias string) *Document {
	if keyAlias == "" {
		keyAlias = d.KeyAlias
	}
	if mimeType == "" {
		mimeType = models.DefaultMimeType
	}
	c := &Document{
		Document: models.Document{
			ParentID:    d.ID,
			DisplayName: name,
			MimeType:    mimeType,
			KeyAlias:    keyAlias,
			ModifiedAt:  d.repo.clock.Now().UTC(),
			Backend:     d.Backend,
			AccountName: d.AccountName,
		},
		repo:    d.repo,
		account: d.account,
	}
	if !c.IsFolder() {
		c.FileName = uuid.NewString()
	}
	return c
}

func (d *Document) insert(ctx context.Context, c *Document) (*Document, error) {
	if !d.IsFolder() {
		return nil, fmt.Errorf("%q is not a folder: %w", d.DisplayName, common.ErrTypeConflict)
	}
	if err := d.repo.store.Insert(ctx, &c.Document); err != nil {
		return nil, fmt.Errorf("error saving %q: %w", c.DisplayName, err)
	}
	return c, nil
}

// CreateChild creates a local document under d. An empty keyAlias inherits
// d's alias. In a synchronized tree a new folder is planned for upload at
// once; a file waits until its content is written.
func (d *Document) CreateChild(ctx context.Context, name, mimeType, keyAlias string) (*Document, error) {
	c := d.newChild(name, mimeType, keyAlias)
	if !c.IsUnsynchronized() {
		c.SetSyncState(models.ActionDownload, models.StateDone)
		if c.IsFolder() {
			c.SetSyncState(models.ActionUpload, models.StatePlanned)
		}
	}
	return d.insert(ctx, c)
}

// CreateRemoteChild creates a document for an entry discovered on the
// backend. Files are planned for download.
func (d *Document) CreateRemoteChild(ctx context.Context, meta metacodec.Metadata, rd *remote.Document) (*Document, error) {
	mimeType := meta.MimeType
	if rd.Folder {
		mimeType = models.FolderMimeType
	}
	c := d.newChild(meta.DisplayName, mimeType, meta.KeyAlias)
	c.EntryID = rd.ID
	c.EntryVersion = rd.Version
	c.Size = rd.Size
	c.SetSyncState(models.ActionUpload, models.StateDone)
	if c.IsFolder() {
		c.SetSyncState(models.ActionDownload, models.StateDone)
	} else {
		c.SetSyncState(models.ActionDownload, models.StatePlanned)
	}
	return d.insert(ctx, c)
}

func (d *Document) save(ctx context.Context) error {
	if err := d.repo.store.Update(ctx, &d.Document); err != nil {
		return fmt.Errorf("error saving %q: %w", d.DisplayName, err)
	}
	return nil
}

// UpdateSyncState records state for action. Unsynchronized documents have
// no Upload or Download states, so those updates are dropped.
func (d *Document) UpdateSyncState(ctx context.Context, action models.SyncAction, state models.SyncState) error {
	if d.IsUnsynchronized() && action != models.ActionDeletion {
		return nil
	}
	d.SetSyncState(action, state)
	return d.save(ctx)
}

func (d *Document) UpdateContentInfo(ctx context.Context, size int64, modifiedAt time.Time) error {
	d.Size = size
	d.ModifiedAt = modifiedAt.UTC()
	return d.save(ctx)
}

// UpdateRemoteEntry binds d to a remote entry. The stored version never
// decreases.
func (d *Document) UpdateRemoteEntry(ctx context.Context, entryID string, version int64) error {
	d.EntryID = entryID
	if version > d.EntryVersion {
		d.EntryVersion = version
	}
	return d.save(ctx)
}

// PlanDownload binds d to a newer remote revision and plans fetching it.
// The version is raised once the content has been downloaded.
func (d *Document) PlanDownload(ctx context.Context, entryID string) error {
	d.EntryID = entryID
	d.SetSyncState(models.ActionDownload, models.StatePlanned)
	return d.save(ctx)
}

// LogicalPath is the slash separated chain of display names from the root.
func (d *Document) LogicalPath(ctx context.Context) (string, error) {
	names := []string{d.DisplayName}
	cur := d
	for !cur.IsRoot() {
		p, err := cur.Parent(ctx)
		if err != nil {
			return "", err
		}
		if p == nil {
			return "", fmt.Errorf("parent %d of %q: %w", cur.ParentID, cur.DisplayName, common.ErrNotFound)
		}
		names = append(names, p.DisplayName)
		cur = p
	}
	slices.Reverse(names)
	return "/" + path.Join(names...), nil
}

// FilePath is the ciphertext backing file, empty for folders.
func (d *Document) FilePath() string {
	if d.FileName == "" {
		return ""
	}
	return filepath.Join(d.repo.dataDir, d.FileName)
}

// HasContent reports whether the backing file exists.
func (d *Document) HasContent() (bool, error) {
	if d.FileName == "" {
		return false, nil
	}
	return afero.Exists(d.repo.fs, d.FilePath())
}

// OpenContent opens the ciphertext for reading.
func (d *Document) OpenContent() (afero.File, error) {
	if d.FileName == "" {
		return nil, fmt.Errorf("%q has no content: %w", d.DisplayName, common.ErrTypeConflict)
	}
	f, err := d.repo.fs.Open(d.FilePath())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrSourceFileOpen, err)
	}
	return f, nil
}

// ReplaceContent writes new ciphertext through fill into a temporary file and
// moves it over the backing file once fill succeeds. It returns the number of
// bytes written.
func (d *Document) ReplaceContent(fill func(w io.Writer) error) (int64, error) {
	if d.FileName == "" {
		return 0, fmt.Errorf("%q has no content: %w", d.DisplayName, common.ErrTypeConflict)
	}
	fs := d.repo.fs
	if d.repo.dataDir != "" {
		if err := fs.MkdirAll(d.repo.dataDir, 0o700); err != nil {
			return 0, fmt.Errorf("%w: %w", common.ErrDestinationFileOpen, err)
		}
	}

	tmp := d.FilePath() + ".part"
	f, err := fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrDestinationFileOpen, err)
	}

	cw := &countingWriter{w: f}
	err = fill(cw)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = fs.Remove(tmp)
		return 0, err
	}
	if err := fs.Rename(tmp, d.FilePath()); err != nil {
		_ = fs.Remove(tmp)
		return 0, fmt.Errorf("%w: %w", common.ErrDestinationFileOpen, err)
	}
	return cw.n, nil
}

// Encrypt replaces the content with the ciphertext of src.
func (d *Document) Encrypt(ctx context.Context, src io.Reader, progress cryptox.ProgressFunc) (int64, error) {
	key, err := d.Key()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrEncryption, err)
	}
	return d.ReplaceContent(func(w io.Writer) error {
		return cryptox.EncryptStream(ctx, key, src, w, progress)
	})
}

// Decrypt writes the plaintext of the content to dst.
func (d *Document) Decrypt(ctx context.Context, dst io.Writer, progress cryptox.ProgressFunc) error {
	key, err := d.Key()
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrDecryption, err)
	}
	f, err := d.OpenContent()
	if err != nil {
		return err
	}
	defer f.Close()

	return cryptox.DecryptStream(ctx, key, f, dst, progress)
}

// Delete removes d, its descendants and their backing files.
func (d *Document) Delete(ctx context.Context) error {
	children, err := d.Children(ctx)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := c.Delete(ctx); err != nil {
			return err
		}
	}

	if d.FileName != "" {
		if err := d.repo.fs.Remove(d.FilePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("error removing content of %q: %w", d.DisplayName, err)
		}
	}
	if err := d.repo.store.Delete(ctx, d.ID); err != nil {
		return fmt.Errorf("error deleting %q: %w", d.DisplayName, err)
	}
	d.repo.logger.Debug(ctx, "document deleted", "id", d.ID, "name", d.DisplayName)
	return nil
}

// String is used in results and logs.
func (d *Document) String() string {
	return fmt.Sprintf("%s [%d]", d.DisplayName, d.ID)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
