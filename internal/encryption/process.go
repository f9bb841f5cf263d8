// Package encryption is the Bulk Encryption Pipeline: it ingests a selection
// of local files and folders into the encrypted document tree.
package encryption

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/documents"
	"github.com/dmitrijs2005/storagecrypt/internal/filex"
	"github.com/dmitrijs2005/storagecrypt/internal/logging"
	"github.com/dmitrijs2005/storagecrypt/internal/metrics"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/dmitrijs2005/storagecrypt/internal/process"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

// Request names the local paths to ingest and where to put them. An empty
// KeyAlias uses the destination folder's alias.
type Request struct {
	Paths       []string
	Destination int64
	KeyAlias    string
}

// Item is a successfully ingested path.
type Item struct {
	Source   string
	Document *documents.Document
}

type Process struct {
	docs     *documents.Repository
	fs       afero.Fs
	clock    clockwork.Clock
	control  *process.Control
	listener process.Listener
	logger   logging.Logger
}

type Option func(*Process)

func WithControl(c *process.Control) Option  { return func(p *Process) { p.control = c } }
func WithListener(l process.Listener) Option { return func(p *Process) { p.listener = l } }
func WithLogger(l logging.Logger) Option     { return func(p *Process) { p.logger = l } }
func WithClock(c clockwork.Clock) Option     { return func(p *Process) { p.clock = c } }

// New reads sources from fsys.
func New(docs *documents.Repository, fsys afero.Fs, opts ...Option) *Process {
	p := &Process{
		docs:     docs,
		fs:       fsys,
		clock:    clockwork.NewRealClock(),
		control:  &process.Control{},
		listener: process.NopListener(),
		logger:   logging.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	p.logger = p.logger.With("process", metrics.ProcessEncryption)
	return p
}

type run struct {
	*Process
	dest    *documents.Document
	alias   string
	results *process.Results[Item]
	created map[string]*documents.Document
	failed  map[string]error
	done    int64
}

// Run ingests req. Per path failures end up in the results; an unavailable
// store or an unusable destination is returned as an error. A canceled run
// returns the results gathered so far.
func (p *Process) Run(ctx context.Context, req Request) (*process.Results[Item], error) {
	defer metrics.ObserveRun(metrics.ProcessEncryption, time.Now())

	dest, err := p.docs.ByID(ctx, req.Destination)
	if err != nil {
		return nil, err
	}
	if dest == nil {
		return nil, fmt.Errorf("destination %d: %w", req.Destination, common.ErrNotFound)
	}
	if !dest.IsFolder() {
		return nil, fmt.Errorf("destination %q is not a folder: %w", dest.DisplayName, common.ErrTypeConflict)
	}

	r := &run{
		Process: p,
		dest:    dest,
		alias:   req.KeyAlias,
		results: process.NewResults[Item](),
		created: make(map[string]*documents.Document),
		failed:  make(map[string]error),
	}
	if r.alias == "" {
		r.alias = dest.KeyAlias
	}

	var sources []string
	for _, path := range req.Paths {
		if _, err := p.fs.Stat(path); err != nil {
			r.fail(ctx, path, fmt.Errorf("%w: %w", common.ErrSourceFileOpen, err))
			continue
		}
		sources = append(sources, path)
	}

	sel, err := filex.Expand(p.fs, sources)
	if err != nil {
		return r.results, fmt.Errorf("%w: %w", common.ErrSourceFileOpen, err)
	}

	p.listener.OnMax(process.ChannelItems, int64(len(sel.Folders)+len(sel.Files)))

	for _, path := range sel.Folders {
		if p.control.Checkpoint(ctx) {
			p.logger.Info(ctx, "encryption canceled")
			return r.results, nil
		}
		if err := r.folder(ctx, path); err != nil {
			return r.results, err
		}
	}

	for _, path := range sel.Files {
		if p.control.Checkpoint(ctx) {
			p.logger.Info(ctx, "encryption canceled")
			return r.results, nil
		}
		if err := r.file(ctx, path); err != nil {
			return r.results, err
		}
	}

	return r.results, nil
}

func (r *run) step(path string) {
	r.done++
	r.listener.OnMessage(process.ChannelItems, path)
	r.listener.OnProgress(process.ChannelItems, r.done)
}

func (r *run) succeed(path string, d *documents.Document) {
	r.results.AddSuccess(Item{Source: path, Document: d})
	metrics.Item(metrics.ProcessEncryption, metrics.ResultSuccess)
}

func (r *run) fail(ctx context.Context, path string, err error) {
	r.results.AddError(path, err)
	metrics.Item(metrics.ProcessEncryption, metrics.ResultError)
	r.logger.Error(ctx, "encryption failed", "path", path, "error", err)
}

// structural reports errors that end the whole run.
func structural(err error) bool {
	return errors.Is(err, common.ErrStoreUnavailable)
}

// parent resolves the destination folder of a local path from the folders
// handled earlier in this run.
func (r *run) parent(path string) (*documents.Document, error) {
	dir := filepath.Dir(path)
	if d, ok := r.created[dir]; ok {
		return d, nil
	}
	if _, ok := r.failed[dir]; ok {
		return nil, fmt.Errorf("%s: %w", dir, common.ErrParentFailed)
	}
	return r.dest, nil
}

func (r *run) folder(ctx context.Context, path string) error {
	defer r.step(path)

	d, err := r.ensureFolder(ctx, path)
	if err != nil {
		if structural(err) {
			return err
		}
		r.failed[path] = err
		r.fail(ctx, path, err)
		return nil
	}
	r.created[path] = d
	r.succeed(path, d)
	return nil
}

func (r *run) ensureFolder(ctx context.Context, path string) (*documents.Document, error) {
	parent, err := r.parent(path)
	if err != nil {
		return nil, err
	}

	name := filepath.Base(path)
	existing, err := parent.Child(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !existing.IsFolder() {
			return nil, fmt.Errorf("%q exists and is not a folder: %w", name, common.ErrTypeConflict)
		}
		return existing, nil
	}
	return parent.CreateChild(ctx, name, models.FolderMimeType, r.alias)
}

func (r *run) file(ctx context.Context, path string) error {
	defer r.step(path)

	d, err := r.encryptFile(ctx, path)
	if err != nil {
		if structural(err) {
			return err
		}
		r.fail(ctx, path, err)
		return nil
	}
	r.succeed(path, d)
	return nil
}

func (r *run) encryptFile(ctx context.Context, path string) (*documents.Document, error) {
	parent, err := r.parent(path)
	if err != nil {
		return nil, err
	}

	name := filepath.Base(path)
	d, err := parent.Child(ctx, name)
	if err != nil {
		return nil, err
	}
	isNew := d == nil
	if d != nil && d.IsFolder() {
		return nil, fmt.Errorf("%q exists and is a folder: %w", name, common.ErrTypeConflict)
	}

	src, err := r.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrSourceFileOpen, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrSourceFileOpen, err)
	}

	if isNew {
		mimeType, err := filex.DetectMimeType(r.fs, path)
		if err != nil {
			mimeType = models.DefaultMimeType
		}
		d, err = parent.CreateChild(ctx, name, mimeType, r.alias)
		if err != nil {
			return nil, err
		}
	}

	r.listener.OnMax(process.ChannelBytes, info.Size())
	r.listener.OnProgress(process.ChannelBytes, 0)

	written, err := d.Encrypt(ctx, src, func(n int64) {
		r.listener.OnProgress(process.ChannelBytes, n)
	})
	if err != nil {
		if isNew {
			if derr := d.Delete(ctx); derr != nil {
				r.logger.Error(ctx, "failed to remove partial document", "path", path, "error", derr)
			}
		}
		return nil, err
	}
	metrics.Bytes(metrics.ProcessEncryption, info.Size())

	if err := d.UpdateContentInfo(ctx, written, r.clock.Now()); err != nil {
		return nil, err
	}
	if !d.IsUnsynchronized() {
		if err := d.UpdateSyncState(ctx, models.ActionUpload, models.StatePlanned); err != nil {
			return nil, err
		}
	}
	return d, nil
}
