// Package transfer executes the document actions planned by the encryption
// pipeline and the change sync engine: uploads, downloads and deletions.
package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/documents"
	"github.com/dmitrijs2005/storagecrypt/internal/logging"
	"github.com/dmitrijs2005/storagecrypt/internal/metacodec"
	"github.com/dmitrijs2005/storagecrypt/internal/metrics"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/dmitrijs2005/storagecrypt/internal/process"
	"github.com/dmitrijs2005/storagecrypt/internal/remote"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Encoder produces the remote entry name of a document.
type Encoder interface {
	Encode(m metacodec.Metadata) (string, error)
}

// Item is an executed action.
type Item struct {
	Action   models.SyncAction
	Path     string
	Document *documents.Document
}

func (i Item) String() string {
	return fmt.Sprintf("%s %s", i.Action, i.Path)
}

type Process struct {
	docs     *documents.Repository
	encoder  Encoder
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

func New(docs *documents.Repository, encoder Encoder, opts ...Option) *Process {
	p := &Process{
		docs:     docs,
		encoder:  encoder,
		clock:    clockwork.NewRealClock(),
		control:  &process.Control{},
		listener: process.NopListener(),
		logger:   logging.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	p.logger = p.logger.With("process", metrics.ProcessTransfer)
	return p
}

type task struct {
	action models.SyncAction
	doc    *documents.Document
	path   string
	depth  int
}

// Run executes every planned action: deletions first, then uploads parents
// before children, then downloads. A failed action stays planned for the
// next run.
func (p *Process) Run(ctx context.Context) (*process.Results[Item], error) {
	defer metrics.ObserveRun(metrics.ProcessTransfer, time.Now())

	results := process.NewResults[Item]()
	var tasks []task
	for _, action := range []models.SyncAction{models.ActionDeletion, models.ActionUpload, models.ActionDownload} {
		list, err := p.planned(ctx, action)
		if err != nil {
			return results, err
		}
		tasks = append(tasks, list...)
	}

	p.listener.OnMax(process.ChannelItems, int64(len(tasks)))
	for i, t := range tasks {
		if p.control.Checkpoint(ctx) {
			p.logger.Info(ctx, "transfer canceled")
			return results, nil
		}
		p.listener.OnMessage(process.ChannelItems, t.path)

		err := p.execute(ctx, t)
		switch {
		case err == nil:
			results.AddSuccess(Item{Action: t.action, Path: t.path, Document: t.doc})
			metrics.Item(metrics.ProcessTransfer, metrics.ResultSuccess)
		case errors.Is(err, errSkipped):
			results.AddSkipped(Item{Action: t.action, Path: t.path, Document: t.doc})
			metrics.Item(metrics.ProcessTransfer, metrics.ResultSkipped)
		case errors.Is(err, common.ErrStoreUnavailable):
			return results, err
		case errors.Is(err, common.ErrCanceled):
			p.logger.Info(ctx, "transfer canceled")
			return results, nil
		default:
			results.AddError(string(t.action)+" "+t.path, err)
			metrics.Item(metrics.ProcessTransfer, metrics.ResultError)
			p.logger.Warn(ctx, "transfer failed", "action", t.action, "path", t.path, "error", err)
		}
		p.listener.OnProgress(process.ChannelItems, int64(i+1))
	}
	return results, nil
}

// errSkipped marks actions that cannot run yet, such as documents of an
// account without a configured backend.
var errSkipped = errors.New("skipped")

func (p *Process) planned(ctx context.Context, action models.SyncAction) ([]task, error) {
	docs, err := p.docs.BySyncState(ctx, action, models.StatePlanned)
	if err != nil {
		return nil, err
	}
	tasks := make([]task, 0, len(docs))
	for _, d := range docs {
		lp, err := d.LogicalPath(ctx)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task{action: action, doc: d, path: lp, depth: strings.Count(lp, "/")})
	}
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].depth < tasks[j].depth })
	return tasks, nil
}

func (p *Process) execute(ctx context.Context, t task) error {
	switch t.action {
	case models.ActionDeletion:
		return p.delete(ctx, t.doc)
	case models.ActionUpload:
		return p.upload(ctx, t.doc)
	case models.ActionDownload:
		return p.download(ctx, t.doc)
	}
	return fmt.Errorf("unknown action %q", t.action)
}

func storageOf(d *documents.Document) remote.Storage {
	if a := d.Account(); a != nil {
		return a.Storage()
	}
	return nil
}

func (p *Process) delete(ctx context.Context, d *documents.Document) error {
	// an ancestor deleted earlier in the run takes its subtree along
	cur, err := p.docs.ByID(ctx, d.ID)
	if err != nil {
		return err
	}
	if cur == nil {
		return nil
	}

	if !d.IsUnsynchronized() && d.EntryID != "" {
		st := storageOf(d)
		if st == nil {
			return errSkipped
		}
		if err := st.Delete(ctx, d.AccountName, d.EntryID); err != nil {
			return err
		}
	}
	return d.Delete(ctx)
}

func (p *Process) upload(ctx context.Context, d *documents.Document) error {
	st := storageOf(d)
	if st == nil {
		return errSkipped
	}
	parent, err := d.Parent(ctx)
	if err != nil {
		return err
	}
	if parent == nil || parent.EntryID == "" {
		return fmt.Errorf("%w: parent of %q is not uploaded", common.ErrParentNotFound, d.DisplayName)
	}

	token, err := p.encoder.Encode(d.Metadata())
	if err != nil {
		return err
	}

	var rd *remote.Document
	if d.IsFolder() {
		rd, err = p.uploadFolder(ctx, st, d, parent, token)
	} else {
		rd, err = p.uploadFile(ctx, st, d, parent, token)
	}
	if err != nil {
		return err
	}

	if err := d.UpdateRemoteEntry(ctx, rd.ID, rd.Version); err != nil {
		return err
	}
	return d.UpdateSyncState(ctx, models.ActionUpload, models.StateDone)
}

// uploadFolder creates an opaque folder holding a metadata file with the
// folder's token. A folder already bound to an entry is left as is.
func (p *Process) uploadFolder(ctx context.Context, st remote.Storage, d, parent *documents.Document, token string) (*remote.Document, error) {
	if d.EntryID != "" {
		return &remote.Document{ID: d.EntryID, Version: d.EntryVersion}, nil
	}
	content, err := metacodec.ContentFromToken(token)
	if err != nil {
		return nil, err
	}
	folder, err := st.CreateFolder(ctx, d.AccountName, parent.EntryID, uuid.NewString())
	if err != nil {
		return nil, err
	}
	if _, err := st.Upload(ctx, d.AccountName, folder.ID, models.FolderMetadataFileName, bytes.NewReader(content), int64(len(content))); err != nil {
		return nil, err
	}
	return folder, nil
}

func (p *Process) uploadFile(ctx context.Context, st remote.Storage, d, parent *documents.Document, token string) (*remote.Document, error) {
	f, err := d.OpenContent()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrSourceFileOpen, err)
	}

	var rd *remote.Document
	if d.EntryID == "" {
		rd, err = st.Upload(ctx, d.AccountName, parent.EntryID, token, f, info.Size())
	} else {
		rd, err = st.Update(ctx, d.AccountName, d.EntryID, f, info.Size())
	}
	if err != nil {
		return nil, err
	}
	metrics.Bytes(metrics.ProcessTransfer, info.Size())
	return rd, nil
}

func (p *Process) download(ctx context.Context, d *documents.Document) error {
	if d.IsFolder() {
		return d.UpdateSyncState(ctx, models.ActionDownload, models.StateDone)
	}
	st := storageOf(d)
	if st == nil {
		return errSkipped
	}

	var rd *remote.Document
	n, err := d.ReplaceContent(func(w io.Writer) error {
		var err error
		rd, err = st.Download(ctx, d.AccountName, d.EntryID, &progressWriter{w: w, l: p.listener})
		return err
	})
	if err != nil {
		return err
	}
	metrics.Bytes(metrics.ProcessTransfer, n)

	if err := d.UpdateContentInfo(ctx, n, p.clock.Now()); err != nil {
		return err
	}
	version := d.EntryVersion
	if rd != nil {
		version = rd.Version
	}
	if err := d.UpdateRemoteEntry(ctx, d.EntryID, version); err != nil {
		return err
	}
	return d.UpdateSyncState(ctx, models.ActionDownload, models.StateDone)
}

type progressWriter struct {
	w    io.Writer
	l    process.Listener
	done int64
}

func (pw *progressWriter) Write(b []byte) (int, error) {
	n, err := pw.w.Write(b)
	pw.done += int64(n)
	pw.l.OnProgress(process.ChannelBytes, pw.done)
	return n, err
}
