// Package decryption writes encrypted documents back out as plaintext files,
// recreating the folder structure of the selection under a local directory.
package decryption

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/documents"
	"github.com/dmitrijs2005/storagecrypt/internal/filex"
	"github.com/dmitrijs2005/storagecrypt/internal/logging"
	"github.com/dmitrijs2005/storagecrypt/internal/metrics"
	"github.com/dmitrijs2005/storagecrypt/internal/process"
	"github.com/spf13/afero"
)

type Request struct {
	Documents []int64
	Target    string
}

// Item is a written file or folder.
type Item struct {
	Document *documents.Document
	Target   string
}

type Process struct {
	docs     *documents.Repository
	fs       afero.Fs
	control  *process.Control
	listener process.Listener
	logger   logging.Logger
}

func New(docs *documents.Repository, fsys afero.Fs, control *process.Control, listener process.Listener, logger logging.Logger) *Process {
	if control == nil {
		control = &process.Control{}
	}
	if listener == nil {
		listener = process.NopListener()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Process{
		docs:     docs,
		fs:       fsys,
		control:  control,
		listener: listener,
		logger:   logger.With("process", metrics.ProcessDecryption),
	}
}

// Run decrypts every selected document. Folders are unfolded recursively.
func (p *Process) Run(ctx context.Context, req Request) (*process.Results[Item], error) {
	defer metrics.ObserveRun(metrics.ProcessDecryption, time.Now())

	results := process.NewResults[Item]()
	target, err := filex.EnsureDir(p.fs, req.Target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDestinationFileOpen, err)
	}

	p.listener.OnMax(process.ChannelItems, int64(len(req.Documents)))
	for i, id := range req.Documents {
		d, err := p.docs.ByID(ctx, id)
		if err != nil {
			return results, err
		}
		if d == nil {
			results.AddError(strconv.FormatInt(id, 10), fmt.Errorf("document %d: %w", id, common.ErrNotFound))
			continue
		}
		if err := p.export(ctx, d, target, results); err != nil {
			if errors.Is(err, common.ErrCanceled) {
				p.logger.Info(ctx, "decryption canceled")
				return results, nil
			}
			return results, err
		}
		p.listener.OnProgress(process.ChannelItems, int64(i+1))
	}
	return results, nil
}

// export writes d under dir. Only structural errors and cancellation are
// returned; item failures go to results.
func (p *Process) export(ctx context.Context, d *documents.Document, dir string, results *process.Results[Item]) error {
	if p.control.Checkpoint(ctx) {
		return common.ErrCanceled
	}

	target := filepath.Join(dir, d.DisplayName)
	p.listener.OnMessage(process.ChannelItems, target)

	if d.IsFolder() {
		if err := p.fs.MkdirAll(target, 0o700); err != nil {
			p.fail(ctx, results, d, fmt.Errorf("%w: %w", common.ErrDestinationFileOpen, err))
			return nil
		}
		children, err := d.Children(ctx)
		if err != nil {
			return err
		}
		results.AddSuccess(Item{Document: d, Target: target})
		for _, c := range children {
			if err := p.export(ctx, c, target, results); err != nil {
				return err
			}
		}
		return nil
	}

	if err := p.decryptFile(ctx, d, target); err != nil {
		if errors.Is(err, common.ErrStoreUnavailable) {
			return err
		}
		p.fail(ctx, results, d, err)
		return nil
	}
	results.AddSuccess(Item{Document: d, Target: target})
	metrics.Item(metrics.ProcessDecryption, metrics.ResultSuccess)
	metrics.Bytes(metrics.ProcessDecryption, d.Size)
	return nil
}

func (p *Process) fail(ctx context.Context, results *process.Results[Item], d *documents.Document, err error) {
	element := d.String()
	if lp, lerr := d.LogicalPath(ctx); lerr == nil {
		element = lp
	}
	results.AddError(element, err)
	metrics.Item(metrics.ProcessDecryption, metrics.ResultError)
	p.logger.Error(ctx, "decryption failed", "document", element, "error", err)
}

func (p *Process) decryptFile(ctx context.Context, d *documents.Document, target string) error {
	ok, err := d.HasContent()
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrSourceFileOpen, err)
	}
	if !ok {
		return fmt.Errorf("%q is not downloaded yet: %w", d.DisplayName, common.ErrSourceFileOpen)
	}

	f, err := p.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrDestinationFileOpen, err)
	}

	p.listener.OnMax(process.ChannelBytes, d.Size)
	err = d.Decrypt(ctx, f, func(n int64) {
		p.listener.OnProgress(process.ChannelBytes, n)
	})
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("%w: %w", common.ErrDestinationFileOpen, cerr)
	}
	if err != nil {
		_ = p.fs.Remove(target)
		return err
	}
	if !d.ModifiedAt.IsZero() {
		_ = p.fs.Chtimes(target, d.ModifiedAt, d.ModifiedAt)
	}
	return nil
}
