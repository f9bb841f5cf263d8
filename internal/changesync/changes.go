package changesync

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/storagecrypt/internal/accounts"
	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/documents"
	"github.com/dmitrijs2005/storagecrypt/internal/metacodec"
	"github.com/dmitrijs2005/storagecrypt/internal/metrics"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/dmitrijs2005/storagecrypt/internal/process"
	"github.com/dmitrijs2005/storagecrypt/internal/remote"
)

func changeElement(a *accounts.Account, ch remote.Change) string {
	sign := "+"
	if ch.Deleted {
		sign = "-"
	}
	return a.StorageText() + " : " + sign + " " + ch.DocumentID
}

func isFatal(err error) bool {
	return errors.Is(err, common.ErrStoreUnavailable) || errors.Is(err, common.ErrCanceled)
}

// processChanges applies changes in feed order. Changes whose parent is not
// known yet are retried after the rest of the batch for as long as a pass
// creates something. It returns the number of failed changes.
func (e *Engine) processChanges(ctx context.Context, a *accounts.Account, root *documents.Document, changes *remote.Changes, results *process.Results[Item]) (int, error) {
	failures := 0
	pending := changes.All()

	e.listener.OnMax(process.ChannelExtra, int64(len(pending)))
	done := int64(0)

	for len(pending) > 0 {
		var deferred []remote.Change
		synced := 0

		for _, ch := range pending {
			if e.control.Checkpoint(ctx) {
				return failures, common.ErrCanceled
			}

			doc, err := e.syncChange(ctx, a, root, changes, ch)
			switch {
			case errors.Is(err, common.ErrParentNotFound):
				deferred = append(deferred, ch)
				continue
			case isFatal(err):
				return failures, err
			case err != nil:
				failures++
				results.AddError(changeElement(a, ch), err)
				metrics.Item(metrics.ProcessChangeSync, metrics.ResultError)
				e.logger.Warn(ctx, "change failed", "account", a.StorageText(), "entry", ch.DocumentID, "error", err)
			case doc != nil:
				synced++
				results.AddSuccess(Item{Account: a.StorageText(), EntryID: ch.DocumentID, Document: doc})
				metrics.Item(metrics.ProcessChangeSync, metrics.ResultSuccess)
			}
			done++
			e.listener.OnProgress(process.ChannelExtra, done)
		}

		if synced == 0 {
			for _, ch := range deferred {
				failures++
				results.AddError(changeElement(a, ch), fmt.Errorf("%w: %s", common.ErrParentNotFound, parentOf(ch)))
				metrics.Item(metrics.ProcessChangeSync, metrics.ResultError)
			}
			break
		}
		pending = deferred
	}
	return failures, nil
}

func parentOf(ch remote.Change) string {
	if ch.Document == nil {
		return ""
	}
	return ch.Document.ParentID
}

// syncChange folds one change into the tree. It returns the created or
// updated document, or nil when the change was ignored.
func (e *Engine) syncChange(ctx context.Context, a *accounts.Account, root *documents.Document, changes *remote.Changes, ch remote.Change) (*documents.Document, error) {
	// Remote deletions and folder entries carry nothing to apply: folders
	// are discovered through their metadata file.
	if ch.Deleted || ch.Document == nil || ch.Document.Folder {
		return nil, nil
	}

	rd := ch.Document
	token := rd.Name
	if rd.Name == models.FolderMetadataFileName {
		if rd.ParentID == root.EntryID {
			return nil, nil
		}
		bound, err := e.docs.ByBackendEntry(ctx, &a.Account, rd.ParentID)
		if err != nil {
			return nil, err
		}
		if bound != nil {
			return nil, nil
		}
		folder, folderToken, err := e.resolveFolder(ctx, a, changes, rd)
		if err != nil {
			return nil, err
		}
		rd, token = folder, folderToken
	}

	meta, err := e.decoder.Decode(token)
	if err != nil {
		return nil, err
	}

	parent, err := e.parent(ctx, a, root, rd.ParentID)
	if err != nil {
		return nil, err
	}

	existing, err := parent.Child(ctx, meta.DisplayName)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return parent.CreateRemoteChild(ctx, meta, rd)
	}
	if existing.IsFolder() != rd.Folder {
		e.logger.Debug(ctx, "kind differs from local document, change ignored", "account", a.StorageText(), "entry", rd.ID, "name", meta.DisplayName)
		return nil, nil
	}
	if existing.IsFolder() || rd.Version <= existing.EntryVersion {
		return nil, nil
	}
	if state, _ := existing.SyncState(models.ActionDownload); state != models.StateDone {
		return nil, nil
	}
	if err := existing.PlanDownload(ctx, rd.ID); err != nil {
		return nil, err
	}
	return existing, nil
}

func (e *Engine) parent(ctx context.Context, a *accounts.Account, root *documents.Document, parentID string) (*documents.Document, error) {
	if parentID == root.EntryID {
		return root, nil
	}
	p, err := e.docs.ByBackendEntry(ctx, &a.Account, parentID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", common.ErrParentNotFound, parentID)
	}
	return p, nil
}

// resolveFolder turns a folder metadata file into the folder it describes
// and the token stored in the file.
func (e *Engine) resolveFolder(ctx context.Context, a *accounts.Account, changes *remote.Changes, meta *remote.Document) (*remote.Document, string, error) {
	var buf bytes.Buffer
	if _, err := a.Storage().Download(ctx, a.Name, meta.ID, &buf); err != nil {
		return nil, "", fmt.Errorf("%w: %s: %w", common.ErrFailedToGetMetadata, meta.ID, err)
	}
	token := metacodec.TokenFromContent(buf.Bytes())

	if fc, ok := changes.Folder(meta.ParentID); ok && fc.Document != nil {
		return fc.Document, token, nil
	}
	folder, err := a.Storage().Folder(ctx, a.Name, meta.ParentID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %w", common.ErrFailedToGetMetadata, meta.ParentID, err)
	}
	if folder == nil {
		return nil, "", fmt.Errorf("%w: folder %s not found", common.ErrFailedToGetMetadata, meta.ParentID)
	}
	return folder, token, nil
}
