// Package changesync is the Change Synchronization Engine. It polls the
// change feed of every planned account and folds it into the local
// encrypted tree.
//
// Account states move Done -> Planned -> Running -> Done. Accounts left
// Running by a crashed run are reset to Done when a run starts and ends.
package changesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/storagecrypt/internal/accounts"
	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/documents"
	"github.com/dmitrijs2005/storagecrypt/internal/logging"
	"github.com/dmitrijs2005/storagecrypt/internal/metacodec"
	"github.com/dmitrijs2005/storagecrypt/internal/metrics"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/dmitrijs2005/storagecrypt/internal/netx"
	"github.com/dmitrijs2005/storagecrypt/internal/process"
	"github.com/jonboulle/clockwork"
)

// DefaultPassDelay separates two passes over the planned accounts.
const DefaultPassDelay = 2 * time.Second

// Decoder recovers the metadata carried by a remote entry name.
type Decoder interface {
	Decode(token string) (metacodec.Metadata, error)
}

// SyncListener is told when the sync of an account tree starts and ends.
type SyncListener interface {
	OnChangesSyncStarted(root *documents.Document)
	OnChangesSyncDone(root *documents.Document)
}

// Item is a remote change that was folded into the local tree.
type Item struct {
	Account  string
	EntryID  string
	Document *documents.Document
}

func (i Item) String() string {
	return fmt.Sprintf("%s : %s -> %s", i.Account, i.EntryID, i.Document)
}

type Options struct {
	Accounts  *accounts.Registry
	Documents *documents.Repository
	Decoder   Decoder
	// Connectivity gates every pass; nil means always online.
	Connectivity netx.Connectivity
	Clock        clockwork.Clock
	PassDelay    time.Duration
	Control      *process.Control
	Listener     process.Listener
	Logger       logging.Logger
}

type Engine struct {
	accounts  *accounts.Registry
	docs      *documents.Repository
	decoder   Decoder
	conn      netx.Connectivity
	clock     clockwork.Clock
	passDelay time.Duration
	control   *process.Control
	listener  process.Listener
	logger    logging.Logger

	syncListeners []SyncListener
}

func New(opts Options) *Engine {
	e := &Engine{
		accounts:  opts.Accounts,
		docs:      opts.Documents,
		decoder:   opts.Decoder,
		conn:      opts.Connectivity,
		clock:     opts.Clock,
		passDelay: opts.PassDelay,
		control:   opts.Control,
		listener:  opts.Listener,
		logger:    opts.Logger,
	}
	if e.conn == nil {
		e.conn = netx.Always()
	}
	if e.clock == nil {
		e.clock = clockwork.NewRealClock()
	}
	if e.control == nil {
		e.control = &process.Control{}
	}
	if e.listener == nil {
		e.listener = process.NopListener()
	}
	if e.logger == nil {
		e.logger = logging.Nop()
	}
	e.logger = e.logger.With("process", metrics.ProcessChangeSync)
	return e
}

func (e *Engine) AddSyncListener(l SyncListener) {
	e.syncListeners = append(e.syncListeners, l)
}

func (e *Engine) Control() *process.Control {
	return e.control
}

// Run syncs planned accounts until none is left, the network goes away or
// the run is canceled. Per change failures are collected in the results;
// only an unavailable store is returned as an error.
func (e *Engine) Run(ctx context.Context) (*process.Results[Item], error) {
	defer metrics.ObserveRun(metrics.ProcessChangeSync, time.Now())

	results := process.NewResults[Item]()
	if _, err := e.accounts.ResetRunning(ctx); err != nil {
		return results, err
	}
	defer func() {
		if _, err := e.accounts.ResetRunning(context.WithoutCancel(ctx)); err != nil {
			e.logger.Error(ctx, "failed to reset running accounts", "error", err)
		}
	}()

	for e.conn.Available(ctx) {
		planned, err := e.accounts.WithSyncState(ctx, models.StatePlanned)
		if err != nil {
			return results, err
		}
		if len(planned) == 0 {
			break
		}

		e.listener.OnMax(process.ChannelItems, int64(len(planned)))
		for i, a := range planned {
			if e.control.Checkpoint(ctx) {
				e.logger.Info(ctx, "change sync canceled")
				return results, nil
			}
			if err := e.syncAccount(ctx, a, results); err != nil {
				if errors.Is(err, common.ErrCanceled) {
					e.logger.Info(ctx, "change sync canceled")
					return results, nil
				}
				return results, err
			}
			e.listener.OnProgress(process.ChannelItems, int64(i+1))
		}

		if !e.sleep(ctx) {
			break
		}
	}
	return results, nil
}

// sleep waits for the pass delay and reports whether the loop should go on.
func (e *Engine) sleep(ctx context.Context) bool {
	if e.passDelay <= 0 {
		return !e.control.IsCanceled(ctx)
	}
	select {
	case <-ctx.Done():
		return false
	case <-e.clock.After(e.passDelay):
		return !e.control.IsCanceled(ctx)
	}
}

func (e *Engine) syncAccount(ctx context.Context, a *accounts.Account, results *process.Results[Item]) error {
	if err := a.Refresh(ctx); err != nil {
		return err
	}
	e.listener.OnMessage(process.ChannelItems, a.StorageText())

	if err := e.syncChanges(ctx, a, results); err != nil {
		return err
	}
	e.syncQuota(ctx, a)
	return nil
}

func (e *Engine) syncQuota(ctx context.Context, a *accounts.Account) {
	if err := a.RefreshQuota(ctx); err != nil {
		if errors.Is(err, common.ErrStoreUnavailable) {
			e.logger.Error(ctx, "failed to store quota", "account", a.StorageText(), "error", err)
			return
		}
		e.logger.Warn(ctx, "failed to refresh quota", "account", a.StorageText(), "error", err)
		return
	}
	metrics.AccountQuota(string(a.Backend), a.Name, a.Quota.Used)
}

func (e *Engine) notifyStarted(root *documents.Document) {
	for _, l := range e.syncListeners {
		l.OnChangesSyncStarted(root)
	}
}

func (e *Engine) notifyDone(root *documents.Document) {
	for _, l := range e.syncListeners {
		l.OnChangesSyncDone(root)
	}
}

func (e *Engine) root(ctx context.Context, a *accounts.Account) (*documents.Document, error) {
	root, err := e.docs.Root(ctx, a.Backend, a.Name)
	if err != nil || root != nil {
		return root, err
	}
	if _, err := e.docs.UpdateRoots(ctx); err != nil {
		return nil, err
	}
	return e.docs.Root(ctx, a.Backend, a.Name)
}

// checkRemoteRoot binds a backend root to the backend's root folder the
// first time the account is synced.
func (e *Engine) checkRemoteRoot(ctx context.Context, a *accounts.Account, root *documents.Document) error {
	if root.EntryID != "" {
		return nil
	}
	rd, err := a.Storage().Root(ctx, a.Name)
	if err != nil {
		return err
	}
	if rd == nil {
		return fmt.Errorf("%w: backend has no root folder", common.ErrRemote)
	}
	return root.UpdateRemoteEntry(ctx, rd.ID, rd.Version)
}

func (e *Engine) syncChanges(ctx context.Context, a *accounts.Account, results *process.Results[Item]) (err error) {
	if err := a.UpdateSyncState(ctx, models.StateRunning); err != nil {
		return err
	}
	outcome := metrics.ResultSuccess
	defer func() {
		if serr := a.UpdateSyncState(context.WithoutCancel(ctx), models.StateDone); serr != nil && err == nil {
			err = serr
		}
		metrics.AccountSynced(string(a.Backend), a.Name, outcome, e.clock.Now())
	}()

	root, err := e.root(ctx, a)
	if err != nil {
		return err
	}
	if root == nil {
		e.logger.Warn(ctx, "account has no root", "account", a.StorageText())
		return nil
	}

	e.notifyStarted(root)
	defer e.notifyDone(root)

	if !root.IsBackendRoot() || a.Storage() == nil {
		return nil
	}

	if err := e.checkRemoteRoot(ctx, a, root); err != nil {
		if errors.Is(err, common.ErrStoreUnavailable) {
			return err
		}
		outcome = metrics.ResultError
		e.logger.Warn(ctx, "remote root unavailable", "account", a.StorageText(), "error", err)
		return nil
	}

	if err := a.Refresh(ctx); err != nil {
		return err
	}

	changes, err := a.Storage().Changes(ctx, a.Name, a.LastChangeID, &progressAdapter{ctx: ctx, e: e})
	if err != nil {
		if errors.Is(err, common.ErrStoreUnavailable) || errors.Is(err, common.ErrCanceled) {
			return err
		}
		outcome = metrics.ResultError
		e.logger.Warn(ctx, "failed to get changes", "account", a.StorageText(), "error", err)
		return nil
	}
	if changes == nil {
		return nil
	}

	if err := e.docs.CompleteChanges(ctx, &a.Account, changes); err != nil {
		return err
	}

	failures, err := e.processChanges(ctx, a, root, changes, results)
	if err != nil {
		return err
	}
	if failures > 0 {
		outcome = metrics.ResultError
		e.logger.Warn(ctx, "change sync incomplete, cursor kept", "account", a.StorageText(), "failures", failures)
		return nil
	}
	if changes.LastChangeID != "" && changes.LastChangeID != a.LastChangeID {
		if err := a.SetLastChangeID(ctx, changes.LastChangeID); err != nil {
			return err
		}
	}
	e.logger.Info(ctx, "change sync done", "account", a.StorageText(), "changes", changes.Len())
	return nil
}

type progressAdapter struct {
	ctx context.Context
	e   *Engine
}

func (p *progressAdapter) SetMax(max int64) {
	p.e.listener.OnMax(process.ChannelExtra, max)
}

func (p *progressAdapter) SetProgress(progress int64) {
	p.e.listener.OnProgress(process.ChannelExtra, progress)
}

func (p *progressAdapter) IsCanceled() bool {
	return p.e.control.IsCanceled(p.ctx)
}
