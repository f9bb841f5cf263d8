// Package daemon drives StorageCrypt unattended: it plans every account on
// a schedule, runs the change sync and then the transfers, and exposes the
// outcome over HTTP and a gRPC health service.
package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/storagecrypt/internal/accounts"
	"github.com/dmitrijs2005/storagecrypt/internal/changesync"
	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/logging"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/dmitrijs2005/storagecrypt/internal/process"
	"github.com/dmitrijs2005/storagecrypt/internal/transfer"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Accounts is the part of the account registry the daemon needs.
type Accounts interface {
	Get(ctx context.Context, backend models.BackendType, name string) (*accounts.Account, error)
	All(ctx context.Context) ([]*accounts.Account, error)
	Plan(ctx context.Context, backend models.BackendType, name string) (bool, error)
	PlanAll(ctx context.Context) (int, error)
}

// Runner is a process run once per cycle.
type Runner[T any] interface {
	Run(ctx context.Context) (*process.Results[T], error)
}

type Options struct {
	Accounts Accounts
	Sync     Runner[changesync.Item]
	Transfer Runner[transfer.Item]

	Interval   time.Duration
	StatusAddr string
	HealthAddr string
	// APISecret, when set, guards the POST endpoints with bearer tokens.
	APISecret []byte

	Clock  clockwork.Clock
	Logger logging.Logger
}

// CycleStatus summarizes the last completed cycle.
type CycleStatus struct {
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Synced         int       `json:"synced"`
	SyncFailed     int       `json:"sync_failed"`
	Transferred    int       `json:"transferred"`
	TransferFailed int       `json:"transfer_failed"`
	Error          string    `json:"error,omitempty"`
}

type Daemon struct {
	accounts Accounts
	sync     Runner[changesync.Item]
	transfer Runner[transfer.Item]
	interval time.Duration
	clock    clockwork.Clock
	logger   logging.Logger

	statusAddr string
	apiSecret  []byte
	health     *HealthServer

	// trigger carries whether the requested cycle plans every account
	trigger chan bool

	mu      sync.Mutex
	running bool
	last    *CycleStatus
}

func New(opts Options) *Daemon {
	d := &Daemon{
		accounts:   opts.Accounts,
		sync:       opts.Sync,
		transfer:   opts.Transfer,
		interval:   opts.Interval,
		clock:      opts.Clock,
		logger:     opts.Logger,
		statusAddr: opts.StatusAddr,
		apiSecret:  opts.APISecret,
		trigger:    make(chan bool, 1),
	}
	if d.clock == nil {
		d.clock = clockwork.NewRealClock()
	}
	if d.logger == nil {
		d.logger = logging.Nop()
	}
	d.logger = d.logger.With("module", "daemon")
	d.health = NewHealthServer(opts.HealthAddr, d.logger)
	return d
}

// Trigger requests a cycle as soon as the current one is over. Requests
// made while one is already pending are merged.
func (d *Daemon) Trigger(planAll bool) {
	select {
	case d.trigger <- planAll:
	default:
	}
}

// Run serves HTTP and gRPC health and runs the schedule until ctx is done
// or the store becomes unavailable.
func (d *Daemon) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if d.statusAddr != "" {
		g.Go(func() error { return d.serveHTTP(ctx) })
	}
	if d.health.address != "" {
		g.Go(func() error { return d.health.Run(ctx) })
	}
	g.Go(func() error { return d.Schedule(ctx) })
	return g.Wait()
}

// Schedule runs a cycle at start, on every tick and on every trigger.
func (d *Daemon) Schedule(ctx context.Context) error {
	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()

	planAll := true
	for {
		if err := d.Cycle(ctx, planAll); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			d.logger.Info(ctx, "schedule stopped")
			return nil
		case <-ticker.Chan():
			planAll = true
		case planAll = <-d.trigger:
		}
	}
}

// Cycle plans the accounts when asked to, then runs sync and transfers. It
// returns an error only when the store is unavailable.
func (d *Daemon) Cycle(ctx context.Context, planAll bool) error {
	st := &CycleStatus{StartedAt: d.clock.Now()}
	d.setRunning(true)
	defer func() {
		st.FinishedAt = d.clock.Now()
		d.finish(st)
	}()

	err := d.cycle(ctx, planAll, st)
	if err != nil {
		st.Error = err.Error()
	}
	if errors.Is(err, common.ErrStoreUnavailable) {
		d.health.SetServing(false)
		d.logger.Error(ctx, "cycle failed", "error", err)
		return err
	}
	if err != nil {
		d.logger.Warn(ctx, "cycle failed", "error", err)
	}
	return nil
}

func (d *Daemon) cycle(ctx context.Context, planAll bool, st *CycleStatus) error {
	if planAll {
		n, err := d.accounts.PlanAll(ctx)
		if err != nil {
			return err
		}
		d.logger.Debug(ctx, "accounts planned", "count", n)
	}

	synced, err := d.sync.Run(ctx)
	if synced != nil {
		st.Synced = len(synced.Success())
		st.SyncFailed = synced.ErrorCount()
	}
	if err != nil {
		return err
	}

	transferred, err := d.transfer.Run(ctx)
	if transferred != nil {
		st.Transferred = len(transferred.Success())
		st.TransferFailed = transferred.ErrorCount()
	}
	if err != nil {
		return err
	}

	d.logger.Info(ctx, "cycle done",
		"synced", st.Synced, "sync_failed", st.SyncFailed,
		"transferred", st.Transferred, "transfer_failed", st.TransferFailed)
	return nil
}

func (d *Daemon) setRunning(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = v
}

func (d *Daemon) finish(st *CycleStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	d.last = st
}

func (d *Daemon) snapshot() (bool, *CycleStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.last == nil {
		return d.running, nil
	}
	last := *d.last
	return d.running, &last
}
