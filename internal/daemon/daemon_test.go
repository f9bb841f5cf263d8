package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/storagecrypt/internal/accounts"
	"github.com/dmitrijs2005/storagecrypt/internal/changesync"
	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/dmitrijs2005/storagecrypt/internal/process"
	"github.com/dmitrijs2005/storagecrypt/internal/transfer"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakeAccounts struct {
	mu      sync.Mutex
	list    []*accounts.Account
	planned []string
	planAll atomic.Int32
	allErr  error
	planErr error
}

func (f *fakeAccounts) Get(ctx context.Context, backend models.BackendType, name string) (*accounts.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.list {
		if a.Backend == backend && a.Name == name {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeAccounts) All(ctx context.Context) ([]*accounts.Account, error) {
	return f.list, f.allErr
}

func (f *fakeAccounts) Plan(ctx context.Context, backend models.BackendType, name string) (bool, error) {
	if f.planErr != nil {
		return false, f.planErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.planned = append(f.planned, fmt.Sprintf("%s/%s", backend, name))
	return len(f.planned) == 1, nil
}

func (f *fakeAccounts) PlanAll(ctx context.Context) (int, error) {
	if f.planErr != nil {
		return 0, f.planErr
	}
	f.planAll.Add(1)
	return len(f.list), nil
}

type fakeRunner[T any] struct {
	calls   atomic.Int32
	results func() *process.Results[T]
	err     error
}

func (f *fakeRunner[T]) Run(ctx context.Context) (*process.Results[T], error) {
	f.calls.Add(1)
	if f.results != nil {
		return f.results(), f.err
	}
	return process.NewResults[T](), f.err
}

type fixture struct {
	accounts *fakeAccounts
	sync     *fakeRunner[changesync.Item]
	transfer *fakeRunner[transfer.Item]
	clock    *clockwork.FakeClock
	daemon   *Daemon
}

func newFixture() *fixture {
	f := &fixture{
		accounts: &fakeAccounts{list: []*accounts.Account{
			{Account: models.Account{Backend: models.BackendS3, Name: "work", SyncState: models.StateDone, LastChangeID: "7",
				Quota: models.Quota{Used: 10, Total: 100}}},
		}},
		sync:     &fakeRunner[changesync.Item]{},
		transfer: &fakeRunner[transfer.Item]{},
		clock:    clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.daemon = New(Options{
		Accounts: f.accounts,
		Sync:     f.sync,
		Transfer: f.transfer,
		Interval: time.Minute,
		Clock:    f.clock,
	})
	return f
}

func healthStatus(t *testing.T, d *Daemon) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := d.health.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestCycle_PlansSyncsAndTransfers(t *testing.T) {
	f := newFixture()
	f.sync.results = func() *process.Results[changesync.Item] {
		r := process.NewResults[changesync.Item]()
		r.AddSuccess(changesync.Item{EntryID: "e1"})
		r.AddError("s3 (work) : + e2", common.ErrParentNotFound)
		return r
	}

	require.NoError(t, f.daemon.Cycle(context.Background(), true))

	assert.EqualValues(t, 1, f.accounts.planAll.Load())
	assert.EqualValues(t, 1, f.sync.calls.Load())
	assert.EqualValues(t, 1, f.transfer.calls.Load())

	running, last := f.daemon.snapshot()
	assert.False(t, running)
	require.NotNil(t, last)
	assert.Equal(t, 1, last.Synced)
	assert.Equal(t, 1, last.SyncFailed)
	assert.Empty(t, last.Error)
}

func TestCycle_WithoutPlanning(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.daemon.Cycle(context.Background(), false))
	assert.Zero(t, f.accounts.planAll.Load())
	assert.EqualValues(t, 1, f.sync.calls.Load())
}

func TestCycle_StoreUnavailableStopsAndMarksUnhealthy(t *testing.T) {
	f := newFixture()
	f.sync.err = fmt.Errorf("load accounts: %w", common.ErrStoreUnavailable)

	err := f.daemon.Cycle(context.Background(), true)
	require.ErrorIs(t, err, common.ErrStoreUnavailable)
	assert.Zero(t, f.transfer.calls.Load())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, healthStatus(t, f.daemon))

	_, last := f.daemon.snapshot()
	require.NotNil(t, last)
	assert.Contains(t, last.Error, "store unavailable")
}

func TestCycle_OtherErrorsAreRecorded(t *testing.T) {
	f := newFixture()
	f.accounts.planErr = errors.New("boom")

	require.NoError(t, f.daemon.Cycle(context.Background(), true))
	assert.Zero(t, f.sync.calls.Load())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, healthStatus(t, f.daemon))
	_, last := f.daemon.snapshot()
	assert.Equal(t, "boom", last.Error)
}

func TestSchedule_TicksAndTriggers(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.daemon.Schedule(ctx) }()

	require.Eventually(t, func() bool { return f.sync.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return f.sync.calls.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.accounts.planAll.Load() == 2 }, 2*time.Second, 5*time.Millisecond)

	f.daemon.Trigger(false)
	require.Eventually(t, func() bool { return f.sync.calls.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 2, f.accounts.planAll.Load())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("schedule did not stop")
	}
}

func TestTrigger_MergesPendingRequests(t *testing.T) {
	f := newFixture()
	f.daemon.Trigger(false)
	f.daemon.Trigger(true)

	assert.False(t, <-f.daemon.trigger)
	select {
	case <-f.daemon.trigger:
		t.Fatal("second trigger should have been merged")
	default:
	}
}
