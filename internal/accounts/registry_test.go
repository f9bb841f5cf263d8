package accounts_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/storagecrypt/internal/common"
	"github.com/dmitrijs2005/storagecrypt/internal/models"
	"github.com/dmitrijs2005/storagecrypt/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_BindsStorage(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	st := testutil.NewFakeStorage()

	a, err := env.Accounts.Register(ctx, models.Account{Backend: models.BackendS3, Name: "work"}, st)
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, common.DefaultKeyAlias, a.DefaultKeyAlias)
	assert.Equal(t, models.StateDone, a.SyncState)
	assert.Same(t, st, a.Storage())

	again, err := env.Accounts.Get(ctx, models.BackendS3, "work")
	require.NoError(t, err)
	assert.Same(t, st, again.Storage())

	missing, err := env.Accounts.Get(ctx, models.BackendS3, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRegister_RejectsInvalidAccounts(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	_, err := env.Accounts.Register(ctx, models.Account{Backend: models.BackendUnsynchronized, Name: "x"}, nil)
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)

	_, err = env.Accounts.Register(ctx, models.Account{Backend: models.BackendS3}, nil)
	assert.ErrorIs(t, err, common.ErrInvalidConfiguration)
}

func TestPlan_OnlyFromDone(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	a, _ := env.AddAccount(t, models.BackendS3, "work", testutil.NewFakeStorage())

	ok, err := env.Accounts.Plan(ctx, a.Backend, a.Name)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.Accounts.Plan(ctx, a.Backend, a.Name)
	require.NoError(t, err)
	assert.False(t, ok, "already planned")

	require.NoError(t, a.UpdateSyncState(ctx, models.StateRunning))
	ok, err = env.Accounts.Plan(ctx, a.Backend, a.Name)
	require.NoError(t, err)
	assert.False(t, ok, "running accounts are left alone")
}

func TestPlanAllAndWithSyncState(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	env.AddAccount(t, models.BackendS3, "a", testutil.NewFakeStorage())
	env.AddAccount(t, models.BackendFolder, "b", testutil.NewFakeStorage())

	n, err := env.Accounts.PlanAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	planned, err := env.Accounts.WithSyncState(ctx, models.StatePlanned)
	require.NoError(t, err)
	require.Len(t, planned, 2)
	for _, a := range planned {
		assert.NotNil(t, a.Storage())
	}

	n, err = env.Accounts.PlanAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestResetRunning(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	a, _ := env.AddAccount(t, models.BackendS3, "a", testutil.NewFakeStorage())
	require.NoError(t, a.UpdateSyncState(ctx, models.StateRunning))

	n, err := env.Accounts.ResetRunning(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, a.Refresh(ctx))
	assert.Equal(t, models.StateDone, a.SyncState)
}

func TestAccount_CursorAndQuota(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	st := testutil.NewFakeStorage()
	st.Total = 1000
	st.Put(st.RootID, "x", false, []byte("12345"))
	a, _ := env.AddAccount(t, models.BackendS3, "a", st)

	require.NoError(t, a.SetLastChangeID(ctx, "42"))
	require.NoError(t, a.RefreshQuota(ctx))

	fresh, err := env.Accounts.Get(ctx, models.BackendS3, "a")
	require.NoError(t, err)
	assert.Equal(t, "42", fresh.LastChangeID)
	assert.EqualValues(t, 1000, fresh.Quota.Total)
	assert.EqualValues(t, 5, fresh.Quota.Used)
	assert.True(t, fresh.Quota.UpdatedAt.Equal(testutil.Epoch))
}

func TestAccount_RefreshQuotaError(t *testing.T) {
	env := testutil.NewEnv(t)
	st := testutil.NewFakeStorage()
	st.QuotaErr = errors.New("offline")
	a, _ := env.AddAccount(t, models.BackendS3, "a", st)

	err := a.RefreshQuota(context.Background())
	assert.ErrorIs(t, err, common.ErrRemote)
}

func TestAccount_RefreshUnknown(t *testing.T) {
	env := testutil.NewEnv(t)
	a, _ := env.AddAccount(t, models.BackendS3, "a", nil)
	assert.Nil(t, a.Storage())

	a.Name = "gone"
	err := a.Refresh(context.Background())
	assert.ErrorIs(t, err, common.ErrNotFound)
}
