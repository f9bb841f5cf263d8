package process

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControl_ZeroValueRuns(t *testing.T) {
	var c Control
	assert.False(t, c.Checkpoint(context.Background()))
	assert.False(t, c.IsPaused())
}

func TestControl_PauseBlocksUntilResume(t *testing.T) {
	var c Control
	c.Pause()
	require.True(t, c.IsPaused())

	done := make(chan bool)
	go func() { done <- c.Checkpoint(context.Background()) }()

	select {
	case <-done:
		t.Fatal("checkpoint returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	c.Resume()
	select {
	case stop := <-done:
		assert.False(t, stop)
	case <-time.After(time.Second):
		t.Fatal("checkpoint did not resume")
	}
}

func TestControl_CancelReleasesPause(t *testing.T) {
	var c Control
	c.Pause()

	done := make(chan bool)
	go func() { done <- c.Checkpoint(context.Background()) }()

	c.Cancel()
	select {
	case stop := <-done:
		assert.True(t, stop)
	case <-time.After(time.Second):
		t.Fatal("cancel did not release the checkpoint")
	}

	c.Pause()
	assert.False(t, c.IsPaused(), "a canceled process cannot be paused")
}

func TestControl_ContextCancellation(t *testing.T) {
	var c Control
	c.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.True(t, c.Checkpoint(ctx))
	assert.True(t, c.IsCanceled(ctx))
}

func TestControl_DoublePauseResume(t *testing.T) {
	var c Control
	c.Pause()
	c.Pause()
	c.Resume()
	c.Resume()
	assert.False(t, c.Checkpoint(context.Background()))
}
