// Package process holds what every long-running StorageCrypt process shares:
// a cooperative pause/cancel token, a progress listener with numbered
// channels, and a results set with success, skipped and error partitions.
package process

import (
	"context"
	"sync"
)

// Control is a pause/cancel token flipped from outside and polled by a
// process at its checkpoints. The zero value is ready to use.
type Control struct {
	mu       sync.Mutex
	paused   bool
	canceled bool
	resume   chan struct{}
}

// Pause makes the next checkpoint block until Resume or Cancel.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.canceled {
		return
	}
	c.paused = true
	c.resume = make(chan struct{})
}

func (c *Control) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.release()
}

// Cancel asks the process to stop before its next item. It also releases a
// paused process so it can observe the cancellation.
func (c *Control) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canceled = true
	c.release()
}

func (c *Control) release() {
	if c.paused {
		c.paused = false
		close(c.resume)
	}
}

func (c *Control) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// IsCanceled reports whether Cancel was called or ctx is done.
func (c *Control) IsCanceled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canceled
}

// Checkpoint blocks while the process is paused and returns true when the
// process should stop.
func (c *Control) Checkpoint(ctx context.Context) bool {
	c.mu.Lock()
	wait := c.resume
	paused := c.paused
	c.mu.Unlock()

	if paused {
		select {
		case <-wait:
		case <-ctx.Done():
		}
	}
	return c.IsCanceled(ctx)
}
