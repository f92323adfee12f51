package scheduler

import (
	"sync/atomic"

	"listingrelay/internal/metrics"
)

// Controls holds the flags shared between the forwarding loop and the admin
// commands, plus the forward counter that drives boost replays.
// The loop reads the flags only at iteration and listing boundaries.
type Controls struct {
	sending  atomic.Bool
	refresh  atomic.Bool
	forwards atomic.Int64
}

// NewControls creates the shared scheduler state.
func NewControls(sendingEnabled bool) *Controls {
	c := &Controls{}
	c.SetSendingEnabled(sendingEnabled)
	return c
}

// SetSendingEnabled turns sending on or off and reports whether the flag changed.
func (c *Controls) SetSendingEnabled(enabled bool) bool {
	prev := c.sending.Swap(enabled)
	if enabled {
		metrics.SendingEnabled.Set(1)
	} else {
		metrics.SendingEnabled.Set(0)
	}
	return prev != enabled
}

// SendingEnabled reports whether the loop may deliver listings.
func (c *Controls) SendingEnabled() bool {
	return c.sending.Load()
}

// RequestRefresh asks the loop to pause briefly before its next iteration.
func (c *Controls) RequestRefresh() {
	c.refresh.Store(true)
}

// RefreshPending reports whether a refresh was requested and not yet handled.
func (c *Controls) RefreshPending() bool {
	return c.refresh.Load()
}

// consumeRefresh clears the refresh flag and reports whether it was set.
func (c *Controls) consumeRefresh() bool {
	return c.refresh.CompareAndSwap(true, false)
}

// ForwardCount returns the number of listings forwarded since start.
func (c *Controls) ForwardCount() int64 {
	return c.forwards.Load()
}

func (c *Controls) recordForward() int64 {
	return c.forwards.Add(1)
}
