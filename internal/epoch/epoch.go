// Package epoch issues generation epochs. Every generation run holds
// the epoch it was started under and must re-check it before mutating
// shared state; a newer epoch means the run was superseded and its
// effects must be dropped, not its transport cancelled.
package epoch

import "sync/atomic"

// Epoch is an opaque generation token. Later epochs compare greater,
// but callers should only ever test currency via Controller.IsCurrent.
type Epoch int64

// Controller hands out monotonically increasing epochs. The zero value
// is ready to use; the first Next returns epoch 1, so the zero Epoch
// is never current once any generation has started.
type Controller struct {
	current atomic.Int64
}

// Next allocates a new epoch, superseding all previous ones.
func (c *Controller) Next() Epoch {
	return Epoch(c.current.Add(1))
}

// Current returns the most recently allocated epoch.
func (c *Controller) Current() Epoch {
	return Epoch(c.current.Load())
}

// IsCurrent reports whether e is still the live epoch.
func (c *Controller) IsCurrent(e Epoch) bool {
	return Epoch(c.current.Load()) == e
}

// Bump supersedes the current epoch without starting a new run. Stop
// uses this: in-flight work observes the mismatch and goes quiet.
func (c *Controller) Bump() {
	c.current.Add(1)
}
