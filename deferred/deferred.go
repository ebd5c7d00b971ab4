// Package deferred provides a single-resolution future with external
// resolve/reject triggers and an optional wall-clock deadline. It is the
// building block for every pending call and for the handshake itself.
package deferred

import (
	"context"
	"sync"
	"time"

	"post-rpc/wire"
)

// Deferred settles exactly once. Whichever of explicit Resolve, explicit
// Reject, or the deadline timer happens first wins; later settlements are
// no-ops. Settling stops the timer deterministically — no late timeout can
// fire after an explicit settlement.
type Deferred struct {
	done chan struct{}

	mu      sync.Mutex
	settled bool
	timer   *time.Timer
	value   any
	err     error
}

// New creates a deferred. A zero timeout arms no timer: the future never
// auto-rejects from elapsed time and is bounded only by the awaiter's own
// patience (used for the handshake ready future).
func New(timeout time.Duration) *Deferred {
	d := &Deferred{done: make(chan struct{})}
	if timeout > 0 {
		d.Arm(timeout)
	}
	return d
}

// Arm starts the deadline clock. Used directly when the deadline begins at
// a later event than construction, e.g. a call whose timeout must not
// include channel establishment. No-op once settled; re-arming replaces
// the previous deadline.
func (d *Deferred) Arm(timeout time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(timeout, func() {
		d.Reject(wire.ErrTimeout)
	})
}

// Resolve settles the deferred with a value. No-op if already settled.
func (d *Deferred) Resolve(value any) {
	d.settle(value, nil)
}

// Reject settles the deferred with an error. No-op if already settled.
func (d *Deferred) Reject(err error) {
	d.settle(nil, err)
}

func (d *Deferred) settle(value any, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		return
	}
	d.settled = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.value = value
	d.err = err
	close(d.done)
}

// Await blocks until settlement or ctx cancellation. Cancellation does not
// settle the deferred; another awaiter may still observe the real outcome.
func (d *Deferred) Await(ctx context.Context) (any, error) {
	select {
	case <-d.done:
		return d.value, d.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done exposes the settlement signal so an owner can garbage-collect
// tracking state the instant the future settles.
func (d *Deferred) Done() <-chan struct{} {
	return d.done
}

// Settled reports whether the deferred has settled, without blocking.
func (d *Deferred) Settled() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}
