package transport

import (
	"sync"
	"sync/atomic"

	"post-rpc/wire"
)

// Bus is an in-memory broadcast medium: every endpoint hears every message
// sent by any other endpoint. It models the untrusted shared medium the
// handshake starts from. Endpoints carry an origin string, and received
// messages expose a Source port addressing only the sender, so a server
// can reply without broadcasting.
type Bus struct {
	mu        sync.Mutex
	endpoints map[*Endpoint]struct{}
}

func NewBus() *Bus {
	return &Bus{endpoints: make(map[*Endpoint]struct{})}
}

// Connect attaches a new endpoint with the given origin.
func (b *Bus) Connect(origin string) *Endpoint {
	e := &Endpoint{bus: b, origin: origin, in: newInbox()}
	e.reply = &replyPort{target: e}
	b.mu.Lock()
	b.endpoints[e] = struct{}{}
	b.mu.Unlock()
	return e
}

// Endpoint is one participant on a Bus. It implements Port.
type Endpoint struct {
	bus    *Bus
	origin string
	in     *inbox
	reply  *replyPort
	closed atomic.Bool
}

// Send broadcasts to every other endpoint on the bus. The message is
// stamped with the sender's origin, and Source is set to a port that
// delivers only back to this endpoint.
func (e *Endpoint) Send(m Message) error {
	if e.closed.Load() {
		return wire.ErrClosed
	}
	m.Origin = e.origin
	if m.Source == nil {
		// The reply port is one stable identity per endpoint, so a
		// receiver can recognize repeat messages from the same peer.
		m.Source = e.reply
	}

	e.bus.mu.Lock()
	targets := make([]*Endpoint, 0, len(e.bus.endpoints)-1)
	for other := range e.bus.endpoints {
		if other != e {
			targets = append(targets, other)
		}
	}
	e.bus.mu.Unlock()

	for _, t := range targets {
		// Ignore push failures: a concurrently closing endpoint simply
		// misses the broadcast, same as on any lossy shared medium.
		_ = t.in.push(m)
	}
	return nil
}

func (e *Endpoint) Listen(h Handler) (cancel func()) {
	return e.in.listen(h)
}

// Listeners reports the number of handlers currently attached. Teardown
// code asserts this drops back to zero.
func (e *Endpoint) Listeners() int {
	return e.in.listeners()
}

// Origin returns the origin this endpoint was connected with.
func (e *Endpoint) Origin() string {
	return e.origin
}

func (e *Endpoint) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.bus.mu.Lock()
	delete(e.bus.endpoints, e)
	e.bus.mu.Unlock()
	e.in.close()
	return nil
}

// replyPort addresses exactly one endpoint, bypassing broadcast. It is
// what receivers see as Message.Source.
type replyPort struct {
	target *Endpoint
}

func (r *replyPort) Send(m Message) error {
	return r.target.in.push(m)
}

func (r *replyPort) Listen(Handler) (cancel func()) {
	// A reply port is write-only; there is nothing to listen on.
	return func() {}
}

func (r *replyPort) Close() error { return nil }
