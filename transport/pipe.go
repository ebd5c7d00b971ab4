package transport

import (
	"sync/atomic"

	"post-rpc/wire"
)

// Pipe creates a dedicated in-memory port pair: everything sent on one end
// is delivered to the other, privately. This is the transport handle a
// server creates during the handshake, retaining one end and transferring
// the other to the calling peer.
func Pipe() (Port, Port) {
	a := &pipePort{in: newInbox()}
	b := &pipePort{in: newInbox()}
	a.peer, b.peer = b, a
	return a, b
}

type pipePort struct {
	in     *inbox
	peer   *pipePort
	closed atomic.Bool
}

func (p *pipePort) Send(m Message) error {
	if p.closed.Load() {
		return wire.ErrClosed
	}
	// A reply naturally travels back over the same pipe: the receiver's
	// own end is the source address.
	if m.Source == nil {
		m.Source = p.peer
	}
	return p.peer.in.push(m)
}

func (p *pipePort) Listen(h Handler) (cancel func()) {
	return p.in.listen(h)
}

// Close tears down this end. The peer's sends start failing; messages
// already queued on the peer are still delivered.
func (p *pipePort) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.in.close()
	return nil
}
