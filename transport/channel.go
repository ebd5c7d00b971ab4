package transport

import (
	"encoding/json"
	"sync"

	"post-rpc/wire"
)

// Channel adapts a shared broadcast medium into a per-channel port: outgoing
// payloads are wrapped in call envelopes stamped with the channel
// identifier, inbound call envelopes for other channels are silently
// ignored. This is the shared-envelope transport variant; the dispatcher
// and invocation engine above it cannot tell it apart from a dedicated
// pipe.
func Channel(port Port, channelID string) Port {
	return &channelPort{port: port, channelID: channelID}
}

type channelPort struct {
	port      Port
	channelID string

	mu      sync.Mutex
	cancels []func()
	closed  bool
}

func (c *channelPort) Send(m Message) error {
	env := wire.Envelope{Type: wire.TypeCall, ChannelID: c.channelID, Payload: m.Data}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	m.Data = data
	return c.port.Send(m)
}

func (c *channelPort) Listen(h Handler) (cancel func()) {
	id := c.channelID
	inner := c.port.Listen(func(m Message) {
		var env wire.Envelope
		if err := json.Unmarshal(m.Data, &env); err != nil {
			return
		}
		if env.Type != wire.TypeCall || env.ChannelID != id {
			return
		}
		m.Data = env.Payload
		if m.Source != nil {
			// Replies through Source must be enveloped the same way, or
			// the peer's channel filter would drop them.
			m.Source = &channelPort{port: m.Source, channelID: id}
		}
		h(m)
	})

	c.mu.Lock()
	c.cancels = append(c.cancels, inner)
	c.mu.Unlock()
	return inner
}

// Close detaches every listener installed through this adapter. The
// underlying shared medium stays open; other channels keep using it.
func (c *channelPort) Close() error {
	c.mu.Lock()
	cancels := c.cancels
	c.cancels = nil
	c.closed = true
	c.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	return nil
}
