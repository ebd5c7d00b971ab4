package handshake

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"post-rpc/deferred"
	"post-rpc/transport"
	"post-rpc/wire"
)

// Caller runs the calling side of the handshake. Construction immediately
// moves it from Idle to Probing; probing retries forever until a matching
// response arrives or the caller is closed, so bound your wait with the
// context passed to Established.
type Caller struct {
	channelID string
	bus       transport.Port
	interval  time.Duration
	log       zerolog.Logger

	state     atomic.Int32
	ready     *deferred.Deferred
	stopProbe chan struct{}
	stopOnce  sync.Once

	mu           sync.Mutex
	cancelListen func()
}

// Dial starts probing for a peer on the shared medium. The ready future
// has no deadline of its own.
func Dial(bus transport.Port, channelID string, interval time.Duration, log zerolog.Logger) *Caller {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	c := &Caller{
		channelID: channelID,
		bus:       bus,
		interval:  interval,
		log:       log.With().Str("component", "handshake").Str("channel", channelID).Logger(),
		ready:     deferred.New(0),
		stopProbe: make(chan struct{}),
	}
	c.state.Store(int32(Probing))
	c.mu.Lock()
	c.cancelListen = bus.Listen(c.onMessage)
	c.mu.Unlock()
	go c.probeLoop()
	return c
}

func (c *Caller) detach() {
	c.mu.Lock()
	cancel := c.cancelListen
	c.cancelListen = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Caller) onMessage(m transport.Message) {
	var env wire.Envelope
	if err := json.Unmarshal(m.Data, &env); err != nil {
		return
	}
	// Responses for other channels are not ours to judge; several
	// independent channels may share the listener.
	if env.Type != wire.TypeHandshakeResponse || env.ChannelID != c.channelID {
		return
	}
	if State(c.state.Swap(int32(Established))) == Established {
		// Duplicate response, e.g. a re-probe answered twice. First one won.
		return
	}

	port := m.Port
	if port == nil {
		// Bare acknowledgment: no dedicated pipe, all traffic stays on the
		// shared medium wrapped in channel envelopes.
		port = transport.Channel(c.bus, c.channelID)
	}
	c.stopOnce.Do(func() { close(c.stopProbe) })
	c.detach()
	c.log.Debug().Bool("dedicated", m.Port != nil).Msg("channel established")
	c.ready.Resolve(port)
}

func (c *Caller) probeLoop() {
	data, err := json.Marshal(wire.Envelope{Type: wire.TypeHandshakeRequest, ChannelID: c.channelID})
	if err != nil {
		c.ready.Reject(err)
		return
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		if err := c.bus.Send(transport.Message{Data: data}); err != nil {
			c.ready.Reject(err)
			return
		}
		select {
		case <-ticker.C:
		case <-c.stopProbe:
			return
		}
	}
}

// Established blocks until the channel is up and returns the port all RPC
// traffic flows over: the transferred dedicated pipe, or the enveloped
// view of the shared medium.
func (c *Caller) Established(ctx context.Context) (transport.Port, error) {
	v, err := c.ready.Await(ctx)
	if err != nil {
		return nil, err
	}
	return v.(transport.Port), nil
}

// State reports the current handshake state.
func (c *Caller) State() State {
	return State(c.state.Load())
}

// Close stops probing, detaches the handshake listener and rejects the
// ready future for anyone still waiting.
func (c *Caller) Close() {
	c.stopOnce.Do(func() { close(c.stopProbe) })
	c.detach()
	c.ready.Reject(wire.ErrClosed)
}
