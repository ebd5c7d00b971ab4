package handshake

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"post-rpc/transport"
	"post-rpc/wire"
)

// ResponderConfig configures the serving side of the handshake.
type ResponderConfig struct {
	ChannelID string

	// AllowedOrigin restricts which peers may establish the channel.
	// Empty or "*" accepts any origin. A mismatch is a security boundary,
	// not routing: it is logged at error level and the request dropped,
	// never silently accepted.
	AllowedOrigin string

	// Dedicated hands each calling peer a private port pair instead of
	// acknowledging into the shared medium. Requires a medium that can
	// transfer port handles.
	Dedicated bool

	// Accept is invoked once per distinct calling peer with the retained
	// end of the established transport: the dedicated pipe in dedicated
	// mode, the enveloped shared medium otherwise.
	Accept func(port transport.Port)

	Logger zerolog.Logger
}

// Responder listens continuously for handshake requests — not only during
// a window — and answers those matching its channel identifier, addressed
// to the original sender only.
type Responder struct {
	cfg ResponderConfig
	bus transport.Port
	log zerolog.Logger

	mu           sync.Mutex
	peers        map[transport.Port]transport.Port // source → transferred end
	retained     []transport.Port
	shared       transport.Port // lazily built enveloped view (non-dedicated)
	cancelListen func()
	closed       bool
}

// Listen installs a responder on the shared medium.
func Listen(bus transport.Port, cfg ResponderConfig) *Responder {
	r := &Responder{
		cfg:   cfg,
		bus:   bus,
		log:   cfg.Logger.With().Str("component", "handshake").Str("channel", cfg.ChannelID).Logger(),
		peers: make(map[transport.Port]transport.Port),
	}
	r.mu.Lock()
	r.cancelListen = bus.Listen(r.onMessage)
	r.mu.Unlock()
	return r
}

func (r *Responder) onMessage(m transport.Message) {
	var env wire.Envelope
	if err := json.Unmarshal(m.Data, &env); err != nil {
		return
	}
	if env.Type != wire.TypeHandshakeRequest {
		return
	}
	// A foreign channel identifier is not an error; another channel on the
	// same medium owns that traffic.
	if env.ChannelID != r.cfg.ChannelID {
		return
	}
	if allowed := r.cfg.AllowedOrigin; allowed != "" && allowed != "*" && m.Origin != allowed {
		r.log.Error().
			Str("origin", m.Origin).
			Str("allowed", allowed).
			Err(wire.ErrOriginMismatch).
			Msg("rejected handshake from unexpected origin")
		return
	}

	reply, err := json.Marshal(wire.Envelope{Type: wire.TypeHandshakeResponse, ChannelID: r.cfg.ChannelID})
	if err != nil {
		return
	}

	if r.cfg.Dedicated && m.Source != nil {
		r.respondDedicated(m, reply)
		return
	}

	// Shared-envelope mode: a bare acknowledgment, addressed to the sender
	// when the medium knows it, broadcast with the channel id otherwise.
	r.acceptShared()
	to := m.Source
	if to == nil {
		to = r.bus
	}
	if err := to.Send(transport.Message{Data: reply}); err != nil {
		r.log.Warn().Err(err).Msg("handshake acknowledgment failed")
	}
}

func (r *Responder) respondDedicated(m transport.Message, reply []byte) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	transferred, seen := r.peers[m.Source]
	if !seen {
		// One pair per distinct calling peer. The retained end serves this
		// channel for as long as the peer does; the other end ships out in
		// the response.
		serve, give := transport.Pipe()
		r.peers[m.Source] = give
		r.retained = append(r.retained, serve)
		transferred = give
		r.mu.Unlock()
		if r.cfg.Accept != nil {
			r.cfg.Accept(serve)
		}
	} else {
		// Re-probe from a peer that missed our response: answer again with
		// the same transferred end. The medium is lossy and unordered.
		r.mu.Unlock()
	}

	if err := m.Source.Send(transport.Message{Data: reply, Port: transferred}); err != nil {
		r.log.Warn().Err(err).Msg("handshake response failed")
	}
}

// acceptShared surfaces the enveloped shared medium exactly once.
func (r *Responder) acceptShared() {
	r.mu.Lock()
	if r.closed || r.shared != nil {
		r.mu.Unlock()
		return
	}
	shared := transport.Channel(r.bus, r.cfg.ChannelID)
	r.shared = shared
	r.mu.Unlock()
	if r.cfg.Accept != nil {
		r.cfg.Accept(shared)
	}
}

// Close detaches the listener and closes every retained port.
func (r *Responder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	cancel := r.cancelListen
	retained := r.retained
	shared := r.shared
	r.retained = nil
	r.shared = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, p := range retained {
		p.Close()
	}
	if shared != nil {
		shared.Close()
	}
}
