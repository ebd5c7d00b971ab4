// Package server implements the serving side of a channel: it answers the
// handshake, binds a capability receiver's methods into an immutable
// method table, and turns correlated inbound requests into invocations
// whose outcome — success, protocol error, handler failure — always goes
// back to the exact source that delivered the request.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"post-rpc/handshake"
	"post-rpc/middleware"
	"post-rpc/registry"
	"post-rpc/transport"
	"post-rpc/wire"
)

// Options configures a Server. ChannelID and Receiver are required;
// construction fails fast when either is missing.
type Options struct {
	// ChannelID scopes all handshake and RPC traffic for this channel.
	ChannelID string

	// Receiver is the capability object. Its exported methods become the
	// method table; see newService for accepted signatures.
	Receiver any

	// AllowedOrigin restricts handshake initiators. Empty or "*" accepts
	// any origin.
	AllowedOrigin string

	// Dedicated hands each peer a private port pair during the handshake
	// instead of sharing the broadcast medium. Default false (shared
	// envelopes), which works on every medium.
	Dedicated bool

	// Directory, when set, announces this channel out-of-band so peers can
	// discover it. Optional.
	Directory registry.Registry

	// DirectoryTTL is the announcement lease in seconds. Default 10.
	DirectoryTTL int64

	Logger *zerolog.Logger
}

// Server dispatches RPC requests for one logical channel.
type Server struct {
	channelID string
	opts      Options
	svc       *service
	log       zerolog.Logger

	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc

	wg sync.WaitGroup

	mu        sync.Mutex
	responder *handshake.Responder
	cancels   []func()
	serving   bool
	closed    bool
}

// New validates the configuration and builds the method table. The table
// is immutable afterwards; no mutation race is possible at dispatch time.
func New(opts Options) (*Server, error) {
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("%w: ChannelID", wire.ErrMissingConfiguration)
	}
	if opts.Receiver == nil {
		return nil, fmt.Errorf("%w: Receiver", wire.ErrMissingConfiguration)
	}
	svc, err := newService(opts.Receiver)
	if err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Server{
		channelID: opts.ChannelID,
		opts:      opts,
		svc:       svc,
		log:       logger.With().Str("component", "server").Str("channel", opts.ChannelID).Logger(),
	}, nil
}

// Use appends a middleware. Middlewares apply in registration order,
// outermost first, and must be registered before Serve.
func (s *Server) Use(mw middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw)
}

// Serve installs the handshake responder on the shared medium and serves
// until Shutdown. It does not block; the protocol is event-driven.
func (s *Server) Serve(bus transport.Port) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return wire.ErrClosed
	}
	if s.serving {
		return fmt.Errorf("rpc: server for channel %q already serving", s.channelID)
	}
	s.serving = true

	// Recovery is always innermost-but-one: a panicking handler must
	// produce an internal error response, never unwind the delivery loop.
	chain := append([]middleware.Middleware{}, s.middlewares...)
	chain = append(chain, middleware.Recovery())
	s.handler = middleware.Chain(chain...)(s.invoke)

	s.responder = handshake.Listen(bus, handshake.ResponderConfig{
		ChannelID:     s.channelID,
		AllowedOrigin: s.opts.AllowedOrigin,
		Dedicated:     s.opts.Dedicated,
		Accept:        s.attach,
		Logger:        s.log,
	})

	if s.opts.Directory != nil {
		ttl := s.opts.DirectoryTTL
		if ttl <= 0 {
			ttl = 10
		}
		info := registry.ChannelInfo{
			Methods:   s.svc.names(),
			Transport: registry.TransportShared,
		}
		if s.opts.Dedicated {
			info.Transport = registry.TransportDedicated
		}
		if err := s.opts.Directory.Register(s.channelID, info, ttl); err != nil {
			s.log.Warn().Err(err).Msg("directory announcement failed")
		}
	}
	return nil
}

// attach starts serving one established transport: the retained end of a
// dedicated pipe, or the enveloped shared medium. Classification runs
// sequentially on the delivery loop; each accepted request is then handled
// on its own goroutine, so a slow handler never blocks classification of
// unrelated traffic.
func (s *Server) attach(port transport.Port) {
	cancel := port.Listen(func(m transport.Message) {
		s.classify(port, m)
	})
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()
}

func (s *Server) classify(port transport.Port, m transport.Message) {
	replyTo := m.Source
	if replyTo == nil {
		replyTo = port
	}

	switch wire.Classify(m.Data) {
	case wire.KindRequest:
		req, err := wire.DecodeRequest(m.Data)
		if err != nil {
			s.reply(replyTo, wire.NewFailure(wire.PeekID(m.Data), wire.CodeInvalidRequest, "Invalid Request", nil))
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.reply(replyTo, s.handler(context.Background(), req))
		}()

	case wire.KindSuccess, wire.KindFailure:
		// The calling side's traffic sharing our medium; not ours.

	default:
		// Neither request nor response. The id, if any, is echoed; a reply
		// must never carry a fabricated correlation id.
		s.log.Debug().Msg("dropping unrecognized payload")
		s.reply(replyTo, wire.NewFailure(wire.PeekID(m.Data), wire.CodeInvalidRequest, "Invalid Request", nil))
	}
}

func (s *Server) reply(to transport.Port, resp *wire.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error().Err(err).Msg("encoding response failed")
		return
	}
	if err := to.Send(transport.Message{Data: data}); err != nil {
		s.log.Warn().Err(err).Str("id", resp.ID).Msg("reply delivery failed")
	}
}

// invoke is the innermost handler: method lookup, positional decode, call.
func (s *Server) invoke(ctx context.Context, req *wire.Request) *wire.Response {
	mt, ok := s.svc.method[req.Method]
	if !ok {
		return wire.NewFailure(req.ID, wire.CodeMethodNotFound, "Method not found", nil)
	}

	result, decodeErr, callErr := s.svc.call(ctx, mt, req.Params)
	if decodeErr != nil {
		return wire.NewFailure(req.ID, wire.CodeInvalidRequest, "Invalid Request", marshalErrData(decodeErr))
	}
	if callErr != nil {
		return wire.NewFailure(req.ID, wire.CodeInternalError, "Internal error", marshalErrData(callErr))
	}
	return wire.NewSuccess(req.ID, result)
}

// marshalErrData attaches the failure value to the response, the way a
// thrown value rides along with a JSON-RPC error.
func marshalErrData(err error) json.RawMessage {
	data, merr := json.Marshal(err.Error())
	if merr != nil {
		return nil
	}
	return data
}

// Shutdown withdraws the directory announcement, detaches every listener,
// and waits up to timeout for in-flight handlers. A zero timeout skips the
// wait.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	responder := s.responder
	cancels := s.cancels
	s.responder = nil
	s.cancels = nil
	s.mu.Unlock()

	if s.opts.Directory != nil {
		if err := s.opts.Directory.Deregister(s.channelID); err != nil {
			s.log.Warn().Err(err).Msg("directory withdrawal failed")
		}
	}
	if responder != nil {
		responder.Close()
	}
	for _, cancel := range cancels {
		cancel()
	}

	if timeout <= 0 {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("rpc: timeout waiting for in-flight handlers")
	}
}

// Close is Shutdown without waiting for in-flight handlers.
func (s *Server) Close() error {
	return s.Shutdown(0)
}

// Methods returns the method table's names, sorted.
func (s *Server) Methods() []string {
	return s.svc.names()
}
