// Package client implements the calling side of a channel: it runs the
// handshake, synthesizes outgoing requests with fresh identifiers, tracks
// one pending call per identifier, and settles the matching future when a
// correlated response arrives or the deadline elapses first.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"post-rpc/deferred"
	"post-rpc/handshake"
	"post-rpc/transport"
	"post-rpc/wire"
)

// DefaultTimeout bounds each call unless Options.Timeout overrides it.
const DefaultTimeout = 1000 * time.Millisecond

// Options configures a Client. ChannelID and Bus are required.
type Options struct {
	// ChannelID scopes all traffic; must match the serving side's.
	ChannelID string

	// Bus is the shared medium the handshake probes on.
	Bus transport.Port

	// Timeout is the per-call deadline. Default 1s.
	Timeout time.Duration

	// ProbeInterval is how often the handshake request is re-emitted while
	// unanswered. Default 100ms.
	ProbeInterval time.Duration

	Logger *zerolog.Logger
}

// Call is one in-flight invocation. Its future settles exactly once:
// resolve on a success response, reject on a failure response, the
// deadline, or channel teardown — whichever comes first.
type Call struct {
	Method string
	d      *deferred.Deferred
}

// Result awaits settlement and returns the raw JSON result.
func (c *Call) Result(ctx context.Context) (json.RawMessage, error) {
	v, err := c.d.Await(ctx)
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// Done exposes the settlement signal for select loops.
func (c *Call) Done() <-chan struct{} {
	return c.d.Done()
}

// Client is the invocation engine for one logical channel.
type Client struct {
	channelID string
	timeout   time.Duration
	log       zerolog.Logger

	hs      *handshake.Caller
	pending sync.Map // request id → *deferred.Deferred

	mu           sync.Mutex
	port         transport.Port
	cancelListen func()
	closed       bool
}

// Dial validates the configuration and immediately starts probing for the
// peer. It returns without waiting for establishment; the first call (or
// Ready) blocks on the handshake future.
func Dial(opts Options) (*Client, error) {
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("%w: ChannelID", wire.ErrMissingConfiguration)
	}
	if opts.Bus == nil {
		return nil, fmt.Errorf("%w: Bus", wire.ErrMissingConfiguration)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	c := &Client{
		channelID: opts.ChannelID,
		timeout:   timeout,
		log:       logger.With().Str("component", "client").Str("channel", opts.ChannelID).Logger(),
	}
	c.hs = handshake.Dial(opts.Bus, opts.ChannelID, opts.ProbeInterval, c.log)
	return c, nil
}

// Ready blocks until the channel is established.
func (c *Client) Ready(ctx context.Context) error {
	_, err := c.established(ctx)
	return err
}

// established resolves the channel port, installing the correlation
// listener on it the first time through.
func (c *Client) established(ctx context.Context) (transport.Port, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, wire.ErrClosed
	}
	if c.port != nil {
		port := c.port
		c.mu.Unlock()
		return port, nil
	}
	c.mu.Unlock()

	port, err := c.hs.Established(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, wire.ErrClosed
	}
	if c.port == nil {
		c.port = port
		c.cancelListen = port.Listen(c.onMessage)
	}
	return c.port, nil
}

// Go issues method with positional args and returns the pending call
// immediately. Awaiting channel establishment — the one legitimate
// suspension point before any traffic is sent — happens off the caller's
// goroutine; the per-call deadline arms only once the channel is up, so
// probing time does not count against the call.
func (c *Client) Go(method string, args ...any) *Call {
	call := &Call{Method: method, d: deferred.New(0)}

	req, err := wire.NewRequest(method, args...)
	if err != nil {
		call.d.Reject(err)
		return call
	}

	d := call.d
	c.pending.Store(req.ID, d)
	// Whichever way the call settles, the tracking entry goes with it;
	// nothing is left dangling for a late response to touch.
	go func() {
		<-d.Done()
		c.pending.Delete(req.ID)
	}()

	go func() {
		port, err := c.established(context.Background())
		if err != nil {
			d.Reject(err)
			return
		}
		d.Arm(c.timeout)

		data, err := json.Marshal(req)
		if err != nil {
			d.Reject(err)
			return
		}
		if err := port.Send(transport.Message{Data: data}); err != nil {
			d.Reject(err)
		}
	}()
	return call
}

// Invoke is the synchronous wrapper: issue, await, decode into reply.
// reply may be nil to discard the result.
func (c *Client) Invoke(ctx context.Context, method string, reply any, args ...any) error {
	result, err := c.Go(method, args...).Result(ctx)
	if err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	return json.Unmarshal(result, reply)
}

// onMessage correlates inbound traffic to pending calls. Requests and
// unrecognized payloads are not ours on a shared medium; responses with
// unknown or already-settled ids are ignored — first settlement wins.
func (c *Client) onMessage(m transport.Message) {
	switch wire.Classify(m.Data) {
	case wire.KindSuccess, wire.KindFailure:
	case wire.KindRequest:
		return
	default:
		c.log.Debug().Msg("dropping unrecognized payload")
		return
	}

	resp, err := wire.DecodeResponse(m.Data)
	if err != nil {
		c.log.Debug().Err(err).Msg("dropping undecodable response")
		return
	}
	entry, ok := c.pending.LoadAndDelete(resp.ID)
	if !ok {
		return
	}
	d := entry.(*deferred.Deferred)
	if resp.Error != nil {
		d.Reject(resp.Error)
		return
	}
	result := resp.Result
	if result == nil {
		result = json.RawMessage("null")
	}
	d.Resolve(result)
}

// State reports the handshake state.
func (c *Client) State() handshake.State {
	return c.hs.State()
}

// Close tears the channel down: stops any probing, detaches listeners and
// rejects every pending call. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancelListen
	port := c.port
	c.cancelListen = nil
	c.port = nil
	c.mu.Unlock()

	c.hs.Close()
	if cancel != nil {
		cancel()
	}
	if port != nil {
		port.Close()
	}
	c.pending.Range(func(key, value any) bool {
		value.(*deferred.Deferred).Reject(wire.ErrClosed)
		c.pending.Delete(key)
		return true
	})
	return nil
}
