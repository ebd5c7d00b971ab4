// Package transport abstracts the raw message-passing medium underneath the
// protocol: asynchronous, unordered, structured datagrams with no shared
// memory between the two sides.
//
// Two kinds of medium satisfy the same Port interface:
//
//   - a broadcast Bus, where every endpoint hears every message and logical
//     channels are told apart by envelope metadata;
//   - a dedicated pipe (Pipe, Framed), private to one channel, optionally
//     handed over during the handshake.
//
// Delivery per endpoint is sequential: one delivery goroutine hands
// messages to listeners one at a time, never preemptively interrupted by
// another incoming message.
package transport

import "errors"

// ErrTransferUnsupported is returned by media that cannot carry a port
// handle across their boundary (anything byte-framed).
var ErrTransferUnsupported = errors.New("transport: port transfer not supported on this medium")

// Message is one asynchronous datagram.
type Message struct {
	// Data is the opaque structured payload (JSON bytes).
	Data []byte

	// Origin identifies the sender, for origin validation. Empty when the
	// medium cannot attest it.
	Origin string

	// Source addresses a reply to the exact sender, bypassing broadcast.
	// Nil when the medium has no per-sender addressing.
	Source Port

	// Port is a transferred dedicated pipe, present only on handshake
	// responses that hand one over.
	Port Port
}

// Handler receives inbound messages. Handlers on one port run one at a
// time, in delivery order.
type Handler func(Message)

// Port is one end of an asynchronous message medium.
//
// Listen registers a handler and returns its cancel function. Listeners
// are detached explicitly, never by garbage collection; owners must cancel
// on teardown so no residual listener outlives its channel.
type Port interface {
	Send(Message) error
	Listen(Handler) (cancel func())
	Close() error
}
