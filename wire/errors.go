package wire

import "errors"

// Protocol error codes, transmitted inside Failure responses.
const (
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
)

// Local errors. These surface directly to calling code and are never
// transmitted on the wire.
var (
	// ErrTimeout rejects a pending call whose deadline elapsed before a
	// correlated response arrived.
	ErrTimeout = errors.New("rpc: call timed out")

	// ErrClosed rejects pending calls when their channel is torn down.
	ErrClosed = errors.New("rpc: channel closed")

	// ErrOriginMismatch is the serving-side validation failure for a
	// handshake from an unexpected origin. A security boundary, not
	// routing: it is reported loudly, never silently accepted.
	ErrOriginMismatch = errors.New("rpc: handshake origin mismatch")

	// ErrMissingConfiguration is returned synchronously at construction
	// when a required option (channel id, target medium, capability
	// receiver) is absent. Fail fast, never silently default.
	ErrMissingConfiguration = errors.New("rpc: missing required configuration")
)
