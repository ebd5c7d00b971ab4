// Package wire defines the two message shapes that ride the transport:
// the JSON-RPC 2.0 payload (request / success / error) and the channel
// envelope that wraps a payload with a channel identifier when several
// logical channels share one medium.
//
// Envelope format (shared-medium traffic):
//
//	{ "type": "@post-rpc/...", "channelId": "...", "payload": {...} }
//
// Payload format (JSON-RPC 2.0):
//
//	{ "jsonrpc": "2.0", "method": "...", "params": [...], "id": "..." }
//	{ "jsonrpc": "2.0", "result": ...,  "id": "..." }
//	{ "jsonrpc": "2.0", "error": { "code": ..., "message": ... }, "id": "..." }
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Version is the only accepted value of the "jsonrpc" tag.
const Version = "2.0"

// Envelope types. Traffic on a shared medium is always enveloped;
// a dedicated port carries bare JSON-RPC payloads.
const (
	TypeHandshakeRequest  = "@post-rpc/handshake-request"
	TypeHandshakeResponse = "@post-rpc/handshake-response"
	TypeCall              = "@post-rpc/call"
)

// Envelope wraps a payload with channel routing metadata so multiple
// logical channels can coexist on one broadcast medium.
type Envelope struct {
	Type      string          `json:"type"`
	ChannelID string          `json:"channelId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Request is a JSON-RPC 2.0 call. Params are positional.
type Request struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      string            `json:"id"`
}

// Response is a JSON-RPC 2.0 reply. Exactly one of Result / Error is set;
// that is the discriminant between success and failure.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id,omitempty"`
}

// Error is the structured JSON-RPC error object. It implements error so
// the calling side can surface it as the rejection of a pending call.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewRequest builds a request with a freshly generated identifier. The id
// is unique for the lifetime of the calling context; correlation is scoped
// per logical channel, so cross-process collisions are acceptable.
func NewRequest(method string, args ...any) (*Request, error) {
	params := make([]json.RawMessage, 0, len(args))
	for i, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("marshal param %d of %s: %w", i, method, err)
		}
		params = append(params, raw)
	}
	return &Request{
		JSONRPC: Version,
		Method:  method,
		Params:  params,
		ID:      uuid.NewString(),
	}, nil
}

// NewSuccess builds a success response correlated to id.
func NewSuccess(id string, result json.RawMessage) *Response {
	return &Response{JSONRPC: Version, Result: result, ID: id}
}

// NewFailure builds an error response correlated to id. id may be empty
// when the offending payload carried none.
func NewFailure(id string, code int, message string, data json.RawMessage) *Response {
	return &Response{
		JSONRPC: Version,
		Error:   &Error{Code: code, Message: message, Data: data},
		ID:      id,
	}
}
