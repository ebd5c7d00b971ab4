package wire

import (
	"bytes"
	"encoding/json"
)

// Kind is the classification of an inbound payload.
type Kind int

const (
	// Unrecognized payloads are never an error at this layer; they may
	// belong to unrelated traffic sharing the transport. Callers decide
	// whether to surface them.
	Unrecognized Kind = iota
	KindRequest
	KindSuccess
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	}
	return "unrecognized"
}

var versionTag = []byte(`"` + Version + `"`)

// Classify inspects a raw payload and reports what it is. Pure; it never
// propagates a decode error. Rules, checked in order:
//
//  1. not a JSON object, or the "jsonrpc" tag is missing/wrong → Unrecognized
//  2. string "method" field present → KindRequest
//  3. "result" key present → KindSuccess
//  4. "error" key present → KindFailure
//  5. otherwise → Unrecognized
func Classify(raw []byte) Kind {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Unrecognized
	}
	if !bytes.Equal(fields["jsonrpc"], versionTag) {
		return Unrecognized
	}
	if m, ok := fields["method"]; ok && len(m) > 0 && m[0] == '"' {
		return KindRequest
	}
	if _, ok := fields["result"]; ok {
		return KindSuccess
	}
	if _, ok := fields["error"]; ok {
		return KindFailure
	}
	return Unrecognized
}

// DecodeRequest parses raw as a Request. Callers classify first.
func DecodeRequest(raw []byte) (*Request, error) {
	req := new(Request)
	if err := json.Unmarshal(raw, req); err != nil {
		return nil, err
	}
	return req, nil
}

// DecodeResponse parses raw as a Response. Callers classify first.
func DecodeResponse(raw []byte) (*Response, error) {
	resp := new(Response)
	if err := json.Unmarshal(raw, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// PeekID extracts the "id" field from a payload that failed classification,
// so an Invalid Request reply can echo it. Returns "" when absent or not a
// string — a reply must never fabricate a correlation id.
func PeekID(raw []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	var id string
	if err := json.Unmarshal(fields["id"], &id); err != nil {
		return ""
	}
	return id
}
