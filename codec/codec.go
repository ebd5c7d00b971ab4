// Package codec abstracts value serialization for the pieces of the system
// that move structured data across a byte boundary: the framed stream
// transport and the channel directory. The RPC payload itself is fixed to
// JSON by the JSON-RPC envelope; this interface exists so those outer
// layers stay swappable.
package codec

import "encoding/json"

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// JSONCodec uses encoding/json. Human-readable and cross-language, which
// matters for a wire format shared with non-Go peers.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Default is the codec used when a caller does not supply one.
var Default Codec = &JSONCodec{}
