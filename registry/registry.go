// Package registry is the out-of-band side of channel agreement: serving
// contexts announce the channel identifier they answer on, calling
// contexts look it up. The RPC hot path never touches it.
package registry

import "errors"

// Transport kinds announced with a channel.
const (
	TransportShared    = "shared"    // enveloped traffic on the broadcast medium
	TransportDedicated = "dedicated" // private port pair handed over at handshake
)

// ErrNotFound reports a channel nobody has announced.
var ErrNotFound = errors.New("registry: channel not found")

// ChannelInfo is the announced metadata for one channel: who serves it,
// how it is transported, and the fixed method set it exposes.
type ChannelInfo struct {
	Origin    string   `json:"origin,omitempty"`
	Transport string   `json:"transport"`
	Methods   []string `json:"methods"`
}

// Registry announces and discovers channels. A channel is point-to-point:
// at most one serving side per identifier.
type Registry interface {
	// Register announces a channel with a TTL in seconds; the
	// announcement expires unless renewed by the implementation.
	Register(channelID string, info ChannelInfo, ttl int64) error

	// Deregister withdraws an announcement, typically during shutdown.
	Deregister(channelID string) error

	// Discover returns the announcement for a channel.
	Discover(channelID string) (*ChannelInfo, error)

	// Watch emits the current announcement whenever it changes; a nil
	// emission means the channel was withdrawn or expired.
	Watch(channelID string) <-chan *ChannelInfo
}
