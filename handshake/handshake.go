// Package handshake establishes an identified logical channel over an
// untrusted broadcast medium before any RPC traffic is trusted.
//
// The calling side probes: it emits handshake requests stamped with its
// channel identifier on a fixed interval until a matching response
// arrives. The serving side listens continuously and answers matching
// requests, addressed to the original sender only — either handing over a
// freshly created dedicated port (when the medium can transfer one) or
// acknowledging so both sides fall back to enveloped traffic on the
// shared medium.
package handshake

import "time"

// DefaultProbeInterval is how often the calling side re-emits its
// handshake request while unanswered.
const DefaultProbeInterval = 100 * time.Millisecond

// State tracks channel establishment on the calling side.
// Transitions are one-way: Idle → Probing → Established. A channel, once
// established, is never re-probed; reconnection means a new channel.
type State int32

const (
	Idle State = iota
	Probing
	Established
)

func (s State) String() string {
	switch s {
	case Probing:
		return "probing"
	case Established:
		return "established"
	}
	return "idle"
}
