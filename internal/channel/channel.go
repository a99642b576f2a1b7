// Package channel maps logical channels onto the underlying socket channels.
//
// Index 0 is reserved for the system (control) channel. Host→client channel i
// lives at 1+i and client→host channel j at 1+S+j, where S is the number of
// host→client channels. Both roles compute the same indices from the same
// Layout; nothing is negotiated on the wire.
package channel

import (
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
)

// SystemChannel is the underlying index reserved for control messages.
const SystemChannel = 0

// MaxChannels bounds the total number of underlying channels (system channel
// included) so every index fits a data channel stream id.
const MaxChannels = 65535

// Policy is the delivery guarantee of a logical channel.
type Policy uint8

const (
	Ordered    Policy = iota // reliable, ordered per peer
	Unordered                // reliable, no ordering
	Unreliable               // no retransmission, no ordering
)

// Direction identifies which side sends on a logical channel.
type Direction uint8

const (
	System       Direction = iota // control channel, both ways
	HostToClient                  // server channels
	ClientToHost                  // client channels
)

var (
	ErrUnknownPolicy   = errors.New("unknown channel policy")
	ErrTooManyChannels = errors.New("too many channels")
)

// String returns the policy name as written in configuration files.
func (p Policy) String() string {
	switch p {
	case Ordered:
		return "ordered"
	case Unordered:
		return "unordered"
	case Unreliable:
		return "unreliable"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// Reliable reports whether the socket must retransmit lost datagrams.
func (p Policy) Reliable() bool { return p != Unreliable }

// IsOrdered reports whether the socket must preserve sender order.
func (p Policy) IsOrdered() bool { return p == Ordered }

// ParsePolicy converts a configuration name into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ordered":
		return Ordered, nil
	case "unordered":
		return Unordered, nil
	case "unreliable":
		return Unreliable, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

func (d Direction) String() string {
	switch d {
	case System:
		return "system"
	case HostToClient:
		return "host->client"
	case ClientToHost:
		return "client->host"
	default:
		return "unknown"
	}
}

// Layout is the statically agreed set of logical channels. It must be
// identical, in the same order, on the host and every client.
type Layout struct {
	Server []Policy // host → client
	Client []Policy // client → host
}

// Config describes one underlying socket channel.
type Config struct {
	Index  int
	Policy Policy
}

// NewLayout copies the given policies into a Layout.
func NewLayout(server, client []Policy) Layout {
	return Layout{
		Server: append([]Policy(nil), server...),
		Client: append([]Policy(nil), client...),
	}
}

// Validate checks that the layout fits the underlying channel id space.
func (l Layout) Validate() error {
	if l.Count() > MaxChannels {
		return fmt.Errorf("%w: %d (max %d)", ErrTooManyChannels, l.Count(), MaxChannels)
	}
	for _, p := range append(append([]Policy(nil), l.Server...), l.Client...) {
		if p > Unreliable {
			return fmt.Errorf("%w: %d", ErrUnknownPolicy, uint8(p))
		}
	}
	return nil
}

// Count returns the number of underlying channels, system channel included.
func (l Layout) Count() int {
	return 1 + len(l.Server) + len(l.Client)
}

// HostToClientIndex returns the underlying index of host→client channel i.
func (l Layout) HostToClientIndex(i int) int {
	return 1 + i
}

// ClientToHostIndex returns the underlying index of client→host channel j.
func (l Layout) ClientToHostIndex(j int) int {
	return 1 + len(l.Server) + j
}

// Resolve maps an underlying index back to its direction and logical id.
func (l Layout) Resolve(index int) (Direction, int, bool) {
	switch {
	case index == SystemChannel:
		return System, 0, true
	case index >= 1 && index <= len(l.Server):
		return HostToClient, index - 1, true
	case index > len(l.Server) && index < l.Count():
		return ClientToHost, index - 1 - len(l.Server), true
	default:
		return 0, 0, false
	}
}

// SocketChannels lists every underlying channel in index order. The system
// channel is always reliable and ordered.
func (l Layout) SocketChannels() []Config {
	out := make([]Config, 0, l.Count())
	out = append(out, Config{Index: SystemChannel, Policy: Ordered})
	for i, p := range l.Server {
		out = append(out, Config{Index: l.HostToClientIndex(i), Policy: p})
	}
	for j, p := range l.Client {
		out = append(out, Config{Index: l.ClientToHostIndex(j), Policy: p})
	}
	return out
}

// Fingerprint is a short deterministic digest of the layout. Peers built
// from different channel definitions produce different fingerprints.
func (l Layout) Fingerprint() string {
	h := fnv.New64a()
	h.Write([]byte{byte(len(l.Server) >> 8), byte(len(l.Server))})
	for _, p := range l.Server {
		h.Write([]byte{byte(p)})
	}
	h.Write([]byte{byte(len(l.Client) >> 8), byte(len(l.Client))})
	for _, p := range l.Client {
		h.Write([]byte{byte(p)})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
