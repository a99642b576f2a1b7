// Package socket defines the multi-channel peer-to-peer datagram socket the
// session drivers run on. All operations are non-blocking polls; any
// background I/O belongs to the implementation.
package socket

import (
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrClosed is returned once the socket can no longer operate. From
	// UpdatePeers it is fatal for the session.
	ErrClosed          = errors.New("socket closed")
	ErrChannelNotFound = errors.New("channel not found")
	ErrUnknownPeer     = errors.New("unknown peer")
)

// PeerID identifies a remote endpoint for the lifetime of a session.
type PeerID uuid.UUID

// NewPeerID returns a random peer id.
func NewPeerID() PeerID { return PeerID(uuid.New()) }

// ParsePeerID parses the textual form produced by String.
func ParsePeerID(s string) (PeerID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return PeerID{}, err
	}
	return PeerID(id), nil
}

func (p PeerID) String() string { return uuid.UUID(p).String() }

// IsZero reports whether p is the zero id.
func (p PeerID) IsZero() bool { return p == PeerID{} }

// PeerState is the connectivity of a remote peer as seen by the socket.
type PeerState uint8

const (
	Connected PeerState = iota
	Disconnected
)

func (s PeerState) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// PeerEvent is one peer state change reported by UpdatePeers.
type PeerEvent struct {
	Peer  PeerID
	State PeerState
}

// Packet is one datagram received on a channel.
type Packet struct {
	Peer PeerID
	Data []byte
}

// Socket is the contract between the session drivers and the underlying
// peer-to-peer transport.
type Socket interface {
	// UpdatePeers drains the peer state changes observed since the last call.
	// ErrClosed means the socket failed and the session must be torn down.
	UpdatePeers() ([]PeerEvent, error)

	// Send queues data for peer on the given underlying channel. It never
	// blocks; delivery follows the channel's policy.
	Send(channel int, peer PeerID, data []byte) error

	// Receive drains the datagrams received on the given underlying channel.
	Receive(channel int) ([]Packet, error)

	// Close shuts the socket down. It is safe to call more than once.
	Close() error

	AllChannelsClosed() bool
	AnyChannelClosed() bool
}
