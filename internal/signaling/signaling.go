// Package signaling handles the WebSocket-based signaling phase: peers join a
// room, receive an id, learn about each other and relay SDP/ICE messages.
//
// Rooms use a client-server topology. The first host to join owns the room;
// clients only ever see the host, and the host sees every client. A room
// remembers the channel layout fingerprint of its first member and refuses
// members built from a different layout.
package signaling

import (
	"github.com/1ureka/replink/internal/config"
	"github.com/1ureka/replink/internal/socket"
)

// Query parameters understood by the server.
const (
	queryRole   = "role"
	queryLayout = "layout"
	queryPIN    = "pin"
)

// EventType identifies what the server reported.
type EventType int

const (
	EventPeerJoined EventType = iota // host only: a client joined the room
	EventPeerLeft                    // a peer this member can see left the room
	EventSignal                      // SDP or ICE relayed from Peer
)

// SignalKind identifies the payload of a relayed signal.
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
)

// Signal is an SDP description or a JSON-encoded ICE candidate.
type Signal struct {
	Kind      SignalKind
	SDP       string
	Candidate string
}

// Event is one notification read from the server.
type Event struct {
	Type   EventType
	Peer   socket.PeerID
	Signal Signal
}

func validRole(r config.Role) bool {
	return r == config.RoleHost || r == config.RoleClient
}
