// Package protocol defines the control message set carried on the reserved
// system channel and the framing applied to application payloads.
package protocol

import "errors"

// Message is a control message exchanged on the system channel. The set is
// closed and versionless: both roles must be built against the same
// discriminant ordering.
type Message uint8

// Control message discriminants.
const (
	ConnectedToHost        Message = 0x00 // host → client, peer accepted
	HostRequestsDisconnect Message = 0x01 // host → client, last message before removal
	ClientDisconnects      Message = 0x02 // client → host, voluntary leave
)

// ControlSize is the encoded size of every control message.
const ControlSize = 1

// FrameMarker is prepended to every application payload so a zero-length
// datagram produced by the socket itself is never taken for an empty payload.
const FrameMarker byte = 0x01

var (
	ErrEmptyPacket     = errors.New("empty packet")
	ErrUnknownMessage  = errors.New("unknown control message")
	ErrTrailingPayload = errors.New("trailing bytes after control message")
)

// String returns the message name used in logs.
func (m Message) String() string {
	switch m {
	case ConnectedToHost:
		return "ConnectedToHost"
	case HostRequestsDisconnect:
		return "HostRequestsDisconnect"
	case ClientDisconnects:
		return "ClientDisconnects"
	default:
		return "Unknown"
	}
}

// HostBound reports whether the message may only travel client → host.
func (m Message) HostBound() bool {
	return m == ClientDisconnects
}
