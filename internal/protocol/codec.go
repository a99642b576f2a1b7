package protocol

import (
	"fmt"
)

// EncodeControl serializes a control message for the system channel.
func EncodeControl(msg Message) []byte {
	buf := make([]byte, ControlSize)
	buf[0] = byte(msg)
	return buf
}

// DecodeControl parses a system channel datagram into a control message.
func DecodeControl(data []byte) (Message, error) {
	if len(data) == 0 {
		return 0, ErrEmptyPacket
	}
	if len(data) > ControlSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrTrailingPayload, len(data)-ControlSize)
	}

	msg := Message(data[0])
	switch msg {
	case ConnectedToHost, HostRequestsDisconnect, ClientDisconnects:
		return msg, nil
	default:
		return 0, fmt.Errorf("%w: 0x%02x", ErrUnknownMessage, data[0])
	}
}

// Frame prepends the frame marker to an application payload.
func Frame(payload []byte) []byte {
	buf := make([]byte, 1+len(payload))
	buf[0] = FrameMarker
	copy(buf[1:], payload)
	return buf
}

// Unframe strips the leading marker byte and returns a copy of the payload.
// The caller must have excluded the system channel. A zero-length datagram
// carries no payload and yields ErrEmptyPacket.
func Unframe(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPacket
	}
	payload := make([]byte, len(data)-1)
	copy(payload, data[1:])
	return payload, nil
}
