package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFrameRoundTrip verifies that Unframe inverts Frame for payloads of
// various sizes, including the empty payload.
func TestFrameRoundTrip(t *testing.T) {
	testCases := []struct {
		name    string
		payload []byte
	}{
		{"empty", []byte{}},
		{"single zero byte", []byte{0x00}},
		{"marker-like byte", []byte{FrameMarker}},
		{"small", []byte{0x41, 0x42}},
		{"large (16KB)", bytes.Repeat([]byte{0xAB}, 16*1024)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			framed := Frame(tc.payload)
			require.Len(t, framed, len(tc.payload)+1)
			assert.Equal(t, FrameMarker, framed[0])

			got, err := Unframe(framed)
			require.NoError(t, err)
			assert.Equal(t, tc.payload, got)
		})
	}
}

// TestFrameDoesNotAlias verifies that framing copies the payload.
func TestFrameDoesNotAlias(t *testing.T) {
	payload := []byte{1, 2, 3}
	framed := Frame(payload)
	payload[0] = 9
	assert.Equal(t, byte(1), framed[1])

	got, err := Unframe(framed)
	require.NoError(t, err)
	framed[1] = 7
	assert.Equal(t, byte(1), got[0])
}

// TestUnframeEmptyDatagram verifies that a zero-length datagram is never
// mistaken for an empty application payload.
func TestUnframeEmptyDatagram(t *testing.T) {
	_, err := Unframe(nil)
	assert.ErrorIs(t, err, ErrEmptyPacket)

	_, err = Unframe([]byte{})
	assert.ErrorIs(t, err, ErrEmptyPacket)
}

func TestControlRoundTrip(t *testing.T) {
	for _, msg := range []Message{ConnectedToHost, HostRequestsDisconnect, ClientDisconnects} {
		t.Run(msg.String(), func(t *testing.T) {
			data := EncodeControl(msg)
			require.Len(t, data, ControlSize)

			got, err := DecodeControl(data)
			require.NoError(t, err)
			assert.Equal(t, msg, got)
		})
	}
}

// TestControlDiscriminants pins the wire values; both roles must agree on them.
func TestControlDiscriminants(t *testing.T) {
	assert.Equal(t, []byte{0x00}, EncodeControl(ConnectedToHost))
	assert.Equal(t, []byte{0x01}, EncodeControl(HostRequestsDisconnect))
	assert.Equal(t, []byte{0x02}, EncodeControl(ClientDisconnects))
}

func TestDecodeControlErrors(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
		want error
	}{
		{"nil", nil, ErrEmptyPacket},
		{"empty", []byte{}, ErrEmptyPacket},
		{"unknown discriminant", []byte{0x03}, ErrUnknownMessage},
		{"high discriminant", []byte{0xFF}, ErrUnknownMessage},
		{"trailing bytes", []byte{0x00, 0x00}, ErrTrailingPayload},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeControl(tc.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v, want %v", err, tc.want)
		})
	}
}

func TestMessageDirection(t *testing.T) {
	assert.False(t, ConnectedToHost.HostBound())
	assert.False(t, HostRequestsDisconnect.HostBound())
	assert.True(t, ClientDisconnects.HostBound())
	assert.Equal(t, "Unknown", Message(7).String())
}
