package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerMessages(t *testing.T) {
	m := NewServerMessages[string](2, 1)

	require.NoError(t, m.Send("a", 0, []byte("x")))
	require.NoError(t, m.Send("b", 1, []byte("y")))
	assert.ErrorIs(t, m.Send("a", 2, nil), ErrUnknownChannel)
	assert.ErrorIs(t, m.Send("a", -1, nil), ErrUnknownChannel)
	assert.Equal(t, 2, m.PendingSent())

	sent := m.DrainSent()
	assert.Equal(t, []Sent[string]{
		{Client: "a", Channel: 0, Message: []byte("x")},
		{Client: "b", Channel: 1, Message: []byte("y")},
	}, sent)
	assert.Empty(t, m.DrainSent())

	m.InsertReceived("a", 0, []byte("z"))
	assert.Equal(t, []Received[string]{{Client: "a", Channel: 0, Message: []byte("z")}}, m.DrainReceived())
	assert.Empty(t, m.DrainReceived())

	require.NoError(t, m.Send("a", 0, nil))
	m.InsertReceived("a", 0, nil)
	m.Clear()
	assert.Zero(t, m.PendingSent())
	assert.Empty(t, m.DrainReceived())
}

func TestClientMessages(t *testing.T) {
	m := NewClientMessages(1, 2)

	require.NoError(t, m.Send(1, []byte{0x41, 0x42}))
	assert.ErrorIs(t, m.Send(2, nil), ErrUnknownChannel)
	assert.Equal(t, 1, m.PendingSent())
	assert.Equal(t, []ClientSent{{Channel: 1, Message: []byte{0x41, 0x42}}}, m.DrainSent())

	m.InsertReceived(0, []byte("hi"))
	assert.Equal(t, []ClientReceived{{Channel: 0, Message: []byte("hi")}}, m.DrainReceived())

	require.NoError(t, m.Send(0, nil))
	m.Clear()
	assert.Zero(t, m.PendingSent())
}
