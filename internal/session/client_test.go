package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/replink/internal/channel"
	"github.com/1ureka/replink/internal/protocol"
	"github.com/1ureka/replink/internal/replication"
	"github.com/1ureka/replink/internal/socket"
)

func newFakeClient() (*fakeSocket, *Client, *replication.ClientMessages) {
	l := testLayout()
	fs := newFakeSocket()
	return fs, NewClient(fs, l), replication.NewClientMessages(len(l.Server), len(l.Client))
}

func ackFrom(fs *fakeSocket, host socket.PeerID) {
	fs.report(host, socket.Connected)
	fs.push(channel.SystemChannel, host, protocol.EncodeControl(protocol.ConnectedToHost))
}

// TestClientConnectsOnce verifies Connecting → Connected happens exactly once
// and a second ConnectedToHost, even from another peer, changes nothing.
func TestClientConnectsOnce(t *testing.T) {
	fs, c, q := newFakeClient()
	assert.Equal(t, ClientConnecting, c.State())
	assert.False(t, c.IsConnected())

	host := socket.NewPeerID()
	ackFrom(fs, host)
	c.Update(q)
	require.Equal(t, ClientConnected, c.State())

	fs.push(channel.SystemChannel, socket.NewPeerID(), protocol.EncodeControl(protocol.ConnectedToHost))
	c.Update(q)

	assert.Equal(t, ClientConnected, c.State())
	got, ok := c.HostPeer()
	require.True(t, ok)
	assert.Equal(t, host, got)
}

// TestClientBuffersUntilConnected verifies that outbound messages stay in the
// framework's queue until the host acknowledges the client.
func TestClientBuffersUntilConnected(t *testing.T) {
	fs, c, q := newFakeClient()
	l := testLayout()

	require.NoError(t, q.Send(0, []byte{0x41, 0x42}))
	c.Update(q)
	c.Update(q)
	assert.Empty(t, fs.sent)
	assert.Equal(t, 1, q.PendingSent())

	host := socket.NewPeerID()
	ackFrom(fs, host)
	c.Update(q)

	require.Len(t, fs.sent, 1)
	assert.Equal(t, l.ClientToHostIndex(0), fs.sent[0].channel)
	assert.Equal(t, host, fs.sent[0].peer)
	assert.Equal(t, []byte{protocol.FrameMarker, 0x41, 0x42}, fs.sent[0].data)
	assert.Zero(t, q.PendingSent())
}

func TestClientReceivePackets(t *testing.T) {
	fs, c, q := newFakeClient()
	l := testLayout()
	host := socket.NewPeerID()
	ackFrom(fs, host)

	fs.push(l.HostToClientIndex(1), host, protocol.Frame([]byte("b")))
	fs.push(l.HostToClientIndex(0), host, protocol.Frame([]byte("a")))
	fs.push(l.HostToClientIndex(0), host, nil)
	c.Receive(q)

	assert.Equal(t, []replication.ClientReceived{
		{Channel: 0, Message: []byte("a")},
		{Channel: 1, Message: []byte("b")},
	}, q.DrainReceived())
}

func TestClientHostRequestsDisconnect(t *testing.T) {
	fs, c, q := newFakeClient()
	host := socket.NewPeerID()
	ackFrom(fs, host)
	c.Update(q)

	fs.push(channel.SystemChannel, host, protocol.EncodeControl(protocol.HostRequestsDisconnect))
	c.Receive(q)
	assert.Equal(t, ClientConnected, c.State(), "disconnect completes in Send")

	c.Send(q)
	assert.Equal(t, ClientDisconnected, c.State())
	assert.False(t, c.IsConnected())
	assert.True(t, fs.closed)
}

func TestClientIgnoresForeignDisconnectRequest(t *testing.T) {
	fs, c, q := newFakeClient()
	ackFrom(fs, socket.NewPeerID())
	c.Update(q)

	fs.push(channel.SystemChannel, socket.NewPeerID(), protocol.EncodeControl(protocol.HostRequestsDisconnect))
	fs.push(channel.SystemChannel, socket.NewPeerID(), protocol.EncodeControl(protocol.ClientDisconnects))
	fs.push(channel.SystemChannel, socket.NewPeerID(), []byte{0x09})
	c.Update(q)

	assert.Equal(t, ClientConnected, c.State())
	assert.False(t, fs.closed)
}

func TestClientHostPeerDisconnected(t *testing.T) {
	fs, c, q := newFakeClient()
	host := socket.NewPeerID()
	ackFrom(fs, host)
	c.Update(q)

	fs.report(socket.NewPeerID(), socket.Disconnected)
	c.Update(q)
	assert.Equal(t, ClientConnected, c.State(), "only the host's departure matters")

	fs.report(host, socket.Disconnected)
	c.Update(q)
	assert.Equal(t, ClientDisconnected, c.State())
	assert.True(t, fs.closed)
}

func TestClientIgnoresDisconnectsBeforeHostKnown(t *testing.T) {
	fs, c, q := newFakeClient()
	fs.report(socket.NewPeerID(), socket.Disconnected)
	c.Update(q)
	assert.Equal(t, ClientConnecting, c.State())
}

func TestClientFatalSocketFailure(t *testing.T) {
	fs, c, q := newFakeClient()
	fs.fail = true
	c.Update(q)

	assert.Equal(t, ClientDisconnected, c.State())
	assert.True(t, fs.closed)

	c.Update(q)
	assert.Equal(t, ClientDisconnected, c.State())
}

func TestClientDisconnect(t *testing.T) {
	fs, c, q := newFakeClient()
	host := socket.NewPeerID()

	c.Disconnect()
	assert.Empty(t, fs.sent, "nothing to tell before the host is known")

	ackFrom(fs, host)
	c.Update(q)
	c.Disconnect()

	msgs := fs.sentOn(channel.SystemChannel)
	require.Len(t, msgs, 1)
	assert.Equal(t, host, msgs[0].peer)
	assert.Equal(t, protocol.EncodeControl(protocol.ClientDisconnects), msgs[0].data)

	c.Update(q)
	assert.Equal(t, ClientDisconnected, c.State())
	assert.True(t, fs.closed)
}

func TestClientSendSkippedWhenChannelClosed(t *testing.T) {
	fs, c, q := newFakeClient()
	ackFrom(fs, socket.NewPeerID())
	c.Update(q)

	fs.anyClosed = true
	require.NoError(t, q.Send(1, []byte("x")))
	c.Send(q)
	assert.Empty(t, fs.sent)
	assert.Equal(t, 1, q.PendingSent())
}

func TestClientClose(t *testing.T) {
	fs, c, _ := newFakeClient()
	c.Close()
	c.Close()
	assert.True(t, fs.closed)
	assert.Empty(t, fs.sent)
	assert.Equal(t, ClientDisconnected, c.State())
}

// TestClientHostRequestsDisconnectWithChannelClosed verifies a disconnect
// requested by the host completes even while sending is suspended.
func TestClientHostRequestsDisconnectWithChannelClosed(t *testing.T) {
	fs, c, q := newFakeClient()
	host := socket.NewPeerID()
	ackFrom(fs, host)
	c.Update(q)
	require.Equal(t, ClientConnected, c.State())

	fs.anyClosed = true
	require.NoError(t, q.Send(0, []byte("held")))
	fs.push(channel.SystemChannel, host, protocol.EncodeControl(protocol.HostRequestsDisconnect))
	c.Update(q)

	assert.Equal(t, ClientDisconnected, c.State())
	assert.True(t, fs.closed)
	assert.Empty(t, fs.sent)
}

func TestClientAllChannelsClosed(t *testing.T) {
	fs, c, q := newFakeClient()
	ackFrom(fs, socket.NewPeerID())
	c.Update(q)

	fs.allClosed = true
	c.Receive(q)
	assert.Equal(t, ClientDisconnected, c.State())
	assert.True(t, fs.closed)
}
