package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/replink/internal/socket"
	"github.com/1ureka/replink/internal/util"
)

func TestRegistryConnectIdempotent(t *testing.T) {
	r := NewRegistry()
	peer := socket.NewPeerID()

	conn, created := r.Connect(peer)
	require.True(t, created)
	assert.False(t, conn.Handle.IsZero())
	assert.Equal(t, peer, conn.Peer)
	assert.Equal(t, util.NetworkID(peer), conn.NetworkID)
	assert.Equal(t, DefaultMaxSize, conn.MaxSize)

	again, created := r.Connect(peer)
	assert.False(t, created)
	assert.Equal(t, conn, again)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryLookupBothWays(t *testing.T) {
	r := NewRegistry()
	a, _ := r.Connect(socket.NewPeerID())
	b, _ := r.Connect(socket.NewPeerID())
	assert.NotEqual(t, a.Handle, b.Handle)

	got, ok := r.Lookup(b.Peer)
	require.True(t, ok)
	assert.Equal(t, b.Handle, got.Handle)

	peer, ok := r.LookupPeer(a.Handle)
	require.True(t, ok)
	assert.Equal(t, a.Peer, peer)

	_, ok = r.Lookup(socket.NewPeerID())
	assert.False(t, ok)
	_, ok = r.LookupPeer(Handle{})
	assert.False(t, ok)
	_, ok = r.LookupPeer(Handle{index: 99, generation: 1})
	assert.False(t, ok)
}

func TestRegistryDisconnect(t *testing.T) {
	r := NewRegistry()
	conn, _ := r.Connect(socket.NewPeerID())

	removed, ok := r.Disconnect(conn.Peer)
	require.True(t, ok)
	assert.Equal(t, conn, removed)
	assert.Zero(t, r.Len())

	_, ok = r.Disconnect(conn.Peer)
	assert.False(t, ok, "second removal is a normal race, not an error")
}

// TestRegistryStaleHandle verifies that a recycled slot does not resolve the
// handle of its previous occupant.
func TestRegistryStaleHandle(t *testing.T) {
	r := NewRegistry()
	old, _ := r.Connect(socket.NewPeerID())
	r.Disconnect(old.Peer)

	fresh, _ := r.Connect(socket.NewPeerID())
	assert.Equal(t, old.Handle.index, fresh.Handle.index)
	assert.NotEqual(t, old.Handle, fresh.Handle)

	_, ok := r.Get(old.Handle)
	assert.False(t, ok)
	got, ok := r.Get(fresh.Handle)
	require.True(t, ok)
	assert.Equal(t, fresh.Peer, got.Peer)
}

func TestRegistryClear(t *testing.T) {
	r := NewRegistry()
	var conns []Connection
	for i := 0; i < 3; i++ {
		c, _ := r.Connect(socket.NewPeerID())
		conns = append(conns, c)
	}

	assert.Equal(t, conns, r.Connections())
	assert.Equal(t, conns, r.Clear())
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Connections())
	for _, c := range conns {
		_, ok := r.Get(c.Handle)
		assert.False(t, ok)
	}
}
