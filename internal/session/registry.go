package session

import (
	"fmt"

	"github.com/1ureka/replink/internal/socket"
	"github.com/1ureka/replink/internal/util"
)

// DefaultMaxSize is the outbound capacity, in bytes, granted to every
// connection.
const DefaultMaxSize = 1200

// Handle identifies a client connection on the host. A handle is never
// reused: its slot may be recycled but the generation changes.
type Handle struct {
	index      uint32
	generation uint32
}

// IsZero reports whether h is the zero handle, which never names a connection.
func (h Handle) IsZero() bool { return h.generation == 0 }

func (h Handle) String() string {
	return fmt.Sprintf("%dv%d", h.index, h.generation)
}

// Connection is the host-side record of one connected client.
type Connection struct {
	Handle    Handle
	Peer      socket.PeerID
	NetworkID uint64
	MaxSize   int
}

type slot struct {
	conn       Connection
	generation uint32
	live       bool
}

// Registry maps peer ids to connection handles and back in O(1). It is the
// single source of truth for which peers the host considers connected and is
// owned by the Host driver.
type Registry struct {
	slots  []slot
	free   []uint32
	byPeer map[socket.PeerID]uint32
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byPeer: make(map[socket.PeerID]uint32)}
}

// Connect registers peer and returns its connection. The boolean is false if
// the peer was already registered, in which case nothing changes.
func (r *Registry) Connect(peer socket.PeerID) (Connection, bool) {
	if idx, ok := r.byPeer[peer]; ok {
		return r.slots[idx].conn, false
	}

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{})
	}

	s := &r.slots[idx]
	s.generation++
	s.live = true
	s.conn = Connection{
		Handle:    Handle{index: idx, generation: s.generation},
		Peer:      peer,
		NetworkID: util.NetworkID(peer),
		MaxSize:   DefaultMaxSize,
	}
	r.byPeer[peer] = idx
	return s.conn, true
}

// Disconnect removes peer and returns its former connection. Absence is not
// an error: the peer may already have left.
func (r *Registry) Disconnect(peer socket.PeerID) (Connection, bool) {
	idx, ok := r.byPeer[peer]
	if !ok {
		return Connection{}, false
	}
	delete(r.byPeer, peer)

	s := &r.slots[idx]
	conn := s.conn
	s.live = false
	s.conn = Connection{}
	r.free = append(r.free, idx)
	return conn, true
}

// Lookup returns the connection registered for peer.
func (r *Registry) Lookup(peer socket.PeerID) (Connection, bool) {
	idx, ok := r.byPeer[peer]
	if !ok {
		return Connection{}, false
	}
	return r.slots[idx].conn, true
}

// Get returns the live connection named by h.
func (r *Registry) Get(h Handle) (Connection, bool) {
	if h.IsZero() || int(h.index) >= len(r.slots) {
		return Connection{}, false
	}
	s := r.slots[h.index]
	if !s.live || s.generation != h.generation {
		return Connection{}, false
	}
	return s.conn, true
}

// LookupPeer returns the peer behind h.
func (r *Registry) LookupPeer(h Handle) (socket.PeerID, bool) {
	conn, ok := r.Get(h)
	return conn.Peer, ok
}

// Len returns the number of registered connections.
func (r *Registry) Len() int { return len(r.byPeer) }

// Connections lists live connections in slot order.
func (r *Registry) Connections() []Connection {
	out := make([]Connection, 0, len(r.byPeer))
	for _, s := range r.slots {
		if s.live {
			out = append(out, s.conn)
		}
	}
	return out
}

// Clear removes every connection and returns them in slot order.
func (r *Registry) Clear() []Connection {
	out := r.Connections()
	for _, c := range out {
		r.Disconnect(c.Peer)
	}
	return out
}
