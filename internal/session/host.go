package session

import (
	"errors"

	"github.com/1ureka/replink/internal/channel"
	"github.com/1ureka/replink/internal/protocol"
	"github.com/1ureka/replink/internal/replication"
	"github.com/1ureka/replink/internal/socket"
	"github.com/1ureka/replink/internal/util"
)

// ServerQueue is the replication framework's host-side queue pair.
type ServerQueue interface {
	InsertReceived(client Handle, channel int, msg []byte)
	DrainSent() []replication.Sent[Handle]
}

var _ ServerQueue = (*replication.ServerMessages[Handle])(nil)

// ClientEvent reports a connection entering or leaving the registry.
type ClientEvent struct {
	Connection Connection
	Connected  bool
}

// Host is the session driver of the authoritative side. It owns the socket
// and the registry; removing the socket (Close or a fatal failure) stops it
// for good.
type Host struct {
	socket   socket.Socket
	layout   channel.Layout
	registry *Registry
	pending  []Handle
	events   []ClientEvent
	state    HostState
}

// NewHost creates a host driver over sock. The host becomes Running on its
// first tick.
func NewHost(sock socket.Socket, layout channel.Layout) *Host {
	return &Host{
		socket:   sock,
		layout:   layout,
		registry: NewRegistry(),
		state:    HostStopped,
	}
}

// State returns the current host state.
func (h *Host) State() HostState { return h.state }

// ConnectedClients returns the number of registered connections.
func (h *Host) ConnectedClients() int { return h.registry.Len() }

// Connections lists the registered connections.
func (h *Host) Connections() []Connection { return h.registry.Connections() }

// Connection returns the registered connection named by handle.
func (h *Host) Connection(handle Handle) (Connection, bool) { return h.registry.Get(handle) }

// DrainEvents returns the registry changes since the last call.
func (h *Host) DrainEvents() []ClientEvent {
	out := h.events
	h.events = nil
	return out
}

// RequestDisconnect queues a still-connected client for removal at the end
// of the current tick's Send. It returns false for a stale handle.
func (h *Host) RequestDisconnect(handle Handle) bool {
	if _, ok := h.registry.Get(handle); !ok {
		return false
	}
	util.LogDebug("queuing disconnect of client %s by request", handle)
	h.pending = append(h.pending, handle)
	return true
}

// DisconnectAll queues every connected client for removal.
func (h *Host) DisconnectAll() {
	for _, c := range h.registry.Connections() {
		h.pending = append(h.pending, c.Handle)
	}
}

// Close removes the socket, tears down every connection and stops the host.
func (h *Host) Close() {
	if h.socket == nil {
		return
	}
	util.LogInfo("host shutting down")
	h.teardown()
}

// Update runs a whole tick with no framework processing in between.
func (h *Host) Update(q ServerQueue) {
	h.Receive(q)
	h.Send(q)
}

// ---------------------------------------------------------------------------
// Receive half: peer state → system channel → inbound data
// ---------------------------------------------------------------------------

// Receive polls peer state, handles control messages and moves inbound data
// packets into q.
func (h *Host) Receive(q ServerQueue) {
	if h.socket == nil {
		return
	}
	if h.state == HostStopped {
		h.state = HostRunning
		util.LogDebug("host running")
	}

	if !h.updatePresence() {
		return
	}
	if h.socket.AllChannelsClosed() {
		util.LogError("host socket channels closed")
		h.teardown()
		return
	}
	h.receiveSystem()
	h.receivePackets(q)
}

func (h *Host) updatePresence() bool {
	events, err := h.socket.UpdatePeers()
	if err != nil {
		util.LogError("host socket failed, shutting down: %v", err)
		h.teardown()
		return false
	}

	for _, ev := range events {
		switch ev.State {
		case socket.Connected:
			h.onPeerConnected(ev.Peer)
		case socket.Disconnected:
			if conn, ok := h.registry.Disconnect(ev.Peer); ok {
				util.LogDebug("client %s disconnected (peer %s)", conn.Handle, ev.Peer)
				h.removed(conn)
			}
		}
	}
	return true
}

func (h *Host) onPeerConnected(peer socket.PeerID) {
	conn, created := h.registry.Connect(peer)
	if !created {
		return
	}
	util.LogDebug("new client peer: %s, network id: %016x, handle: %s", peer, conn.NetworkID, conn.Handle)
	util.Stats.AddConn()
	h.events = append(h.events, ClientEvent{Connection: conn, Connected: true})

	if err := h.socket.Send(channel.SystemChannel, peer, protocol.EncodeControl(protocol.ConnectedToHost)); err != nil {
		util.LogWarning("failed to acknowledge client %s: %v", conn.Handle, err)
	}
}

func (h *Host) receiveSystem() {
	packets, err := h.socket.Receive(channel.SystemChannel)
	if err != nil {
		util.LogError("system channel not found: %v", err)
		return
	}

	for _, p := range packets {
		msg, err := protocol.DecodeControl(p.Data)
		if err != nil {
			util.LogError("failed to decode system message (%d bytes) from peer %s: %v", len(p.Data), p.Peer, err)
			continue
		}
		util.LogDebug("host received system message %s from peer %s", msg, p.Peer)

		switch msg {
		case protocol.ClientDisconnects:
			conn, ok := h.registry.Disconnect(p.Peer)
			if !ok {
				continue
			}
			util.LogDebug("client %s disconnected (peer %s)", conn.Handle, p.Peer)
			h.removed(conn)
		default:
			util.LogError("unexpected message %s received from client %s", msg, p.Peer)
		}
	}
}

func (h *Host) receivePackets(q ServerQueue) {
	for j := range h.layout.Client {
		index := h.layout.ClientToHostIndex(j)
		packets, err := h.socket.Receive(index)
		if err != nil {
			util.LogError("client channel %d (socket channel %d) not found: %v", j, index, err)
			continue
		}

		for _, p := range packets {
			conn, ok := h.registry.Lookup(p.Peer)
			if !ok {
				util.LogDebug("received packet from unknown client %s", p.Peer)
				continue
			}
			payload, err := protocol.Unframe(p.Data)
			if err != nil {
				util.LogDebug("dropping packet from client %s on channel %d: %v", conn.Handle, j, err)
				continue
			}
			util.Stats.AddRecv(len(p.Data))
			q.InsertReceived(conn.Handle, j, payload)
		}
	}
}

// ---------------------------------------------------------------------------
// Send half: outbound data → disconnect requests
// ---------------------------------------------------------------------------

// Send flushes q's outbound messages and processes disconnect requests.
func (h *Host) Send(q ServerQueue) {
	if h.socket == nil {
		return
	}

	for _, m := range q.DrainSent() {
		peer, ok := h.registry.LookupPeer(m.Client)
		if !ok {
			util.LogDebug("client %s was disconnected", m.Client)
			continue
		}
		if m.Channel < 0 || m.Channel >= len(h.layout.Server) {
			util.LogError("dropping message for client %s on unknown server channel %d", m.Client, m.Channel)
			continue
		}

		data := protocol.Frame(m.Message)
		if err := h.socket.Send(h.layout.HostToClientIndex(m.Channel), peer, data); err != nil {
			util.LogDebug("failed to send packet to client %s on channel %d: %v", m.Client, m.Channel, err)
			continue
		}
		util.Stats.AddSent(len(data))
	}

	h.processDisconnects()
}

func (h *Host) processDisconnects() {
	pending := h.pending
	h.pending = nil

	for _, handle := range pending {
		conn, ok := h.registry.Get(handle)
		if !ok {
			continue
		}
		// Best effort: the connection is removed whether or not this arrives.
		err := h.socket.Send(channel.SystemChannel, conn.Peer, protocol.EncodeControl(protocol.HostRequestsDisconnect))
		if err != nil && !errors.Is(err, socket.ErrUnknownPeer) {
			util.LogDebug("failed to notify client %s of disconnect: %v", handle, err)
		}
		h.registry.Disconnect(conn.Peer)
		util.LogDebug("disconnecting client %s", handle)
		h.removed(conn)
	}
}

// ---------------------------------------------------------------------------
// Teardown
// ---------------------------------------------------------------------------

func (h *Host) removed(conn Connection) {
	util.Stats.RemoveConn()
	h.events = append(h.events, ClientEvent{Connection: conn})
}

// teardown drops every connection and removes the socket.
func (h *Host) teardown() {
	for _, conn := range h.registry.Clear() {
		h.removed(conn)
	}
	h.pending = nil
	if err := h.socket.Close(); err != nil {
		util.LogDebug("closing host socket: %v", err)
	}
	h.socket = nil
	h.state = HostStopped
	util.LogDebug("host stopped")
}
