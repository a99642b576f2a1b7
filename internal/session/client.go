package session

import (
	"github.com/1ureka/replink/internal/channel"
	"github.com/1ureka/replink/internal/protocol"
	"github.com/1ureka/replink/internal/replication"
	"github.com/1ureka/replink/internal/socket"
	"github.com/1ureka/replink/internal/util"
)

// ClientQueue is the replication framework's client-side queue pair.
type ClientQueue interface {
	InsertReceived(channel int, msg []byte)
	DrainSent() []replication.ClientSent
}

var _ ClientQueue = (*replication.ClientMessages)(nil)

// Client is the session driver of a peer connecting to a host. Its only
// remote peer of interest is the host, learned from ConnectedToHost.
type Client struct {
	socket           socket.Socket
	layout           channel.Layout
	host             socket.PeerID
	hasHost          bool
	shouldDisconnect bool
	state            ClientState
}

// NewClient creates a client driver over sock in the Connecting state.
func NewClient(sock socket.Socket, layout channel.Layout) *Client {
	return &Client{
		socket: sock,
		layout: layout,
		state:  ClientConnecting,
	}
}

// State returns the current client state.
func (c *Client) State() ClientState { return c.state }

// IsConnected reports whether the host has acknowledged this client.
func (c *Client) IsConnected() bool { return c.hasHost }

// HostPeer returns the host's peer id once known.
func (c *Client) HostPeer() (socket.PeerID, bool) { return c.host, c.hasHost }

// Disconnect leaves the session voluntarily: the host is told with
// ClientDisconnects and the socket is closed at the end of the next Send.
func (c *Client) Disconnect() {
	if c.socket == nil || !c.hasHost {
		return
	}
	c.notifyHost()
	c.shouldDisconnect = true
}

// Close removes the socket immediately. A connected client still tells the
// host it is leaving, best effort.
func (c *Client) Close() {
	if c.socket == nil {
		return
	}
	if c.hasHost {
		c.notifyHost()
	}
	c.remove()
}

// Update runs a whole tick with no framework processing in between.
func (c *Client) Update(q ClientQueue) {
	c.Receive(q)
	c.Send(q)
}

func (c *Client) notifyHost() {
	util.LogDebug("sending disconnect message to host")
	if err := c.socket.Send(channel.SystemChannel, c.host, protocol.EncodeControl(protocol.ClientDisconnects)); err != nil {
		util.LogDebug("failed to notify host of disconnect: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Receive half: peer state → system channel → inbound data
// ---------------------------------------------------------------------------

// Receive polls peer state, handles control messages and moves inbound data
// packets into q.
func (c *Client) Receive(q ClientQueue) {
	if c.socket == nil {
		return
	}
	if !c.updatePeers() {
		return
	}
	if c.socket.AllChannelsClosed() {
		util.LogError("client socket channels closed")
		c.remove()
		return
	}
	c.receiveSystem()
	c.receivePackets(q)
}

func (c *Client) updatePeers() bool {
	events, err := c.socket.UpdatePeers()
	if err != nil {
		util.LogError("client socket failed: %v", err)
		c.remove()
		return false
	}
	if !c.hasHost {
		return true
	}

	for _, ev := range events {
		if ev.State != socket.Disconnected || ev.Peer != c.host {
			continue
		}
		util.LogInfo("host %s disconnected", ev.Peer)
		c.remove()
		return false
	}
	return true
}

func (c *Client) receiveSystem() {
	packets, err := c.socket.Receive(channel.SystemChannel)
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
		util.LogDebug("client received system message %s from peer %s", msg, p.Peer)

		switch msg {
		case protocol.ConnectedToHost:
			if c.hasHost {
				continue
			}
			c.host = p.Peer
			c.hasHost = true
			c.state = ClientConnected
			util.Stats.AddConn()
			util.LogInfo("connected to host %s", p.Peer)

		case protocol.HostRequestsDisconnect:
			if !c.hasHost || p.Peer != c.host {
				util.LogError("disconnect request from %s, which is not the host", p.Peer)
				continue
			}
			util.LogInfo("disconnected by host")
			c.shouldDisconnect = true

		case protocol.ClientDisconnects:
			util.LogError("unexpected message %s received from %s", msg, p.Peer)
		}
	}
}

func (c *Client) receivePackets(q ClientQueue) {
	for i := range c.layout.Server {
		index := c.layout.HostToClientIndex(i)
		packets, err := c.socket.Receive(index)
		if err != nil {
			util.LogError("server channel %d (socket channel %d) not found: %v", i, index, err)
			continue
		}

		for _, p := range packets {
			payload, err := protocol.Unframe(p.Data)
			if err != nil {
				util.LogDebug("dropping packet from %s on channel %d: %v", p.Peer, i, err)
				continue
			}
			util.LogDebug("client received packet from peer %s, c:%d size %d", p.Peer, i, len(p.Data))
			util.Stats.AddRecv(len(p.Data))
			q.InsertReceived(i, payload)
		}
	}
}

// ---------------------------------------------------------------------------
// Send half: outbound data → disconnect flag
// ---------------------------------------------------------------------------

// Send flushes q to the host once connected and completes a pending
// disconnect. Before the host is known q is left untouched so messages stay
// buffered in the framework.
func (c *Client) Send(q ClientQueue) {
	if c.socket == nil || !c.hasHost {
		return
	}
	if c.socket.AnyChannelClosed() {
		util.LogDebug("client socket channels closed, holding outbound messages")
	} else {
		c.flush(q)
	}

	if c.shouldDisconnect {
		c.shouldDisconnect = false
		c.remove()
	}
}

func (c *Client) flush(q ClientQueue) {
	for _, m := range q.DrainSent() {
		if m.Channel < 0 || m.Channel >= len(c.layout.Client) {
			util.LogError("dropping message on unknown client channel %d", m.Channel)
			continue
		}
		data := protocol.Frame(m.Message)
		if err := c.socket.Send(c.layout.ClientToHostIndex(m.Channel), c.host, data); err != nil {
			util.LogDebug("failed to send packet to host on channel %d: %v", m.Channel, err)
			continue
		}
		util.Stats.AddSent(len(data))
	}
}

// remove closes and drops the socket; the client is Disconnected for good.
func (c *Client) remove() {
	if err := c.socket.Close(); err != nil {
		util.LogDebug("closing client socket: %v", err)
	}
	if c.hasHost {
		util.Stats.RemoveConn()
	}
	c.socket = nil
	c.host = socket.PeerID{}
	c.hasHost = false
	c.shouldDisconnect = false
	c.state = ClientDisconnected
}
