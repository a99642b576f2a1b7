package socket

import (
	"fmt"
	"sync"
)

// Network is an in-process fabric connecting MemSockets. Delivery is
// immediate and lossless, so it behaves like a perfectly reliable, ordered
// socket and makes session behaviour deterministic in tests.
type Network struct {
	mu      sync.Mutex
	sockets map[PeerID]*MemSocket
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{sockets: make(map[PeerID]*MemSocket)}
}

// MemSocket is a Socket attached to a Network.
type MemSocket struct {
	id  PeerID
	net *Network

	// Guarded by net.mu.
	events         []PeerEvent
	inbox          [][]Packet
	links          map[PeerID]bool
	closedChannels []bool
	closed         bool
	failed         bool
}

var _ Socket = (*MemSocket)(nil)

// NewSocket attaches a new socket with the given number of underlying
// channels to the network.
func (n *Network) NewSocket(channels int) *MemSocket {
	n.mu.Lock()
	defer n.mu.Unlock()

	s := &MemSocket{
		id:             NewPeerID(),
		net:            n,
		inbox:          make([][]Packet, channels),
		links:          make(map[PeerID]bool),
		closedChannels: make([]bool, channels),
	}
	n.sockets[s.id] = s
	return s
}

// Connect links two sockets; each observes the other as Connected on its
// next UpdatePeers.
func (n *Network) Connect(a, b *MemSocket) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if a.closed || b.closed {
		return ErrClosed
	}
	if a.links[b.id] {
		return nil
	}
	a.links[b.id] = true
	b.links[a.id] = true
	a.events = append(a.events, PeerEvent{Peer: b.id, State: Connected})
	b.events = append(b.events, PeerEvent{Peer: a.id, State: Connected})
	return nil
}

// Disconnect severs the link between two sockets without any goodbye, the
// way a lost peer looks to a real socket.
func (n *Network) Disconnect(a, b *MemSocket) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unlinkLocked(a, b)
}

func (n *Network) unlinkLocked(a, b *MemSocket) {
	if !a.links[b.id] {
		return
	}
	delete(a.links, b.id)
	delete(b.links, a.id)
	if !a.closed {
		a.events = append(a.events, PeerEvent{Peer: b.id, State: Disconnected})
	}
	if !b.closed {
		b.events = append(b.events, PeerEvent{Peer: a.id, State: Disconnected})
	}
}

// ID returns the id other sockets see for s.
func (s *MemSocket) ID() PeerID { return s.id }

// UpdatePeers implements Socket.
func (s *MemSocket) UpdatePeers() ([]PeerEvent, error) {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()

	if s.closed || s.failed {
		return nil, ErrClosed
	}
	events := s.events
	s.events = nil
	return events, nil
}

// Send implements Socket. The payload is copied.
func (s *MemSocket) Send(channel int, peer PeerID, data []byte) error {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if channel < 0 || channel >= len(s.inbox) {
		return fmt.Errorf("%w: %d", ErrChannelNotFound, channel)
	}
	if s.closedChannels[channel] {
		return fmt.Errorf("%w: channel %d", ErrClosed, channel)
	}
	if !s.links[peer] {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}

	dst := s.net.sockets[peer]
	if dst == nil || dst.closed || channel >= len(dst.inbox) {
		return nil
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	dst.inbox[channel] = append(dst.inbox[channel], Packet{Peer: s.id, Data: buf})
	return nil
}

// Receive implements Socket.
func (s *MemSocket) Receive(channel int) ([]Packet, error) {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()

	if channel < 0 || channel >= len(s.inbox) {
		return nil, fmt.Errorf("%w: %d", ErrChannelNotFound, channel)
	}
	packets := s.inbox[channel]
	s.inbox[channel] = nil
	return packets, nil
}

// Close implements Socket. Linked peers observe s as Disconnected.
func (s *MemSocket) Close() error {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()

	if s.closed {
		return nil
	}
	for id := range s.links {
		if peer := s.net.sockets[id]; peer != nil {
			s.net.unlinkLocked(s, peer)
		}
	}
	s.closed = true
	for i := range s.closedChannels {
		s.closedChannels[i] = true
	}
	s.events = nil
	delete(s.net.sockets, s.id)
	return nil
}

// Fail makes every later UpdatePeers return ErrClosed while leaving the
// channels untouched, the way a socket whose signaling loop died behaves.
func (s *MemSocket) Fail() {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	s.failed = true
}

// CloseChannel marks a single underlying channel closed.
func (s *MemSocket) CloseChannel(channel int) {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	if channel >= 0 && channel < len(s.closedChannels) {
		s.closedChannels[channel] = true
	}
}

// Inject places a raw datagram from peer in the socket's inbox, bypassing
// framing. Used to emulate transport-level datagrams such as empty probes.
func (s *MemSocket) Inject(channel int, peer PeerID, data []byte) {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	if channel >= 0 && channel < len(s.inbox) {
		s.inbox[channel] = append(s.inbox[channel], Packet{Peer: peer, Data: data})
	}
}

// Peers returns the number of sockets currently linked to s.
func (s *MemSocket) Peers() int {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	return len(s.links)
}

// AllChannelsClosed implements Socket.
func (s *MemSocket) AllChannelsClosed() bool {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	for _, c := range s.closedChannels {
		if !c {
			return false
		}
	}
	return true
}

// AnyChannelClosed implements Socket.
func (s *MemSocket) AnyChannelClosed() bool {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	for _, c := range s.closedChannels {
		if c {
			return true
		}
	}
	return false
}
