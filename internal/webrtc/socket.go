package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/replink/internal/channel"
	"github.com/1ureka/replink/internal/config"
	"github.com/1ureka/replink/internal/signaling"
	"github.com/1ureka/replink/internal/socket"
	"github.com/1ureka/replink/internal/util"
)

// closeFlushTimeout bounds how long Close waits for queued datagrams, such as
// a final control message, to leave.
const closeFlushTimeout = 250 * time.Millisecond

// Options configure Open.
type Options struct {
	SignalingURL string
	Room         string
	PIN          string
	Role         config.Role
	Layout       channel.Layout
	ICEServers   []string
}

// Socket is a socket.Socket backed by WebRTC DataChannels.
//
// The host offers a PeerConnection to every client the signaling server
// announces; clients answer. A peer is reported Connected once every one of
// its DataChannels is open, and Disconnected when any of them closes, its
// PeerConnection fails, or the signaling server reports it gone. Losing the
// signaling connection itself is fatal: UpdatePeers returns socket.ErrClosed.
type Socket struct {
	id         socket.PeerID
	role       config.Role
	sig        *signaling.Client
	channels   []channel.Config
	iceServers []string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	peers  map[socket.PeerID]*peer
	events []socket.PeerEvent
	inbox  [][]socket.Packet
	failed bool
	closed bool
}

var _ socket.Socket = (*Socket)(nil)

// Open joins the signaling room and starts negotiating with the peers it
// announces. It returns once the server has assigned an id.
func Open(ctx context.Context, opts Options) (*Socket, error) {
	if err := opts.Layout.Validate(); err != nil {
		return nil, err
	}

	sig, err := signaling.Dial(ctx, signaling.Options{
		URL:    opts.SignalingURL,
		Room:   opts.Room,
		Role:   opts.Role,
		Layout: opts.Layout.Fingerprint(),
		PIN:    opts.PIN,
	})
	if err != nil {
		return nil, err
	}

	channels := opts.Layout.SocketChannels()
	sCtx, cancel := context.WithCancel(context.Background())
	s := &Socket{
		id:         sig.ID(),
		role:       opts.Role,
		sig:        sig,
		channels:   channels,
		iceServers: opts.ICEServers,
		ctx:        sCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
		peers:      make(map[socket.PeerID]*peer),
		inbox:      make([][]socket.Packet, len(channels)),
	}

	go s.loop()

	return s, nil
}

// ID returns the id other peers know this socket by.
func (s *Socket) ID() socket.PeerID { return s.id }

// loop handles signaling events until the signaling connection ends.
func (s *Socket) loop() {
	defer close(s.done)

	for ev := range s.sig.Events() {
		var err error
		switch ev.Type {
		case signaling.EventPeerJoined:
			err = s.offer(ev.Peer)
		case signaling.EventPeerLeft:
			s.drop(ev.Peer)
		case signaling.EventSignal:
			err = s.handleSignal(ev.Peer, ev.Signal)
		}
		if err != nil {
			util.LogError("negotiation with %s failed: %v", ev.Peer, err)
			s.drop(ev.Peer)
		}
	}

	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.failed = true
	}
	s.mu.Unlock()

	if !closed {
		util.LogError("signaling connection lost: %v", s.sig.Err())
	}
}

// offer starts negotiation with a newly announced client.
func (s *Socket) offer(id socket.PeerID) error {
	p, err := s.newPeer(id)
	if err != nil {
		return err
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}
	return s.sig.SendSignal(id, signaling.Signal{Kind: signaling.SignalOffer, SDP: offer.SDP})
}

func (s *Socket) handleSignal(from socket.PeerID, sig signaling.Signal) error {
	switch sig.Kind {
	case signaling.SignalOffer:
		if s.role != config.RoleClient {
			return errors.New("unexpected offer")
		}
		p, err := s.newPeer(from)
		if err != nil {
			return err
		}
		if err := s.setRemote(p, webrtc.SDPTypeOffer, sig.SDP); err != nil {
			return err
		}
		answer, err := p.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("failed to create answer: %w", err)
		}
		if err := p.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("failed to set local description: %w", err)
		}
		return s.sig.SendSignal(from, signaling.Signal{Kind: signaling.SignalAnswer, SDP: answer.SDP})

	case signaling.SignalAnswer:
		p := s.lookup(from)
		if p == nil {
			return nil
		}
		return s.setRemote(p, webrtc.SDPTypeAnswer, sig.SDP)

	case signaling.SignalCandidate:
		p := s.lookup(from)
		if p == nil {
			return nil
		}
		init, err := decodeCandidate(sig.Candidate)
		if err != nil {
			return fmt.Errorf("failed to parse ICE candidate: %w", err)
		}

		s.mu.Lock()
		if !p.remoteSet {
			p.pending = append(p.pending, init)
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
		return p.pc.AddICECandidate(init)
	}

	return fmt.Errorf("unknown signal kind %q", sig.Kind)
}

// setRemote applies the remote description, then the candidates that arrived
// before it.
func (s *Socket) setRemote(p *peer, typ webrtc.SDPType, sdp string) error {
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: sdp}); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	s.mu.Lock()
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	s.mu.Unlock()

	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			return err
		}
	}
	return nil
}

// newPeer creates the PeerConnection and DataChannels for id, replacing any
// previous connection to it.
func (s *Socket) newPeer(id socket.PeerID) (*peer, error) {
	s.drop(id)

	pc, err := newPeerConnection(s.iceServers)
	if err != nil {
		return nil, fmt.Errorf("failed to create PeerConnection: %w", err)
	}
	p := &peer{id: id, pc: pc}

	for _, cfg := range s.channels {
		index := cfg.Index
		dc, err := newDataChannel(s.ctx, pc, cfg,
			func() { s.onOpen(p) },
			func(data []byte) { s.onMessage(p, index, data) },
			func() { s.dropPeer(p) },
		)
		if err != nil {
			p.close()
			return nil, fmt.Errorf("failed to create DataChannel %d: %w", index, err)
		}
		p.channels = append(p.channels, dc)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		candidate, err := encodeCandidate(c)
		if err != nil {
			util.LogError("failed to encode ICE candidate: %v", err)
			return
		}
		if err := s.sig.SendSignal(id, signaling.Signal{Kind: signaling.SignalCandidate, Candidate: candidate}); err != nil {
			util.LogDebug("failed to send ICE candidate to %s: %v", id, err)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection %s state: %s", id, state.String())
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			s.dropPeer(p)
		}
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		p.close()
		return nil, socket.ErrClosed
	}
	s.peers[id] = p
	return p, nil
}

func (s *Socket) lookup(id socket.PeerID) *peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers[id]
}

func (s *Socket) onOpen(p *peer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.dropped {
		return
	}
	p.opened++
	if p.opened == len(p.channels) && !p.connected {
		p.connected = true
		s.events = append(s.events, socket.PeerEvent{Peer: p.id, State: socket.Connected})
		util.LogDebug("peer %s connected", p.id)
	}
}

func (s *Socket) onMessage(p *peer, index int, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || p.dropped {
		return
	}
	s.inbox[index] = append(s.inbox[index], socket.Packet{Peer: p.id, Data: data})
}

// drop forgets whatever connection currently exists to id.
func (s *Socket) drop(id socket.PeerID) {
	if p := s.lookup(id); p != nil {
		s.dropPeer(p)
	}
}

// dropPeer forgets p and reports it Disconnected if it had been reported
// Connected. Later calls for the same peer are no-ops.
func (s *Socket) dropPeer(p *peer) {
	s.mu.Lock()
	if p.dropped {
		s.mu.Unlock()
		return
	}
	p.dropped = true
	if s.peers[p.id] == p {
		delete(s.peers, p.id)
	}
	if p.connected && !s.closed {
		s.events = append(s.events, socket.PeerEvent{Peer: p.id, State: socket.Disconnected})
		util.LogDebug("peer %s disconnected", p.id)
	}
	s.mu.Unlock()

	p.close()
}

// UpdatePeers implements socket.Socket.
func (s *Socket) UpdatePeers() ([]socket.PeerEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.failed {
		return nil, socket.ErrClosed
	}
	events := s.events
	s.events = nil
	return events, nil
}

// Send implements socket.Socket.
func (s *Socket) Send(index int, id socket.PeerID, data []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return socket.ErrClosed
	}
	if index < 0 || index >= len(s.channels) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", socket.ErrChannelNotFound, index)
	}
	p := s.peers[id]
	if p == nil || !p.connected {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", socket.ErrUnknownPeer, id)
	}
	s.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	if err := p.channels[index].enqueue(buf); err != nil {
		return fmt.Errorf("channel %d to %s: %w", index, id, err)
	}
	return nil
}

// Receive implements socket.Socket.
func (s *Socket) Receive(index int) ([]socket.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.inbox) {
		return nil, fmt.Errorf("%w: %d", socket.ErrChannelNotFound, index)
	}
	packets := s.inbox[index]
	s.inbox[index] = nil
	return packets, nil
}

// AllChannelsClosed implements socket.Socket. Channels are shared by every
// peer, so they close together when the socket shuts down or fails.
func (s *Socket) AllChannelsClosed() bool { return s.down() }

// AnyChannelClosed implements socket.Socket.
func (s *Socket) AnyChannelClosed() bool { return s.down() }

func (s *Socket) down() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed || s.failed
}

// Close implements socket.Socket. It leaves the signaling room and closes
// every PeerConnection.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		p.dropped = true
		peers = append(peers, p)
	}
	s.peers = make(map[socket.PeerID]*peer)
	s.events = nil
	s.mu.Unlock()

	deadline := time.Now().Add(closeFlushTimeout)
	for _, p := range peers {
		for _, c := range p.channels {
			c.flush(time.Until(deadline))
		}
	}

	s.cancel()
	for _, p := range peers {
		p.close()
	}

	err := s.sig.Close()
	<-s.done
	return err
}
