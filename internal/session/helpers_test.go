package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/1ureka/replink/internal/channel"
	"github.com/1ureka/replink/internal/replication"
	"github.com/1ureka/replink/internal/socket"
)

// testLayout has 2 host→client and 3 client→host channels.
func testLayout() channel.Layout {
	return channel.NewLayout(
		[]channel.Policy{channel.Ordered, channel.Unordered},
		[]channel.Policy{channel.Ordered, channel.Ordered, channel.Unreliable},
	)
}

type sentPacket struct {
	channel int
	peer    socket.PeerID
	data    []byte
}

// fakeSocket is a scripted Socket: tests queue peer events and inbound
// packets, and inspect everything the driver sent.
type fakeSocket struct {
	events    []socket.PeerEvent
	inbox     map[int][]socket.Packet
	sent      []sentPacket
	fail      bool
	closed    bool
	anyClosed bool
	allClosed bool
}

var _ socket.Socket = (*fakeSocket)(nil)

func newFakeSocket() *fakeSocket {
	return &fakeSocket{inbox: make(map[int][]socket.Packet)}
}

func (f *fakeSocket) report(peer socket.PeerID, state socket.PeerState) {
	f.events = append(f.events, socket.PeerEvent{Peer: peer, State: state})
}

func (f *fakeSocket) push(ch int, peer socket.PeerID, data []byte) {
	f.inbox[ch] = append(f.inbox[ch], socket.Packet{Peer: peer, Data: data})
}

func (f *fakeSocket) sentOn(ch int) []sentPacket {
	var out []sentPacket
	for _, s := range f.sent {
		if s.channel == ch {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeSocket) UpdatePeers() ([]socket.PeerEvent, error) {
	if f.closed || f.fail {
		return nil, socket.ErrClosed
	}
	out := f.events
	f.events = nil
	return out, nil
}

func (f *fakeSocket) Send(ch int, peer socket.PeerID, data []byte) error {
	if f.closed {
		return socket.ErrClosed
	}
	f.sent = append(f.sent, sentPacket{channel: ch, peer: peer, data: data})
	return nil
}

func (f *fakeSocket) Receive(ch int) ([]socket.Packet, error) {
	out := f.inbox[ch]
	delete(f.inbox, ch)
	return out, nil
}

func (f *fakeSocket) Close() error {
	f.closed = true
	return nil
}

func (f *fakeSocket) AllChannelsClosed() bool { return f.closed || f.allClosed }
func (f *fakeSocket) AnyChannelClosed() bool  { return f.closed || f.anyClosed }

// harness wires a host and any number of clients over an in-memory network.
type harness struct {
	t        *testing.T
	layout   channel.Layout
	net      *socket.Network
	hostSock *socket.MemSocket
	host     *Host
	hostQ    *replication.ServerMessages[Handle]
}

type testClient struct {
	sock   *socket.MemSocket
	client *Client
	q      *replication.ClientMessages
}

func newHarness(t *testing.T) *harness {
	l := testLayout()
	n := socket.NewNetwork()
	hs := n.NewSocket(l.Count())
	return &harness{
		t:        t,
		layout:   l,
		net:      n,
		hostSock: hs,
		host:     NewHost(hs, l),
		hostQ:    replication.NewServerMessages[Handle](len(l.Server), len(l.Client)),
	}
}

// join links a new client to the host without ticking anyone.
func (h *harness) join() *testClient {
	cs := h.net.NewSocket(h.layout.Count())
	require.NoError(h.t, h.net.Connect(h.hostSock, cs))
	return &testClient{
		sock:   cs,
		client: NewClient(cs, h.layout),
		q:      replication.NewClientMessages(len(h.layout.Server), len(h.layout.Client)),
	}
}

// connect joins a client and ticks until it is acknowledged.
func (h *harness) connect() *testClient {
	c := h.join()
	h.host.Update(h.hostQ)
	c.client.Update(c.q)
	require.True(h.t, c.client.IsConnected())
	return c
}

func (h *harness) handleOf(c *testClient) Handle {
	for _, conn := range h.host.Connections() {
		if conn.Peer == c.sock.ID() {
			return conn.Handle
		}
	}
	h.t.Fatalf("client %s not registered", c.sock.ID())
	return Handle{}
}
