package signaling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/1ureka/replink/internal/config"
	"github.com/1ureka/replink/internal/socket"
)

// ErrRejected is returned by Dial when the server refuses the join.
var ErrRejected = errors.New("signaling: join rejected")

// Client is one member's connection to a signaling room.
type Client struct {
	id     socket.PeerID
	conn   *websocket.Conn
	sender *sender

	events chan Event

	mu     sync.Mutex
	err    error
	closed bool
}

// Options describe how to join a room.
type Options struct {
	URL    string // ws:// or wss:// base URL of the signaling server
	Room   string
	Role   config.Role
	Layout string // channel layout fingerprint
	PIN    string
}

// JoinURL builds the WebSocket URL for the given options.
func JoinURL(opts Options) (string, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return "", fmt.Errorf("invalid signaling URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid signaling URL scheme %q", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + url.PathEscape(opts.Room)
	q := u.Query()
	q.Set(queryRole, string(opts.Role))
	q.Set(queryLayout, opts.Layout)
	if opts.PIN != "" {
		q.Set(queryPIN, opts.PIN)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial joins a room and waits for the server to assign an id.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Room == "" || !validRole(opts.Role) {
		return nil, fmt.Errorf("%w: room and role are required", ErrRejected)
	}
	target, err := JoinURL(opts)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, fmt.Errorf("%w: %s", ErrRejected, resp.Status)
		}
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	var msg message
	if err := conn.ReadJSON(&msg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read id assignment: %w", err)
	}
	conn.SetReadDeadline(noDeadline)

	if msg.Type != msgTypeIDAssigned {
		conn.Close()
		return nil, fmt.Errorf("unexpected first message %q", msg.Type)
	}
	id, err := socket.ParsePeerID(msg.Peer)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("invalid assigned id: %w", err)
	}

	c := &Client{
		id:     id,
		conn:   conn,
		sender: &sender{conn: conn},
		events: make(chan Event, 64),
	}
	r := &receiver{conn: conn, events: c.events}
	go func() {
		c.fail(r.watch())
		close(c.events)
	}()
	return c, nil
}

// ID returns the id the server assigned to this member.
func (c *Client) ID() socket.PeerID { return c.id }

// Events delivers server notifications. It is closed when the connection ends;
// Err then reports why.
func (c *Client) Events() <-chan Event { return c.events }

// Err returns the error that ended the connection, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// SendSignal relays an SDP description or ICE candidate to peer.
func (c *Client) SendSignal(peer socket.PeerID, sig Signal) error {
	return c.sender.send(message{
		Type:      msgTypeSignal,
		Peer:      peer.String(),
		Kind:      sig.Kind,
		SDP:       sig.SDP,
		Candidate: sig.Candidate,
	})
}

// Close leaves the room.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.sender.close(websocket.CloseNormalClosure, "")
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil && !c.closed {
		c.err = err
	}
}
