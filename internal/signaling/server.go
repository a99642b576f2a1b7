package signaling

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/1ureka/replink/internal/config"
	"github.com/1ureka/replink/internal/socket"
	"github.com/1ureka/replink/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the WebSocket signaling server. It holds any number of rooms.
type Server struct {
	pin string

	mu    sync.Mutex
	rooms map[string]*room

	listener net.Listener
	http     *http.Server
}

type room struct {
	name    string
	layout  string
	host    *member
	clients map[socket.PeerID]*member
}

type member struct {
	id     socket.PeerID
	role   config.Role
	sender *sender
}

// NewServer creates a signaling server. When pin is non-empty every join must
// present it.
func NewServer(pin string) *Server {
	return &Server{
		pin:   pin,
		rooms: make(map[string]*room),
	}
}

// Handler returns the HTTP handler serving rooms at /{room}.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	return mux
}

// Start begins listening on addr (":0" picks a random port) and returns the
// bound address.
func (s *Server) Start(addr string) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start signaling server: %w", err)
	}
	s.listener = listener
	s.http = &http.Server{Handler: s.Handler()}

	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("signaling server stopped: %v", err)
		}
	}()

	return listener.Addr().String(), nil
}

// Shutdown stops accepting joins and closes every member connection.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rooms {
		for _, m := range r.members() {
			m.sender.close(websocket.CloseGoingAway, "server shutting down")
		}
	}
	return err
}

// Rooms returns the number of open rooms.
func (s *Server) Rooms() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(r.URL.Path, "/")
	q := r.URL.Query()
	role := config.Role(q.Get(queryRole))
	layout := q.Get(queryLayout)

	if s.pin != "" && q.Get(queryPIN) != s.pin {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}
	if name == "" || !validRole(role) {
		http.Error(w, "room and role are required", http.StatusBadRequest)
		return
	}
	if status, reason := s.admit(name, role, layout); status != http.StatusOK {
		http.Error(w, reason, status)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	m := &member{id: socket.NewPeerID(), role: role, sender: &sender{conn: conn}}
	if err := m.sender.send(message{Type: msgTypeIDAssigned, Peer: m.id.String()}); err != nil {
		conn.Close()
		return
	}
	if reason := s.join(name, layout, m); reason != "" {
		m.sender.close(websocket.ClosePolicyViolation, reason)
		return
	}
	util.LogDebug("signaling: %s %s joined room %q", role, m.id, name)

	s.relay(name, m)

	s.leave(name, m)
	conn.Close()
	util.LogDebug("signaling: %s %s left room %q", role, m.id, name)
}

// admit checks a join before the upgrade so rejections are plain HTTP errors.
func (s *Server) admit(name string, role config.Role, layout string) (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[name]
	if !ok {
		return http.StatusOK, ""
	}
	if r.layout != layout {
		return http.StatusConflict, "channel layout mismatch"
	}
	if role == config.RoleHost && r.host != nil {
		return http.StatusConflict, "room already has a host"
	}
	return http.StatusOK, ""
}

// join registers m and announces it. Admission is checked again under the
// lock, since another member may have created the room or taken the host seat
// after admit. A non-empty result is the rejection reason.
func (s *Server) join(name, layout string, m *member) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[name]
	if !ok {
		r = &room{name: name, layout: layout, clients: make(map[socket.PeerID]*member)}
		s.rooms[name] = r
	}
	if r.layout != layout {
		return "channel layout mismatch"
	}

	if m.role == config.RoleHost {
		if r.host != nil {
			return "room already has a host"
		}
		r.host = m
		for id := range r.clients {
			m.sender.send(message{Type: msgTypePeerJoined, Peer: id.String()})
		}
		return ""
	}

	r.clients[m.id] = m
	if r.host != nil {
		r.host.sender.send(message{Type: msgTypePeerJoined, Peer: m.id.String()})
	}
	return ""
}

// leave removes m and tells the peers that could see it.
func (s *Server) leave(name string, m *member) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[name]
	if !ok {
		return
	}

	left := message{Type: msgTypePeerLeft, Peer: m.id.String()}
	if r.host == m {
		r.host = nil
		for _, c := range r.clients {
			c.sender.send(left)
		}
	} else if _, ok := r.clients[m.id]; ok {
		delete(r.clients, m.id)
		if r.host != nil {
			r.host.sender.send(left)
		}
	}

	if r.host == nil && len(r.clients) == 0 {
		delete(s.rooms, name)
	}
}

// relay forwards signals from m until its connection fails.
func (s *Server) relay(name string, m *member) {
	for {
		var msg message
		if err := m.sender.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != msgTypeSignal {
			util.LogDebug("signaling: ignoring %q from %s", msg.Type, m.id)
			continue
		}

		to, err := socket.ParsePeerID(msg.Peer)
		if err != nil {
			util.LogDebug("signaling: bad destination %q from %s", msg.Peer, m.id)
			continue
		}

		target := s.lookup(name, m, to)
		if target == nil {
			util.LogDebug("signaling: %s cannot reach %s", m.id, to)
			continue
		}
		msg.Peer = m.id.String()
		if err := target.sender.send(msg); err != nil {
			util.LogDebug("signaling: relay to %s failed: %v", to, err)
		}
	}
}

// lookup resolves a signal destination visible to from: clients may only
// reach the host, the host may reach any client.
func (s *Server) lookup(name string, from *member, to socket.PeerID) *member {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[name]
	if !ok {
		return nil
	}
	if from.role == config.RoleClient {
		if r.host != nil && r.host.id == to {
			return r.host
		}
		return nil
	}
	return r.clients[to]
}

func (r *room) members() []*member {
	out := make([]*member, 0, len(r.clients)+1)
	if r.host != nil {
		out = append(out, r.host)
	}
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// GeneratePIN returns a random numeric PIN of the specified length.
func GeneratePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}
