package signaling

import (
	"sync"

	"github.com/gorilla/websocket"
)

// sender serializes outgoing signaling messages to one WebSocket.
type sender struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// send writes a signaling message to the WebSocket, guarded by a mutex.
func (s *sender) send(msg message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(msg)
}

// close sends a close frame with the given code and reason, then closes.
func (s *sender) close(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	return s.conn.Close()
}
