package signaling

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/replink/internal/socket"
	"github.com/1ureka/replink/internal/util"
)

var noDeadline time.Time

// receiver turns server messages into Events until the connection ends.
type receiver struct {
	conn   *websocket.Conn
	events chan<- Event
}

// watch blocks until the connection fails. A normal close returns nil.
func (r *receiver) watch() error {
	for {
		var msg message
		if err := r.conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("failed to read WS message: %w", err)
		}

		peer, err := socket.ParsePeerID(msg.Peer)
		if err != nil {
			util.LogDebug("signaling: dropping %q with bad peer %q", msg.Type, msg.Peer)
			continue
		}

		switch msg.Type {
		case msgTypePeerJoined:
			r.events <- Event{Type: EventPeerJoined, Peer: peer}
		case msgTypePeerLeft:
			r.events <- Event{Type: EventPeerLeft, Peer: peer}
		case msgTypeSignal:
			r.events <- Event{Type: EventSignal, Peer: peer, Signal: Signal{
				Kind:      msg.Kind,
				SDP:       msg.SDP,
				Candidate: msg.Candidate,
			}}
		default:
			util.LogDebug("signaling: ignoring %q", msg.Type)
		}
	}
}
