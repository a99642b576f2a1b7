package signaling

// messageType identifies the kind of signaling message.
type messageType string

const (
	msgTypeIDAssigned messageType = "id_assigned" // server → member
	msgTypePeerJoined messageType = "peer_joined" // server → host
	msgTypePeerLeft   messageType = "peer_left"   // server → member
	msgTypeSignal     messageType = "signal"      // member → server → member
)

// message is the JSON structure exchanged over the WebSocket during signaling.
// For signals sent by a member Peer is the destination; for signals relayed by
// the server it is the source.
type message struct {
	Type      messageType `json:"type"`
	Peer      string      `json:"peer,omitempty"`
	Kind      SignalKind  `json:"kind,omitempty"`
	SDP       string      `json:"sdp,omitempty"`
	Candidate string      `json:"candidate,omitempty"` // JSON-encoded ICECandidateInit
}
