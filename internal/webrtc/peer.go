// Package webrtc implements socket.Socket over pion WebRTC: one
// PeerConnection per remote peer, carrying one pre-negotiated DataChannel per
// underlying channel, with the signaling package relaying SDP and ICE.
package webrtc

import (
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/replink/internal/channel"
	"github.com/1ureka/replink/internal/socket"
)

// DefaultSTUNServers are used when no ICE servers are configured. No TURN:
// peers are expected to reach each other directly.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// newPeerConnection creates a PeerConnection configured with the given ICE
// servers, falling back to DefaultSTUNServers.
func newPeerConnection(iceServers []string) (*webrtc.PeerConnection, error) {
	if len(iceServers) == 0 {
		iceServers = DefaultSTUNServers
	}
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: iceServers},
		},
	}
	return webrtc.NewPeerConnection(config)
}

// dataChannelInit describes a pre-negotiated DataChannel for one underlying
// channel. The stream id is the channel index, so both sides create the same
// channels independently without relying on OnDataChannel.
func dataChannelInit(cfg channel.Config) *webrtc.DataChannelInit {
	ordered := cfg.Policy.IsOrdered()
	negotiated := true
	id := uint16(cfg.Index)

	init := &webrtc.DataChannelInit{
		Ordered:    &ordered,
		Negotiated: &negotiated,
		ID:         &id,
	}
	if !cfg.Policy.Reliable() {
		retransmits := uint16(0)
		init.MaxRetransmits = &retransmits
	}
	return init
}

// peer is the connection state for one remote peer. Fields other than id,
// pc and channels are guarded by Socket.mu.
type peer struct {
	id       socket.PeerID
	pc       *webrtc.PeerConnection
	channels []*dataChannel

	opened    int
	connected bool
	dropped   bool

	remoteSet bool
	pending   []webrtc.ICECandidateInit

	closeOnce sync.Once
}

// close tears the PeerConnection down once. It may run from pion callbacks, so
// the actual close happens on its own goroutine.
func (p *peer) close() {
	p.closeOnce.Do(func() {
		for _, c := range p.channels {
			c.stop()
		}
		go p.pc.Close()
	})
}

func encodeCandidate(c *webrtc.ICECandidate) (string, error) {
	data, err := json.Marshal(c.ToJSON())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeCandidate(s string) (webrtc.ICECandidateInit, error) {
	var init webrtc.ICECandidateInit
	err := json.Unmarshal([]byte(s), &init)
	return init, err
}
