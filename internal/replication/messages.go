// Package replication provides the message queues shared between the session
// drivers and the replication framework. The framework fills the outbound
// side and consumes the inbound side; the drivers do the opposite once per
// tick. Payloads are opaque bytes.
//
// Queues are not safe for concurrent use: they belong to the tick loop.
package replication

import (
	"errors"
	"fmt"
)

var ErrUnknownChannel = errors.New("unknown channel")

// Sent is an outbound host message addressed to one client.
type Sent[C comparable] struct {
	Client  C
	Channel int
	Message []byte
}

// Received is an inbound host message tagged with its sender.
type Received[C comparable] struct {
	Client  C
	Channel int
	Message []byte
}

// ServerMessages is the host-side queue pair, keyed by connection handle.
type ServerMessages[C comparable] struct {
	serverChannels int
	clientChannels int
	received       []Received[C]
	sent           []Sent[C]
}

// NewServerMessages creates queues for the given numbers of host→client and
// client→host logical channels.
func NewServerMessages[C comparable](serverChannels, clientChannels int) *ServerMessages[C] {
	return &ServerMessages[C]{serverChannels: serverChannels, clientChannels: clientChannels}
}

// Send queues msg for client on host→client channel.
func (m *ServerMessages[C]) Send(client C, channel int, msg []byte) error {
	if channel < 0 || channel >= m.serverChannels {
		return fmt.Errorf("%w: server channel %d", ErrUnknownChannel, channel)
	}
	m.sent = append(m.sent, Sent[C]{Client: client, Channel: channel, Message: msg})
	return nil
}

// InsertReceived records a message received from client on client→host channel.
func (m *ServerMessages[C]) InsertReceived(client C, channel int, msg []byte) {
	m.received = append(m.received, Received[C]{Client: client, Channel: channel, Message: msg})
}

// DrainSent removes and returns every queued outbound message in send order.
func (m *ServerMessages[C]) DrainSent() []Sent[C] {
	out := m.sent
	m.sent = nil
	return out
}

// DrainReceived removes and returns every inbound message in arrival order.
func (m *ServerMessages[C]) DrainReceived() []Received[C] {
	out := m.received
	m.received = nil
	return out
}

// PendingSent returns the number of outbound messages not yet drained.
func (m *ServerMessages[C]) PendingSent() int { return len(m.sent) }

// Clear drops both queues, as the framework does when the server stops.
func (m *ServerMessages[C]) Clear() {
	m.sent = nil
	m.received = nil
}

// ClientSent is an outbound client message; the destination is always the host.
type ClientSent struct {
	Channel int
	Message []byte
}

// ClientReceived is an inbound client message from the host.
type ClientReceived struct {
	Channel int
	Message []byte
}

// ClientMessages is the client-side queue pair.
type ClientMessages struct {
	serverChannels int
	clientChannels int
	received       []ClientReceived
	sent           []ClientSent
}

// NewClientMessages creates queues for the given numbers of host→client and
// client→host logical channels.
func NewClientMessages(serverChannels, clientChannels int) *ClientMessages {
	return &ClientMessages{serverChannels: serverChannels, clientChannels: clientChannels}
}

// Send queues msg for the host on client→host channel.
func (m *ClientMessages) Send(channel int, msg []byte) error {
	if channel < 0 || channel >= m.clientChannels {
		return fmt.Errorf("%w: client channel %d", ErrUnknownChannel, channel)
	}
	m.sent = append(m.sent, ClientSent{Channel: channel, Message: msg})
	return nil
}

// InsertReceived records a message received from the host.
func (m *ClientMessages) InsertReceived(channel int, msg []byte) {
	m.received = append(m.received, ClientReceived{Channel: channel, Message: msg})
}

// DrainSent removes and returns every queued outbound message in send order.
func (m *ClientMessages) DrainSent() []ClientSent {
	out := m.sent
	m.sent = nil
	return out
}

// DrainReceived removes and returns every inbound message in arrival order.
func (m *ClientMessages) DrainReceived() []ClientReceived {
	out := m.received
	m.received = nil
	return out
}

// PendingSent returns the number of outbound messages not yet drained.
func (m *ClientMessages) PendingSent() int { return len(m.sent) }

// Clear drops both queues.
func (m *ClientMessages) Clear() {
	m.sent = nil
	m.received = nil
}
