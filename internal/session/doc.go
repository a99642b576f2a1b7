// Package session drives the host and client roles of a replication session
// over a multi-channel peer-to-peer socket.
//
// Each driver is invoked by the caller's tick loop: Receive once before the
// replication framework processes a frame, Send once after. Within a tick the
// order is fixed: peer state, system channel, inbound data, outbound data,
// then disconnect handling. Nothing here blocks or spawns goroutines, and no
// failure is returned to the caller; a failing socket shows up only as a state
// transition (Stopped / Disconnected) and a log line.
package session
