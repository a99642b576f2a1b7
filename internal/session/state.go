package session

// HostState is the lifecycle of a host session.
type HostState uint8

const (
	HostStopped HostState = iota
	HostRunning
)

func (s HostState) String() string {
	if s == HostRunning {
		return "running"
	}
	return "stopped"
}

// ClientState is the lifecycle of a client session.
type ClientState uint8

const (
	ClientConnecting ClientState = iota
	ClientConnected
	ClientDisconnected
)

func (s ClientState) String() string {
	switch s {
	case ClientConnecting:
		return "connecting"
	case ClientConnected:
		return "connected"
	default:
		return "disconnected"
	}
}
