// Package config holds the session configuration: role, signaling endpoint,
// tick rate and the channel layout both roles must share.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/1ureka/replink/internal/channel"
)

// Role represents the process role for the lifetime of a session.
type Role string

const (
	RoleHost   Role = "host"
	RoleClient Role = "client"
)

// Defaults applied when a value is missing.
const (
	DefaultRoom            = "replink"
	DefaultSignalingListen = "127.0.0.1:3536"
	DefaultTickRate        = 30
	MaxTickRate            = 1000
)

var ErrInvalid = errors.New("invalid config")

// ChannelConfig declares one logical channel.
type ChannelConfig struct {
	Policy string `toml:"policy"`
}

// Config stores all parameters loaded from file and flags.
type Config struct {
	Role            Role            `toml:"role"`
	Room            string          `toml:"room"`
	SignalingURL    string          `toml:"signaling_url"`    // Client: signaling server base URL
	SignalingListen string          `toml:"signaling_listen"` // Host: embedded signaling server address
	TickRate        int             `toml:"tick_rate"`        // ticks per second
	ICEServers      []string        `toml:"ice_servers"`
	ServerChannels  []ChannelConfig `toml:"server_channels"` // host → client
	ClientChannels  []ChannelConfig `toml:"client_channels"` // client → host
}

// Default returns a configuration with one ordered channel per direction.
func Default() Config {
	return Config{
		Room:            DefaultRoom,
		SignalingListen: DefaultSignalingListen,
		TickRate:        DefaultTickRate,
		ServerChannels:  []ChannelConfig{{Policy: "ordered"}},
		ClientChannels:  []ChannelConfig{{Policy: "ordered"}},
	}
}

// Load reads a TOML file on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := Parse(string(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML text into cfg. Keys absent from the text keep their
// current values; present channel lists replace the defaults.
func Parse(text string, cfg *Config) error {
	md, err := toml.Decode(text, cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(keys, ", "))
	}
	return nil
}

// Validate checks the configuration for the selected role.
func (c Config) Validate() error {
	switch c.Role {
	case RoleHost:
		if c.SignalingListen == "" {
			return fmt.Errorf("%w: host requires signaling_listen", ErrInvalid)
		}
	case RoleClient:
		if c.SignalingURL == "" {
			return fmt.Errorf("%w: client requires signaling_url", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: role must be 'host' or 'client', got %q", ErrInvalid, c.Role)
	}

	if c.Room == "" {
		return fmt.Errorf("%w: room is empty", ErrInvalid)
	}
	if c.TickRate < 1 || c.TickRate > MaxTickRate {
		return fmt.Errorf("%w: tick_rate must be 1~%d", ErrInvalid, MaxTickRate)
	}
	if len(c.ServerChannels)+len(c.ClientChannels) == 0 {
		return fmt.Errorf("%w: no channels declared", ErrInvalid)
	}

	layout, err := c.Layout()
	if err != nil {
		return err
	}
	if err := layout.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Layout converts the declared channels into a channel.Layout.
func (c Config) Layout() (channel.Layout, error) {
	server, err := parsePolicies(c.ServerChannels)
	if err != nil {
		return channel.Layout{}, fmt.Errorf("%w: server_channels: %v", ErrInvalid, err)
	}
	client, err := parsePolicies(c.ClientChannels)
	if err != nil {
		return channel.Layout{}, fmt.Errorf("%w: client_channels: %v", ErrInvalid, err)
	}
	return channel.NewLayout(server, client), nil
}

// TickInterval returns the duration of one tick.
func (c Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

func parsePolicies(in []ChannelConfig) ([]channel.Policy, error) {
	out := make([]channel.Policy, len(in))
	for i, ch := range in {
		p, err := channel.ParsePolicy(ch.Policy)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}
