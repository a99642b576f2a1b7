// Replink CLI entry point.
//
// Runs a chat relay on top of a replicated session: one host and any number
// of clients, connected peer-to-peer over WebRTC DataChannels after a
// WebSocket signaling phase served by the host.
//
// It can be launched interactively (no -role) or non-interactively via CLI
// flags and an optional TOML config file (-config). Flags override the file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/replink/internal/app"
	"github.com/1ureka/replink/internal/config"
	"github.com/1ureka/replink/internal/signaling"
	"github.com/1ureka/replink/internal/util"
)

var version = "dev"

const pinLength = 4

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags.
	role := flag.String("role", "", "Role: host or client")
	configPath := flag.String("config", "", "Path to a TOML config file")
	urlFlag := flag.String("url", "", "Signaling server URL (client only)")
	listenFlag := flag.String("listen", "", "Signaling server listen address (host only)")
	roomFlag := flag.String("room", "", "Room name")
	pinFlag := flag.String("pin", "", "Signaling PIN; the host generates one when empty")
	noPIN := flag.Bool("nopin", false, "Run the signaling server without a PIN (host only)")
	tickFlag := flag.Int("tick", 0, "Ticks per second")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Replink v%s", version))
	pterm.Println()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Explicitly set flags win over the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "role":
			cfg.Role = config.Role(*role)
		case "url":
			cfg.SignalingURL = *urlFlag
		case "listen":
			cfg.SignalingListen = *listenFlag
		case "room":
			cfg.Room = *roomFlag
		case "tick":
			cfg.TickRate = *tickFlag
		}
	})

	pin := *pinFlag
	if cfg.Role == "" {
		// No role anywhere → interactive mode.
		pin = runInteractive(&cfg, pin)
	}

	if cfg.SignalingURL != "" {
		normalized, err := normalizeWSURL(cfg.SignalingURL)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg.SignalingURL = normalized
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}

	var err error
	switch cfg.Role {
	case config.RoleHost:
		if pin == "" && !*noPIN {
			pin = signaling.GeneratePIN(pinLength)
		}
		err = app.RunHost(ctx, cfg, pin, os.Stdin)
	case config.RoleClient:
		err = app.RunClient(ctx, cfg, pin, os.Stdin)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		util.LogError("session failed: %v", err)
		os.Exit(1)
	}

	util.LogInfo("session closed")
}

// ---------------------------------------------------------------------------
// Interactive mode
// ---------------------------------------------------------------------------

// runInteractive prompts for the role and, for clients, the signaling URL and
// PIN. It returns the PIN to use.
func runInteractive(cfg *config.Config, pin string) string {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Host   - Run the session and the signaling server", "Client - Join a host"}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	if strings.HasPrefix(role, "Host") {
		cfg.Role = config.RoleHost
		return pin
	}

	cfg.Role = config.RoleClient
	cfg.SignalingURL = askURL()
	if pin == "" {
		pin, _ = pterm.DefaultInteractiveTextInput.
			WithDefaultText("PIN (leave empty if none)").
			Show()
		pterm.Println()
	}
	return strings.TrimSpace(pin)
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// normalizeWSURL validates a signaling URL and keeps only its scheme, host
// and path. A bare host defaults to wss.
func normalizeWSURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid signaling URL: %s", raw)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	default:
		u.Scheme = "wss"
	}
	return fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, strings.TrimSuffix(u.Path, "/")), nil
}

// askURL prompts the user for a valid signaling URL until one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Signaling URL (e.g. wss://***.asse.devtunnels.ms)").
			Show()

		wsURL, err := normalizeWSURL(raw)
		if err == nil {
			pterm.Println()
			return wsURL
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}
