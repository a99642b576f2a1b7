package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"golang.org/x/sync/errgroup"

	"github.com/1ureka/replink/internal/config"
	"github.com/1ureka/replink/internal/replication"
	"github.com/1ureka/replink/internal/session"
	"github.com/1ureka/replink/internal/signaling"
	"github.com/1ureka/replink/internal/util"
	"github.com/1ureka/replink/internal/webrtc"
)

// HostRelay is the host side of the chat relay.
type HostRelay struct {
	host  *session.Host
	queue *replication.ServerMessages[session.Handle]
	print Printer
}

// NewHostRelay wraps a host driver. Messages are printed with print.
func NewHostRelay(host *session.Host, serverChannels, clientChannels int, print Printer) *HostRelay {
	return &HostRelay{
		host:  host,
		queue: replication.NewServerMessages[session.Handle](serverChannels, clientChannels),
		print: print,
	}
}

// Tick runs one session tick, handling the given stdin lines between the
// receive and send halves. It reports true once the relay is finished.
func (r *HostRelay) Tick(lines []string) bool {
	r.host.Receive(r.queue)
	if r.host.State() == session.HostStopped {
		r.print("session stopped")
		return true
	}

	for _, ev := range r.host.DrainEvents() {
		h := ev.Connection.Handle
		if ev.Connected {
			r.print("* client %s joined (%d online)", h, r.host.ConnectedClients())
			r.broadcast(h, fmt.Sprintf("* client %s joined", h))
		} else {
			r.print("* client %s left (%d online)", h, r.host.ConnectedClients())
			r.broadcast(h, fmt.Sprintf("* client %s left", h))
		}
	}

	for _, m := range r.queue.DrainReceived() {
		if m.Channel != chatChannel {
			util.LogDebug("ignoring %d bytes from %s on channel %d", len(m.Message), m.Client, m.Channel)
			continue
		}
		text := fmt.Sprintf("[%s] %s", m.Client, m.Message)
		r.print("%s", text)
		r.broadcast(m.Client, text)
	}

	quit := false
	for _, line := range lines {
		if r.command(line) {
			quit = true
		}
	}
	if quit {
		r.host.DisconnectAll()
	}

	r.host.Send(r.queue)
	if quit {
		r.host.Close()
	}
	return quit
}

// command handles one stdin line and reports whether the host should quit.
func (r *HostRelay) command(line string) bool {
	switch {
	case line == cmdQuit:
		return true
	case line == cmdWho:
		conns := r.host.Connections()
		r.print("%d client(s) online", len(conns))
		for _, c := range conns {
			r.print("  %s peer=%s net=%016x", c.Handle, c.Peer, c.NetworkID)
		}
	case strings.HasPrefix(line, cmdKick+" "):
		target := strings.TrimSpace(strings.TrimPrefix(line, cmdKick))
		for _, c := range r.host.Connections() {
			if c.Handle.String() == target {
				r.host.RequestDisconnect(c.Handle)
				r.send(c.Handle, "* you were disconnected by the host")
				return false
			}
		}
		r.print("no client %q", target)
	default:
		r.broadcast(session.Handle{}, "[host] "+line)
	}
	return false
}

// broadcast queues text for every client except skip.
func (r *HostRelay) broadcast(skip session.Handle, text string) {
	for _, c := range r.host.Connections() {
		if c.Handle != skip {
			r.send(c.Handle, text)
		}
	}
}

func (r *HostRelay) send(h session.Handle, text string) {
	if err := r.queue.Send(h, chatChannel, []byte(text)); err != nil {
		util.LogError("failed to queue message for %s: %v", h, err)
	}
}

// RunHost starts the embedded signaling server, opens the socket and relays
// chat until ctx is cancelled or /quit is entered.
func RunHost(ctx context.Context, cfg config.Config, pin string, stdin io.Reader) error {
	if err := checkLayout(cfg); err != nil {
		return err
	}
	layout, err := cfg.Layout()
	if err != nil {
		return err
	}

	server := signaling.NewServer(pin)
	addr, err := server.Start(cfg.SignalingListen)
	if err != nil {
		return err
	}

	pterm.DefaultBox.WithTitle("Signaling Server").Println(
		fmt.Sprintf("Address : ws://%s\nRoom    : %s\nPIN     : %s\nLayout  : %s",
			addr, cfg.Room, pinText(pin), layout.Fingerprint()))

	sock, err := webrtc.Open(ctx, webrtc.Options{
		SignalingURL: "ws://" + addr,
		Room:         cfg.Room,
		PIN:          pin,
		Role:         config.RoleHost,
		Layout:       layout,
		ICEServers:   cfg.ICEServers,
	})
	if err != nil {
		shutdown(server)
		return fmt.Errorf("failed to open socket: %w", err)
	}

	util.LogSuccess("hosting room %q, waiting for clients", cfg.Room)

	relay := NewHostRelay(session.NewHost(sock, layout), len(layout.Server), len(layout.Client), ptermPrinter)
	lines := readLines(ctx, stdin)
	util.StartStatsReporter(ctx, statsInterval)

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		tickLoop(gctx, cfg.TickInterval(), lines, relay.Tick)
		relay.host.Close()
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-done:
		}
		shutdown(server)
		return nil
	})
	return g.Wait()
}

func shutdown(server *signaling.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		util.LogDebug("signaling server shutdown: %v", err)
	}
}

func pinText(pin string) string {
	if pin == "" {
		return "(none)"
	}
	return pin
}
