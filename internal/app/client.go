package app

import (
	"context"
	"fmt"
	"io"

	"github.com/1ureka/replink/internal/config"
	"github.com/1ureka/replink/internal/replication"
	"github.com/1ureka/replink/internal/session"
	"github.com/1ureka/replink/internal/util"
	"github.com/1ureka/replink/internal/webrtc"
)

// ClientRelay is the client side of the chat relay.
type ClientRelay struct {
	client *session.Client
	queue  *replication.ClientMessages
	print  Printer

	announced bool
}

// NewClientRelay wraps a client driver. Messages are printed with print.
func NewClientRelay(client *session.Client, serverChannels, clientChannels int, print Printer) *ClientRelay {
	return &ClientRelay{
		client: client,
		queue:  replication.NewClientMessages(serverChannels, clientChannels),
		print:  print,
	}
}

// Tick runs one session tick. Lines typed before the host is known stay
// queued and go out once it is. It reports true once the client is
// disconnected.
func (r *ClientRelay) Tick(lines []string) bool {
	r.client.Receive(r.queue)

	if r.client.IsConnected() && !r.announced {
		r.announced = true
		util.LogSuccess("connected to host")
	}

	for _, m := range r.queue.DrainReceived() {
		if m.Channel != chatChannel {
			util.LogDebug("ignoring %d bytes on channel %d", len(m.Message), m.Channel)
			continue
		}
		r.print("%s", m.Message)
	}

	for _, line := range lines {
		if line == cmdQuit {
			if r.client.IsConnected() {
				r.client.Disconnect()
			} else {
				r.client.Close()
			}
			break
		}
		if err := r.queue.Send(chatChannel, []byte(line)); err != nil {
			util.LogError("failed to queue message: %v", err)
		}
	}

	r.client.Send(r.queue)

	if r.client.State() == session.ClientDisconnected {
		r.print("disconnected")
		return true
	}
	return false
}

// RunClient joins the host's room and relays chat until ctx is cancelled,
// /quit is entered or the host goes away.
func RunClient(ctx context.Context, cfg config.Config, pin string, stdin io.Reader) error {
	if err := checkLayout(cfg); err != nil {
		return err
	}
	layout, err := cfg.Layout()
	if err != nil {
		return err
	}

	util.LogInfo("joining room %q at %s", cfg.Room, cfg.SignalingURL)
	sock, err := webrtc.Open(ctx, webrtc.Options{
		SignalingURL: cfg.SignalingURL,
		Room:         cfg.Room,
		PIN:          pin,
		Role:         config.RoleClient,
		Layout:       layout,
		ICEServers:   cfg.ICEServers,
	})
	if err != nil {
		return fmt.Errorf("failed to open socket: %w", err)
	}

	relay := NewClientRelay(session.NewClient(sock, layout), len(layout.Server), len(layout.Client), ptermPrinter)
	util.StartStatsReporter(ctx, statsInterval)

	tickLoop(ctx, cfg.TickInterval(), readLines(ctx, stdin), relay.Tick)
	relay.client.Close()
	return nil
}
