// Package app contains the top-level orchestration for host and client roles:
// a chat relay that drives a session once per tick. Lines typed by a client
// go to the host on the first client channel; the host prints them and
// relays them to every other client on the first server channel.
package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/replink/internal/config"
)

// chatChannel is the logical channel, in both directions, that carries chat.
const chatChannel = 0

// statsInterval is how often traffic statistics are logged.
const statsInterval = 5 * time.Second

// Commands understood on stdin.
const (
	cmdQuit = "/quit"
	cmdWho  = "/who"
	cmdKick = "/kick"
)

// Printer receives relay output. The CLI prints with pterm; tests record.
type Printer func(format string, args ...any)

func ptermPrinter(format string, args ...any) {
	pterm.Println(fmt.Sprintf(format, args...))
}

func checkLayout(cfg config.Config) error {
	if len(cfg.ServerChannels) == 0 || len(cfg.ClientChannels) == 0 {
		return fmt.Errorf("%w: chat needs at least one channel in each direction", config.ErrInvalid)
	}
	return nil
}

// readLines forwards trimmed, non-empty lines from r until r ends or ctx is
// cancelled. The goroutine may outlive ctx while blocked in a read.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string, 16)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// drainLines collects whatever lines are ready without blocking. It reports
// false once the input has ended.
func drainLines(in <-chan string) ([]string, bool) {
	var lines []string
	for {
		select {
		case line, ok := <-in:
			if !ok {
				return lines, false
			}
			lines = append(lines, line)
		default:
			return lines, true
		}
	}
}

// tickLoop calls tick at the configured rate until it reports done, the
// input ends with quitOnEOF, or ctx is cancelled.
func tickLoop(ctx context.Context, interval time.Duration, lines <-chan string, tick func([]string) bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, open := drainLines(lines)
			if !open {
				batch = append(batch, cmdQuit)
				lines = nil
			}
			if tick(batch) {
				return
			}
		}
	}
}
