package webrtc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/replink/internal/channel"
	"github.com/1ureka/replink/internal/util"
)

const (
	highWaterMark  = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark   = 64 * 1024  // resume sending when bufferedAmount drops below this
	sendBufferSize = 256        // outgoing datagram queue capacity per channel
)

// ErrQueueFull is returned by Send when a reliable channel's outgoing queue is
// full. Datagrams on unreliable channels are dropped silently instead.
var ErrQueueFull = errors.New("send queue full")

// dataChannel wraps a pion DataChannel with a single-writer goroutine that
// applies backpressure, so Send never blocks the tick.
type dataChannel struct {
	raw    *webrtc.DataChannel
	config channel.Config

	outbox      chan []byte
	drainSignal chan struct{}
	openSignal  chan struct{}
	openOnce    sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

// newDataChannel creates the pre-negotiated channel described by cfg on pc
// and starts its writer. onOpen, onMessage and onClose are invoked from pion
// callbacks.
func newDataChannel(
	ctx context.Context,
	pc *webrtc.PeerConnection,
	cfg channel.Config,
	onOpen func(),
	onMessage func([]byte),
	onClose func(),
) (*dataChannel, error) {
	raw, err := pc.CreateDataChannel(cfg.Policy.String(), dataChannelInit(cfg))
	if err != nil {
		return nil, err
	}

	cCtx, cancel := context.WithCancel(ctx)
	c := &dataChannel{
		raw:         raw,
		config:      cfg,
		outbox:      make(chan []byte, sendBufferSize),
		drainSignal: make(chan struct{}, 1),
		openSignal:  make(chan struct{}),
		ctx:         cCtx,
		cancel:      cancel,
	}

	raw.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	raw.OnBufferedAmountLow(func() {
		select {
		case c.drainSignal <- struct{}{}:
		default:
		}
	})
	raw.OnOpen(func() {
		c.openOnce.Do(func() {
			close(c.openSignal)
			onOpen()
		})
	})
	raw.OnMessage(func(msg webrtc.DataChannelMessage) {
		onMessage(msg.Data)
	})
	raw.OnClose(func() {
		cancel()
		onClose()
	})

	go c.loop()

	return c, nil
}

// loop is the single-writer goroutine. It waits for the DataChannel to open,
// then drains the outbox with backpressure awareness.
func (c *dataChannel) loop() {
	select {
	case <-c.openSignal:
	case <-c.ctx.Done():
		return
	}

	for {
		select {
		case data := <-c.outbox:
			if c.raw.BufferedAmount() > uint64(highWaterMark) {
				select {
				case <-c.drainSignal:
				case <-c.ctx.Done():
					return
				}
			}

			if err := c.raw.Send(data); err != nil {
				util.LogError("failed to send on channel %d: %v", c.config.Index, err)
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// enqueue hands data to the writer without blocking.
func (c *dataChannel) enqueue(data []byte) error {
	if c.ctx.Err() != nil {
		return c.ctx.Err()
	}
	select {
	case c.outbox <- data:
		return nil
	default:
		if !c.config.Policy.Reliable() {
			util.LogDebug("dropping datagram on unreliable channel %d", c.config.Index)
			return nil
		}
		return ErrQueueFull
	}
}

// flush waits until queued datagrams have been handed to the transport, or
// until timeout.
func (c *dataChannel) flush(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) && c.ctx.Err() == nil {
		if len(c.outbox) == 0 && c.raw.BufferedAmount() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// stop ends the writer. The DataChannel itself closes with its PeerConnection.
func (c *dataChannel) stop() { c.cancel() }
