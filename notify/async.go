package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/evdnx/papertrader/logger"
)

var (
	ErrQueueFull = errors.New("notify: queue full")
	ErrClosed    = errors.New("notify: closed")
)

// Async queues messages for a single sender goroutine so Send never waits
// on the network or the rate limiter. Messages are delivered in order.
type Async struct {
	inner   Notifier
	log     logger.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan string
	done   chan struct{}
}

// NewAsync starts the sender. buffer bounds the queue; once it is full new
// messages are dropped.
func NewAsync(inner Notifier, log logger.Logger, buffer int) *Async {
	if inner == nil {
		inner = Nop{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	if buffer < 1 {
		buffer = 1
	}
	a := &Async{
		inner:   inner,
		log:     log,
		timeout: 15 * time.Second,
		queue:   make(chan string, buffer),
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

// Send enqueues text. The caller's context only matters for the enqueue;
// delivery runs under its own timeout.
func (a *Async) Send(_ context.Context, text string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- text:
		return nil
	default:
		a.log.Warn("notify_dropped", logger.Int("queued", len(a.queue)))
		return ErrQueueFull
	}
}

func (a *Async) loop() {
	defer close(a.done)
	for text := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.inner.Send(ctx, text); err != nil {
			a.log.Warn("notify_failed", logger.Err(err))
		}
		cancel()
	}
}

// Close stops accepting messages and waits for the queue to drain or ctx
// to end.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
