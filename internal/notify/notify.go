// Package notify delivers human-readable progress messages without letting
// delivery latency or failure reach the caller.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tronfunder/internal/metrics"
)

// Notifier accepts a message for best-effort delivery. Implementations must
// return immediately and never fail.
type Notifier interface {
	Notify(text string)
}

// Sender performs one delivery attempt.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Nop discards every message.
type Nop struct{}

func (Nop) Notify(string) {}

// Dispatcher queues messages and delivers them in order from a single
// background worker. When the queue is full new messages are dropped.
type Dispatcher struct {
	sender  Sender
	log     logrus.FieldLogger
	metrics *metrics.Registry
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan string
	done   chan struct{}
}

type DispatcherOptions struct {
	Logger      logrus.FieldLogger
	Metrics     *metrics.Registry
	SendTimeout time.Duration
	QueueSize   int
}

func NewDispatcher(sender Sender, opts DispatcherOptions) *Dispatcher {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	d := &Dispatcher{
		sender:  sender,
		log:     opts.Logger.WithField("component", "notify"),
		metrics: opts.Metrics,
		timeout: opts.SendTimeout,
		queue:   make(chan string, opts.QueueSize),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify enqueues text. It never blocks.
func (d *Dispatcher) Notify(text string) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.metrics.IncNotification("dropped")
		return
	}
	select {
	case d.queue <- text:
	default:
		d.metrics.IncNotification("dropped")
		d.log.Warn("notification queue full, dropping message")
	}
}

// Close stops accepting messages and waits until the queue drains or ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for text := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.sender.Send(ctx, text)
		cancel()
		if err != nil {
			d.metrics.IncNotification("failed")
			d.log.WithError(err).Warn("notification not delivered")
			continue
		}
		d.metrics.IncNotification("sent")
	}
}
