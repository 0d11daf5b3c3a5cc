// Package eventloop serializes every kiosk callback onto one goroutine.
//
// Window events, audit ticks and the continuations of slow work (process
// listing, printing) are all posted here, so the surface handle and the lock
// state are only ever touched from the loop goroutine.
package eventloop

import (
	"context"
	"log/slog"
	"sync"
)

// Dispatcher posts callbacks to an event loop.
type Dispatcher interface {
	// Post queues fn to run on the loop. It never blocks.
	Post(fn func())

	// Async runs work off the loop and posts the continuation it returns.
	// A nil continuation is skipped.
	Async(work func() func())
}

// Loop is a FIFO callback queue drained by Run.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
	logger *slog.Logger
}

// New creates a loop. Callbacks posted before Run are kept until Run starts.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		wake:   make(chan struct{}, 1),
		logger: logger,
	}
}

func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) Async(work func() func()) {
	go func() {
		if cont := work(); cont != nil {
			l.Post(cont)
		}
	}()
}

// Run drains the queue until ctx is done. Callbacks still queued at that point
// are discarded and later posts are ignored.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.drain(ctx)

		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.closed = true
			l.queue = nil
			l.mu.Unlock()
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) drain(ctx context.Context) {
	for ctx.Err() == nil {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			if ctx.Err() != nil {
				return
			}
			l.run(fn)
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Event loop callback panicked", "panic", r)
		}
	}()
	fn()
}
