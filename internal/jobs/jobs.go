// Package jobs holds the periodic background work started by cmd/api: the
// outbox relay and the pending-withdrawal recovery.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// loop runs tick every interval until Stop is called or the Start ctx ends.
type loop struct {
	name     string
	interval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
	mu       sync.Mutex
	started  bool
}

func newLoop(name string, interval time.Duration) *loop {
	if interval <= 0 {
		interval = time.Second
	}

	return &loop{
		name:     name,
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (l *loop) run(ctx context.Context, tick func(ctx context.Context)) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	defer close(l.done)

	slog.InfoContext(ctx, "job started", "job", l.name, "interval", l.interval.String())

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "job exiting", "job", l.name, "reason", ctx.Err())
			return
		case <-l.stopCh:
			slog.InfoContext(ctx, "job stopped", "job", l.name)
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// Stop signals the loop and waits for the running tick to finish.
func (l *loop) Stop(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.stopCh) })

	l.mu.Lock()
	started := l.started
	l.mu.Unlock()

	if !started {
		return nil
	}

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
