// Package shutdownqueue collects named cleanup tasks and runs them in
// reverse registration order when the process stops.
//
// Most binaries use the package-level Add and Shutdown, which share a
// default queue. Tests and embedded servers build their own with New.
package shutdownqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Task releases one resource. It must return once ctx is done.
type Task func(ctx context.Context) error

type namedTask struct {
	name string
	run  Task
}

// Queue is safe for concurrent use. The zero value is not usable; call New.
type Queue struct {
	mu      sync.Mutex
	tasks   []namedTask
	drained bool
	logger  *slog.Logger
}

// New returns an empty queue that reports progress to logger, or to
// slog.Default when logger is nil.
func New(logger *slog.Logger) *Queue {
	return &Queue{logger: logger}
}

func (q *Queue) log() *slog.Logger {
	if q.logger != nil {
		return q.logger
	}

	return slog.Default()
}

// Add registers t under name. Nil tasks and tasks added after Shutdown
// started are ignored.
func (q *Queue) Add(name string, t Task) {
	if t == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.drained {
		q.log().Warn("shutdown task registered too late", "task", name)
		return
	}

	q.tasks = append(q.tasks, namedTask{name: name, run: t})
}

// Len reports how many tasks are waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.tasks)
}

// Shutdown runs every task once, last registered first. A task error or
// panic does not stop the drain; a done ctx does, and the tasks left
// behind are reported as skipped. Later calls return nil.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	first := !q.drained
	q.drained = true
	q.mu.Unlock()

	if !first {
		return nil
	}

	var errs []error

	for i := len(tasks) - 1; i >= 0; i-- {
		t := tasks[i]

		if ctx.Err() != nil {
			skipped := make([]string, 0, i+1)
			for j := i; j >= 0; j-- {
				skipped = append(skipped, tasks[j].name)
			}

			q.log().Error("shutdown deadline reached", "skipped", skipped)
			errs = append(errs, fmt.Errorf("shutdown interrupted before %q: %w", t.name, ctx.Err()))

			break
		}

		err := q.runOne(ctx, t)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (q *Queue) runOne(ctx context.Context, t namedTask) (err error) {
	start := time.Now()

	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("%s: panic: %v", t.name, r)
		}

		if err != nil {
			q.log().ErrorContext(ctx, "shutdown task failed", "task", t.name, "error", err)
			return
		}

		q.log().InfoContext(ctx, "shutdown task done", "task", t.name, "took", time.Since(start))
	}()

	rerr := t.run(ctx)
	if rerr != nil {
		return fmt.Errorf("%s: %w", t.name, rerr)
	}

	return nil
}

var std = New(nil)

// Add registers t on the default queue.
func Add(name string, t Task) { std.Add(name, t) }

// Shutdown drains the default queue.
func Shutdown(ctx context.Context) error { return std.Shutdown(ctx) }
