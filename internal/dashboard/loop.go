package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/lobwatch/internal/domain"
)

// defaultQueue is the task backlog a Loop accepts before Submit blocks.
const defaultQueue = 256

// Loop is a single-goroutine task executor. Tasks run to completion one at a
// time in submission order, so state touched only from tasks needs no locks.
type Loop struct {
	tasks    chan func()
	done     chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

// NewLoop creates a Loop with the given backlog (<= 0 selects the default).
func NewLoop(queue int, logger *slog.Logger) *Loop {
	if queue <= 0 {
		queue = defaultQueue
	}
	return &Loop{
		tasks:  make(chan func(), queue),
		done:   make(chan struct{}),
		logger: logger.With(slog.String("component", "dashboard_loop")),
	}
}

// Run executes tasks until ctx is cancelled or Stop is called. A Loop runs
// once; after Run returns every Submit fails.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("loop started")
	defer l.logger.Info("loop stopped")
	defer l.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case task := <-l.tasks:
			l.exec(task)
		}
	}
}

func (l *Loop) exec(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("task panicked", slog.String("error", fmt.Sprint(r)))
		}
	}()
	task()
}

// Submit queues task. It blocks while the backlog is full and fails with
// domain.ErrClosed once the loop is stopped.
func (l *Loop) Submit(ctx context.Context, task func()) error {
	select {
	case <-l.done:
		return fmt.Errorf("dashboard: submit: %w", domain.ErrClosed)
	default:
	}
	select {
	case l.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return fmt.Errorf("dashboard: submit: %w", domain.ErrClosed)
	}
}

// Do submits task and waits for it to finish.
func (l *Loop) Do(ctx context.Context, task func()) error {
	finished := make(chan struct{})
	if err := l.Submit(ctx, func() {
		defer close(finished)
		task()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return fmt.Errorf("dashboard: do: %w", domain.ErrClosed)
	}
}

// Stop ends Run. Queued tasks that have not started are discarded.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}
