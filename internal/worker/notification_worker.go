// Package worker runs background jobs next to the HTTP server.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Redeliverer retries notifications that never reached the sink.
type Redeliverer interface {
	RedeliverPending(ctx context.Context) (int, error)
}

// OutboxRelay periodically pushes undelivered notifications to the sink.
type OutboxRelay struct {
	cron     *cron.Cron
	source   Redeliverer
	schedule string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewOutboxRelay builds a relay. schedule accepts cron specs and descriptors
// such as "@every 30s"; timeout bounds one run.
func NewOutboxRelay(source Redeliverer, schedule string, timeout time.Duration, logger *zap.Logger) *OutboxRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger.Sugar()}
	return &OutboxRelay{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		source:   source,
		schedule: schedule,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start schedules the relay and returns immediately.
func (r *OutboxRelay) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, r.tick); err != nil {
		return fmt.Errorf("schedule outbox relay %q: %w", r.schedule, err)
	}
	r.cron.Start()
	r.logger.Info("outbox relay started", zap.String("schedule", r.schedule))
	return nil
}

// Stop halts scheduling and waits for a running batch or ctx, whichever ends first.
func (r *OutboxRelay) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce redelivers one batch.
func (r *OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.source.RedeliverPending(ctx)
}

func (r *OutboxRelay) tick() {
	n, err := r.RunOnce(context.Background())
	if err != nil {
		r.logger.Warn("outbox relay run failed", zap.Error(err))
		return
	}
	if n > 0 {
		r.logger.Info("outbox relay delivered notifications", zap.Int("count", n))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
