// Package checkpoint periodically persists in-memory learner engines.
package checkpoint

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/logger"
)

const DefaultSchedule = "@every 5m"

// Checkpointer saves every learner that changed since its last save.
type Checkpointer interface {
	CheckpointAll(ctx context.Context) (int, error)
}

type Scheduler struct {
	log     *logger.Logger
	target  Checkpointer
	expr    string
	timeout time.Duration

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// ParseSchedule validates a standard five-field cron expression or a
// descriptor such as "@every 5m" or "@hourly".
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("cron expression required")
	}
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return s, nil
}

// NewScheduler validates expr up front. timeout bounds one run; zero means
// one minute.
func NewScheduler(baseLog *logger.Logger, target Checkpointer, expr string, timeout time.Duration) (*Scheduler, error) {
	if expr == "" {
		expr = DefaultSchedule
	}
	if _, err := ParseSchedule(expr); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Scheduler{
		log:     baseLog.With("component", "CheckpointScheduler"),
		target:  target,
		expr:    expr,
		timeout: timeout,
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("checkpoint scheduler already started")
	}
	sched, err := ParseSchedule(s.expr)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	cl := cronLogger{log: s.log}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	c.Schedule(sched, cron.FuncJob(func() { s.RunOnce(runCtx) }))
	c.Start()
	s.cron, s.cancel = c, cancel
	s.log.Info("checkpoint scheduler started", "schedule", s.expr)
	return nil
}

// RunOnce checkpoints all dirty learners and returns how many were saved.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	n, err := s.target.CheckpointAll(ctx)
	if err != nil {
		s.log.Warn("checkpoint run incomplete", "saved", n, "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return n
	}
	if n > 0 {
		s.log.Info("checkpoint run", "saved", n, "duration_ms", time.Since(start).Milliseconds())
	}
	return n
}

// Stop halts scheduling, waits for a running checkpoint, then runs a final
// one so nothing dirty is lost on shutdown.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	cancel()
	s.RunOnce(ctx)
	s.log.Info("checkpoint scheduler stopped")
}

// cronLogger adapts the zap wrapper to cron.Logger.
type cronLogger struct{ log *logger.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
