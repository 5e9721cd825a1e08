package checkpoint

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/logger"
)

type countingTarget struct {
	calls atomic.Int32
	err   error
}

func (c *countingTarget) CheckpointAll(context.Context) (int, error) {
	c.calls.Add(1)
	return 2, c.err
}

func TestParseSchedule(t *testing.T) {
	cases := []struct {
		expr string
		ok   bool
	}{
		{"@every 5m", true},
		{"@hourly", true},
		{"*/10 * * * *", true},
		{"", false},
		{"every five minutes", false},
		{"* * * * * * *", false},
	}
	for _, tc := range cases {
		_, err := ParseSchedule(tc.expr)
		if (err == nil) != tc.ok {
			t.Fatalf("ParseSchedule(%q) err = %v, want ok=%v", tc.expr, err, tc.ok)
		}
	}
}

func TestNewSchedulerRejectsBadExpression(t *testing.T) {
	if _, err := NewScheduler(logger.Nop(), &countingTarget{}, "nope", 0); err == nil {
		t.Fatal("expected error")
	}
	s, err := NewScheduler(logger.Nop(), &countingTarget{}, "", 0)
	if err != nil {
		t.Fatalf("default schedule: %v", err)
	}
	if s.expr != DefaultSchedule || s.timeout != time.Minute {
		t.Fatalf("defaults = %q %v", s.expr, s.timeout)
	}
}

func TestRunOnce(t *testing.T) {
	target := &countingTarget{}
	s, _ := NewScheduler(logger.Nop(), target, "@every 1h", time.Second)
	if n := s.RunOnce(context.Background()); n != 2 {
		t.Fatalf("RunOnce = %d", n)
	}
	target.err = errors.New("partial")
	if n := s.RunOnce(context.Background()); n != 2 {
		t.Fatalf("RunOnce with error = %d", n)
	}
	if target.calls.Load() != 2 {
		t.Fatalf("calls = %d", target.calls.Load())
	}
}

func TestStopRunsFinalCheckpoint(t *testing.T) {
	target := &countingTarget{}
	s, _ := NewScheduler(logger.Nop(), target, "@every 1h", time.Second)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)
	if target.calls.Load() != 1 {
		t.Fatalf("calls after stop = %d, want 1", target.calls.Load())
	}
	s.Stop(ctx)
	if target.calls.Load() != 1 {
		t.Fatal("second Stop ran again")
	}
}

func TestScheduledRuns(t *testing.T) {
	target := &countingTarget{}
	s, _ := NewScheduler(logger.Nop(), target, "@every 1s", time.Second)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for target.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	s.Stop(context.Background())
	if target.calls.Load() < 2 {
		t.Fatalf("calls = %d, want a scheduled run plus the final one", target.calls.Load())
	}
}
