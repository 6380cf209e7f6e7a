package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logx "expirywatch/pkg/logx"
)

func TestNextRespectsTimezone(t *testing.T) {
	s, err := New("Asia/Jakarta", logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Add(Job{Name: "daily", Spec: "0 8 * * *", Run: func(context.Context) error { return nil }}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())

	next, ok := s.Next("daily")
	if !ok {
		t.Fatalf("job not scheduled")
	}
	loc, _ := time.LoadLocation("Asia/Jakarta")
	local := next.In(loc)
	if local.Hour() != 8 || local.Minute() != 0 {
		t.Fatalf("next=%v (local %v)", next, local)
	}
}

func TestAddRejectsInvalidJobs(t *testing.T) {
	s, _ := New("", logx.Nop())
	run := func(context.Context) error { return nil }
	if err := s.Add(Job{Name: "x", Spec: "nonsense", Run: run}); err == nil {
		t.Fatalf("expected spec error")
	}
	if err := s.Add(Job{Name: "", Spec: "@daily", Run: run}); err == nil {
		t.Fatalf("expected name error")
	}
	if err := s.Add(Job{Name: "x", Spec: "@daily", Run: run}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(Job{Name: "x", Spec: "@daily", Run: run}); err == nil {
		t.Fatalf("expected duplicate error")
	}
}

func TestNewRejectsUnknownTimezone(t *testing.T) {
	if _, err := New("Mars/Olympus", logx.Nop()); err == nil {
		t.Fatalf("expected timezone error")
	}
}

func TestJobRunsAndSkipsOverlap(t *testing.T) {
	s, _ := New("", logx.Nop())
	var runs, active, overlap atomic.Int32
	release := make(chan struct{})
	_ = s.Add(Job{Name: "tick", Spec: "@every 1s", Run: func(ctx context.Context) error {
		if active.Add(1) > 1 {
			overlap.Add(1)
		}
		defer active.Add(-1)
		runs.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}})

	s.Start(context.Background())
	time.Sleep(2500 * time.Millisecond)
	blocked := runs.Load()
	close(release)
	s.Stop(context.Background())

	if blocked != 1 {
		t.Fatalf("expected the blocked run to suppress later triggers, runs=%d", blocked)
	}
	if overlap.Load() != 0 {
		t.Fatalf("runs overlapped")
	}
}

func TestResetReschedules(t *testing.T) {
	s, _ := New("", logx.Nop())
	run := func(context.Context) error { return nil }
	_ = s.Add(Job{Name: "daily", Spec: "0 8 * * *", Run: run})
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Reset("", []Job{{Name: "weekly", Spec: "0 9 * * 1", Run: run}}); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, ok := s.Next("daily"); ok {
		t.Fatalf("old job still scheduled")
	}
	next, ok := s.Next("weekly")
	if !ok || next.Weekday() != time.Monday {
		t.Fatalf("weekly next=%v ok=%v", next, ok)
	}
	if err := s.Reset("", []Job{{Name: "bad", Spec: "nope", Run: run}}); err == nil {
		t.Fatalf("expected validation error")
	}
}
