package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRunsImmediatelyAndOnInterval(t *testing.T) {
	var runs atomic.Int32
	s := New(Job{
		Name:     "test",
		Interval: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	// One immediate run plus several ticks.
	if n := runs.Load(); n < 3 {
		t.Errorf("got %d runs, want at least 3", n)
	}
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	var runs atomic.Int32
	s := New(Job{
		Name:     "test",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	if runs.Load() != 1 {
		t.Errorf("got %d runs, want only the immediate one", runs.Load())
	}
}

func TestSchedulerSurvivesJobErrors(t *testing.T) {
	var runs atomic.Int32
	s := New(Job{
		Name:     "failing",
		Interval: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			runs.Add(1)
			return errors.New("boom")
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	if n := runs.Load(); n < 2 {
		t.Errorf("got %d runs, job should keep its cadence after errors", n)
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		raw      string
		fallback time.Duration
		want     time.Duration
	}{
		{"4h", time.Hour, 4 * time.Hour},
		{"30m", time.Hour, 30 * time.Minute},
		{"", time.Hour, time.Hour},
		{"garbage", time.Hour, time.Hour},
		{"-5m", time.Hour, time.Hour},
	}
	for _, tt := range tests {
		if got := ParseInterval(tt.raw, tt.fallback); got != tt.want {
			t.Errorf("ParseInterval(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
