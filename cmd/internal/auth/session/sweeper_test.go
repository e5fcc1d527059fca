package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingPurger struct {
	calls  atomic.Int32
	maxAge atomic.Int64
	fail   bool
}

func (c *countingPurger) PurgeExpired(_ context.Context, _ time.Time, maxAge time.Duration) (int64, error) {
	c.calls.Add(1)
	c.maxAge.Store(int64(maxAge))
	if c.fail {
		return 0, errors.New("boom")
	}
	return 1, nil
}

func TestSweeper_RunsImmediatelyAndOnTick(t *testing.T) {
	t.Parallel()

	p := &countingPurger{}
	sw := NewSweeper(p, 10*time.Millisecond, 42*time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for p.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 sweeps, got %d", p.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("sweeper did not stop after cancel")
	}
	if got := time.Duration(p.maxAge.Load()); got != 42*time.Hour {
		t.Fatalf("maxAge = %s", got)
	}
}

func TestSweeper_SurvivesErrors(t *testing.T) {
	t.Parallel()

	p := &countingPurger{fail: true}
	sw := NewSweeper(p, 5*time.Millisecond, time.Hour, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	sw.Run(ctx)

	if p.calls.Load() < 2 {
		t.Fatalf("expected repeated sweeps despite errors, got %d", p.calls.Load())
	}
}
