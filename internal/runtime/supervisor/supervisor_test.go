package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoRecoversPanicAndKeepsFirstError(t *testing.T) {
	s := New(context.Background())
	s.Go("boom", func(ctx context.Context) error { panic("kaboom") })
	s.Go("fail", func(ctx context.Context) error { return errors.New("late") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err == nil {
		t.Fatalf("expected an error from Stop")
	}
	if c := s.Counters(); c.Started != 2 || c.Active != 0 || c.Panics != 1 {
		t.Fatalf("unexpected counters: %+v", c)
	}
}

func TestCancelOnError(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("fail", func(ctx context.Context) error { return errors.New("x") })
	select {
	case <-s.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("context was not cancelled")
	}
}

func TestGoRestartRestartsUntilCancel(t *testing.T) {
	s := New(context.Background())
	var runs int32
	s.GoRestart("loop", func(ctx context.Context) error {
		if atomic.AddInt32(&runs, 1) >= 3 {
			<-ctx.Done()
			return ctx.Err()
		}
		return errors.New("transient")
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond))

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&runs) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := atomic.LoadInt32(&runs); got < 3 {
		t.Fatalf("expected at least 3 runs, got %d", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
