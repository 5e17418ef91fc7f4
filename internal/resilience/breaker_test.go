package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("secret store unavailable")

func fail(context.Context) error { return errUpstream }
func pass(context.Context) error { return nil }

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Minute)
	ctx := context.Background()

	for range 3 {
		if err := b.Do(ctx, fail); !errors.Is(err, errUpstream) {
			t.Fatalf("expected upstream error, got %v", err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Fatalf("expected rejection without call, got %v (called=%v)", err, called)
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker(2, time.Minute)
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, pass)
	_ = b.Do(ctx, fail)
	if b.State() != StateClosed {
		t.Fatalf("non-consecutive failures must not open, got %s", b.State())
	}
}

func TestBreaker_HalfOpenSingleProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, time.Second)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	now = now.Add(time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half_open, got %s", b.State())
	}

	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(ctx, func(context.Context) error { <-release; return nil })
	}()

	// Wait until the probe has been admitted.
	deadline := time.After(2 * time.Second)
	for {
		b.mu.Lock()
		probing := b.probing
		b.mu.Unlock()
		if probing {
			break
		}
		select {
		case <-deadline:
			t.Fatal("probe never admitted")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if err := b.Do(ctx, pass); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second call during probe should be rejected, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("successful probe should close, got %s", b.State())
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, time.Second)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	_ = b.Do(ctx, fail)
	now = now.Add(time.Second)
	_ = b.Do(ctx, fail)
	if b.State() != StateOpen {
		t.Errorf("failed probe should reopen, got %s", b.State())
	}
}

func TestBreaker_FailureFilter(t *testing.T) {
	errNotFound := errors.New("not found")
	b := NewBreaker(1, time.Minute, WithFailureFilter(func(err error) bool {
		return err != nil && !errors.Is(err, errNotFound)
	}))
	ctx := context.Background()

	if err := b.Do(ctx, func(context.Context) error { return errNotFound }); !errors.Is(err, errNotFound) {
		t.Fatalf("expected errNotFound passthrough, got %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("filtered errors must not open the circuit, got %s", b.State())
	}
}
