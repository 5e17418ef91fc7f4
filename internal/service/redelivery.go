package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/Strob0t/Courier/internal/config"
	"github.com/Strob0t/Courier/internal/domain/delivery"
)

// RedeliveryPolicy decides which failed attempts are retried in process
// and paces them with exponential backoff.
type RedeliveryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

// NewRedeliveryPolicy builds a policy from configuration.
func NewRedeliveryPolicy(cfg config.Redelivery) RedeliveryPolicy {
	return RedeliveryPolicy{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.InitialDelay,
		MaxDelay:     cfg.MaxDelay,
		Multiplier:   cfg.Multiplier,
		Jitter:       cfg.Jitter,
	}
}

// ShouldRetry reports whether a failure of kind, caused by cause, may be
// attempted again. 429 is already part of HTTP_5XX.
func (p RedeliveryPolicy) ShouldRetry(kind delivery.ErrorKind, cause error) bool {
	switch kind {
	case delivery.KindHTTP5xx,
		delivery.KindConnectionRefused,
		delivery.KindSocketTimeout,
		delivery.KindConnectTimeout:
		return true
	case delivery.KindUnknown:
		return cause != nil && isSocketFailure(cause)
	default:
		return false
	}
}

// RetryNotify is called before the pause preceding attempt next.
type RetryNotify func(kind delivery.ErrorKind, next int, wait time.Duration)

// Run calls attempt until it succeeds, fails permanently or the attempt
// budget is spent. Attempts are strictly sequential. It returns the number
// of attempts made and the last error.
func (p RedeliveryPolicy) Run(ctx context.Context, attempt func(ctx context.Context, n int) error, notify RetryNotify) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		attempts int
		lastErr  error
		lastKind delivery.ErrorKind
	)
	op := func() (struct{}, error) {
		attempts++
		err := attempt(ctx, attempts)
		lastErr = err
		if err == nil {
			return struct{}{}, nil
		}
		lastKind = Classify(err)
		if !p.ShouldRetry(lastKind, err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(p.maxElapsed(maxAttempts)),
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(func(_ error, wait time.Duration) {
			notify(lastKind, attempts+1, wait)
		}))
	}

	if _, err := backoff.Retry(ctx, op, opts...); err != nil && lastErr == nil {
		// The context ended before the first attempt ran.
		return attempts, err
	}
	return attempts, lastErr
}

func (p RedeliveryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialDelay > 0 {
		b.InitialInterval = p.InitialDelay
	}
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	if p.Multiplier >= 1 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = p.Jitter
	b.Reset()
	return b
}

// maxElapsed bounds the retry loop so it never ends on elapsed time
// before the attempt budget is used.
func (p RedeliveryPolicy) maxElapsed(attempts int) time.Duration {
	perWait := p.MaxDelay
	if perWait <= 0 {
		perWait = time.Minute
	}
	return time.Duration(attempts) * (perWait + time.Minute) * 2
}
