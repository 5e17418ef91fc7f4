package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/Strob0t/Courier/internal/adapter/httpclient"
	"github.com/Strob0t/Courier/internal/domain/delivery"
)

func fastPolicy(attempts int) RedeliveryPolicy {
	return RedeliveryPolicy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestShouldRetry(t *testing.T) {
	p := fastPolicy(3)
	tests := []struct {
		kind  delivery.ErrorKind
		cause error
		want  bool
	}{
		{delivery.KindHTTP5xx, nil, true},
		{delivery.KindConnectionRefused, nil, true},
		{delivery.KindSocketTimeout, nil, true},
		{delivery.KindConnectTimeout, nil, true},
		{delivery.KindHTTP3xx, nil, false},
		{delivery.KindHTTP4xx, nil, false},
		{delivery.KindSSLHandshake, nil, false},
		{delivery.KindUnknownHost, nil, false},
		{delivery.KindUnsupportedSSLMessage, nil, false},
		{delivery.KindUnknown, errors.New("nil pointer"), false},
		{delivery.KindUnknown, fmt.Errorf("read: %w", io.ErrUnexpectedEOF), true},
	}
	for _, tt := range tests {
		if got := p.ShouldRetry(tt.kind, tt.cause); got != tt.want {
			t.Errorf("ShouldRetry(%s, %v) = %v, want %v", tt.kind, tt.cause, got, tt.want)
		}
	}
}

func TestRun_ExhaustsAttemptsOnServerError(t *testing.T) {
	var notified []int
	attempts, err := fastPolicy(3).Run(context.Background(), func(context.Context, int) error {
		return &httpclient.StatusError{StatusCode: 500}
	}, func(_ delivery.ErrorKind, next int, _ time.Duration) {
		notified = append(notified, next)
	})
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if StatusCode(err) != 500 {
		t.Errorf("err = %v", err)
	}
	if len(notified) < 2 || notified[0] != 2 || notified[1] != 3 {
		t.Errorf("notified = %v", notified)
	}
}

func TestRun_PermanentErrorStopsImmediately(t *testing.T) {
	attempts, err := fastPolicy(5).Run(context.Background(), func(context.Context, int) error {
		return &httpclient.StatusError{StatusCode: 404}
	}, nil)
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if StatusCode(err) != 404 {
		t.Errorf("err = %v", err)
	}
}

func TestRun_SucceedsAfterTransientFailures(t *testing.T) {
	attempts, err := fastPolicy(4).Run(context.Background(), func(_ context.Context, n int) error {
		if n < 3 {
			return &httpclient.StatusError{StatusCode: 503}
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRun_AtLeastOneAttempt(t *testing.T) {
	attempts, _ := RedeliveryPolicy{}.Run(context.Background(), func(context.Context, int) error {
		return &httpclient.StatusError{StatusCode: 500}
	}, nil)
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}
