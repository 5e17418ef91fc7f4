package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Strob0t/Courier/internal/port/secretstore"
	"github.com/Strob0t/Courier/internal/resilience"
)

var _ secretstore.Store = (*Client)(nil)

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/v2.0/secrets/42" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get(headerOrgID) != "org-1" || r.Header.Get(headerPSK) != "psk-value" {
			t.Errorf("headers = %v", r.Header)
		}
		_, _ = w.Write([]byte(`{"username":"u","password":"p"}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", time.Second, func() string { return "psk-value" }, nil)
	s, err := c.Get(context.Background(), "42", "org-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Username != "u" || s.Password != "p" {
		t.Errorf("secret = %+v", s)
	}
}

func TestGet_NotFoundDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	b := resilience.NewBreaker(1, time.Minute, resilience.WithFailureFilter(func(err error) bool {
		return err != nil && !IsNotFound(err)
	}))
	c := New(srv.URL, time.Second, func() string { return "" }, b)

	for range 3 {
		if _, err := c.Get(context.Background(), "1", "org"); !errors.Is(err, secretstore.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if b.State() != resilience.StateClosed {
		t.Errorf("breaker = %s, want closed", b.State())
	}
}

func TestGet_ServerErrorTripsBreaker(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	b := resilience.NewBreaker(2, time.Minute)
	c := New(srv.URL, time.Second, func() string { return "" }, b)

	for range 2 {
		if _, err := c.Get(context.Background(), "1", "org"); err == nil {
			t.Fatal("expected error")
		}
	}
	if _, err := c.Get(context.Background(), "1", "org"); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 2 {
		t.Errorf("open circuit must not reach the server, calls = %d", calls)
	}
}
