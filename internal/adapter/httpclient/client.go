// Package httpclient implements the outbound HTTP transport used by every
// HTTP delivery channel.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// maxErrorBody caps how much of a non-2xx response body is kept.
const maxErrorBody = 1024

// maxResponseBody caps how much of a 2xx response body is read.
const maxResponseBody = 1 << 20

// Options configures a Client.
type Options struct {
	ConnectTimeout   time.Duration
	SocketTimeout    time.Duration
	MaxConnsPerRoute int
	MaxTotalConns    int
	FollowRedirects  bool
	// RootCAs replaces the system pool for verified requests.
	RootCAs *x509.CertPool
	// WrapTransport decorates both transports, e.g. for tracing.
	WrapTransport func(http.RoundTripper) http.RoundTripper
}

// Request is one outbound call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
	// TrustAll skips certificate and hostname verification for this call only.
	TrustAll bool
}

// Response is a received response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// HandshakeError is returned when the TLS handshake of a new connection
// failed. Err is the error the handshake itself produced, e.g. a
// tls.RecordHeaderError when the peer does not speak TLS or io.EOF when it
// hung up mid-handshake.
type HandshakeError struct {
	Err   error
	cause error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("tls handshake: %v", e.cause)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// ErrReadTimeout is returned when the response body stalls for longer than
// the socket timeout.
var ErrReadTimeout error = readTimeoutError{}

type readTimeoutError struct{}

func (readTimeoutError) Error() string   { return "response body read timeout" }
func (readTimeoutError) Timeout() bool   { return true }
func (readTimeoutError) Temporary() bool { return true }

// Client sends requests over two pooled transports: one verifying TLS and
// one that trusts every certificate. A per-request flag picks the pool, so
// one endpoint's trust setting never applies to another.
type Client struct {
	verified *http.Client
	trustAll *http.Client
	conns    *semaphore.Weighted
	// idle bounds the silence between two body reads.
	idle time.Duration
}

// New creates a Client.
func New(opts Options) *Client {
	total := opts.MaxTotalConns
	if total < 1 {
		total = 1
	}
	return &Client{
		verified: newHTTPClient(opts, &tls.Config{RootCAs: opts.RootCAs, MinVersion: tls.VersionTLS12}),
		trustAll: newHTTPClient(opts, &tls.Config{InsecureSkipVerify: true}), //nolint:gosec // G402: opt-in per endpoint
		conns:    semaphore.NewWeighted(int64(total)),
		idle:     opts.SocketTimeout,
	}
}

func newHTTPClient(opts Options, tlsCfg *tls.Config) *http.Client {
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second}
	var rt http.RoundTripper = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       tlsCfg,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.SocketTimeout,
		MaxConnsPerHost:       opts.MaxConnsPerRoute,
		MaxIdleConnsPerHost:   opts.MaxConnsPerRoute,
		MaxIdleConns:          opts.MaxTotalConns,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	if opts.WrapTransport != nil {
		rt = opts.WrapTransport(rt)
	}

	c := &http.Client{Transport: rt}
	if !opts.FollowRedirects {
		c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return c
}

// Send performs the request. A non-2xx response is returned together with a
// *StatusError. A failed TLS handshake is returned as a *HandshakeError and a
// stalled body as ErrReadTimeout. Other transport failures are returned
// unchanged for classification.
func (c *Client) Send(ctx context.Context, r Request) (*Response, error) {
	if err := c.conns.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.conns.Release(1)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var hs handshakeTrace
	ctx = httptrace.WithClientTrace(ctx, hs.clientTrace())

	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	hc := c.verified
	if r.TrustAll {
		hc = c.trustAll
	}

	resp, err := hc.Do(req) //nolint:gosec // G107: URL validated during target extraction
	if err != nil {
		if herr := hs.failure(); herr != nil {
			return nil, &HandshakeError{Err: herr, cause: err}
		}
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	limit := int64(maxResponseBody)
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok {
		limit = maxErrorBody
	}
	body, err := c.readBody(resp.Body, limit, cancel)
	if err != nil {
		if errors.Is(context.Cause(ctx), ErrReadTimeout) {
			err = ErrReadTimeout
		}
		return nil, fmt.Errorf("read response: %w", err)
	}

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
	if !ok {
		return out, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return out, nil
}

// readBody reads up to limit bytes. Each read must make progress within the
// idle timeout, otherwise the request is cancelled with ErrReadTimeout.
func (c *Client) readBody(body io.Reader, limit int64, cancel context.CancelCauseFunc) ([]byte, error) {
	r := io.LimitReader(body, limit)
	if c.idle <= 0 {
		return io.ReadAll(r)
	}
	timer := time.AfterFunc(c.idle, func() { cancel(ErrReadTimeout) })
	defer timer.Stop()
	return io.ReadAll(&idleReader{r: r, timer: timer, idle: c.idle})
}

type idleReader struct {
	r     io.Reader
	timer *time.Timer
	idle  time.Duration
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.timer.Reset(ir.idle)
	}
	return n, err
}

// handshakeTrace records the error of a TLS handshake dialed for one request.
type handshakeTrace struct {
	mu  sync.Mutex
	err error
}

func (h *handshakeTrace) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			if err == nil {
				return
			}
			h.mu.Lock()
			defer h.mu.Unlock()
			h.err = err
		},
	}
}

func (h *handshakeTrace) failure() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// CloseIdle releases idle pooled connections.
func (c *Client) CloseIdle() {
	c.verified.CloseIdleConnections()
	c.trustAll.CloseIdleConnections()
}
