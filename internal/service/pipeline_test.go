package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/Courier/internal/adapter/httpclient"
	"github.com/Strob0t/Courier/internal/adapter/webhook"
	"github.com/Strob0t/Courier/internal/domain/auth"
	"github.com/Strob0t/Courier/internal/domain/delivery"
	"github.com/Strob0t/Courier/internal/domain/envelope"
	"github.com/Strob0t/Courier/internal/port/connector"
	"github.com/Strob0t/Courier/internal/port/secretstore"
)

func newSender() *httpclient.Client {
	return httpclient.New(httpclient.Options{
		ConnectTimeout:   time.Second,
		SocketTimeout:    2 * time.Second,
		MaxConnsPerRoute: 4,
		MaxTotalConns:    8,
	})
}

func newWebhookPipeline(store secretstore.Store) *Pipeline {
	return NewPipeline(PipelineConfig{
		Transformer:    webhook.New(),
		Auth:           NewAuthResolver(store),
		Sender:         newSender(),
		Policy:         fastPolicy(3),
		ClientErrLevel: slog.LevelDebug,
		ServerErrLevel: slog.LevelError,
	})
}

func webhookEnvelope(t *testing.T, url, trustAll, extra string) *envelope.Envelope {
	t.Helper()
	raw := `{"id":"evt-1","type":"com.redhat.console.notification.toCamel.webhook","data":{"org_id":"42",` +
		`"notif-metadata":{"url":"` + url + `","trustAll":"` + trustAll + `"` + extra + `},"payload":{"hello":"world"}}}`
	env, err := envelope.Parse([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func statusServer(t *testing.T, code int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(code)
		_, _ = io.WriteString(w, "upstream says no")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProcess_Success(t *testing.T) {
	var gotBody, gotType string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := newWebhookPipeline(nil).Process(context.Background(), webhookEnvelope(t, srv.URL, "true", ""))

	o := res.Outcome
	if !o.Successful {
		t.Fatalf("expected success, got %+v", o)
	}
	if o.Message != "Event evt-1 sent successfully" || o.Attempts != 1 {
		t.Errorf("outcome = %+v", o)
	}
	if o.TargetURL != srv.URL || o.Details["method"] != http.MethodPost {
		t.Errorf("outcome = %+v", o)
	}
	if res.EnvelopeID != "evt-1" || res.OrgID != "42" {
		t.Errorf("result = %+v", res)
	}
	if gotBody != `{"hello":"world"}` {
		t.Errorf("body = %s", gotBody)
	}
	if gotType != webhook.ContentType {
		t.Errorf("content type = %q", gotType)
	}
}

func TestProcess_ServerErrorIsRetriedUpToLimit(t *testing.T) {
	var hits atomic.Int32
	srv := statusServer(t, http.StatusInternalServerError, &hits)

	o := newWebhookPipeline(nil).Process(context.Background(), webhookEnvelope(t, srv.URL, "true", "")).Outcome

	if o.Successful {
		t.Fatal("expected failure")
	}
	if o.ErrorKind != delivery.KindHTTP5xx || o.StatusCode != 500 || o.Attempts != 3 {
		t.Errorf("outcome = %+v", o)
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", hits.Load())
	}
	if o.Message != "HTTP 500: upstream says no" {
		t.Errorf("message = %q", o.Message)
	}
}

func TestProcess_ClientErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := statusServer(t, http.StatusNotFound, &hits)

	o := newWebhookPipeline(nil).Process(context.Background(), webhookEnvelope(t, srv.URL, "true", "")).Outcome

	if o.Successful || o.ErrorKind != delivery.KindHTTP4xx || o.Attempts != 1 {
		t.Errorf("outcome = %+v", o)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestProcess_TooManyRequestsIsRetried(t *testing.T) {
	var hits atomic.Int32
	srv := statusServer(t, http.StatusTooManyRequests, &hits)

	o := newWebhookPipeline(nil).Process(context.Background(), webhookEnvelope(t, srv.URL, "true", "")).Outcome

	if o.ErrorKind != delivery.KindHTTP5xx || o.StatusCode != 429 || hits.Load() != 3 {
		t.Errorf("outcome = %+v, hits = %d", o, hits.Load())
	}
}

func TestProcess_InvalidTargetFailsBeforeDispatch(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"http://insecure.example/hook", "protocol not supported"},
		{"ftp://files.example", "URL validation failed"},
		{"", "invalid target URL"},
	}
	for _, tt := range tests {
		o := newWebhookPipeline(nil).Process(context.Background(), webhookEnvelope(t, tt.url, "false", "")).Outcome
		if o.Successful || o.ErrorKind != delivery.KindUnknown || o.Attempts != 0 {
			t.Errorf("%q: outcome = %+v", tt.url, o)
		}
		if !strings.Contains(o.Message, tt.want) {
			t.Errorf("%q: message = %q, want it to contain %q", tt.url, o.Message, tt.want)
		}
	}
}

func TestProcess_TrustAllIsPerEnvelope(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	p := newWebhookPipeline(nil)
	var trusted, strict delivery.Outcome
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		trusted = p.Process(context.Background(), webhookEnvelope(t, srv.URL, "true", "")).Outcome
	}()
	go func() {
		defer wg.Done()
		strict = p.Process(context.Background(), webhookEnvelope(t, srv.URL, "false", "")).Outcome
	}()
	wg.Wait()

	if !trusted.Successful {
		t.Errorf("trust-all delivery failed: %+v", trusted)
	}
	if strict.Successful || strict.ErrorKind != delivery.KindSSLHandshake || strict.Attempts != 1 {
		t.Errorf("verified delivery to self-signed target: %+v", strict)
	}
}

func TestProcess_StoredCredential(t *testing.T) {
	var gotAuth string
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	store := &fakeStore{secrets: map[string]secretstore.Secret{"42/77": {Password: "s3cret"}}}
	env := webhookEnvelope(t, srv.URL, "true", `,"authentication":{"type":"BEARER","secretId":77}`)

	o := newWebhookPipeline(store).Process(context.Background(), env).Outcome
	if !o.Successful {
		t.Fatalf("outcome = %+v", o)
	}
	if gotAuth != "Bearer s3cret" {
		t.Errorf("authorization = %q", gotAuth)
	}
}

func TestProcess_MissingSecretIsFinal(t *testing.T) {
	env := webhookEnvelope(t, "https://unused.example", "false", `,"authentication":{"type":"BASIC","secretId":"1"}`)
	o := newWebhookPipeline(&fakeStore{}).Process(context.Background(), env).Outcome
	if o.Successful || o.Attempts != 0 || !strings.Contains(o.Message, "secret not found") {
		t.Errorf("outcome = %+v", o)
	}
}

// stubTransformer returns a fixed request or error.
type stubTransformer struct {
	req *connector.WireRequest
	err error
}

func (s stubTransformer) Name() string                  { return "stub" }
func (s stubTransformer) URLPolicy() envelope.URLPolicy { return envelope.URLExempt }
func (s stubTransformer) Transform(context.Context, *envelope.Envelope, envelope.Target, auth.Descriptor) (*connector.WireRequest, error) {
	return s.req, s.err
}

func stubEnvelope(t *testing.T) *envelope.Envelope {
	t.Helper()
	env, err := envelope.Parse([]byte(`{"id":"evt-s","data":{"org_id":"1"}}`))
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestProcess_NothingToDeliverIsSuccess(t *testing.T) {
	p := NewPipeline(PipelineConfig{Transformer: stubTransformer{err: connector.ErrNothingToDeliver}, Policy: fastPolicy(3)})
	o := p.Process(context.Background(), stubEnvelope(t)).Outcome
	if !o.Successful || o.Details["skipped"] != true || o.Attempts != 0 {
		t.Errorf("outcome = %+v", o)
	}
}

func TestProcess_TransformErrorIsFinal(t *testing.T) {
	p := NewPipeline(PipelineConfig{Transformer: stubTransformer{err: errors.New("missing field")}, Policy: fastPolicy(3)})
	o := p.Process(context.Background(), stubEnvelope(t)).Outcome
	if o.Successful || o.ErrorKind != delivery.KindUnknown || o.Message != "UNKNOWN: transform: missing field" {
		t.Errorf("outcome = %+v", o)
	}
}

func TestProcess_QueueTransport(t *testing.T) {
	q := &fakeQueue{}
	p := NewPipeline(PipelineConfig{
		Transformer: stubTransformer{req: &connector.WireRequest{
			Transport:   connector.TransportQueue,
			URL:         "notifications.drawer",
			Body:        []byte(`{"usernames":["a"]}`),
			ContentType: "application/json",
			Summary:     "queued",
		}},
		Queue:  q,
		Policy: fastPolicy(3),
	})

	o := p.Process(context.Background(), stubEnvelope(t)).Outcome
	if !o.Successful || o.Message != "queued" || o.TargetURL != "notifications.drawer" {
		t.Errorf("outcome = %+v", o)
	}
	if len(q.published) != 1 || q.published[0].subject != "notifications.drawer" {
		t.Fatalf("published = %+v", q.published)
	}
	if q.published[0].header["Content-Type"] != "application/json" {
		t.Errorf("header = %v", q.published[0].header)
	}
}

func TestAccept(t *testing.T) {
	p := NewPipeline(PipelineConfig{Transformer: webhook.New(), Identities: []string{"webhook", "ansible"}})
	env, _ := envelope.Parse([]byte(`{"id":"1","type":"com.redhat.console.notification.toCamel.slack","data":{"org_id":"1"}}`))
	typed, _ := envelope.Parse([]byte(`{"id":"1","type":"com.redhat.console.notification.toCamel.webhook","data":{"org_id":"1"}}`))

	tests := []struct {
		name   string
		header string
		env    *envelope.Envelope
		want   bool
	}{
		{"header match", "webhook", env, true},
		{"secondary identity", "ansible", env, true},
		{"header mismatch wins over type", "pagerduty", typed, false},
		{"type fallback match", "", typed, true},
		{"type fallback mismatch", "", env, false},
	}
	for _, tt := range tests {
		if got := p.Accept(tt.header, tt.env); got != tt.want {
			t.Errorf("%s: Accept = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// recordingHandler keeps the level of every "message sending failed" record.
type recordingHandler struct {
	mu     sync.Mutex
	levels []slog.Level
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if r.Message != "message sending failed" {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.levels = append(h.levels, r.Level)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func TestProcess_FailureLogLevelPerStatusClass(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   slog.Level
	}{
		{"4xx uses client level", http.StatusNotFound, slog.LevelWarn},
		{"5xx uses server level", http.StatusInternalServerError, slog.LevelError},
		{"429 uses server level", http.StatusTooManyRequests, slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingHandler{}
			prev := slog.Default()
			slog.SetDefault(slog.New(rec))
			t.Cleanup(func() { slog.SetDefault(prev) })

			var hits atomic.Int32
			srv := statusServer(t, tt.status, &hits)
			p := NewPipeline(PipelineConfig{
				Transformer:    webhook.New(),
				Sender:         newSender(),
				Policy:         fastPolicy(1),
				ClientErrLevel: slog.LevelWarn,
				ServerErrLevel: slog.LevelError,
			})
			p.Process(context.Background(), webhookEnvelope(t, srv.URL, "true", ""))

			rec.mu.Lock()
			defer rec.mu.Unlock()
			if len(rec.levels) != 1 || rec.levels[0] != tt.want {
				t.Errorf("failure log levels = %v, want [%v]", rec.levels, tt.want)
			}
		})
	}
}

func TestProcess_ClientFailureLevelCanBeDebug(t *testing.T) {
	rec := &recordingHandler{}
	prev := slog.Default()
	slog.SetDefault(slog.New(rec))
	t.Cleanup(func() { slog.SetDefault(prev) })

	var hits atomic.Int32
	srv := statusServer(t, http.StatusBadRequest, &hits)
	newWebhookPipeline(nil).Process(context.Background(), webhookEnvelope(t, srv.URL, "true", ""))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.levels) != 1 || rec.levels[0] != slog.LevelDebug {
		t.Errorf("failure log levels = %v, want [DEBUG]", rec.levels)
	}
}
