package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/Courier/internal/port/messagequeue"
	"github.com/Strob0t/Courier/internal/port/secretstore"
)

type published struct {
	subject string
	data    []byte
	header  map[string]string
}

// fakeQueue records publishes and hands the subscribed handler to the test.
type fakeQueue struct {
	mu         sync.Mutex
	published  []published
	publishErr error

	handler     messagequeue.Handler
	subscribes  int
	cancels     int
	concurrency int
}

func (q *fakeQueue) Publish(_ context.Context, subject string, data []byte, header map[string]string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, published{subject: subject, data: data, header: header})
	return nil
}

func (q *fakeQueue) Subscribe(_ context.Context, _ string, concurrency int, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = h
	q.subscribes++
	q.concurrency = concurrency
	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.cancels++
		q.handler = nil
	}, nil
}

func (q *fakeQueue) Drain() error      { return nil }
func (q *fakeQueue) Close() error      { return nil }
func (q *fakeQueue) IsConnected() bool { return true }

func (q *fakeQueue) outcomes(t *testing.T) []OutcomeEvent {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []OutcomeEvent
	for _, p := range q.published {
		if p.subject != outcomeSubject {
			continue
		}
		var ev OutcomeEvent
		if err := json.Unmarshal(p.data, &ev); err != nil {
			t.Fatalf("decode outcome: %v", err)
		}
		out = append(out, ev)
	}
	return out
}

const outcomeSubject = "notifications.fromconnector"

// fakeStore is an in-memory secret store keyed by org and id.
type fakeStore struct {
	secrets map[string]secretstore.Secret
	calls   int
}

func (s *fakeStore) Get(_ context.Context, id, orgID string) (secretstore.Secret, error) {
	s.calls++
	sec, ok := s.secrets[orgID+"/"+id]
	if !ok {
		return secretstore.Secret{}, secretstore.ErrNotFound
	}
	return sec, nil
}

// memCache is a map-backed cache.Cache.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}
