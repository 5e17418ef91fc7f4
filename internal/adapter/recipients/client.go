// Package recipients implements the recipient resolver port against the
// recipients-resolver service.
package recipients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Strob0t/Courier/internal/port/recipients"
)

const resolvePath = "/internal/recipients-resolver"

// Client resolves recipients over HTTP.
type Client struct {
	baseURL string
	token   func() string
	http    *http.Client
}

// New creates a Client. token may return "" when no auth is configured.
func New(baseURL string, timeout time.Duration, token func() string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type user struct {
	Username string `json:"username"`
}

// Resolve returns the usernames selected by q.
func (c *Client) Resolve(ctx context.Context, q recipients.Query) ([]string, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshal recipients query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+resolvePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("recipients request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req) //nolint:gosec // G107: base URL comes from configuration
	if err != nil {
		return nil, fmt.Errorf("recipients resolve: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("recipients API %d: %s", resp.StatusCode, string(b))
	}

	var users []user
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, fmt.Errorf("recipients decode: %w", err)
	}
	out := make([]string, 0, len(users))
	seen := make(map[string]struct{}, len(users))
	for _, u := range users {
		if u.Username == "" {
			continue
		}
		if _, dup := seen[u.Username]; dup {
			continue
		}
		seen[u.Username] = struct{}{}
		out = append(out, u.Username)
	}
	return out, nil
}
