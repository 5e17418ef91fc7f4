// Package sources implements the secret store port against the Sources
// internal secrets API.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Strob0t/Courier/internal/port/secretstore"
	"github.com/Strob0t/Courier/internal/resilience"
)

const (
	headerOrgID = "x-rh-sources-org-id"
	headerPSK   = "x-rh-sources-psk"
	secretsPath = "/internal/v2.0/secrets/"
)

// Client fetches secrets over HTTP. The PSK is read per call so that vault
// reloads take effect immediately.
type Client struct {
	baseURL string
	psk     func() string
	http    *http.Client
	breaker *resilience.Breaker
}

// New creates a Client. breaker may be nil.
func New(baseURL string, timeout time.Duration, psk func() string, breaker *resilience.Breaker) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		psk:     psk,
		http:    &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

// IsNotFound reports whether err should be excluded from breaker failure counts.
func IsNotFound(err error) bool {
	return errors.Is(err, secretstore.ErrNotFound)
}

// Get loads secret id for the org.
func (c *Client) Get(ctx context.Context, id, orgID string) (secretstore.Secret, error) {
	var s secretstore.Secret
	call := func(ctx context.Context) error {
		var err error
		s, err = c.fetch(ctx, id, orgID)
		return err
	}
	if c.breaker == nil {
		return s, call(ctx)
	}
	return s, c.breaker.Do(ctx, call)
}

func (c *Client) fetch(ctx context.Context, id, orgID string) (secretstore.Secret, error) {
	u := c.baseURL + secretsPath + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return secretstore.Secret{}, fmt.Errorf("sources request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerOrgID, orgID)
	req.Header.Set(headerPSK, c.psk())

	resp, err := c.http.Do(req) //nolint:gosec // G107: base URL comes from configuration
	if err != nil {
		return secretstore.Secret{}, fmt.Errorf("sources get secret %s: %w", id, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return secretstore.Secret{}, fmt.Errorf("sources secret %s: %w", id, secretstore.ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return secretstore.Secret{}, fmt.Errorf("sources API %d: %s", resp.StatusCode, string(body))
	}

	var s secretstore.Secret
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return secretstore.Secret{}, fmt.Errorf("sources decode secret %s: %w", id, err)
	}
	return s, nil
}
