// Package secrets holds the service's own credentials (secret store PSK,
// recipients token) in memory with hot reload support.
package secrets

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Well-known keys.
const (
	KeySourcesPSK      = "SOURCES_PSK"
	KeyRecipientsToken = "RECIPIENTS_TOKEN"
)

// Loader retrieves secret values from a source (env vars, mounted files).
type Loader func() (map[string]string, error)

// Vault holds secret values and swaps them atomically on Reload.
type Vault struct {
	mu       sync.RWMutex
	values   map[string]string
	loader   Loader
	required []string
}

// NewVault calls loader once and fails if any required key is missing.
func NewVault(loader Loader, required ...string) (*Vault, error) {
	v := &Vault{loader: loader, required: required}
	if err := v.Reload(); err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return v, nil
}

// Get returns the secret for key, or "" if not found.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Reload calls the loader and swaps in the new values. On error, including
// a missing required key, the existing values are kept.
func (v *Vault) Reload() error {
	vals, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	var missing []string
	for _, k := range v.required {
		if vals[k] == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("reload secrets: missing %s", strings.Join(missing, ", "))
	}

	v.mu.Lock()
	v.values = vals
	v.mu.Unlock()
	return nil
}
