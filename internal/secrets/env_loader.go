package secrets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvLoader returns a Loader that reads the given environment variables.
// Missing variables are omitted from the result map.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}

// DirLoader reads one file per key from dir, as mounted by Kubernetes
// secret volumes. Missing files are omitted; trailing newlines are trimmed.
func DirLoader(dir string, keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			b, err := os.ReadFile(filepath.Join(dir, k)) //nolint:gosec // G304: keys are fixed by the caller
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					continue
				}
				return nil, fmt.Errorf("read secret %s: %w", k, err)
			}
			if v := strings.TrimRight(string(b), "\r\n"); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}

// Chain merges loaders; later loaders override earlier ones.
func Chain(loaders ...Loader) Loader {
	return func() (map[string]string, error) {
		out := make(map[string]string)
		for _, l := range loaders {
			vals, err := l()
			if err != nil {
				return nil, err
			}
			for k, v := range vals {
				out[k] = v
			}
		}
		return out, nil
	}
}
