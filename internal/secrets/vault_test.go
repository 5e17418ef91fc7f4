package secrets_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Strob0t/Courier/internal/secrets"
)

func TestNewVault_RequiredKeys(t *testing.T) {
	_, err := secrets.NewVault(func() (map[string]string, error) {
		return map[string]string{"OTHER": "x"}, nil
	}, secrets.KeySourcesPSK)
	if err == nil || !strings.Contains(err.Error(), secrets.KeySourcesPSK) {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestVault_ReloadKeepsValuesOnError(t *testing.T) {
	calls := 0
	v, err := secrets.NewVault(func() (map[string]string, error) {
		calls++
		switch calls {
		case 1:
			return map[string]string{secrets.KeySourcesPSK: "one"}, nil
		case 2:
			return nil, errors.New("mount unavailable")
		case 3:
			return map[string]string{}, nil
		default:
			return map[string]string{secrets.KeySourcesPSK: "two"}, nil
		}
	}, secrets.KeySourcesPSK)
	if err != nil {
		t.Fatal(err)
	}

	if err := v.Reload(); err == nil {
		t.Fatal("expected loader error")
	}
	if err := v.Reload(); err == nil {
		t.Fatal("expected missing required key error")
	}
	if got := v.Get(secrets.KeySourcesPSK); got != "one" {
		t.Fatalf("expected previous value, got %q", got)
	}
	if err := v.Reload(); err != nil {
		t.Fatal(err)
	}
	if got := v.Get(secrets.KeySourcesPSK); got != "two" {
		t.Fatalf("expected reloaded value, got %q", got)
	}
}

func TestLoaders(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, secrets.KeySourcesPSK), []byte("from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(secrets.KeySourcesPSK, "from-env")
	t.Setenv(secrets.KeyRecipientsToken, "token")

	load := secrets.Chain(
		secrets.EnvLoader(secrets.KeySourcesPSK, secrets.KeyRecipientsToken),
		secrets.DirLoader(dir, secrets.KeySourcesPSK, secrets.KeyRecipientsToken),
	)
	vals, err := load()
	if err != nil {
		t.Fatal(err)
	}
	if vals[secrets.KeySourcesPSK] != "from-file" {
		t.Errorf("file should override env, got %q", vals[secrets.KeySourcesPSK])
	}
	if vals[secrets.KeyRecipientsToken] != "token" {
		t.Errorf("env value missing, got %q", vals[secrets.KeyRecipientsToken])
	}
}
