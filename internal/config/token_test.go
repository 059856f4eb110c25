package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureAPIToken_EnvWins(t *testing.T) {
	cfg := defaults()
	cfg.APIToken = "from-env"

	token, err := EnsureAPIToken(cfg)
	if err != nil {
		t.Fatalf("EnsureAPIToken: %v", err)
	}
	if token != "from-env" {
		t.Errorf("token = %q", token)
	}
}

func TestEnsureAPIToken_GeneratesAndPersists(t *testing.T) {
	cfg := defaults()
	cfg.Storage.DataDir = t.TempDir()

	first, err := EnsureAPIToken(cfg)
	if err != nil {
		t.Fatalf("EnsureAPIToken: %v", err)
	}
	if len(first) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(first))
	}

	second, err := EnsureAPIToken(cfg)
	if err != nil {
		t.Fatalf("second EnsureAPIToken: %v", err)
	}
	if second != first {
		t.Error("token not stable across restarts")
	}

	info, err := os.Stat(filepath.Join(cfg.Storage.DataDir, tokenFileName))
	if err != nil {
		t.Fatalf("token file missing: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("token file mode = %v, want 0600", info.Mode().Perm())
	}
}
