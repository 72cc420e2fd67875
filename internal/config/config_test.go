package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.hujson"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Fatalf("got %+v, want defaults %+v", cfg, Default())
	}
}

func TestLoadMergesOverFileComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pathkvsd.hujson")
	content := `{
  // where the durability log lives
  "data_path": "/var/lib/pathkvs/data.db",
  "listen_addr": ":7000",
}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataPath != "/var/lib/pathkvs/data.db" {
		t.Errorf("data_path = %q", cfg.DataPath)
	}
	if cfg.ListenAddr != ":7000" {
		t.Errorf("listen_addr = %q", cfg.ListenAddr)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log_level should keep default, got %q", cfg.LogLevel)
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.hujson")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for malformed config")
	}
}
