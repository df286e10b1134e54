package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaultsWhenPathEmpty(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service != "databridge" {
		t.Fatalf("expected default service name, got %q", cfg.Service)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("expected default http addr, got %q", cfg.HTTP.Addr)
	}
}

func TestLoadReadsTomlFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "databridge.toml")
	toml := `
service = "ingestord-test"

[http]
addr = ":9090"

[[platforms]]
name = "polygon"
keys = ["k1", "k2"]
cooldown = "45s"
`
	if err := os.WriteFile(path, []byte(toml), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service != "ingestord-test" {
		t.Fatalf("expected service from file, got %q", cfg.Service)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("expected http addr from file, got %q", cfg.HTTP.Addr)
	}
	if len(cfg.Platforms) != 1 || cfg.Platforms[0].Name != "polygon" {
		t.Fatalf("expected one polygon platform, got %+v", cfg.Platforms)
	}
	if len(cfg.Platforms[0].Keys) != 2 {
		t.Fatalf("expected two keys, got %v", cfg.Platforms[0].Keys)
	}
	if got := cfg.Platforms[0].Cooldown.Duration().String(); got != "45s" {
		t.Fatalf("expected 45s cooldown, got %s", got)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("DATABRIDGE_HTTP_ADDR", ":7000")
	t.Setenv("DATABRIDGE_SERVICE", "from-env")

	path := filepath.Join(t.TempDir(), "databridge.toml")
	toml := `
service = "from-file"

[http]
addr = ":9090"
`
	if err := os.WriteFile(path, []byte(toml), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":7000" {
		t.Fatalf("expected env override for http addr, got %q", cfg.HTTP.Addr)
	}
	if cfg.Service != "from-env" {
		t.Fatalf("expected env override for service, got %q", cfg.Service)
	}
}
