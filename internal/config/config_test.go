package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/missionctl/internal/daemon"
	"github.com/danmuck/missionctl/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadServiceConfigTemplate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}

	cfg, err := LoadServiceConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Bus != "session" {
		t.Fatalf("unexpected bus: %q", cfg.Bus)
	}
	if cfg.MetricsAddr != "127.0.0.1:9470" {
		t.Fatalf("unexpected metrics addr: %q", cfg.MetricsAddr)
	}
	if cfg.Backoff.InitialDelay != 250*time.Millisecond || cfg.Backoff.MaxDelay != 5*time.Second {
		t.Fatalf("unexpected backoff: %+v", cfg.Backoff)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("unexpected log level: %q", cfg.LogLevel)
	}
}

func TestLoadServiceConfigOverlaysDefaults(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, "bus = \"system\"\nconnect_attempts = 0\n")
	cfg, err := LoadServiceConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	def := daemon.DefaultServiceConfig()
	if cfg.Bus != "system" || cfg.ConnectAttempts != 0 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.ClientPrefix != def.ClientPrefix || cfg.Backoff != def.Backoff {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadServiceConfigErrors(t *testing.T) {
	testlog.Start(t)
	if _, err := LoadServiceConfig(writeConfig(t, "backoff_max = \"soon\"\n")); err == nil || !strings.Contains(err.Error(), "backoff_max") {
		t.Fatalf("expected duration error, got %v", err)
	}
	if _, err := LoadServiceConfig(writeConfig(t, "buss = \"system\"\n")); err == nil || !strings.Contains(err.Error(), "buss") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
	_, err := LoadServiceConfig(writeConfig(t, "client_prefix = \"org.example\"\n"))
	if !errors.Is(err, daemon.ErrInvalidClientPrefix) {
		t.Fatalf("expected ErrInvalidClientPrefix, got %v", err)
	}
	if _, err := LoadServiceConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}
