package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("expected path %q, got %q", path, resolved)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be written: %v", err)
	}
	if cfg.Driver != DriverMemory || !cfg.Plugin.EchoMessages || !cfg.Plugin.AutoConnect {
		t.Fatalf("unexpected defaults: %#v", cfg)
	}
	if cfg.Plugin.PluginID != "ably" || cfg.Plugin.IdentityNamespace != "weweb" {
		t.Fatalf("unexpected plugin defaults: %#v", cfg.Plugin)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
addr: ":9000"
driver: ably
plugin:
  token_endpoint: https://example.com/token
  echo_messages: false
token:
  ttl: 30m
user:
  id: "42"
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("ABLYBRIDGE_ADDR", ":9100")
	t.Setenv("ABLYBRIDGE_PLUGIN_CLIENT_ID", "=user.id")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Addr != ":9100" {
		t.Fatalf("expected env to override file, got %q", cfg.Addr)
	}
	if cfg.Driver != DriverAbly {
		t.Fatalf("expected driver from file, got %q", cfg.Driver)
	}
	if cfg.Plugin.TokenEndpoint != "https://example.com/token" || cfg.Plugin.EchoMessages {
		t.Fatalf("unexpected plugin settings: %#v", cfg.Plugin)
	}
	if !cfg.Plugin.AutoConnect {
		t.Fatalf("expected auto_connect default to survive")
	}
	if cfg.Plugin.ClientID != "=user.id" {
		t.Fatalf("expected client id from env, got %q", cfg.Plugin.ClientID)
	}
	if cfg.Token.TTL != 30*time.Minute {
		t.Fatalf("unexpected ttl: %s", cfg.Token.TTL)
	}
	if cfg.User.ID != "42" {
		t.Fatalf("unexpected user: %#v", cfg.User)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("driver: carrier-pigeon\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := Load(nil, path); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestUpdateFrom(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":1", LogLevel: "debug"})
	if cfg.Addr != ":1" || cfg.LogLevel != "debug" || cfg.Driver != DriverMemory {
		t.Fatalf("unexpected config: %#v", cfg)
	}
}
