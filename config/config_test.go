package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must be valid: %v", err)
	}
	if cfg.Transport != "net" {
		t.Errorf("expected net transport, got %q", cfg.Transport)
	}
	if cfg.TickInterval != 10*time.Millisecond {
		t.Errorf("expected 10ms tick, got %v", cfg.TickInterval)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected info logging, got %q", cfg.Logging.Level)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"missing host", func(c *Config) { c.Host = "" }, "host is required"},
		{"port too high", func(c *Config) { c.Port = 70000 }, "port must be at most 65535"},
		{"port zero", func(c *Config) { c.Port = 0 }, "port must be at least 1"},
		{"unknown transport", func(c *Config) { c.Transport = "carrier-pigeon" }, "transport must be one of"},
		{"zero tick", func(c *Config) { c.TickInterval = 0 }, "tickinterval must be greater than 0"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level must be one of"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("expected error containing %q, got %q", tc.errMsg, err.Error())
			}
		})
	}
}

func TestLoadWithYAML(t *testing.T) {
	path := writeFile(t, "httpconn.yml", `
host: api.example.com
port: 8443
secure: true
transport: gnet
tick_interval: 25ms
tls:
  server_name: api.example.com
logging:
  level: debug
  format: json
`)

	cfg, err := Load(WithConfigFile(path), WithEnvFile(writeFile(t, ".env", "")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Host != "api.example.com" || cfg.Port != 8443 || !cfg.Secure {
		t.Errorf("unexpected destination %s:%d secure=%v", cfg.Host, cfg.Port, cfg.Secure)
	}
	if cfg.Transport != "gnet" {
		t.Errorf("expected gnet, got %q", cfg.Transport)
	}
	if cfg.TickInterval != 25*time.Millisecond {
		t.Errorf("expected 25ms, got %v", cfg.TickInterval)
	}
	if cfg.TLS.ServerName != "api.example.com" {
		t.Errorf("unexpected server name %q", cfg.TLS.ServerName)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging %+v", cfg.Logging)
	}
	if cfg.ContentType != "application/octet-stream" {
		t.Errorf("expected default content type, got %q", cfg.ContentType)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "httpconn.yml", "host: from-file\nport: 81\n")
	t.Setenv("HTTPCONN_PORT", "9090")
	t.Setenv("HTTPCONN_LOGGING_LEVEL", "warn")

	cfg, err := Load(WithConfigFile(path), WithEnvFile(writeFile(t, ".env", "")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Host != "from-file" {
		t.Errorf("expected host from file, got %q", cfg.Host)
	}
	if cfg.Port != 9090 {
		t.Errorf("expected env port 9090, got %d", cfg.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected env log level warn, got %q", cfg.Logging.Level)
	}
}

func TestLoadEnvFile(t *testing.T) {
	envPath := writeFile(t, ".env", "HTTPCONN_HOST=from-dotenv\nHTTPCONN_TRANSPORT=uring\n")
	t.Cleanup(func() {
		os.Unsetenv("HTTPCONN_HOST")
		os.Unsetenv("HTTPCONN_TRANSPORT")
	})

	cfg, err := Load(WithConfigFile(writeFile(t, "empty.yml", "{}\n")), WithEnvFile(envPath))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Host != "from-dotenv" {
		t.Errorf("expected host from .env, got %q", cfg.Host)
	}
	if cfg.Transport != "uring" {
		t.Errorf("expected uring from .env, got %q", cfg.Transport)
	}
}

func TestLoadInvalid(t *testing.T) {
	path := writeFile(t, "httpconn.yml", "transport: smoke-signals\n")

	_, err := Load(WithConfigFile(path), WithEnvFile(writeFile(t, ".env", "")))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "transport must be one of") {
		t.Errorf("unexpected error %q", err.Error())
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(WithConfigFile(filepath.Join(t.TempDir(), "nope.yml")))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}
