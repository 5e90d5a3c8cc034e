package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != DefaultHTTPAddr {
		t.Fatalf("unexpected addr: %q", cfg.Server.Addr)
	}
	maxBytes, err := cfg.Media.MaxBytesValue()
	if err != nil {
		t.Fatalf("max bytes: %v", err)
	}
	if maxBytes != 2_000_000 {
		t.Fatalf("unexpected max bytes: %d", maxBytes)
	}
	if !cfg.Chat.AutoMigrate {
		t.Fatalf("expected auto migrate enabled by default")
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[auth]
mode = "jwt"
jwt_secret = "s3cret"

[media]
max_bytes = "5MiB"
signing_secret = "media-secret"

[chat]
auto_migrate = false
active_window = "5s"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	maxBytes, _ := cfg.Media.MaxBytesValue()
	if maxBytes != 5*1024*1024 {
		t.Fatalf("unexpected max bytes: %d", maxBytes)
	}
	active, _ := cfg.Chat.ActiveWindowValue()
	if active != 5*time.Second {
		t.Fatalf("unexpected active window: %v", active)
	}
	if cfg.Chat.AutoMigrate {
		t.Fatalf("expected auto migrate disabled")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		cfg, _ := Load(filepath.Join(os.TempDir(), "does-not-exist-marketchat.toml"))
		cfg.Media.SigningSecret = "secret"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults with secret", mutate: func(*Config) {}},
		{name: "missing signing secret", mutate: func(c *Config) { c.Media.SigningSecret = "" }, wantErr: true},
		{name: "jwt without secret", mutate: func(c *Config) { c.Auth.Mode = AuthModeJWT }, wantErr: true},
		{name: "unknown auth mode", mutate: func(c *Config) { c.Auth.Mode = "cookie" }, wantErr: true},
		{name: "bad size", mutate: func(c *Config) { c.Media.MaxBytes = "lots" }, wantErr: true},
		{name: "bad duration", mutate: func(c *Config) { c.Chat.VersionTTL = "soon" }, wantErr: true},
		{name: "active wider than online", mutate: func(c *Config) { c.Chat.ActiveWindow = "10m" }, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
