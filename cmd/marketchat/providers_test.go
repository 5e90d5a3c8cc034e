package main

import (
	"path/filepath"
	"testing"

	"github.com/marketline/marketchat/internal/config"
	"github.com/marketline/marketchat/internal/message"
)

func TestProvideMessageLimits(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Chat.PageMax = 50
	cfg.Chat.ImageLabel = "[Foto]"
	cfg.Chat.FileLabel = ""

	got := provideMessageLimits(cfg)
	def := message.DefaultLimits()
	if got.PageMax != 50 || got.ImageLabel != "[Foto]" {
		t.Fatalf("overrides not applied: %+v", got)
	}
	if got.FileLabel != def.FileLabel || got.PreviewRunes != def.PreviewRunes {
		t.Fatalf("defaults not kept: %+v", got)
	}
}

func TestAdminClaimsUseUsernameAsRef(t *testing.T) {
	claims := adminClaims(config.AdminConfig{Username: "support", Email: "support@example.com", DisplayName: "Support"})
	if claims.Ref != "support" || claims.Username != "support" || claims.DisplayName != "Support" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/marketchat/config.toml")
	configPath = ""
	if got := resolveConfigPath(); got != "/etc/marketchat/config.toml" {
		t.Fatalf("env path not used: %q", got)
	}
	configPath = "local.toml"
	t.Cleanup(func() { configPath = "" })
	if got := resolveConfigPath(); got != "local.toml" {
		t.Fatalf("flag should win: %q", got)
	}
}
