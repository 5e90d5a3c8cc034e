package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultPGHost          = "127.0.0.1"
	DefaultPGPort          = 5432
	DefaultPGUser          = "postgres"
	DefaultPGDatabase      = "marketchat"
	DefaultPGSSLMode       = "disable"
	DefaultMediaDataRoot   = "data/media"
	DefaultMediaMaxBytes   = "2MB"
	DefaultMediaURLTTL     = "10m"
	DefaultMediaBaseURL    = "/media"
	DefaultMigrateCooldown = "30s"
	DefaultActiveWindow    = "15s"
	DefaultOnlineWindow    = "2m"
	DefaultPresenceTTL     = "10m"
	DefaultVersionTTL      = "30s"
	DefaultAuditSchedule   = "@every 15m"

	AuthModeHeader = "header"
	AuthModeJWT    = "jwt"
)

// DefaultAllowedMedia is the closed content-type allowlist for uploads.
var DefaultAllowedMedia = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
}

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Admin    AdminConfig    `toml:"admin"`
	Auth     AuthConfig     `toml:"auth"`
	Postgres PostgresConfig `toml:"postgres"`
	Media    MediaConfig    `toml:"media"`
	Chat     ChatConfig     `toml:"chat"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr           string  `toml:"addr"`
	RateLimitRPS   float64 `toml:"rate_limit_rps"`
	RateLimitBurst int     `toml:"rate_limit_burst"`
}

// AdminConfig describes the singleton admin identity provisioned at startup.
type AdminConfig struct {
	Username    string `toml:"username"`
	Email       string `toml:"email"`
	DisplayName string `toml:"display_name"`
	AvatarURL   string `toml:"avatar_url"`
}

// AuthConfig selects how the trusted upstream boundary passes the caller identity.
type AuthConfig struct {
	Mode      string `toml:"mode"`
	JWTSecret string `toml:"jwt_secret"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

type MediaConfig struct {
	DataRoot      string   `toml:"data_root"`
	MaxBytes      string   `toml:"max_bytes"`
	SigningSecret string   `toml:"signing_secret"`
	URLTTL        string   `toml:"url_ttl"`
	PublicBaseURL string   `toml:"public_base_url"`
	Allowed       []string `toml:"allowed"`
}

type ChatConfig struct {
	AutoMigrate         bool   `toml:"auto_migrate"`
	MigrateCooldown     string `toml:"migrate_cooldown"`
	ActiveWindow        string `toml:"active_window"`
	OnlineWindow        string `toml:"online_window"`
	PresenceTTL         string `toml:"presence_ttl"`
	VersionTTL          string `toml:"version_ttl"`
	PageDefault         int    `toml:"page_default"`
	PageMax             int    `toml:"page_max"`
	MaxTextRunes        int    `toml:"max_text_runes"`
	ImageLabel          string `toml:"image_label"`
	FileLabel           string `toml:"file_label"`
	UnreadAuditSchedule string `toml:"unread_audit_schedule"`
}

// MaxBytesValue parses the human readable upload cap ("2MB", "512KiB").
func (c MediaConfig) MaxBytesValue() (int64, error) {
	raw := strings.TrimSpace(c.MaxBytes)
	if raw == "" {
		raw = DefaultMediaMaxBytes
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("media.max_bytes: %w", err)
	}
	if n == 0 {
		return 0, errors.New("media.max_bytes must be greater than 0")
	}
	return int64(n), nil
}

func (c MediaConfig) URLTTLValue() (time.Duration, error) {
	return parseDuration("media.url_ttl", c.URLTTL, DefaultMediaURLTTL)
}

func (c ChatConfig) MigrateCooldownValue() (time.Duration, error) {
	return parseDuration("chat.migrate_cooldown", c.MigrateCooldown, DefaultMigrateCooldown)
}

func (c ChatConfig) ActiveWindowValue() (time.Duration, error) {
	return parseDuration("chat.active_window", c.ActiveWindow, DefaultActiveWindow)
}

func (c ChatConfig) OnlineWindowValue() (time.Duration, error) {
	return parseDuration("chat.online_window", c.OnlineWindow, DefaultOnlineWindow)
}

func (c ChatConfig) PresenceTTLValue() (time.Duration, error) {
	return parseDuration("chat.presence_ttl", c.PresenceTTL, DefaultPresenceTTL)
}

func (c ChatConfig) VersionTTLValue() (time.Duration, error) {
	return parseDuration("chat.version_ttl", c.VersionTTL, DefaultVersionTTL)
}

func parseDuration(name, raw, fallback string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return d, nil
}

// Validate checks values that cannot be defaulted silently.
func (c Config) Validate() error {
	switch c.Auth.Mode {
	case AuthModeHeader:
	case AuthModeJWT:
		if strings.TrimSpace(c.Auth.JWTSecret) == "" {
			return errors.New("auth.jwt_secret is required in jwt mode")
		}
	default:
		return fmt.Errorf("auth.mode must be %q or %q", AuthModeHeader, AuthModeJWT)
	}
	if strings.TrimSpace(c.Admin.Username) == "" {
		return errors.New("admin.username is required")
	}
	if strings.TrimSpace(c.Media.SigningSecret) == "" {
		return errors.New("media.signing_secret is required")
	}
	if _, err := c.Media.MaxBytesValue(); err != nil {
		return err
	}
	checks := []func() (time.Duration, error){
		c.Media.URLTTLValue,
		c.Chat.MigrateCooldownValue,
		c.Chat.ActiveWindowValue,
		c.Chat.OnlineWindowValue,
		c.Chat.PresenceTTLValue,
		c.Chat.VersionTTLValue,
	}
	for _, check := range checks {
		if _, err := check(); err != nil {
			return err
		}
	}
	active, _ := c.Chat.ActiveWindowValue()
	online, _ := c.Chat.OnlineWindowValue()
	if active > online {
		return errors.New("chat.active_window must not exceed chat.online_window")
	}
	return nil
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:           DefaultHTTPAddr,
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
		Admin: AdminConfig{
			Username:    "support",
			Email:       "support@example.com",
			DisplayName: "Marketplace Support",
		},
		Auth: AuthConfig{
			Mode: AuthModeHeader,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Media: MediaConfig{
			DataRoot:      DefaultMediaDataRoot,
			MaxBytes:      DefaultMediaMaxBytes,
			URLTTL:        DefaultMediaURLTTL,
			PublicBaseURL: DefaultMediaBaseURL,
			Allowed:       DefaultAllowedMedia,
		},
		Chat: ChatConfig{
			AutoMigrate:         true,
			MigrateCooldown:     DefaultMigrateCooldown,
			ActiveWindow:        DefaultActiveWindow,
			OnlineWindow:        DefaultOnlineWindow,
			PresenceTTL:         DefaultPresenceTTL,
			VersionTTL:          DefaultVersionTTL,
			PageDefault:         30,
			PageMax:             100,
			MaxTextRunes:        4000,
			ImageLabel:          "[Image]",
			FileLabel:           "[File]",
			UnreadAuditSchedule: DefaultAuditSchedule,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
