package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/marketline/marketchat/internal/audit"
	"github.com/marketline/marketchat/internal/chat"
	"github.com/marketline/marketchat/internal/config"
	"github.com/marketline/marketchat/internal/conversation"
	"github.com/marketline/marketchat/internal/db"
	"github.com/marketline/marketchat/internal/identity"
	"github.com/marketline/marketchat/internal/logger"
	"github.com/marketline/marketchat/internal/media"
	"github.com/marketline/marketchat/internal/message"
	"github.com/marketline/marketchat/internal/metrics"
	"github.com/marketline/marketchat/internal/presence"
	"github.com/marketline/marketchat/internal/schema"
	"github.com/marketline/marketchat/internal/storage/providers/localfs"
)

// coreModule wires everything below the HTTP layer. Subcommands share it so a
// one-off migration sees the same gate the server would.
func coreModule() fx.Option {
	return fx.Options(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			db.NewStore,
			metrics.New,
			provideMessageLimits,
			provideIdentityService,
			provideConversationService,
			provideMessageService,
			provideMigrator,
			provideGate,
			provideChatGate,
			providePresence,
			provideMediaProvider,
			provideMediaService,
			chat.NewService,
			provideAuditService,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideMessageLimits(cfg config.Config) message.Limits {
	limits := message.DefaultLimits()
	if cfg.Chat.PageDefault > 0 {
		limits.PageDefault = cfg.Chat.PageDefault
	}
	if cfg.Chat.PageMax > 0 {
		limits.PageMax = cfg.Chat.PageMax
	}
	if cfg.Chat.MaxTextRunes > 0 {
		limits.MaxTextRunes = cfg.Chat.MaxTextRunes
	}
	if cfg.Chat.ImageLabel != "" {
		limits.ImageLabel = cfg.Chat.ImageLabel
	}
	if cfg.Chat.FileLabel != "" {
		limits.FileLabel = cfg.Chat.FileLabel
	}
	return limits
}

func provideIdentityService(log *slog.Logger, store *db.PoolStore) *identity.Service {
	return identity.NewService(log, store)
}

func provideConversationService(log *slog.Logger, store *db.PoolStore) *conversation.Service {
	return conversation.NewService(log, store)
}

func provideMessageService(log *slog.Logger, store *db.PoolStore, limits message.Limits) message.Service {
	return message.NewService(log, store, limits)
}

func provideMigrator(log *slog.Logger, pool *pgxpool.Pool) *db.Migrator {
	return db.NewMigrator(log, pool)
}

func provideGate(log *slog.Logger, cfg config.Config, store *db.PoolStore, migrator *db.Migrator, limits message.Limits, m *metrics.Metrics) (*schema.Gate, error) {
	cooldown, err := cfg.Chat.MigrateCooldownValue()
	if err != nil {
		return nil, err
	}
	healer := schema.NewHealer(log, store.Pool(), limits)
	return schema.NewGate(log, schema.NewInspector(store), migrator, healer, schema.GateOptions{
		AutoMigrate: cfg.Chat.AutoMigrate,
		Cooldown:    cooldown,
		Observer:    m,
	}), nil
}

func provideChatGate(gate *schema.Gate) chat.Gate { return gate }

func providePresence(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (*presence.State, error) {
	pcfg := presence.DefaultConfig()
	var err error
	if pcfg.ActiveWindow, err = cfg.Chat.ActiveWindowValue(); err != nil {
		return nil, err
	}
	if pcfg.OnlineWindow, err = cfg.Chat.OnlineWindowValue(); err != nil {
		return nil, err
	}
	if pcfg.HeartbeatTTL, err = cfg.Chat.PresenceTTLValue(); err != nil {
		return nil, err
	}
	if pcfg.VersionTTL, err = cfg.Chat.VersionTTLValue(); err != nil {
		return nil, err
	}
	// The caches run janitor goroutines until this context is cancelled.
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{OnStop: func(context.Context) error { cancel(); return nil }})
	return presence.New(ctx, log, pcfg), nil
}

func provideMediaProvider(cfg config.Config) (*localfs.Provider, error) {
	provider, err := localfs.New(cfg.Media.DataRoot)
	if err != nil {
		return nil, fmt.Errorf("media storage: %w", err)
	}
	return provider, nil
}

func provideMediaService(log *slog.Logger, cfg config.Config, provider *localfs.Provider) (*media.Service, error) {
	maxBytes, err := cfg.Media.MaxBytesValue()
	if err != nil {
		return nil, err
	}
	ttl, err := cfg.Media.URLTTLValue()
	if err != nil {
		return nil, err
	}
	signer, err := media.NewSigner(cfg.Media.SigningSecret)
	if err != nil {
		return nil, err
	}
	allowlist, err := media.NewAllowlist(cfg.Media.Allowed)
	if err != nil {
		return nil, err
	}
	return media.NewService(log, provider, signer, media.Options{
		MaxBytes:  maxBytes,
		Allowlist: allowlist,
		URLTTL:    ttl,
		BaseURL:   cfg.Media.PublicBaseURL,
	}), nil
}

func provideAuditService(log *slog.Logger, svc *chat.Service, cfg config.Config) (*audit.Service, error) {
	return audit.NewService(log, svc, cfg.Chat.UnreadAuditSchedule)
}

func adminClaims(cfg config.AdminConfig) identity.Claims {
	return identity.Claims{
		Ref:         cfg.Username,
		Username:    cfg.Username,
		Email:       cfg.Email,
		DisplayName: cfg.DisplayName,
		AvatarURL:   cfg.AvatarURL,
	}
}
