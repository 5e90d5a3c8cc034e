package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/marketline/marketchat/internal/audit"
	"github.com/marketline/marketchat/internal/chat"
	"github.com/marketline/marketchat/internal/config"
	"github.com/marketline/marketchat/internal/handlers"
	schemachecker "github.com/marketline/marketchat/internal/healthcheck/checkers/schema"
	storagechecker "github.com/marketline/marketchat/internal/healthcheck/checkers/storage"
	"github.com/marketline/marketchat/internal/schema"
	"github.com/marketline/marketchat/internal/server"
	"github.com/marketline/marketchat/internal/storage/providers/localfs"
)

const startupGateTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	app := fx.New(
		coreModule(),
		fx.Provide(
			provideServerHandler(provideChatHandler),
			provideServerHandler(handlers.NewMediaHandler),
			provideServerHandler(provideHealthHandler),
			provideServerHandler(handlers.NewMetricsHandler),
			provideServer,
		),
		fx.Invoke(
			startAudit,
			startServer,
		),
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideChatHandler(log *slog.Logger, svc *chat.Service, cfg config.Config) (*handlers.ChatHandler, error) {
	maxBytes, err := cfg.Media.MaxBytesValue()
	if err != nil {
		return nil, err
	}
	return handlers.NewChatHandler(log, svc, maxBytes), nil
}

func provideHealthHandler(log *slog.Logger, gate *schema.Gate, pool *pgxpool.Pool, provider *localfs.Provider) *handlers.HealthHandler {
	return handlers.NewHealthHandler(log,
		storagechecker.NewChecker(log,
			storagechecker.Target{Name: "postgres", Pinger: pool},
			storagechecker.Target{Name: "media", Pinger: provider},
		),
		schemachecker.NewChecker(gate),
	)
}

type serverParams struct {
	fx.In

	Logger   *slog.Logger
	Config   config.Config
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) (*server.Server, error) {
	cooldown, err := params.Config.Chat.MigrateCooldownValue()
	if err != nil {
		return nil, err
	}
	return server.NewServer(params.Logger, server.Options{
		Addr:           params.Config.Server.Addr,
		AuthMode:       params.Config.Auth.Mode,
		JWTSecret:      params.Config.Auth.JWTSecret,
		RateLimitRPS:   params.Config.Server.RateLimitRPS,
		RateLimitBurst: params.Config.Server.RateLimitBurst,
		RetryAfter:     cooldown,
	}, params.Handlers...), nil
}

func startAudit(lc fx.Lifecycle, svc *audit.Service) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return svc.Start() },
		OnStop:  svc.Stop,
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config, gate *schema.Gate, svc *chat.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// A gate that is not ready yet only degrades chat routes; they
			// retry on their own once the cooldown passes.
			gateCtx, cancel := context.WithTimeout(ctx, startupGateTimeout)
			if err := gate.Ensure(gateCtx); err != nil {
				logger.Warn("chat schema not ready at startup", slog.Any("error", err))
			}
			cancel()
			if _, err := svc.Bootstrap(ctx, adminClaims(cfg.Admin)); err != nil {
				return fmt.Errorf("bootstrap admin: %w", err)
			}
			logger.Info("marketchat listening", slog.String("addr", cfg.Server.Addr))
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
