package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/marketline/marketchat/internal/auth"
	"github.com/marketline/marketchat/internal/handlers"
)

// Handler registers a group of routes.
type Handler interface {
	Register(e *echo.Echo)
}

type Options struct {
	Addr           string
	AuthMode       string
	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int
	// RetryAfter is advertised when the schema gate refuses a request.
	RetryAfter time.Duration
}

type Server struct {
	echo *echo.Echo
	addr string
}

func NewServer(log *slog.Logger, opts Options, routes ...Handler) *Server {
	addr := opts.Addr
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handlers.ErrorHandler(log, opts.RetryAfter)
	e.Validator = handlers.NewRequestValidator()
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", c.RealIP()),
			)
			return nil
		},
	}))
	if opts.RateLimitRPS > 0 {
		e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Skipper: func(c echo.Context) bool {
				return !strings.HasPrefix(c.Request().URL.Path, "/chat/")
			},
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(opts.RateLimitRPS),
				Burst:     opts.RateLimitBurst,
				ExpiresIn: 3 * time.Minute,
			}),
			IdentifierExtractor: rateLimitKey,
		}))
	}
	e.Use(auth.Middleware(opts.AuthMode, opts.JWTSecret, func(c echo.Context) bool {
		return shouldSkipAuth(c.Request().URL.Path)
	}))

	for _, h := range routes {
		if h != nil {
			h.Register(e)
		}
	}

	return &Server{
		echo: e,
		addr: addr,
	}
}

// rateLimitKey buckets by the caller reference when one is presented, else by IP.
func rateLimitKey(c echo.Context) (string, error) {
	if ref := strings.TrimSpace(c.Request().Header.Get(auth.HeaderUserRef)); ref != "" {
		return "ref:" + strings.ToLower(ref), nil
	}
	if authz := c.Request().Header.Get(echo.HeaderAuthorization); authz != "" {
		return "token:" + authz, nil
	}
	return "ip:" + c.RealIP(), nil
}

func shouldSkipAuth(path string) bool {
	switch path {
	case "/ping", "/health", "/metrics":
		return true
	}
	return strings.HasPrefix(path, "/media/")
}

func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP lets tests drive the full middleware chain.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
