package storagechecker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/marketline/marketchat/internal/healthcheck"
)

const (
	checkTypeStorage    = "storage"
	defaultCheckTimeout = 3 * time.Second
)

// Pinger is a storage backend that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Target names one backend.
type Target struct {
	Name   string
	Pinger Pinger
}

// Checker pings every configured storage backend.
type Checker struct {
	logger  *slog.Logger
	targets []Target
	timeout time.Duration
}

// NewChecker creates a storage health checker.
func NewChecker(log *slog.Logger, targets ...Target) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:  log.With(slog.String("checker", "healthcheck_storage")),
		targets: targets,
		timeout: defaultCheckTimeout,
	}
}

// ListChecks pings each backend with a bounded timeout.
func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	if ctx == nil {
		ctx = context.Background()
	}
	results := make([]healthcheck.CheckResult, 0, len(c.targets))
	for _, target := range c.targets {
		name := strings.TrimSpace(target.Name)
		if name == "" {
			name = "default"
		}
		item := healthcheck.CheckResult{
			ID:     checkTypeStorage + "." + name,
			Type:   checkTypeStorage,
			Status: healthcheck.StatusOK,
		}
		if target.Pinger == nil {
			item.Status = healthcheck.StatusWarn
			item.Summary = fmt.Sprintf("Storage %q is not configured.", name)
			results = append(results, item)
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		start := time.Now()
		err := target.Pinger.Ping(probeCtx)
		cancel()
		latency := time.Since(start)

		item.Metadata = map[string]any{"latency_ms": latency.Milliseconds()}
		if err != nil {
			c.logger.Warn("storage healthcheck failed", slog.String("target", name), slog.Any("error", err))
			item.Status = healthcheck.StatusError
			item.Summary = fmt.Sprintf("Storage %q is not reachable.", name)
			item.Detail = err.Error()
		} else {
			item.Summary = fmt.Sprintf("Storage %q is reachable.", name)
		}
		results = append(results, item)
	}
	return results
}
