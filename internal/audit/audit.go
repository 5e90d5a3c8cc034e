// Package audit periodically reconciles unread counters with the messages they
// summarize.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/marketline/marketchat/internal/message"
)

// DefaultTimeout bounds one reconciliation run.
const DefaultTimeout = 2 * time.Minute

// Auditor recomputes unread counters. An empty conversation id means all.
type Auditor interface {
	AuditUnread(ctx context.Context, conversationID string) ([]message.UnreadDrift, error)
}

type Service struct {
	auditor  Auditor
	schedule string
	cron     *cron.Cron
	timeout  time.Duration
	logger   *slog.Logger
}

// NewService validates schedule (standard cron or a descriptor such as
// "@every 15m"). An empty schedule disables the job.
func NewService(log *slog.Logger, auditor Auditor, schedule string) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}
	schedule = strings.TrimSpace(schedule)
	if schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return nil, fmt.Errorf("unread audit schedule %q: %w", schedule, err)
		}
	}
	logger := log.With(slog.String("service", "audit"))
	cl := cronLogger{logger: logger}
	return &Service{
		auditor:  auditor,
		schedule: schedule,
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		timeout:  DefaultTimeout,
		logger:   logger,
	}, nil
}

// Start schedules the job. It is a no-op when the schedule is empty.
func (s *Service) Start() error {
	if s.schedule == "" {
		s.logger.Info("unread audit disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.tick); err != nil {
		return fmt.Errorf("schedule unread audit: %w", err)
	}
	s.cron.Start()
	s.logger.Info("unread audit scheduled", slog.String("schedule", s.schedule))
	return nil
}

// Stop waits for a running job until ctx is done.
func (s *Service) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.RunOnce(ctx, ""); err != nil {
		s.logger.Warn("unread audit failed", slog.Any("error", err))
	}
}

// RunOnce audits one conversation, or every conversation when conversationID is empty.
func (s *Service) RunOnce(ctx context.Context, conversationID string) ([]message.UnreadDrift, error) {
	start := time.Now()
	drift, err := s.auditor.AuditUnread(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("unread audit finished",
		slog.Int("corrected", len(drift)),
		slog.Duration("took", time.Since(start)),
	)
	return drift, nil
}

// cronLogger routes cron's logr-style output through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{slog.Any("error", err)}, keysAndValues...)...)
}
