package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrMigrationRequired means the chat tables are not usable and healing is
// disabled, failed, or cooling down.
var ErrMigrationRequired = errors.New("chat schema migration required")

// State is the readiness of the chat schema in this process.
type State string

const (
	StateUnknown           State = "unknown"
	StateChecking          State = "checking"
	StateReady             State = "ready"
	StateMigrationRequired State = "migration_required"
	StateMigrating         State = "migrating"
)

// DefaultCooldown is how long callers fail fast after a failed heal.
const DefaultCooldown = 30 * time.Second

// Migrator applies versioned migrations.
type Migrator interface {
	Up(ctx context.Context) error
}

// Fixer repairs tables migrations cannot reshape.
type Fixer interface {
	Heal(ctx context.Context) error
}

// Observer is told about state changes and heal outcomes.
type Observer interface {
	GateState(state string)
	HealAttempt(result string)
}

type GateOptions struct {
	AutoMigrate bool
	Cooldown    time.Duration
	Now         func() time.Time
	Observer    Observer
}

// Gate guards chat operations until the schema is known to be usable. Once
// ready it stays ready for the life of the process.
type Gate struct {
	inspector *Inspector
	migrator  Migrator
	fixer     Fixer
	opts      GateOptions
	group     singleflight.Group
	logger    *slog.Logger

	mu       sync.Mutex
	state    State
	report   Report
	failedAt time.Time
}

func NewGate(log *slog.Logger, inspector *Inspector, migrator Migrator, fixer Fixer, opts GateOptions) *Gate {
	if log == nil {
		log = slog.Default()
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gate{
		inspector: inspector,
		migrator:  migrator,
		fixer:     fixer,
		opts:      opts,
		state:     StateUnknown,
		logger:    log.With(slog.String("service", "schema_gate")),
	}
}

// State returns the current readiness and the last inspection report.
func (g *Gate) State() (State, Report) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state, g.report
}

// Ensure returns nil once the schema is ready. Concurrent callers share one
// attempt; after a failure callers fail fast until the cooldown passes.
func (g *Gate) Ensure(ctx context.Context) error {
	g.mu.Lock()
	switch {
	case g.state == StateReady:
		g.mu.Unlock()
		return nil
	case g.state == StateMigrationRequired && g.opts.Now().Sub(g.failedAt) < g.opts.Cooldown:
		report := g.report
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrMigrationRequired, report)
	}
	g.mu.Unlock()

	_, err, _ := g.group.Do("ensure", func() (any, error) {
		return nil, g.attempt(context.WithoutCancel(ctx))
	})
	return err
}

func (g *Gate) setState(state State, report Report) {
	g.mu.Lock()
	g.state = state
	g.report = report
	if state == StateMigrationRequired {
		g.failedAt = g.opts.Now()
	}
	g.mu.Unlock()
	if g.opts.Observer != nil {
		g.opts.Observer.GateState(string(state))
	}
}

func (g *Gate) observeHeal(result string) {
	if g.opts.Observer != nil {
		g.opts.Observer.HealAttempt(result)
	}
}

func (g *Gate) attempt(ctx context.Context) error {
	g.mu.Lock()
	if g.state == StateReady {
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()
	g.setState(StateChecking, Report{})

	report, err := g.inspector.Check(ctx)
	if err != nil {
		g.setState(StateUnknown, Report{})
		return err
	}
	if report.Ready() {
		g.setState(StateReady, report)
		g.logger.Info("chat schema ready")
		return nil
	}
	g.logger.Warn("chat schema not ready", slog.String("problems", report.String()))
	if !g.opts.AutoMigrate {
		g.setState(StateMigrationRequired, report)
		return fmt.Errorf("%w: %s", ErrMigrationRequired, report)
	}
	return g.heal(ctx, report)
}

type healStep struct {
	name string
	run  func(context.Context) error
}

func (g *Gate) heal(ctx context.Context, report Report) error {
	g.setState(StateMigrating, report)

	var steps []healStep
	if g.migrator != nil {
		steps = append(steps, healStep{name: "migrate", run: g.migrator.Up})
	}
	if g.fixer != nil {
		steps = append(steps, healStep{name: "rebuild", run: g.fixer.Heal})
	}

	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			g.logger.Error("schema heal step failed", slog.String("step", step.name), slog.Any("error", err))
			g.setState(StateMigrationRequired, report)
			g.observeHeal("failed")
			return fmt.Errorf("%w: %s failed: %v", ErrMigrationRequired, step.name, err)
		}
		next, err := g.inspector.Check(ctx)
		if err != nil {
			g.setState(StateMigrationRequired, report)
			g.observeHeal("failed")
			return fmt.Errorf("%w: re-check failed: %v", ErrMigrationRequired, err)
		}
		report = next
		if report.Ready() {
			g.setState(StateReady, report)
			g.observeHeal("success")
			g.logger.Info("chat schema healed", slog.String("step", step.name))
			return nil
		}
	}
	g.setState(StateMigrationRequired, report)
	g.observeHeal("failed")
	return fmt.Errorf("%w: %s", ErrMigrationRequired, report)
}

// Repair checks and heals immediately, ignoring AutoMigrate and the cooldown.
func (g *Gate) Repair(ctx context.Context) (Report, error) {
	_, err, _ := g.group.Do("ensure", func() (any, error) {
		g.setState(StateChecking, Report{})
		report, err := g.inspector.Check(ctx)
		if err != nil {
			g.setState(StateUnknown, Report{})
			return nil, err
		}
		if report.Ready() {
			g.setState(StateReady, report)
			return nil, nil
		}
		return nil, g.heal(ctx, report)
	})
	_, report := g.State()
	return report, err
}
