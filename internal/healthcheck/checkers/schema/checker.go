package schemachecker

import (
	"context"

	"github.com/marketline/marketchat/internal/healthcheck"
	"github.com/marketline/marketchat/internal/schema"
)

const checkTypeSchema = "schema"

// StateReader exposes the gate's last known state.
type StateReader interface {
	State() (schema.State, schema.Report)
}

// Checker reports the chat schema gate without triggering a check.
type Checker struct {
	gate StateReader
}

func NewChecker(gate StateReader) *Checker {
	return &Checker{gate: gate}
}

func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	item := healthcheck.CheckResult{
		ID:   checkTypeSchema + ".chat",
		Type: checkTypeSchema,
	}
	if c.gate == nil {
		item.Status = healthcheck.StatusWarn
		item.Summary = "Schema gate is not configured."
		return []healthcheck.CheckResult{item}
	}
	state, report := c.gate.State()
	item.Metadata = map[string]any{"state": string(state)}
	switch state {
	case schema.StateReady:
		item.Status = healthcheck.StatusOK
		item.Summary = "Chat schema is ready."
	case schema.StateChecking, schema.StateMigrating:
		item.Status = healthcheck.StatusWarn
		item.Summary = "Chat schema is being checked or repaired."
	case schema.StateMigrationRequired:
		item.Status = healthcheck.StatusError
		item.Summary = "Chat schema needs a migration."
		item.Detail = report.String()
	default:
		item.Status = healthcheck.StatusUnknown
		item.Summary = "Chat schema has not been checked yet."
	}
	return []healthcheck.CheckResult{item}
}
