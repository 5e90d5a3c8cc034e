package healthcheck

import (
	"context"
	"sync"
)

const (
	// StatusOK indicates check passed.
	StatusOK = "ok"
	// StatusWarn indicates check completed with warning.
	StatusWarn = "warn"
	// StatusError indicates check failed.
	StatusError = "error"
	// StatusUnknown indicates check result is not yet known.
	StatusUnknown = "unknown"
)

// CheckResult is one runtime check item produced by a checker.
type CheckResult struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Status   string         `json:"status"`
	Summary  string         `json:"summary"`
	Detail   string         `json:"detail,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Checker evaluates one or more runtime checks for the process.
type Checker interface {
	ListChecks(ctx context.Context) []CheckResult
}

// Report aggregates the results of every checker.
type Report struct {
	Status string        `json:"status"`
	Checks []CheckResult `json:"checks"`
}

// Healthy reports whether nothing failed. Warnings and unknown checks still count
// as serving.
func (r Report) Healthy() bool {
	return r.Status != StatusError
}

var severity = map[string]int{
	StatusOK:      0,
	StatusUnknown: 1,
	StatusWarn:    2,
	StatusError:   3,
}

// Run evaluates checkers concurrently and keeps their order in the report.
func Run(ctx context.Context, checkers ...Checker) Report {
	results := make([][]CheckResult, len(checkers))
	var wg sync.WaitGroup
	for i, checker := range checkers {
		if checker == nil {
			continue
		}
		wg.Add(1)
		go func(i int, checker Checker) {
			defer wg.Done()
			results[i] = checker.ListChecks(ctx)
		}(i, checker)
	}
	wg.Wait()

	report := Report{Status: StatusOK, Checks: []CheckResult{}}
	for _, items := range results {
		for _, item := range items {
			if severity[item.Status] > severity[report.Status] {
				report.Status = item.Status
			}
			report.Checks = append(report.Checks, item)
		}
	}
	return report
}
