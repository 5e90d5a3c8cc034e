package schema

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/marketline/marketchat/internal/db/sqlc"
)

// ColumnLister introspects table columns.
type ColumnLister interface {
	ListTableColumns(ctx context.Context, tableNames []string) ([]sqlc.ListTableColumnsRow, error)
}

// Report is the outcome of one inspection.
type Report struct {
	Problems []string `json:"problems,omitempty"`
}

func (r Report) Ready() bool {
	return len(r.Problems) == 0
}

func (r Report) String() string {
	if r.Ready() {
		return "ready"
	}
	return strings.Join(r.Problems, "; ")
}

// Inspector compares live table shapes against the expected chat schema.
type Inspector struct {
	store ColumnLister
}

func NewInspector(store ColumnLister) *Inspector {
	return &Inspector{store: store}
}

// Check inspects every chat table concurrently. Errors are storage failures;
// shape problems are reported in the Report.
func (i *Inspector) Check(ctx context.Context) (Report, error) {
	results := make([][]string, len(shapes))
	g, gctx := errgroup.WithContext(ctx)
	for idx, shape := range shapes {
		idx, shape := idx, shape
		g.Go(func() error {
			rows, err := i.store.ListTableColumns(gctx, []string{shape.name})
			if err != nil {
				return fmt.Errorf("inspect %s: %w", shape.name, err)
			}
			results[idx] = checkTable(shape, rows)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	var report Report
	for _, problems := range results {
		report.Problems = append(report.Problems, problems...)
	}
	return report, nil
}
