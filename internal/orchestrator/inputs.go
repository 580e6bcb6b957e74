package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/jacopone/brownkit-sub001/internal/gates"
	"github.com/jacopone/brownkit-sub001/internal/report"
	"github.com/jacopone/brownkit-sub001/internal/types"
)

// collectInputs gathers current metrics and debt for gate evaluation. The
// two walks run concurrently; validation results come from the state.
func (s *session) collectInputs(ctx context.Context) (gates.Inputs, error) {
	return s.w.collectInputs(ctx, s.state)
}

func (w *Workflow) collectInputs(ctx context.Context, state *types.BrownfieldState) (gates.Inputs, error) {
	in := gates.Inputs{Validation: state.Validation}
	root := w.layout.Root

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := w.metrics.Collect(gctx, root)
		if err != nil {
			return fmt.Errorf("collecting metrics: %w", err)
		}
		in.Metrics = m
		return nil
	})
	g.Go(func() error {
		d, err := w.debt.Analyze(gctx, root)
		if err != nil {
			return fmt.Errorf("analyzing tech debt: %w", err)
		}
		in.Debt = d
		return nil
	})
	if err := g.Wait(); err != nil {
		return gates.Inputs{}, err
	}
	return in, nil
}

// reportsDir is the absolute directory phase reports are written to.
func (w *Workflow) reportsDir() string {
	if filepath.IsAbs(w.settings.ReportsDir) {
		return w.settings.ReportsDir
	}
	return filepath.Join(w.layout.Root, w.settings.ReportsDir)
}

// writeReport renders the report of a phase into the reports directory.
func (s *session) writeReport(p types.Phase, current *types.Metrics) (string, error) {
	r, err := report.Build(p, s.state, current)
	if err != nil {
		return "", err
	}
	return report.Write(s.w.reportsDir(), r)
}
