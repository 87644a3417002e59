// Package multi builds the 1:N, timeline, and N×N comparison modes on
// top of the diff engine. It never runs enrichment; inputs are compared
// exactly as handed in.
package multi

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/sbomtools/sbomdiff/common"
	"github.com/sbomtools/sbomdiff/diffing"
	"github.com/sbomtools/sbomdiff/model"
)

// TargetDiff is one baseline-vs-target outcome.
type TargetDiff struct {
	Target string
	Result *diffing.DiffResult
}

// MultiResult is the 1:N comparison outcome, ordered like the targets.
type MultiResult struct {
	Baseline string
	Diffs    []TargetDiff
}

// TimelineStep is one consecutive pair in a timeline.
type TimelineStep struct {
	From    string
	To      string
	Result  *diffing.DiffResult
	Changes int
	// Drift accumulates the absolute component-change deltas up to and
	// including this step.
	Drift int
}

// MatrixCell is one unordered pair in the N×N comparison; Score is
// symmetric so only row < column cells are materialized.
type MatrixCell struct {
	Row    int
	Column int
	Result *diffing.DiffResult
}

type MatrixResult struct {
	Names []string
	Cells []MatrixCell
}

// DiffMulti diffs every target against one baseline. The baseline is
// parsed once by the caller and its matcher state is reused across
// targets; pairwise diffs fan out concurrently.
func DiffMulti(ctx context.Context, baseline *model.NormalizedSbom, targets []*model.NormalizedSbom, names []string, cfg diffing.DiffConfig) (*MultiResult, error) {
	engine, err := diffing.NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	stopwatch := common.Stopwatch("multi-diff of %d targets", len(targets))
	defer stopwatch.Debug()

	result := &MultiResult{
		Baseline: baseline.Meta.Name,
		Diffs:    make([]TargetDiff, len(targets)),
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(common.OptimalWorkerCount())
	for at := range targets {
		at := at
		group.Go(func() error {
			diff, err := engine.Diff(groupCtx, baseline, targets[at])
			if err != nil {
				return err
			}
			result.Diffs[at] = TargetDiff{Target: nameAt(names, at), Result: diff}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// Timeline diffs consecutive pairs and tracks cumulative drift. Steps
// run sequentially: each step's drift depends on the previous one and
// timelines are usually short.
func Timeline(ctx context.Context, sboms []*model.NormalizedSbom, names []string, cfg diffing.DiffConfig) ([]TimelineStep, error) {
	if len(sboms) < 2 {
		return nil, fmt.Errorf("timeline needs at least two documents, got %d", len(sboms))
	}
	engine, err := diffing.NewEngine(cfg)
	if err != nil {
		return nil, err
	}

	steps := make([]TimelineStep, 0, len(sboms)-1)
	drift := 0
	for at := 1; at < len(sboms); at++ {
		diff, err := engine.Diff(ctx, sboms[at-1], sboms[at])
		if err != nil {
			return nil, err
		}
		summary := diff.Summary()
		changes := summary.Added + summary.Removed + summary.Modified
		drift += changes
		steps = append(steps, TimelineStep{
			From:    nameAt(names, at-1),
			To:      nameAt(names, at),
			Result:  diff,
			Changes: changes,
			Drift:   drift,
		})
	}
	return steps, nil
}

// Matrix diffs all unordered pairs. Cells fan out concurrently and come
// back ordered by (row, column).
func Matrix(ctx context.Context, sboms []*model.NormalizedSbom, names []string, cfg diffing.DiffConfig) (*MatrixResult, error) {
	if len(sboms) < 2 {
		return nil, fmt.Errorf("matrix needs at least two documents, got %d", len(sboms))
	}
	engine, err := diffing.NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	stopwatch := common.Stopwatch("matrix of %d documents (%d pairs)", len(sboms), len(sboms)*(len(sboms)-1)/2)
	defer stopwatch.Debug()

	cells := make([]MatrixCell, 0, len(sboms)*(len(sboms)-1)/2)
	for row := 0; row < len(sboms); row++ {
		for column := row + 1; column < len(sboms); column++ {
			cells = append(cells, MatrixCell{Row: row, Column: column})
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(common.OptimalWorkerCount())
	for at := range cells {
		at := at
		group.Go(func() error {
			diff, err := engine.Diff(groupCtx, sboms[cells[at].Row], sboms[cells[at].Column])
			if err != nil {
				return err
			}
			cells[at].Result = diff
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	resolved := make([]string, len(sboms))
	for at := range sboms {
		resolved[at] = nameAt(names, at)
	}
	return &MatrixResult{Names: resolved, Cells: cells}, nil
}

func nameAt(names []string, at int) string {
	if at < len(names) && len(names[at]) > 0 {
		return names[at]
	}
	return fmt.Sprintf("sbom-%d", at)
}
