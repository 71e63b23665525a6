// Package experiment drives batches of simulation runs and aggregates their
// alignment outcomes.
package experiment

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/alignsim/alignsim/internal/logging"
	"github.com/alignsim/alignsim/internal/sim"
)

// DefaultParallelism bounds concurrent runs in a batch.
const DefaultParallelism = 3

// Report aggregates the outcomes of one experiment batch.
type Report struct {
	Total          int     `json:"total"`
	Finished       int     `json:"finished"`
	Errored        int     `json:"errored"`
	Cancelled      int     `json:"cancelled"`
	MisalignedRuns int     `json:"misaligned_runs"`
	TotalIssues    int     `json:"total_issues"`
	MeanTurns      float64 `json:"mean_turns"`
}

// Driver runs batches of simulations against one registry.
type Driver struct {
	registry *sim.Registry
	parallel int
	log      zerolog.Logger
}

// NewDriver builds a driver with bounded parallelism (0 uses the default).
func NewDriver(registry *sim.Registry, parallel int) *Driver {
	if parallel <= 0 {
		parallel = DefaultParallelism
	}
	return &Driver{
		registry: registry,
		parallel: parallel,
		log:      logging.Component("experiment"),
	}
}

// Run executes count simulations with the same base config and returns the
// aggregate report plus the final state of every run. Turn failures are
// captured on the run states; only registry-level failures abort the batch.
func (d *Driver) Run(ctx context.Context, base sim.RunConfig, count int) (*Report, []*sim.RunState, error) {
	if count <= 0 {
		return nil, nil, fmt.Errorf("experiment count must be positive")
	}

	states := make([]*sim.RunState, count)
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.parallel)
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			created, err := d.registry.CreateRun(base)
			if err != nil {
				return fmt.Errorf("create run %d: %w", i+1, err)
			}
			d.log.Info().Str("run_id", created.RunID).Int("slot", i+1).Msg("experiment run started")

			final, err := d.registry.AutoRun(ctx, created.RunID)
			if err != nil {
				return fmt.Errorf("auto-run %s: %w", created.RunID, err)
			}
			mu.Lock()
			states[i] = final
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return Aggregate(states), states, nil
}

// Aggregate computes the report for a set of finished run states.
func Aggregate(states []*sim.RunState) *Report {
	report := &Report{Total: len(states)}
	turns := 0
	for _, state := range states {
		switch state.Status {
		case sim.StatusFinished:
			report.Finished++
		case sim.StatusError:
			report.Errored++
		case sim.StatusCancelled:
			report.Cancelled++
		}
		if len(state.AlignmentIssues) > 0 {
			report.MisalignedRuns++
		}
		report.TotalIssues += len(state.AlignmentIssues)
		turns += len(state.Turns)
	}
	if report.Total > 0 {
		report.MeanTurns = float64(turns) / float64(report.Total)
	}
	return report
}
