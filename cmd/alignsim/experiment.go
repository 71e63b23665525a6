package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alignsim/alignsim/internal/experiment"
)

func experimentCmd() *cobra.Command {
	var (
		count    int
		parallel int
		planID   int64
		turns    int
		goal     string
		stop     bool
	)
	cmd := &cobra.Command{
		Use:   "experiment",
		Short: "Run a batch of simulations and report misalignment statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			conn, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx := context.Background()
			registry, err := buildRegistry(ctx, cfg, conn)
			if err != nil {
				return err
			}

			runCfg := baseRunConfig(cfg)
			if cmd.Flags().Changed("plan") {
				runCfg.PlanID = &planID
			}
			if turns > 0 {
				runCfg.MaxTurns = turns
			}
			if goal != "" {
				runCfg.ImprovementGoal = goal
			}
			if cmd.Flags().Changed("stop-on-misalignment") {
				runCfg.StopOnMisalignment = stop
			}

			report, states, err := experiment.NewDriver(registry, parallel).Run(ctx, runCfg, count)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "runs: %d  finished: %d  errored: %d  cancelled: %d\n",
				report.Total, report.Finished, report.Errored, report.Cancelled)
			fmt.Fprintf(out, "misaligned runs: %d  total issues: %d  mean turns: %.2f\n",
				report.MisalignedRuns, report.TotalIssues, report.MeanTurns)
			for _, state := range states {
				fmt.Fprintf(out, "  %s  %-10s turns=%d issues=%d\n",
					state.RunID, styledStatus(state.Status), len(state.Turns), len(state.AlignmentIssues))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 3, "number of simulations to run")
	cmd.Flags().IntVar(&parallel, "parallel", experiment.DefaultParallelism, "maximum concurrent runs")
	cmd.Flags().Int64Var(&planID, "plan", 0, "plan id to bind the simulations to")
	cmd.Flags().IntVar(&turns, "turns", 0, "maximum turns per run")
	cmd.Flags().StringVar(&goal, "goal", "", "improvement goal for the simulated user")
	cmd.Flags().BoolVar(&stop, "stop-on-misalignment", false, "finish each run on the first misaligned verdict")
	return cmd
}
