package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alignsim/alignsim/internal/sim"
)

func runCmd() *cobra.Command {
	var (
		planID int64
		turns  int
		goal   string
		stop   bool
		render bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation to completion and print the transcript",
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

			created, err := registry.CreateRun(runCfg)
			if err != nil {
				return err
			}
			log.Info().Str("run_id", created.RunID).Msg("starting simulation")

			state, err := registry.AutoRun(ctx, created.RunID)
			if err != nil {
				return err
			}

			if render {
				return renderTranscript(cmd.OutOrStdout(), state)
			}
			fmt.Fprintln(cmd.OutOrStdout(), sim.FormatRunSummary(state))
			if state.Status == sim.StatusError {
				return fmt.Errorf("simulation run ended with error: %s", state.Error)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&planID, "plan", 0, "plan id to bind the simulation to")
	cmd.Flags().IntVar(&turns, "turns", 0, "maximum turns for this run")
	cmd.Flags().StringVar(&goal, "goal", "", "improvement goal for the simulated user")
	cmd.Flags().BoolVar(&stop, "stop-on-misalignment", false, "finish the run on the first misaligned verdict")
	cmd.Flags().BoolVar(&render, "render", false, "render the transcript as markdown")
	return cmd
}
