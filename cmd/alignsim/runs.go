package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alignsim/alignsim/internal/sim"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect archived simulation runs",
	}
	cmd.AddCommand(runsListCmd())
	cmd.AddCommand(runsShowCmd())
	cmd.AddCommand(runsExportCmd())
	return cmd
}

func runsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()

			archive := sim.NewSQLArchive(conn)
			runs, err := archive.ListRuns(context.Background())
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no archived runs")
				return nil
			}
			for _, state := range runs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s  turns=%d  issues=%d  %s\n",
					state.RunID,
					styledStatus(state.Status),
					state.Config.MaxTurns,
					len(state.AlignmentIssues),
					state.CreatedAt.Format(time.RFC3339),
				)
			}
			return nil
		},
	}
}

func runsShowCmd() *cobra.Command {
	var render bool
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show an archived run transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()

			state, err := sim.NewSQLArchive(conn).LoadRun(context.Background(), args[0])
			if err != nil {
				return err
			}
			if render {
				return renderTranscript(cmd.OutOrStdout(), state)
			}
			fmt.Fprintln(cmd.OutOrStdout(), sim.FormatRunSummary(state))
			return nil
		},
	}
	cmd.Flags().BoolVar(&render, "render", false, "render the transcript as markdown")
	return cmd
}

func runsExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <run-id>",
		Short: "Print the plain-text transcript of an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()

			state, err := sim.NewSQLArchive(conn).LoadRun(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), sim.FormatRunSummary(state))
			return nil
		},
	}
}
