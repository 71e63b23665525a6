package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alignsim/alignsim/internal/plan"
)

func planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Manage plans in the local store",
	}
	cmd.AddCommand(planCreateCmd())
	cmd.AddCommand(planListCmd())
	cmd.AddCommand(planShowCmd())
	cmd.AddCommand(planAddTaskCmd())
	return cmd
}

func planCreateCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a new plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()

			id, err := plan.NewStore(conn).CreatePlan(context.Background(), args[0], description)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created plan %d\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "plan description")
	return cmd
}

func planListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()

			plans, err := plan.NewStore(conn).ListPlans(context.Background())
			if err != nil {
				return err
			}
			if len(plans) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no plans")
				return nil
			}
			for _, p := range plans {
				fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s (%d tasks)\n", p.ID, p.Title, p.TaskCount)
			}
			return nil
		},
	}
}

func planShowCmd() *cobra.Command {
	var (
		depth int
		nodes int
	)
	cmd := &cobra.Command{
		Use:   "show <plan-id>",
		Short: "Print a plan outline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var planID int64
			if _, err := fmt.Sscanf(args[0], "%d", &planID); err != nil {
				return fmt.Errorf("invalid plan id %q", args[0])
			}
			conn, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()

			tree, err := plan.NewStore(conn).Tree(context.Background(), planID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tree.Outline(depth, nodes))
			return nil
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 4, "maximum outline depth")
	cmd.Flags().IntVar(&nodes, "nodes", 80, "maximum outline nodes")
	return cmd
}

func planAddTaskCmd() *cobra.Command {
	var (
		parentID    int64
		instruction string
	)
	cmd := &cobra.Command{
		Use:   "add-task <plan-id> <name>",
		Short: "Append a task to a plan",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var planID int64
			if _, err := fmt.Sscanf(args[0], "%d", &planID); err != nil {
				return fmt.Errorf("invalid plan id %q", args[0])
			}
			conn, closeFn, err := openDB()
			if err != nil {
				return err
			}
			defer closeFn()

			var parent *int64
			if cmd.Flags().Changed("parent") {
				parent = &parentID
			}
			id, err := plan.NewStore(conn).CreateTask(context.Background(), planID, parent, args[1], instruction)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created task %d\n", id)
			return nil
		},
	}
	cmd.Flags().Int64Var(&parentID, "parent", 0, "parent task id")
	cmd.Flags().StringVar(&instruction, "instruction", "", "task instruction")
	return cmd
}
