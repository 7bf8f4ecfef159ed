package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Show and edit the local task list",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		renderTasks(cmd.OutOrStdout(), a.session.Tasks.List())
		return nil
	},
}

var tasksDeleteCmd = &cobra.Command{
	Use:   "delete <index>",
	Short: "Delete the task at index",
	Long: `Delete one task by its position in "tasks list".

Examples:
  voicetask tasks delete 0`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid index %q: %w", args[0], err)
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		msg, err := a.session.DeleteTask(index)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(msg))
		return nil
	},
}

var tasksClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(a.session.ClearTasks()))
		return nil
	},
}

func init() {
	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksDeleteCmd)
	tasksCmd.AddCommand(tasksClearCmd)
}
