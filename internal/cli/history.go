package cli

import (
	"github.com/spf13/cobra"
)

// NewHistoryCmd создаёт группу команд для истории run на агенте.
func NewHistoryCmd(env *Env) *cobra.Command {
	var agentName string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show run history stored by an agent",
	}

	cmd.PersistentFlags().StringVar(&agentName, "agent", "", "Agent name or URL (default: first configured)")

	cmd.AddCommand(
		newHistoryListCmd(env, &agentName),
		newHistoryShowCmd(env, &agentName),
	)

	return cmd
}

func newHistoryListCmd(env *Env, agentName *string) *cobra.Command {
	var pipeline string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := env.Client(*agentName)
			if err != nil {
				return err
			}

			runs, err := client.ListRuns(cmd.Context(), ListRunsOpts{
				Pipeline: pipeline,
				Status:   status,
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "PIPELINE", "STATUS", "TRIGGER", "STARTED", "FINISHED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{r.ID.String(), r.Pipeline, r.Status, r.Trigger, formatTime(r.StartedAt), formatTime(r.FinishedAt)}
			}

			env.Output().Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&pipeline, "pipeline", "", "Filter by pipeline name")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (RUNNING, SUCCEEDED, FAILED, CANCELLED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newHistoryShowCmd(env *Env, agentName *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a run and its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := env.Client(*agentName)
			if err != nil {
				return err
			}

			run, err := client.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tasks, err := client.ListTasks(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := env.Output()
			if env.JSON {
				out.JSON(map[string]any{"run": run, "tasks": tasks})
				return nil
			}

			out.Table(
				[]string{"ID", "PIPELINE", "STATUS", "TRIGGER", "STARTED", "FINISHED"},
				[][]string{{run.ID.String(), run.Pipeline, run.Status, run.Trigger, formatTime(run.StartedAt), formatTime(run.FinishedAt)}},
			)
			if run.Error != "" {
				out.Error(run.Error)
			}

			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = []string{t.Name, t.Type, t.Status, formatTime(t.StartedAt), firstLine(t.Error)}
			}
			out.Text("\n")
			out.Table([]string{"TASK", "TYPE", "STATUS", "STARTED", "ERROR"}, rows)
			return nil
		},
	}

	return cmd
}
