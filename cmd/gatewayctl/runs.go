package main

import (
	"fmt"

	"inference-gateway/orchestrator"

	"github.com/spf13/cobra"
)

func buildRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and control in-flight runs",
	}
	cmd.AddCommand(buildRunsShowCmd(), buildRunsCancelCmd())
	return cmd
}

func buildRunsShowCmd() *cobra.Command {
	var workspaceId string

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a run's current status and its pending actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workspaceId == "" {
				return fmt.Errorf("--workspace-id is required")
			}
			storage, err := openStorage()
			if err != nil {
				return err
			}
			run, err := storage.GetRun(cmd.Context(), workspaceId, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: status=%s threadId=%s assistantId=%s\n",
				run.Id, run.Status, run.ThreadId, run.AssistantId)

			pending, err := storage.GetPendingActionsForRun(cmd.Context(), workspaceId, run.Id)
			if err != nil {
				return err
			}
			for _, action := range pending {
				fmt.Fprintf(cmd.OutOrStdout(), "  pending action %s: tool=%s toolCallId=%s\n",
					action.Id, action.ToolName, action.ToolCallId)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&workspaceId, "workspace-id", "", "workspace the run belongs to (required)")
	return cmd
}

// buildRunsCancelCmd signals the same Temporal cancel channel
// api.CancelRunHandler does, for operators without HTTP access to a
// workspace's API key.
func buildRunsCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Signal a run's workflow to cancel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			temporalClient, err := openTemporalClient()
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			if err := temporalClient.SignalWorkflow(cmd.Context(), args[0], "", orchestrator.CancelSignalName, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cancellation requested")
			return nil
		},
	}
	return cmd
}
