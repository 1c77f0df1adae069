package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// buildStreamCmd tails a run's event stream directly from Redis, the same
// source api.GetRunEventsHandler polls, for debugging a run without an
// SSE-capable client.
func buildStreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream <run-id>",
		Short: "Tail a run's raw delta chunks until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bus, err := openEventBus()
			if err != nil {
				return err
			}

			runId := args[0]
			lastID := "0"
			for {
				chunks, nextID, err := bus.Tail(cmd.Context(), runId, lastID)
				if err != nil {
					return err
				}
				lastID = nextID
				for _, chunk := range chunks {
					encoded, err := json.Marshal(chunk)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
				}
				if cmd.Context().Err() != nil {
					return cmd.Context().Err()
				}
			}
		},
	}
	return cmd
}
