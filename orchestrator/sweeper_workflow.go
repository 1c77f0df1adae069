package orchestrator

import (
	"time"

	"go.temporal.io/sdk/workflow"
)

// DefaultExpirySweepLimit bounds how many expired Actions one sweep pass
// reclaims, so a backlog doesn't turn one sweep into an unbounded activity.
const DefaultExpirySweepLimit = 200

// ExpirySweepWorkflow is the periodic Action-expiry sweeper (spec §5, §9),
// intended to be driven by a Temporal Schedule (e.g. every 30s) rather than
// self-scheduling, grounded on worker/worker.go's
// workflow/activity-registration style — the schedule itself is
// infrastructure config, not code.
func ExpirySweepWorkflow(ctx workflow.Context) error {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
	})
	var a *Activities
	var expiredCount int
	return workflow.ExecuteActivity(ctx, a.ExpireStaleActionsGlobally, DefaultExpirySweepLimit).Get(ctx, &expiredCount)
}
