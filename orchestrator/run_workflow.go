package orchestrator

import (
	"fmt"
	"time"

	"inference-gateway/common"
	"inference-gateway/domain"
	"inference-gateway/router"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	// MaxTurnsDefault bounds a run's turn loop (spec §4.6: "bounded by
	// max_turns, default 10").
	MaxTurnsDefault = 10

	// ToolOutputSignalName wakes RunWorkflow out of a pending_action wait
	// once the HTTP layer has persisted a consumer-submitted tool result
	// (POST /v1/messages/tools) and wants the run to resume.
	ToolOutputSignalName = "tool_output"

	// CancelSignalName requests cooperative cancellation (spec §4.6's
	// Redis-key cancellation contract, realized here as a Temporal signal so
	// the cancel request itself is durable).
	CancelSignalName = "cancel"
)

// RunWorkflowParams seeds one Run's execution. WorkflowID should be the
// Run's Id so the cancel/tool_output signals and replay tooling can address
// it directly.
type RunWorkflowParams struct {
	WorkspaceId  string
	RunId        string
	ThreadId     string
	AssistantId  string
	UserId       string
	Provider     common.ToolChatProvider
	MaxTurns     int

	// CallerAPIKey, when set, is the consumer's own provider API key
	// (spec §4.5 "accept an optional caller-supplied API key per request").
	// ExecuteTurn wraps it in a secret_manager.LiteralSecretManager scoped to
	// this run instead of falling back to the worker's DefaultSecrets.
	CallerAPIKey string
}

// RunWorkflow drives one Run through the state machine in spec §4.6: build
// context, stream a turn, dispatch any tool calls, repeat until the model
// stops calling tools or a consumer-side Action needs the client, bounded by
// MaxTurns.
func RunWorkflow(ctx workflow.Context, params RunWorkflowParams) error {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})
	var a *Activities

	maxTurns := params.MaxTurns
	if maxTurns <= 0 {
		maxTurns = MaxTurnsDefault
	}

	cancelRequested := false
	var turnCancel workflow.CancelFunc
	cancelCh := workflow.GetSignalChannel(ctx, CancelSignalName)
	workflow.Go(ctx, func(gctx workflow.Context) {
		for {
			cancelCh.Receive(gctx, nil)
			cancelRequested = true
			// Mid-stream cancel (spec §4.6): if a turn's ExecuteTurn activity
			// is in flight, cancelling its derived context propagates into the
			// activity's context.Context, unblocking provider.Stream's read
			// loop at the next chunk boundary instead of waiting for the turn
			// to finish naturally.
			if turnCancel != nil {
				turnCancel()
			}
		}
	})

	if _, err := transition(ctx, a, params, domain.RunStatusInProgress, ""); err != nil {
		return err
	}

	for turn := 1; turn <= maxTurns; turn++ {
		if cancelRequested {
			return cancelRun(ctx, a, params)
		}

		var turnCtx BuildTurnContextResult
		if err := workflow.ExecuteActivity(ctx, a.BuildTurnContext, BuildTurnContextInput{
			WorkspaceId: params.WorkspaceId,
			ThreadId:    params.ThreadId,
			AssistantId: params.AssistantId,
		}).Get(ctx, &turnCtx); err != nil {
			return failRun(ctx, a, params, fmt.Sprintf("failed to build turn context: %v", err))
		}

		// A per-turn cancellable context (spec §4.6) lets the cancel-signal
		// goroutine above interrupt this specific ExecuteTurn activity
		// mid-stream rather than only being observed at the next turn
		// boundary: cancelling execCtx propagates into the activity's
		// context.Context, which provider.Stream's read loop must honor.
		execCtx, cancelExec := workflow.WithCancel(ctx)
		turnCancel = cancelExec

		var turnResult ExecuteTurnResult
		turnErr := workflow.ExecuteActivity(execCtx, a.ExecuteTurn, ExecuteTurnInput{
			WorkspaceId: params.WorkspaceId,
			RunId:       params.RunId,
			ThreadId:    params.ThreadId,
			AssistantId: params.AssistantId,
			UserId:      params.UserId,
			TurnIndex:   turn,
			Provider:     params.Provider,
			Assistant:    turnCtx.Assistant,
			Messages:     turnCtx.Messages,
			CallerAPIKey: params.CallerAPIKey,
		}).Get(ctx, &turnResult)

		turnCancel = nil
		cancelExec()

		if turnErr != nil {
			if cancelRequested {
				return cancelRun(ctx, a, params)
			}
			return failRun(ctx, a, params, fmt.Sprintf("turn %d failed: %v", turn, turnErr))
		}
		if turnResult.IsError {
			return failRun(ctx, a, params, turnResult.ErrorText)
		}

		if len(turnResult.ToolCalls) == 0 {
			_, err := transition(ctx, a, params, domain.RunStatusCompleted, "")
			return err
		}

		if cancelRequested {
			return cancelRun(ctx, a, params)
		}

		var dispatches []ActionDispatch
		if err := workflow.ExecuteActivity(ctx, a.CreateActions, CreateActionsInput{
			WorkspaceId: params.WorkspaceId,
			RunId:       params.RunId,
			TurnIndex:   turn,
			ToolCalls:   turnResult.ToolCalls,
		}).Get(ctx, &dispatches); err != nil {
			return failRun(ctx, a, params, fmt.Sprintf("failed to create actions: %v", err))
		}

		var platformActions []domain.Action
		consumerCount := 0
		for _, d := range dispatches {
			if d.Platform {
				platformActions = append(platformActions, d.Action)
			} else {
				consumerCount++
			}
		}

		if len(platformActions) > 0 {
			var dispatched []domain.Action
			if err := workflow.ExecuteActivity(ctx, a.DispatchPlatformActions, params.ThreadId, platformActions).Get(ctx, &dispatched); err != nil {
				return failRun(ctx, a, params, fmt.Sprintf("failed to dispatch platform actions: %v", err))
			}
		}

		if consumerCount == 0 {
			continue
		}

		if _, err := transition(ctx, a, params, domain.RunStatusPendingAction, ""); err != nil {
			return err
		}

		resolved, err := waitForConsumerActions(ctx, a, params)
		if err != nil {
			return failRun(ctx, a, params, fmt.Sprintf("error waiting for consumer action results: %v", err))
		}
		if !resolved {
			_ = workflow.ExecuteActivity(ctx, a.ExpirePendingActions, params.WorkspaceId, params.RunId).Get(ctx, nil)
			return failRun(ctx, a, params, "consumer action expired before a result was submitted")
		}

		if _, err := transition(ctx, a, params, domain.RunStatusInProgress, ""); err != nil {
			return err
		}
	}

	return failRun(ctx, a, params, "max turns exceeded")
}

// waitForConsumerActions blocks until every consumer-side Action created
// this turn has a terminal status (the HTTP layer signals ToolOutputSignalName
// after persisting each submission) or router.DefaultActionTTL elapses with
// outstanding Actions remaining, matching spec §4.3's "client expected to
// POST a result within expires_at".
func waitForConsumerActions(ctx workflow.Context, a *Activities, params RunWorkflowParams) (bool, error) {
	toolOutputCh := workflow.GetSignalChannel(ctx, ToolOutputSignalName)
	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	defer cancelTimer()
	timer := workflow.NewTimer(timerCtx, router.DefaultActionTTL)

	for {
		timedOut := false
		selector := workflow.NewSelector(ctx)
		selector.AddFuture(timer, func(workflow.Future) { timedOut = true })
		selector.AddReceive(toolOutputCh, func(c workflow.ReceiveChannel, more bool) { c.Receive(ctx, nil) })
		selector.Select(ctx)

		if timedOut {
			return false, nil
		}

		var pending int
		if err := workflow.ExecuteActivity(ctx, a.PendingActionCount, params.WorkspaceId, params.RunId).Get(ctx, &pending); err != nil {
			return false, err
		}
		if pending == 0 {
			return true, nil
		}
	}
}

func transition(ctx workflow.Context, a *Activities, params RunWorkflowParams, to domain.RunStatus, failReason string) (domain.Run, error) {
	var run domain.Run
	err := workflow.ExecuteActivity(ctx, a.TransitionRun, TransitionRunInput{
		WorkspaceId: params.WorkspaceId,
		RunId:       params.RunId,
		To:          to,
		FailReason:  failReason,
	}).Get(ctx, &run)
	return run, err
}

func failRun(ctx workflow.Context, a *Activities, params RunWorkflowParams, reason string) error {
	if _, err := transition(ctx, a, params, domain.RunStatusFailed, reason); err != nil {
		return err
	}
	return fmt.Errorf("run %s failed: %s", params.RunId, reason)
}

func cancelRun(ctx workflow.Context, a *Activities, params RunWorkflowParams) error {
	if _, err := transition(ctx, a, params, domain.RunStatusCancelling, ""); err != nil {
		return err
	}
	_, err := transition(ctx, a, params, domain.RunStatusCancelled, "")
	return err
}
