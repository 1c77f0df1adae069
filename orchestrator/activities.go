// Package orchestrator implements the per-run turn loop (spec §4.6) as a
// Temporal workflow: every upstream provider call, Redis op, and DB write is
// an activity, so turn boundaries are natural durable suspension points
// (spec §5's "cooperative multitasking over an async event loop" realized
// via Temporal replay instead of a bespoke scheduler), grounded on
// dev/basic_dev_workflow.go's workflow turn loop and dev/llm_loop.go's
// LlmLoop[T] human-in-the-loop iteration pattern.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"inference-gateway/common"
	"inference-gateway/contextbuilder"
	"inference-gateway/domain"
	"inference-gateway/eventbus"
	"inference-gateway/normalizer"
	"inference-gateway/providers"
	"inference-gateway/router"
	"inference-gateway/runstore"
	"inference-gateway/secret_manager"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
	"go.temporal.io/sdk/activity"
)

// Activities bundles every dependency a RunWorkflow turn needs. A single
// instance is registered on the worker (worker/worker.go) and its methods
// are referenced, never called directly, from run_workflow.go.
type Activities struct {
	ContextBuilder *contextbuilder.Builder
	Threads        domain.ThreadStorage
	Assistants     domain.AssistantStorage
	RunStore       *runstore.Store
	Router         *router.Router
	EventBus       *eventbus.Bus
	DefaultSecrets secret_manager.SecretManagerContainer
}

type BuildTurnContextInput struct {
	WorkspaceId string
	ThreadId    string
	AssistantId string
}

type BuildTurnContextResult struct {
	Assistant domain.Assistant
	Thread    domain.Thread
	Messages  []domain.Message
}

// BuildTurnContext assembles the message list the next provider call will
// see, delegating to contextbuilder.Builder.Build (spec §4.2).
func (a *Activities) BuildTurnContext(ctx context.Context, in BuildTurnContextInput) (BuildTurnContextResult, error) {
	assistant, err := a.ContextBuilder.GetAssistant(ctx, in.WorkspaceId, in.AssistantId)
	if err != nil {
		return BuildTurnContextResult{}, fmt.Errorf("failed to load assistant: %w", err)
	}
	thread, err := a.Threads.GetThread(ctx, in.WorkspaceId, in.ThreadId)
	if err != nil {
		return BuildTurnContextResult{}, fmt.Errorf("failed to load thread: %w", err)
	}
	messages, err := a.ContextBuilder.Build(ctx, in.WorkspaceId, assistant, thread)
	if err != nil {
		return BuildTurnContextResult{}, fmt.Errorf("failed to build turn context: %w", err)
	}
	return BuildTurnContextResult{Assistant: assistant, Thread: thread, Messages: messages}, nil
}

type ExecuteTurnInput struct {
	WorkspaceId string
	RunId       string
	ThreadId    string
	AssistantId string
	UserId      string
	TurnIndex    int
	Provider     common.ToolChatProvider
	Assistant    domain.Assistant
	Messages     []domain.Message
	CallerAPIKey string
}

type ExecuteTurnResult struct {
	Content    string
	ToolCalls  []domain.ToolCallContent
	StopReason string
	IsError    bool
	ErrorText  string
}

// ExecuteTurn opens one upstream provider stream, feeds every event through
// the normalizer, publishes the resulting StreamChunks to the event bus as
// they arrive, and persists the assistant's turn once the stream ends (spec
// §4.1, §4.5, §4.6, §4.7). It heartbeats on every normalized chunk so a long
// stream doesn't starve Temporal's activity timeout.
func (a *Activities) ExecuteTurn(ctx context.Context, in ExecuteTurnInput) (ExecuteTurnResult, error) {
	provider, err := providers.GetProvider(in.Provider)
	if err != nil {
		return ExecuteTurnResult{IsError: true, ErrorText: err.Error()}, nil
	}

	norm := normalizer.New(in.RunId)
	eventChan := make(chan providers.Event, 64)
	done := make(chan struct{})

	var content string
	var toolCalls []domain.ToolCallContent
	var turnErr *domain.ErrorContent

	go func() {
		defer close(done)
		for ev := range eventChan {
			for _, chunk := range norm.Feed(ev) {
				a.EventBus.Publish(ctx, chunk)
				activity.RecordHeartbeat(ctx, chunk.Type)
				switch chunk.Type {
				case domain.StreamChunkContent:
					if s, ok := chunk.Content.(string); ok {
						content += s
					}
				case domain.StreamChunkToolCall:
					if tc, ok := chunk.Content.(domain.ToolCallContent); ok {
						toolCalls = append(toolCalls, tc)
					}
				case domain.StreamChunkError:
					if ec, ok := chunk.Content.(domain.ErrorContent); ok {
						turnErr = &ec
					}
				}
			}
		}
	}()

	secrets := a.DefaultSecrets
	if in.CallerAPIKey != "" {
		secrets = secret_manager.SecretManagerContainer{
			SecretManager: secret_manager.LiteralSecretManager{Value: in.CallerAPIKey},
		}
	}

	opts := providers.Options{
		Params: providers.Params{
			Messages: messagesToProvider(in.Messages),
			Tools:    toolsFromAssistant(in.Assistant.Tools),
			ModelConfig: common.ModelConfig{
				Provider: string(in.Provider),
				Model:    in.Assistant.Model,
			},
		},
		Secrets: secrets,
	}

	resp, streamErr := provider.Stream(ctx, opts, eventChan)
	close(eventChan)
	<-done

	if streamErr != nil {
		return ExecuteTurnResult{IsError: true, ErrorText: streamErr.Error()}, nil
	}
	if turnErr != nil {
		return ExecuteTurnResult{IsError: true, ErrorText: turnErr.Message}, nil
	}

	stopReason := ""
	if resp != nil {
		stopReason = resp.StopReason
	}

	assistantMessage := domain.Message{
		Id:          "msg_" + ksuid.New().String(),
		ThreadId:    in.ThreadId,
		Role:        domain.MessageRoleAssistant,
		Content:     serializeAssistantContent(content, toolCalls),
		AssistantId: in.AssistantId,
		RunId:       in.RunId,
		SenderId:    in.AssistantId,
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.ContextBuilder.AppendHistory(ctx, assistantMessage); err != nil {
		log.Error().Err(err).Str("runId", in.RunId).Msg("failed to persist assistant turn message")
	}

	return ExecuteTurnResult{
		Content:    content,
		ToolCalls:  toolCalls,
		StopReason: stopReason,
	}, nil
}

// ActionDispatch pairs a created Action with whether it resolved to a
// registered platform-tool handler (spec §4.3's dispatch table) or needs to
// be surfaced to the client on the consumer path.
type ActionDispatch struct {
	Action   domain.Action
	Platform bool
}

type CreateActionsInput struct {
	WorkspaceId string
	RunId       string
	TurnIndex   int
	ToolCalls   []domain.ToolCallContent
}

// CreateActions persists one pending Action per tool call and classifies
// each as platform or consumer-side (spec §4.3).
func (a *Activities) CreateActions(ctx context.Context, in CreateActionsInput) ([]ActionDispatch, error) {
	out := make([]ActionDispatch, 0, len(in.ToolCalls))
	for _, tc := range in.ToolCalls {
		action, err := a.Router.CreateAction(ctx, in.WorkspaceId, in.RunId, in.TurnIndex, tc)
		if err != nil {
			return nil, fmt.Errorf("failed to create action for tool call %s: %w", tc.Name, err)
		}
		out = append(out, ActionDispatch{Action: action, Platform: a.Router.HasHandler(tc.Name)})
	}
	return out, nil
}

// DispatchPlatformActions runs every platform-side Action concurrently
// (router.Router.DispatchAll) and appends a role=tool message with each
// result, mirroring spec §4.3 step 2's submit_tool_output.
func (a *Activities) DispatchPlatformActions(ctx context.Context, threadId string, actions []domain.Action) ([]domain.Action, error) {
	if len(actions) == 0 {
		return nil, nil
	}
	results := a.Router.DispatchAll(ctx, actions)
	for _, action := range results {
		message := domain.Message{
			Id:         "msg_" + ksuid.New().String(),
			ThreadId:   threadId,
			Role:       domain.MessageRoleTool,
			Content:    action.Result,
			ToolId:     action.Id,
			ToolCallId: action.ToolCallId,
			SenderId:   action.ToolName,
			CreatedAt:  time.Now().UTC(),
		}
		if err := a.ContextBuilder.AppendHistory(ctx, message); err != nil {
			log.Error().Err(err).Str("actionId", action.Id).Msg("failed to append tool result message")
		}
	}
	return results, nil
}

// PendingActionCount reports how many of the run's Actions are still
// unterminated, used by RunWorkflow to decide whether a pending_action wait
// is over.
func (a *Activities) PendingActionCount(ctx context.Context, workspaceId, runId string) (int, error) {
	pending, err := a.RunStore.PendingActions(ctx, workspaceId, runId)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// ExpirePendingActions marks the run's still-pending Actions expired, used
// when a consumer-side wait times out (spec §4.3 "If expired, Action ->
// expired and Run -> failed with diagnostic").
func (a *Activities) ExpirePendingActions(ctx context.Context, workspaceId, runId string) error {
	pending, err := a.RunStore.PendingActions(ctx, workspaceId, runId)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, action := range pending {
		action.Status = domain.ActionStatusExpired
		action.IsError = true
		action.Result = "action expired before the client submitted a result"
		action.ProcessedAt = &now
		if err := a.RunStore.RecordAction(ctx, action); err != nil {
			return fmt.Errorf("failed to expire action %s: %w", action.Id, err)
		}
	}
	return nil
}

// ExpireStaleActionsGlobally is the periodic sweep entrypoint (spec §4.3
// "If expired, Action -> expired and Run -> failed with diagnostic";
// scheduling grounded on worker/worker.go's registration style, spec §5's
// "periodic Action-expiry sweeper"). It is the activity body for
// ExpirySweepWorkflow, a Temporal Schedule-backed workflow run independently
// of any single RunWorkflow execution.
func (a *Activities) ExpireStaleActionsGlobally(ctx context.Context, limit int) (int, error) {
	expired, err := a.RunStore.ExpireStaleActions(ctx, time.Now().UTC(), limit)
	if err != nil {
		return 0, err
	}
	failedRuns := map[string]bool{}
	for _, action := range expired {
		if failedRuns[action.RunId] {
			continue
		}
		failedRuns[action.RunId] = true
		run, err := a.RunStore.Runs.GetRun(ctx, action.WorkspaceId, action.RunId)
		if err != nil {
			log.Warn().Err(err).Str("runId", action.RunId).Msg("failed to load run for expiry-driven failure")
			continue
		}
		if run.Status.Terminal() {
			continue
		}
		if _, err := a.RunStore.Fail(ctx, action.WorkspaceId, action.RunId, "action expired before a result was submitted"); err != nil {
			log.Warn().Err(err).Str("runId", action.RunId).Msg("failed to transition run to failed after action expiry")
		}
	}
	return len(expired), nil
}

type TransitionRunInput struct {
	WorkspaceId string
	RunId       string
	To          domain.RunStatus
	FailReason  string
}

// TransitionRun is the one activity every Run.Status mutation flows
// through, so domain.CanTransitionRunStatus is enforced uniformly
// regardless of which point in the workflow calls it.
func (a *Activities) TransitionRun(ctx context.Context, in TransitionRunInput) (domain.Run, error) {
	if in.To == domain.RunStatusFailed && in.FailReason != "" {
		return a.RunStore.Fail(ctx, in.WorkspaceId, in.RunId, in.FailReason)
	}
	return a.RunStore.Track(ctx, in.WorkspaceId, in.RunId, in.To, nil)
}
