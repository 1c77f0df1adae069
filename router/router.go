// Package router dispatches assembled tool calls to platform tool handlers
// and owns the resulting Action's lifecycle (spec §4.3).
//
// Detection precedence (native structured tool_use, then the normalizer's
// <fc>/<tool_call> recovery, then a final loose-regex pass) happens upstream
// in normalizer; by the time a domain.ToolCallContent reaches the router it
// is already a single resolved call. Router's job is: persist the pending
// Action, invoke the registered Handler, and persist the terminal result —
// the dispatch-by-name-switch plus JSON-repair-before-unmarshal idiom the
// teacher used in dev/handle_tool_call.go, generalized to a handler
// registry instead of a fixed switch.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"inference-gateway/domain"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
)

// Handler executes one platform tool invocation (spec §4.4) and returns the
// result text to feed back to the model, or an error to be surfaced as a
// tool error result (never as a Go error crossing the workflow boundary).
type Handler interface {
	Name() string
	Invoke(ctx context.Context, workspaceId string, args map[string]interface{}) (result string, isError bool, err error)
}

// DefaultActionTTL bounds how long a consumer-side pending action can sit
// before the expiry sweeper reclaims it (spec §4.3: "default 60 s").
const DefaultActionTTL = 60 * time.Second

type Router struct {
	actions  domain.ActionStorage
	handlers map[string]Handler
	mu       sync.RWMutex
}

func New(actions domain.ActionStorage) *Router {
	return &Router{
		actions:  actions,
		handlers: map[string]Handler{},
	}
}

func (r *Router) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Name()] = h
}

func (r *Router) handler(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// HasHandler reports whether name is a registered platform tool (spec §4.3's
// dispatch table). Any tool name without a registered handler is
// consumer-side: the orchestrator creates its Action and surfaces it to the
// client instead of calling Dispatch.
func (r *Router) HasHandler(name string) bool {
	_, ok := r.handler(name)
	return ok
}

// CreateAction persists a new pending Action for a resolved tool call. A
// nil ConfidenceScore/DecisionPayload means the call came from a native
// tool_use block; both are set when the call was recovered via the
// normalizer's <decision> channel.
func (r *Router) CreateAction(ctx context.Context, workspaceId, runId string, turnIndex int, tc domain.ToolCallContent) (domain.Action, error) {
	id := tc.Id
	if id == "" {
		id = "call_" + ksuid.New().String()
	}
	now := time.Now().UTC()
	action := domain.Action{
		Id:           "action_" + ksuid.New().String(),
		WorkspaceId:  workspaceId,
		RunId:        runId,
		ToolCallId:   id,
		TurnIndex:    turnIndex,
		ToolName:     tc.Name,
		Status:       domain.ActionStatusPending,
		FunctionArgs: tc.Arguments,
		ExpiresAt:    now.Add(DefaultActionTTL),
		TriggeredAt:  now,
	}
	if err := r.actions.PersistAction(ctx, action); err != nil {
		return domain.Action{}, fmt.Errorf("failed to persist action: %w", err)
	}
	return action, nil
}

// Dispatch invokes the registered handler for action.ToolName and persists
// the terminal result. An unknown tool name or handler panic/error is
// translated into a failed Action rather than propagated, per spec §7
// (platform tool handlers recover/translate all errors into Action
// failures).
func (r *Router) Dispatch(ctx context.Context, action domain.Action) domain.Action {
	h, ok := r.handler(action.ToolName)
	if !ok {
		return r.fail(ctx, action, fmt.Sprintf("unknown tool: %s", action.ToolName))
	}

	result, isError, err := r.invoke(ctx, h, action)
	if err != nil {
		return r.fail(ctx, action, err.Error())
	}

	now := time.Now().UTC()
	action.Result = result
	action.IsError = isError
	action.Status = domain.ActionStatusCompleted
	if isError {
		action.Status = domain.ActionStatusFailed
	}
	action.ProcessedAt = &now
	if err := r.actions.PersistAction(ctx, action); err != nil {
		log.Error().Err(err).Str("actionId", action.Id).Msg("failed to persist completed action")
	}
	return action
}

// invoke recovers handler panics the way an activity boundary would, so one
// misbehaving tool can never take down the whole turn.
func (r *Router) invoke(ctx context.Context, h Handler, action domain.Action) (result string, isError bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool handler panicked: %v", rec)
		}
	}()
	return h.Invoke(ctx, action.WorkspaceId, action.FunctionArgs)
}

func (r *Router) fail(ctx context.Context, action domain.Action, message string) domain.Action {
	now := time.Now().UTC()
	action.Status = domain.ActionStatusFailed
	action.IsError = true
	action.Result = message
	action.ProcessedAt = &now
	if err := r.actions.PersistAction(ctx, action); err != nil {
		log.Error().Err(err).Str("actionId", action.Id).Msg("failed to persist failed action")
	}
	return action
}

// DispatchAll fans a batch of tool calls for one turn out concurrently and
// waits for all to finish, mirroring dev/handle_tool_call.go's parallel
// tool-call handling (there implemented with workflow.Go/workflow.NewChannel
// inside a Temporal workflow; orchestrator wraps this call per-activity so
// each Dispatch itself runs as a durable activity while still executing
// concurrently at the Go level within that activity).
func (r *Router) DispatchAll(ctx context.Context, actions []domain.Action) []domain.Action {
	results := make([]domain.Action, len(actions))
	var wg sync.WaitGroup
	for i, action := range actions {
		wg.Add(1)
		go func(i int, action domain.Action) {
			defer wg.Done()
			results[i] = r.Dispatch(ctx, action)
		}(i, action)
	}
	wg.Wait()
	return results
}
