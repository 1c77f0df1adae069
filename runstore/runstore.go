// Package runstore is the narrow facade orchestrator activities call
// through to persist Run/Action state, grounded on flow_action/track.go's
// Track wrapper (generic "record before, record after" lifecycle helper) and
// domain/run.go's/domain/action.go's own status-transition helpers, which
// runstore composes rather than reimplements (spec §3, §4.3, §4.6).
package runstore

import (
	"context"
	"fmt"
	"time"

	"inference-gateway/domain"

	"github.com/segmentio/ksuid"
)

type Store struct {
	Runs    domain.RunStorage
	Actions domain.ActionStorage
	Threads domain.ThreadStorage
}

func New(runs domain.RunStorage, actions domain.ActionStorage, threads domain.ThreadStorage) *Store {
	return &Store{Runs: runs, Actions: actions, Threads: threads}
}

// CreateRun persists a freshly queued Run.
func (s *Store) CreateRun(ctx context.Context, workspaceId, threadId, assistantId, userId, model, instructions string) (domain.Run, error) {
	run := domain.Run{
		Id:           "run_" + ksuid.New().String(),
		WorkspaceId:  workspaceId,
		ThreadId:     threadId,
		AssistantId:  assistantId,
		UserId:       userId,
		Status:       domain.RunStatusQueued,
		Model:        model,
		Instructions: instructions,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.Runs.PersistRun(ctx, run); err != nil {
		return domain.Run{}, fmt.Errorf("failed to persist run: %w", err)
	}
	return run, nil
}

// Track moves run to `to`, stamping the corresponding timestamp via
// Run.Transition, and persists the result. It is the one place every
// orchestrator status change flows through, so CanTransitionRunStatus is
// enforced uniformly regardless of which activity calls it (the same
// "wrap every lifecycle mutation in one helper" idiom as the teacher's
// generic Track[T]).
func (s *Store) Track(ctx context.Context, workspaceId, runId string, to domain.RunStatus, mutate func(*domain.Run)) (domain.Run, error) {
	run, err := s.Runs.GetRun(ctx, workspaceId, runId)
	if err != nil {
		return domain.Run{}, fmt.Errorf("failed to load run for transition: %w", err)
	}
	if err := run.Transition(to, time.Now()); err != nil {
		return domain.Run{}, err
	}
	if mutate != nil {
		mutate(&run)
	}
	if err := s.Runs.PersistRun(ctx, run); err != nil {
		return domain.Run{}, fmt.Errorf("failed to persist run transition: %w", err)
	}
	return run, nil
}

// Fail is a convenience wrapper around Track for the common
// in_progress/pending_action -> failed edge, recording FailReason.
func (s *Store) Fail(ctx context.Context, workspaceId, runId, reason string) (domain.Run, error) {
	return s.Track(ctx, workspaceId, runId, domain.RunStatusFailed, func(r *domain.Run) {
		r.FailReason = reason
	})
}

// RecordAction persists a newly created pending Action for a resolved tool
// call, mirroring router.Router.CreateAction's shape so orchestrator
// activities and router share one Action-creation idiom.
func (s *Store) RecordAction(ctx context.Context, action domain.Action) error {
	return s.Actions.PersistAction(ctx, action)
}

// PendingActions returns the run's outstanding (unterminated) Actions, used
// by the orchestrator workflow to decide whether a turn can advance past
// pending_action.
func (s *Store) PendingActions(ctx context.Context, workspaceId, runId string) ([]domain.Action, error) {
	return s.Actions.GetPendingActionsForRun(ctx, workspaceId, runId)
}

// ExpireStaleActions loads every pending Action whose ExpiresAt has passed
// and marks it expired+failed, returning those Actions (each carrying its
// RunId) so their orchestrator workflows can be signaled to fail. Used by the periodic
// expiry sweeper (spec §5, §9).
func (s *Store) ExpireStaleActions(ctx context.Context, asOf time.Time, limit int) ([]domain.Action, error) {
	expired, err := s.Actions.GetExpiredPendingActions(ctx, asOf, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load expired pending actions: %w", err)
	}
	now := time.Now().UTC()
	for i := range expired {
		expired[i].Status = domain.ActionStatusExpired
		expired[i].IsError = true
		expired[i].Result = "action expired before a result was submitted"
		expired[i].ProcessedAt = &now
		if err := s.Actions.PersistAction(ctx, expired[i]); err != nil {
			return nil, fmt.Errorf("failed to persist expired action %s: %w", expired[i].Id, err)
		}
	}
	return expired, nil
}

// AppendMessage records one turn of thread history.
func (s *Store) AppendMessage(ctx context.Context, message domain.Message) error {
	return s.Threads.AppendMessage(ctx, message)
}
