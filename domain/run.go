package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RunStatus implements the state machine described in spec §4.6:
//
//	queued ──► in_progress ──► completed
//	              │
//	              ├──► pending_action ──► in_progress (next turn)
//	              │
//	              ├──► cancelling ──► cancelled
//	              │
//	              └──► failed
//
// completed, cancelled, failed and expired are terminal.
type RunStatus string

const (
	RunStatusQueued        RunStatus = "queued"
	RunStatusInProgress    RunStatus = "in_progress"
	RunStatusPendingAction RunStatus = "pending_action"
	RunStatusCancelling    RunStatus = "cancelling"
	RunStatusCancelled     RunStatus = "cancelled"
	RunStatusCompleted     RunStatus = "completed"
	RunStatusFailed        RunStatus = "failed"
	RunStatusExpired       RunStatus = "expired"
)

func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusCancelled, RunStatusFailed, RunStatusExpired:
		return true
	default:
		return false
	}
}

// allowedRunTransitions enumerates every legal edge in the state machine
// above. CanTransition is the single source of truth the orchestrator and
// runstore consult, so the invariant "status transitions respect the state
// machine" (spec §8) is enforced in one place.
var allowedRunTransitions = map[RunStatus]map[RunStatus]bool{
	RunStatusQueued: {
		RunStatusInProgress: true,
		RunStatusCancelled:  true,
		RunStatusFailed:     true,
	},
	RunStatusInProgress: {
		RunStatusCompleted:     true,
		RunStatusPendingAction: true,
		RunStatusCancelling:    true,
		RunStatusCancelled:     true,
		RunStatusFailed:        true,
	},
	RunStatusPendingAction: {
		RunStatusInProgress: true,
		RunStatusCancelling: true,
		RunStatusCancelled:  true,
		RunStatusFailed:     true,
		RunStatusExpired:    true,
	},
	RunStatusCancelling: {
		RunStatusCancelled: true,
		RunStatusFailed:    true,
	},
}

func CanTransitionRunStatus(from, to RunStatus) bool {
	if from == to {
		return false
	}
	return allowedRunTransitions[from][to]
}

type Run struct {
	Id           string     `json:"id"`
	WorkspaceId  string     `json:"workspaceId"`
	ThreadId     string     `json:"threadId"`
	AssistantId  string     `json:"assistantId"`
	UserId       string     `json:"userId"`
	Status       RunStatus  `json:"status"`
	Model        string     `json:"model"`
	Instructions string     `json:"instructions"`
	FailReason   string     `json:"failReason,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	CancelledAt  *time.Time `json:"cancelledAt,omitempty"`
	FailedAt     *time.Time `json:"failedAt,omitempty"`
}

func (r Run) MarshalJSON() ([]byte, error) {
	type Alias Run
	return json.Marshal(&struct {
		Alias
		CreatedAt   time.Time  `json:"createdAt"`
		StartedAt   *time.Time `json:"startedAt,omitempty"`
		CompletedAt *time.Time `json:"completedAt,omitempty"`
		CancelledAt *time.Time `json:"cancelledAt,omitempty"`
		FailedAt    *time.Time `json:"failedAt,omitempty"`
	}{
		Alias:       Alias(r),
		CreatedAt:   UTCTime(r.CreatedAt),
		StartedAt:   UTCTimePtr(r.StartedAt),
		CompletedAt: UTCTimePtr(r.CompletedAt),
		CancelledAt: UTCTimePtr(r.CancelledAt),
		FailedAt:    UTCTimePtr(r.FailedAt),
	})
}

// Transition moves the run to `to`, stamping the corresponding timestamp
// field, or returns an error if the edge is not allowed by the state machine.
func (r *Run) Transition(to RunStatus, now time.Time) error {
	if !CanTransitionRunStatus(r.Status, to) {
		return fmt.Errorf("invalid run status transition: %s -> %s", r.Status, to)
	}
	r.Status = to
	now = now.UTC()
	switch to {
	case RunStatusInProgress:
		if r.StartedAt == nil {
			r.StartedAt = &now
		}
	case RunStatusCompleted:
		r.CompletedAt = &now
	case RunStatusCancelled:
		r.CancelledAt = &now
	case RunStatusFailed, RunStatusExpired:
		r.FailedAt = &now
	}
	return nil
}

// RunStorage is the narrow persistence interface for run status transitions.
type RunStorage interface {
	PersistRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, workspaceId, runId string) (Run, error)
}
