package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"inference-gateway/common"
	"inference-gateway/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var actionTracer = otel.Tracer("inference-gateway/db")

var _ domain.ActionStorage = (*Storage)(nil)

func (s *Storage) PersistAction(ctx context.Context, action domain.Action) error {
	ctx, span := actionTracer.Start(ctx, "Storage.PersistAction")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("workspace_id", action.WorkspaceId),
		attribute.String("run_id", action.RunId),
		attribute.String("action_id", action.Id),
		attribute.String("status", string(action.Status)),
	)

	argsJSON, err := json.Marshal(action.FunctionArgs)
	if err != nil {
		return fmt.Errorf("failed to marshal function args: %w", err)
	}
	decisionJSON, err := json.Marshal(action.DecisionPayload)
	if err != nil {
		return fmt.Errorf("failed to marshal decision payload: %w", err)
	}

	query := `
		INSERT INTO actions (
			id, workspace_id, run_id, tool_call_id, turn_index, tool_name, status,
			function_args, result, is_error, decision_payload, confidence_score,
			expires_at, triggered_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			result = excluded.result,
			is_error = excluded.is_error,
			decision_payload = excluded.decision_payload,
			confidence_score = excluded.confidence_score,
			processed_at = excluded.processed_at
	`
	_, err = s.execContext(ctx, query,
		action.Id, action.WorkspaceId, action.RunId, action.ToolCallId, action.TurnIndex, action.ToolName,
		action.Status, argsJSON, action.Result, action.IsError, decisionJSON, action.ConfidenceScore,
		action.ExpiresAt.UTC(), action.TriggeredAt.UTC(), utcPtr(action.ProcessedAt),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to persist action: %w", err)
	}
	return nil
}

func (s *Storage) scanAction(row interface {
	Scan(dest ...interface{}) error
}) (domain.Action, error) {
	var a domain.Action
	var argsJSON, decisionJSON []byte

	err := row.Scan(
		&a.Id, &a.WorkspaceId, &a.RunId, &a.ToolCallId, &a.TurnIndex, &a.ToolName, &a.Status,
		&argsJSON, &a.Result, &a.IsError, &decisionJSON, &a.ConfidenceScore,
		&a.ExpiresAt, &a.TriggeredAt, &a.ProcessedAt,
	)
	if err != nil {
		return domain.Action{}, err
	}

	if err := json.Unmarshal(argsJSON, &a.FunctionArgs); err != nil {
		return domain.Action{}, fmt.Errorf("failed to unmarshal function args: %w", err)
	}
	if err := json.Unmarshal(decisionJSON, &a.DecisionPayload); err != nil {
		return domain.Action{}, fmt.Errorf("failed to unmarshal decision payload: %w", err)
	}
	return a, nil
}

const selectActionColumns = `
	id, workspace_id, run_id, tool_call_id, turn_index, tool_name, status,
	function_args, result, is_error, decision_payload, confidence_score,
	expires_at, triggered_at, processed_at
`

func (s *Storage) GetAction(ctx context.Context, workspaceId, actionId string) (domain.Action, error) {
	ctx, span := actionTracer.Start(ctx, "Storage.GetAction")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("workspace_id", workspaceId),
		attribute.String("action_id", actionId),
	)

	query := `SELECT ` + selectActionColumns + ` FROM actions WHERE workspace_id = ? AND id = ?`
	a, err := s.scanAction(s.queryRowContext(ctx, query, workspaceId, actionId))
	if err != nil {
		if err == sql.ErrNoRows {
			span.RecordError(common.ErrNotFound)
			span.SetStatus(codes.Error, common.ErrNotFound.Error())
			return domain.Action{}, common.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Action{}, fmt.Errorf("failed to get action: %w", err)
	}
	return a, nil
}

func (s *Storage) GetActionByToolCallId(ctx context.Context, workspaceId, runId, toolCallId string) (domain.Action, error) {
	ctx, span := actionTracer.Start(ctx, "Storage.GetActionByToolCallId")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("workspace_id", workspaceId),
		attribute.String("run_id", runId),
		attribute.String("tool_call_id", toolCallId),
	)

	query := `SELECT ` + selectActionColumns + ` FROM actions WHERE workspace_id = ? AND run_id = ? AND tool_call_id = ?`
	a, err := s.scanAction(s.queryRowContext(ctx, query, workspaceId, runId, toolCallId))
	if err != nil {
		if err == sql.ErrNoRows {
			span.RecordError(common.ErrNotFound)
			span.SetStatus(codes.Error, common.ErrNotFound.Error())
			return domain.Action{}, common.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Action{}, fmt.Errorf("failed to get action by tool call id: %w", err)
	}
	return a, nil
}

// GetPendingActionByToolCallId looks an Action up by tool_call_id alone
// within a workspace, for the HTTP tool-result endpoint (spec §6's
// POST /v1/messages/tools body carries no run_id). Scoped to pending status
// since tool_call_id is only guaranteed unique within a single run (spec
// §3, §8) and a workspace may have completed an identically-valued call id
// on a past run; there is at most one pending match at a time in practice.
func (s *Storage) GetPendingActionByToolCallId(ctx context.Context, workspaceId, toolCallId string) (domain.Action, error) {
	ctx, span := actionTracer.Start(ctx, "Storage.GetPendingActionByToolCallId")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("workspace_id", workspaceId),
		attribute.String("tool_call_id", toolCallId),
	)

	query := `SELECT ` + selectActionColumns + ` FROM actions
		WHERE workspace_id = ? AND tool_call_id = ? AND status = ? ORDER BY triggered_at DESC LIMIT 1`
	a, err := s.scanAction(s.queryRowContext(ctx, query, workspaceId, toolCallId, domain.ActionStatusPending))
	if err != nil {
		if err == sql.ErrNoRows {
			span.RecordError(common.ErrNotFound)
			span.SetStatus(codes.Error, common.ErrNotFound.Error())
			return domain.Action{}, common.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Action{}, fmt.Errorf("failed to get pending action by tool call id: %w", err)
	}
	return a, nil
}

func (s *Storage) GetPendingActionsForRun(ctx context.Context, workspaceId, runId string) ([]domain.Action, error) {
	ctx, span := actionTracer.Start(ctx, "Storage.GetPendingActionsForRun")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("workspace_id", workspaceId),
		attribute.String("run_id", runId),
	)

	query := `SELECT ` + selectActionColumns + ` FROM actions
		WHERE workspace_id = ? AND run_id = ? AND status = ? ORDER BY turn_index ASC`
	rows, err := s.queryContext(ctx, query, workspaceId, runId, domain.ActionStatusPending)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query pending actions: %w", err)
	}
	defer rows.Close()

	var actions []domain.Action
	for rows.Next() {
		a, err := s.scanAction(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan action row: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over action rows: %w", err)
	}
	return actions, nil
}

func (s *Storage) GetExpiredPendingActions(ctx context.Context, asOf time.Time, limit int) ([]domain.Action, error) {
	ctx, span := actionTracer.Start(ctx, "Storage.GetExpiredPendingActions")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "sqlite"))

	query := `SELECT ` + selectActionColumns + ` FROM actions
		WHERE status = ? AND expires_at < ? ORDER BY expires_at ASC LIMIT ?`
	rows, err := s.queryContext(ctx, query, domain.ActionStatusPending, asOf.UTC(), limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query expired pending actions: %w", err)
	}
	defer rows.Close()

	var actions []domain.Action
	for rows.Next() {
		a, err := s.scanAction(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan action row: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over action rows: %w", err)
	}
	return actions, nil
}
