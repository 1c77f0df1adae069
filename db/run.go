package db

import (
	"context"
	"database/sql"
	"fmt"

	"inference-gateway/common"
	"inference-gateway/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var runTracer = otel.Tracer("inference-gateway/db")

var _ domain.RunStorage = (*Storage)(nil)

func (s *Storage) PersistRun(ctx context.Context, run domain.Run) error {
	ctx, span := runTracer.Start(ctx, "Storage.PersistRun")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("workspace_id", run.WorkspaceId),
		attribute.String("run_id", run.Id),
		attribute.String("status", string(run.Status)),
	)

	query := `
		INSERT INTO runs (
			id, workspace_id, thread_id, assistant_id, user_id, status, model, instructions,
			fail_reason, created_at, started_at, completed_at, cancelled_at, failed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			fail_reason = excluded.fail_reason,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			cancelled_at = excluded.cancelled_at,
			failed_at = excluded.failed_at
	`
	_, err := s.execContext(ctx, query,
		run.Id, run.WorkspaceId, run.ThreadId, run.AssistantId, run.UserId, run.Status,
		run.Model, run.Instructions, run.FailReason, run.CreatedAt.UTC(),
		utcPtr(run.StartedAt), utcPtr(run.CompletedAt), utcPtr(run.CancelledAt), utcPtr(run.FailedAt),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to persist run: %w", err)
	}
	return nil
}

func (s *Storage) GetRun(ctx context.Context, workspaceId, runId string) (domain.Run, error) {
	ctx, span := runTracer.Start(ctx, "Storage.GetRun")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("workspace_id", workspaceId),
		attribute.String("run_id", runId),
	)

	var r domain.Run
	query := `
		SELECT id, workspace_id, thread_id, assistant_id, user_id, status, model, instructions,
			fail_reason, created_at, started_at, completed_at, cancelled_at, failed_at
		FROM runs WHERE workspace_id = ? AND id = ?
	`
	err := s.queryRowContext(ctx, query, workspaceId, runId).Scan(
		&r.Id, &r.WorkspaceId, &r.ThreadId, &r.AssistantId, &r.UserId, &r.Status, &r.Model, &r.Instructions,
		&r.FailReason, &r.CreatedAt, &r.StartedAt, &r.CompletedAt, &r.CancelledAt, &r.FailedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			span.RecordError(common.ErrNotFound)
			span.SetStatus(codes.Error, common.ErrNotFound.Error())
			return domain.Run{}, common.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return r, nil
}
