package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"inference-gateway/common"
	"inference-gateway/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var threadTracer = otel.Tracer("inference-gateway/db")

var _ domain.ThreadStorage = (*Storage)(nil)

func (s *Storage) PersistThread(ctx context.Context, thread domain.Thread) error {
	ctx, span := threadTracer.Start(ctx, "Storage.PersistThread")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("workspace_id", thread.WorkspaceId),
		attribute.String("thread_id", thread.Id),
	)

	metaJSON, err := json.Marshal(thread.MetaData)
	if err != nil {
		return fmt.Errorf("failed to marshal meta data: %w", err)
	}

	query := `
		INSERT INTO threads (workspace_id, id, meta_data, created, updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, id) DO UPDATE SET
			meta_data = excluded.meta_data,
			updated = excluded.updated
	`
	_, err = s.execContext(ctx, query, thread.WorkspaceId, thread.Id, metaJSON, thread.Created.UTC(), thread.Updated.UTC())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to persist thread: %w", err)
	}
	return nil
}

func (s *Storage) GetThread(ctx context.Context, workspaceId, threadId string) (domain.Thread, error) {
	ctx, span := threadTracer.Start(ctx, "Storage.GetThread")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("workspace_id", workspaceId),
		attribute.String("thread_id", threadId),
	)

	var t domain.Thread
	var metaJSON []byte
	query := `SELECT workspace_id, id, meta_data, created, updated FROM threads WHERE workspace_id = ? AND id = ?`
	err := s.queryRowContext(ctx, query, workspaceId, threadId).Scan(&t.WorkspaceId, &t.Id, &metaJSON, &t.Created, &t.Updated)
	if err != nil {
		if err == sql.ErrNoRows {
			span.RecordError(common.ErrNotFound)
			span.SetStatus(codes.Error, common.ErrNotFound.Error())
			return domain.Thread{}, common.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Thread{}, fmt.Errorf("failed to get thread: %w", err)
	}

	if err := json.Unmarshal(metaJSON, &t.MetaData); err != nil {
		return domain.Thread{}, fmt.Errorf("failed to unmarshal meta data: %w", err)
	}
	return t, nil
}

func (s *Storage) DeleteThread(ctx context.Context, workspaceId, threadId string) error {
	ctx, span := threadTracer.Start(ctx, "Storage.DeleteThread")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("workspace_id", workspaceId),
		attribute.String("thread_id", threadId),
	)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE thread_id = ?", threadId); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete messages for thread: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM threads WHERE workspace_id = ? AND id = ?", workspaceId, threadId)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return common.ErrNotFound
	}

	return tx.Commit()
}

func (s *Storage) AppendMessage(ctx context.Context, message domain.Message) error {
	ctx, span := threadTracer.Start(ctx, "Storage.AppendMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("thread_id", message.ThreadId),
		attribute.String("message_id", message.Id),
	)

	query := `
		INSERT INTO messages (id, thread_id, role, content, assistant_id, run_id, tool_id, tool_call_id, sender_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.execContext(ctx, query,
		message.Id, message.ThreadId, message.Role, message.Content, message.AssistantId,
		message.RunId, message.ToolId, message.ToolCallId, message.SenderId, message.CreatedAt.UTC(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (s *Storage) GetTrailingMessages(ctx context.Context, workspaceId, threadId string, limit int) ([]domain.Message, error) {
	ctx, span := threadTracer.Start(ctx, "Storage.GetTrailingMessages")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("workspace_id", workspaceId),
		attribute.String("thread_id", threadId),
	)

	query := `
		SELECT id, thread_id, role, content, assistant_id, run_id, tool_id, tool_call_id, sender_id, created_at
		FROM messages WHERE thread_id = ? ORDER BY created_at DESC LIMIT ?
	`
	rows, err := s.queryContext(ctx, query, threadId, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query trailing messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.Id, &m.ThreadId, &m.Role, &m.Content, &m.AssistantId, &m.RunId, &m.ToolId, &m.ToolCallId, &m.SenderId, &m.CreatedAt); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over message rows: %w", err)
	}

	// rows came back newest-first; reverse in place to return oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}
