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

var assistantTracer = otel.Tracer("inference-gateway/db")

var _ domain.AssistantStorage = (*Storage)(nil)

func (s *Storage) PersistAssistant(ctx context.Context, assistant domain.Assistant) error {
	ctx, span := assistantTracer.Start(ctx, "Storage.PersistAssistant")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("workspace_id", assistant.WorkspaceId),
		attribute.String("assistant_id", assistant.Id),
	)

	toolsJSON, err := json.Marshal(assistant.Tools)
	if err != nil {
		return fmt.Errorf("failed to marshal tools: %w", err)
	}
	resourcesJSON, err := json.Marshal(assistant.ToolResources)
	if err != nil {
		return fmt.Errorf("failed to marshal tool resources: %w", err)
	}

	query := `
		INSERT INTO assistants (workspace_id, id, model, instructions, tools, tool_resources, created, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, id) DO UPDATE SET
			model = excluded.model,
			instructions = excluded.instructions,
			tools = excluded.tools,
			tool_resources = excluded.tool_resources,
			updated = excluded.updated
	`
	_, err = s.execContext(ctx, query,
		assistant.WorkspaceId, assistant.Id, assistant.Model, assistant.Instructions,
		toolsJSON, resourcesJSON, assistant.Created.UTC(), assistant.Updated.UTC(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to persist assistant: %w", err)
	}
	return nil
}

func (s *Storage) GetAssistant(ctx context.Context, workspaceId, assistantId string) (domain.Assistant, error) {
	ctx, span := assistantTracer.Start(ctx, "Storage.GetAssistant")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("workspace_id", workspaceId),
		attribute.String("assistant_id", assistantId),
	)

	var a domain.Assistant
	var toolsJSON, resourcesJSON []byte

	query := `SELECT workspace_id, id, model, instructions, tools, tool_resources, created, updated
		FROM assistants WHERE workspace_id = ? AND id = ?`
	err := s.queryRowContext(ctx, query, workspaceId, assistantId).Scan(
		&a.WorkspaceId, &a.Id, &a.Model, &a.Instructions, &toolsJSON, &resourcesJSON, &a.Created, &a.Updated,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			span.RecordError(common.ErrNotFound)
			span.SetStatus(codes.Error, common.ErrNotFound.Error())
			return domain.Assistant{}, common.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Assistant{}, fmt.Errorf("failed to get assistant: %w", err)
	}

	if err := json.Unmarshal(toolsJSON, &a.Tools); err != nil {
		return domain.Assistant{}, fmt.Errorf("failed to unmarshal tools: %w", err)
	}
	if err := json.Unmarshal(resourcesJSON, &a.ToolResources); err != nil {
		return domain.Assistant{}, fmt.Errorf("failed to unmarshal tool resources: %w", err)
	}

	return a, nil
}

func (s *Storage) DeleteAssistant(ctx context.Context, workspaceId, assistantId string) error {
	ctx, span := assistantTracer.Start(ctx, "Storage.DeleteAssistant")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("workspace_id", workspaceId),
		attribute.String("assistant_id", assistantId),
	)

	result, err := s.execContext(ctx, "DELETE FROM assistants WHERE workspace_id = ? AND id = ?", workspaceId, assistantId)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete assistant: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		span.RecordError(common.ErrNotFound)
		span.SetStatus(codes.Error, common.ErrNotFound.Error())
		return common.ErrNotFound
	}
	return nil
}
