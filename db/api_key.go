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

var apiKeyTracer = otel.Tracer("inference-gateway/db")

var _ domain.APIKeyStorage = (*Storage)(nil)

func (s *Storage) PersistAPIKey(ctx context.Context, key domain.APIKey) error {
	ctx, span := apiKeyTracer.Start(ctx, "Storage.PersistAPIKey")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("workspace_id", key.WorkspaceId),
		attribute.String("api_key_id", key.Id),
	)

	query := `
		INSERT INTO api_keys (id, workspace_id, prefix, hashed_secret, label, is_active, created_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_active = excluded.is_active,
			revoked_at = excluded.revoked_at
	`
	_, err := s.execContext(ctx, query,
		key.Id, key.WorkspaceId, key.Prefix, key.HashedSecret, key.Label, key.IsActive,
		key.CreatedAt.UTC(), utcPtr(key.RevokedAt),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to persist api key: %w", err)
	}
	return nil
}

func (s *Storage) GetAPIKeyByPrefix(ctx context.Context, prefix string) (domain.APIKey, error) {
	ctx, span := apiKeyTracer.Start(ctx, "Storage.GetAPIKeyByPrefix")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("prefix", prefix),
	)

	var k domain.APIKey
	query := `SELECT id, workspace_id, prefix, hashed_secret, label, is_active, created_at, revoked_at
		FROM api_keys WHERE prefix = ?`
	err := s.queryRowContext(ctx, query, prefix).Scan(
		&k.Id, &k.WorkspaceId, &k.Prefix, &k.HashedSecret, &k.Label, &k.IsActive, &k.CreatedAt, &k.RevokedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			span.RecordError(common.ErrNotFound)
			span.SetStatus(codes.Error, common.ErrNotFound.Error())
			return domain.APIKey{}, common.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.APIKey{}, fmt.Errorf("failed to get api key by prefix: %w", err)
	}
	return k, nil
}

func (s *Storage) RevokeAPIKey(ctx context.Context, workspaceId, keyId string) error {
	ctx, span := apiKeyTracer.Start(ctx, "Storage.RevokeAPIKey")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("workspace_id", workspaceId),
		attribute.String("api_key_id", keyId),
	)

	query := `UPDATE api_keys SET is_active = 0, revoked_at = ? WHERE workspace_id = ? AND id = ?`
	result, err := s.execContext(ctx, query, nowUTC(), workspaceId, keyId)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to revoke api key: %w", err)
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
