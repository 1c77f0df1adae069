package domain

import (
	"context"
	"encoding/json"
	"time"
)

// APIKey is presented to clients as `{prefix}{urlsafe-base64}` (spec §6). The
// prefix is the first 8 characters of the generated token and is stored in
// the clear so lookups can shard on it; the remainder is verified against
// HashedSecret, never stored in the clear.
type APIKey struct {
	Id           string     `json:"id"`
	WorkspaceId  string     `json:"workspaceId"`
	Prefix       string     `json:"prefix"`
	HashedSecret string     `json:"-"`
	Label        string     `json:"label"`
	IsActive     bool       `json:"isActive"`
	CreatedAt    time.Time  `json:"createdAt"`
	RevokedAt    *time.Time `json:"revokedAt,omitempty"`
}

func (k APIKey) MarshalJSON() ([]byte, error) {
	type Alias APIKey
	return json.Marshal(&struct {
		Alias
		CreatedAt time.Time  `json:"createdAt"`
		RevokedAt *time.Time `json:"revokedAt,omitempty"`
	}{
		Alias:     Alias(k),
		CreatedAt: UTCTime(k.CreatedAt),
		RevokedAt: UTCTimePtr(k.RevokedAt),
	})
}

const APIKeyPrefixLength = 8

// APIKeyStorage is the narrow persistence interface for API-key lifecycle
// (creation, lookup by prefix, revocation).
type APIKeyStorage interface {
	PersistAPIKey(ctx context.Context, key APIKey) error
	GetAPIKeyByPrefix(ctx context.Context, prefix string) (APIKey, error)
	RevokeAPIKey(ctx context.Context, workspaceId, keyId string) error
}
