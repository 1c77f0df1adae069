package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ToolResourceSet maps a tool type (eg "file_search") to the set of external
// resource ids the tool should operate over for this assistant, eg
// {"file_search": {"vector_store_ids": [...]}}.
type ToolResourceSet map[string]interface{}

// Assistant is immutable for the duration of a run: it is looked up once by
// the context builder and cached (process-local and Redis).
type Assistant struct {
	Id            string          `json:"id"`
	WorkspaceId   string          `json:"workspaceId"`
	Model         string          `json:"model"`
	Instructions  string          `json:"instructions"`
	Tools         []*Tool         `json:"tools"`
	ToolResources ToolResourceSet `json:"toolResources"`
	Created       time.Time       `json:"created"`
	Updated       time.Time       `json:"updated"`
}

func (a Assistant) MarshalJSON() ([]byte, error) {
	type Alias Assistant
	return json.Marshal(&struct {
		Alias
		Created time.Time `json:"created"`
		Updated time.Time `json:"updated"`
	}{
		Alias:   Alias(a),
		Created: UTCTime(a.Created),
		Updated: UTCTime(a.Updated),
	})
}

// Tool is an ordered tool spec an assistant may invoke, native to the
// provider's function-calling schema.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// AssistantStorage is the narrow persistence interface the context builder
// and admin API depend on; the relational store itself is out of scope.
type AssistantStorage interface {
	PersistAssistant(ctx context.Context, assistant Assistant) error
	GetAssistant(ctx context.Context, workspaceId, assistantId string) (Assistant, error)
	DeleteAssistant(ctx context.Context, workspaceId, assistantId string) error
}
