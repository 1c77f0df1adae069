package db

import (
	"context"
	"testing"
	"time"

	"inference-gateway/common"
	"inference-gateway/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistAndGetAssistant(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	assistant := domain.Assistant{
		Id:           "asst-1",
		WorkspaceId:  "ws-1",
		Model:        "gpt-4o",
		Instructions: "be helpful",
		Tools:        []*domain.Tool{{Name: "web_search", Description: "search the web"}},
		ToolResources: domain.ToolResourceSet{
			"file_search": map[string]interface{}{"vector_store_ids": []interface{}{"vs-1"}},
		},
		Created: now,
		Updated: now,
	}

	require.NoError(t, s.PersistAssistant(ctx, assistant))

	got, err := s.GetAssistant(ctx, "ws-1", "asst-1")
	require.NoError(t, err)
	assert.Equal(t, assistant.Model, got.Model)
	assert.Equal(t, assistant.Instructions, got.Instructions)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "web_search", got.Tools[0].Name)
}

func TestGetAssistant_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	_, err := s.GetAssistant(context.Background(), "ws-1", "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestPersistAssistant_UpdateExisting(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	assistant := domain.Assistant{Id: "asst-1", WorkspaceId: "ws-1", Model: "gpt-4o-mini", Created: now, Updated: now}
	require.NoError(t, s.PersistAssistant(ctx, assistant))

	assistant.Model = "gpt-4o"
	assistant.Updated = now.Add(time.Minute)
	require.NoError(t, s.PersistAssistant(ctx, assistant))

	got, err := s.GetAssistant(ctx, "ws-1", "asst-1")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", got.Model)
}

func TestDeleteAssistant(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.PersistAssistant(ctx, domain.Assistant{Id: "asst-1", WorkspaceId: "ws-1", Created: now, Updated: now}))
	require.NoError(t, s.DeleteAssistant(ctx, "ws-1", "asst-1"))

	_, err := s.GetAssistant(ctx, "ws-1", "asst-1")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDeleteAssistant_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	err := s.DeleteAssistant(context.Background(), "ws-1", "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
