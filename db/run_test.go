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

func TestPersistAndGetRun(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	run := domain.Run{
		Id:          "run-1",
		WorkspaceId: "ws-1",
		ThreadId:    "thread-1",
		AssistantId: "asst-1",
		Status:      domain.RunStatusQueued,
		Model:       "gpt-4o",
		CreatedAt:   now,
	}
	require.NoError(t, s.PersistRun(ctx, run))

	got, err := s.GetRun(ctx, "ws-1", "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusQueued, got.Status)
	assert.Nil(t, got.StartedAt)
}

func TestPersistRun_TransitionUpdatesStatusAndTimestamps(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	run := domain.Run{Id: "run-1", WorkspaceId: "ws-1", Status: domain.RunStatusQueued, CreatedAt: now}
	require.NoError(t, s.PersistRun(ctx, run))

	require.NoError(t, run.Transition(domain.RunStatusInProgress, now.Add(time.Second)))
	require.NoError(t, s.PersistRun(ctx, run))

	got, err := s.GetRun(ctx, "ws-1", "run-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusInProgress, got.Status)
	require.NotNil(t, got.StartedAt)
}

func TestGetRun_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStorage(t)
	_, err := s.GetRun(context.Background(), "ws-1", "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
