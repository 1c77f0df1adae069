package eventbus

import (
	"context"
	"testing"
	"time"

	"inference-gateway/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishFansOutToLocalSubscribers(t *testing.T) {
	bus := New(nil)
	ch, unsubscribe := bus.Subscribe("run_1")
	defer unsubscribe()

	bus.Publish(context.Background(), domain.StreamChunk{Type: domain.StreamChunkContent, RunId: "run_1", Content: "hello"})

	select {
	case chunk := <-ch:
		assert.Equal(t, "hello", chunk.Content)
	case <-time.After(time.Second):
		t.Fatal("expected a chunk to be delivered")
	}
}

func TestBus_PublishDoesNotDeliverToOtherRuns(t *testing.T) {
	bus := New(nil)
	ch, unsubscribe := bus.Subscribe("run_1")
	defer unsubscribe()

	bus.Publish(context.Background(), domain.StreamChunk{Type: domain.StreamChunkContent, RunId: "run_2", Content: "nope"})

	select {
	case chunk := <-ch:
		t.Fatalf("unexpected chunk delivered: %+v", chunk)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil)
	ch, unsubscribe := bus.Subscribe("run_1")
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)
}

func TestBus_ReplayWithoutRedisReturnsNil(t *testing.T) {
	bus := New(nil)
	chunks, err := bus.Replay(context.Background(), "run_1")
	require.NoError(t, err)
	assert.Nil(t, chunks)
}

func TestBus_TailWithoutRedisReturnsCursorUnchanged(t *testing.T) {
	bus := New(nil)
	chunks, nextID, err := bus.Tail(context.Background(), "run_1", "42-0")
	require.NoError(t, err)
	assert.Nil(t, chunks)
	assert.Equal(t, "42-0", nextID)
}
