// Package eventbus fans a run's domain.StreamChunk values out to SSE
// subscribers and mirrors them into a bounded per-run Redis stream, per spec
// §4.7.
//
// Grounded on db/redis_flow_event_accessor.go's XAdd/XRead mirroring idiom
// and api/api.go's GetFlowActionChangesHandler polling loop in the teacher,
// generalized from the teacher's FlowEvent union to domain.StreamChunk and
// keyed by run id instead of flow id. The in-process fan-out (a run-id keyed
// map of subscriber channels) lets same-process SSE handlers skip the Redis
// round trip entirely; the Redis mirror exists so a second API process (or a
// reconnecting client that missed chunks) can still catch up via XRange.
package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"inference-gateway/domain"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	// StreamMaxLen bounds each per-run Redis stream to the last 1000 chunks
	// (spec §4.7, §5): a run that emits more than that has earlier chunks
	// trimmed, which is fine since SSE subscribers are expected to be live,
	// not replaying a run from scratch.
	StreamMaxLen = 1000
	// StreamTTL bounds how long a finished run's stream survives, so
	// abandoned runs don't leak Redis memory forever.
	StreamTTL = time.Hour
)

type subscriber struct {
	ch chan domain.StreamChunk
}

// Bus fans out StreamChunks for in-flight runs to local subscribers and
// mirrors every chunk into Redis under stream key "stream:{run_id}" (spec
// §4.7).
type Bus struct {
	redis *redis.Client

	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

func New(redisClient *redis.Client) *Bus {
	return &Bus{redis: redisClient, subs: map[string]map[*subscriber]struct{}{}}
}

// Subscribe registers a channel for runId's chunks. The returned func must
// be called to unregister (typically via defer) when the caller's SSE
// connection closes.
func (b *Bus) Subscribe(runId string) (<-chan domain.StreamChunk, func()) {
	sub := &subscriber{ch: make(chan domain.StreamChunk, 64)}

	b.mu.Lock()
	if b.subs[runId] == nil {
		b.subs[runId] = map[*subscriber]struct{}{}
	}
	b.subs[runId][sub] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[runId], sub)
		if len(b.subs[runId]) == 0 {
			delete(b.subs, runId)
		}
		close(sub.ch)
	}
	return sub.ch, unsubscribe
}

// Publish fans chunk out to every local subscriber for its RunId (dropping
// it for any subscriber whose buffer is full rather than blocking the
// publisher) and mirrors it into the run's bounded Redis stream.
func (b *Bus) Publish(ctx context.Context, chunk domain.StreamChunk) {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs[chunk.RunId]))
	for sub := range b.subs[chunk.RunId] {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- chunk:
		default:
			log.Warn().Str("runId", chunk.RunId).Msg("eventbus subscriber buffer full, dropping chunk")
		}
	}

	if b.redis == nil {
		return
	}
	raw, err := json.Marshal(chunk)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal stream chunk for redis mirror")
		return
	}
	key := streamKey(chunk.RunId)
	pipe := b.redis.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		MaxLen: StreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"chunk": raw},
	})
	pipe.Expire(ctx, key, StreamTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("runId", chunk.RunId).Msg("failed to mirror stream chunk into redis")
	}
}

// Replay returns every chunk currently retained in runId's Redis stream,
// oldest first, so a client reconnecting mid-run can catch up before
// subscribing for new chunks.
func (b *Bus) Replay(ctx context.Context, runId string) ([]domain.StreamChunk, error) {
	if b.redis == nil {
		return nil, nil
	}
	entries, err := b.redis.XRange(ctx, streamKey(runId), "-", "+").Result()
	if err != nil {
		return nil, err
	}
	chunks := make([]domain.StreamChunk, 0, len(entries))
	for _, entry := range entries {
		raw, ok := entry.Values["chunk"].(string)
		if !ok {
			continue
		}
		var chunk domain.StreamChunk
		if err := json.Unmarshal([]byte(raw), &chunk); err != nil {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// Tail blocks (up to 2s) waiting for chunks appended to runId's Redis stream
// after lastID, returning them oldest-first along with the new cursor to
// pass on the next call. This is how a second API process — one that never
// saw Publish's in-process fan-out because the run's ExecuteTurn activity is
// running on a different worker process — keeps an SSE connection live
// (spec §4.7 "API process has no in-memory subscriber for the run"). Pass
// "0" as lastID to start from the beginning of the retained stream.
func (b *Bus) Tail(ctx context.Context, runId, lastID string) ([]domain.StreamChunk, string, error) {
	if b.redis == nil {
		return nil, lastID, nil
	}
	if lastID == "" {
		lastID = "0"
	}
	streams, err := b.redis.XRead(ctx, &redis.XReadArgs{
		Streams: []string{streamKey(runId), lastID},
		Block:   2 * time.Second,
		Count:   100,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, lastID, nil
		}
		return nil, lastID, err
	}

	var chunks []domain.StreamChunk
	nextID := lastID
	for _, stream := range streams {
		for _, entry := range stream.Messages {
			raw, ok := entry.Values["chunk"].(string)
			if !ok {
				continue
			}
			var chunk domain.StreamChunk
			if err := json.Unmarshal([]byte(raw), &chunk); err != nil {
				continue
			}
			chunks = append(chunks, chunk)
			nextID = entry.ID
		}
	}
	return chunks, nextID, nil
}

func streamKey(runId string) string {
	return "stream:" + runId
}
