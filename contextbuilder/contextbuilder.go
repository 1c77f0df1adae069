// Package contextbuilder assembles the message list a provider call sends
// upstream: system instructions, trailing thread history truncated to the
// model's context budget, and the platform tool catalog (spec §4.2).
//
// It fronts domain.ThreadStorage/domain.AssistantStorage with a two-tier
// cache — a small process-local LRU ahead of Redis — keyed the way
// srv/redis.Storage keyed flow/task lookups in the teacher: a short-TTL
// object cache (`assistant:{id}`) plus a capped Redis list for thread
// history (`thread:{thread_id}:history`, LPush/LTrim at 200 entries).
package contextbuilder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"inference-gateway/common"
	"inference-gateway/domain"
	"inference-gateway/providers"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	assistantCacheTTL  = 5 * time.Minute
	threadHistoryCap   = 200
	threadHistoryTTL   = 24 * time.Hour
	localCacheCapacity = 256

	systemMessageTimestampFormat = "2006-01-02 15:04:05"

	// toolUsageProtocolOpenTag/CloseTag delimit the block of an assistant's
	// instructions that teaches the inline markup dialects normalizer.scanner
	// recovers from plain text. Models with native tool-call support never
	// take that path, so _build_amended_system_message (spec §4.2) strips it.
	toolUsageProtocolOpenTag  = "<TOOL_USAGE_PROTOCOL>"
	toolUsageProtocolCloseTag = "</TOOL_USAGE_PROTOCOL>"
)

// Builder assembles provider-ready message lists for a run.
type Builder struct {
	threads    domain.ThreadStorage
	assistants domain.AssistantStorage
	redis      *redis.Client
	local      *lru
}

func New(threads domain.ThreadStorage, assistants domain.AssistantStorage, redisClient *redis.Client) *Builder {
	return &Builder{
		threads:    threads,
		assistants: assistants,
		redis:      redisClient,
		local:      newLRU(localCacheCapacity),
	}
}

// GetAssistant returns the assistant, preferring the process-local cache,
// then Redis, falling back to the database and repopulating both tiers. A
// Redis outage fails open to the cold DB load per spec §7.
func (b *Builder) GetAssistant(ctx context.Context, workspaceId, assistantId string) (domain.Assistant, error) {
	cacheKey := fmt.Sprintf("assistant:%s", assistantId)

	if v, ok := b.local.Get(cacheKey); ok {
		return v.(domain.Assistant), nil
	}

	if b.redis != nil {
		raw, err := b.redis.Get(ctx, cacheKey).Result()
		if err == nil {
			var assistant domain.Assistant
			if jsonErr := json.Unmarshal([]byte(raw), &assistant); jsonErr == nil {
				b.local.Put(cacheKey, assistant)
				return assistant, nil
			}
		} else if err != redis.Nil {
			log.Warn().Err(err).Str("assistantId", assistantId).Msg("redis assistant cache read failed, falling back to db")
		}
	}

	assistant, err := b.assistants.GetAssistant(ctx, workspaceId, assistantId)
	if err != nil {
		return domain.Assistant{}, err
	}

	b.local.Put(cacheKey, assistant)
	if b.redis != nil {
		if raw, jsonErr := json.Marshal(assistant); jsonErr == nil {
			if err := b.redis.Set(ctx, cacheKey, raw, assistantCacheTTL).Err(); err != nil {
				log.Warn().Err(err).Msg("failed to populate assistant redis cache")
			}
		}
	}
	return assistant, nil
}

// InvalidateAssistant must be called whenever an assistant is updated or
// deleted so stale instructions/tools don't leak into subsequent runs.
func (b *Builder) InvalidateAssistant(ctx context.Context, assistantId string) {
	cacheKey := fmt.Sprintf("assistant:%s", assistantId)
	b.local.Delete(cacheKey)
	if b.redis != nil {
		if err := b.redis.Del(ctx, cacheKey).Err(); err != nil {
			log.Warn().Err(err).Msg("failed to invalidate assistant redis cache")
		}
	}
}

// AppendHistory records a message in the bounded Redis list backing thread
// history reads, mirroring it into the durable store.
func (b *Builder) AppendHistory(ctx context.Context, message domain.Message) error {
	if err := b.threads.AppendMessage(ctx, message); err != nil {
		return err
	}
	if b.redis == nil {
		return nil
	}
	raw, err := json.Marshal(message)
	if err != nil {
		return err
	}
	key := historyKey(message.ThreadId)
	pipe := b.redis.TxPipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, threadHistoryCap-1)
	pipe.Expire(ctx, key, threadHistoryTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("threadId", message.ThreadId).Msg("failed to mirror message into redis thread history")
	}
	return nil
}

// Build assembles the provider-ready message list for a run: a leading
// system message (tool catalog + instructions + timestamp, recomposed every
// call per spec §4.2 step 2) followed by the thread's trailing history,
// truncated to fit the assistant's model context window (spec §4.2, §8
// "token-budget truncation preserves turn pairing").
func (b *Builder) Build(ctx context.Context, workspaceId string, assistant domain.Assistant, thread domain.Thread) ([]domain.Message, error) {
	history, err := b.trailingHistory(ctx, workspaceId, thread.Id)
	if err != nil {
		return nil, err
	}

	systemContent, err := composeSystemMessage(assistant)
	if err != nil {
		return nil, err
	}

	limit := common.GetModelContextLimit(assistant.Model, assistant.Model)
	budget := limit - common.EstimateTokens(systemContent)

	truncated := truncateToBudget(history, budget)

	messages := make([]domain.Message, 0, len(truncated)+1)
	messages = append(messages, domain.Message{
		ThreadId: thread.Id,
		Role:     domain.MessageRoleSystem,
		Content:  systemContent,
	})
	messages = append(messages, truncated...)
	return messages, nil
}

// composeSystemMessage builds the leading system message exactly as spec
// §4.2 step 2 prescribes: "tools:\n{json(tools)}\n{instructions}\nToday's
// date and time: {YYYY-MM-DD HH:MM:SS}", timestamp recomputed every call so
// two Build calls for the same (assistant, thread) differ only there.
func composeSystemMessage(assistant domain.Assistant) (string, error) {
	toolsJSON, err := json.Marshal(assistant.Tools)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tool catalog: %w", err)
	}

	provider := string(providers.ProviderFromModel(assistant.Model))
	nativeToolCalls := common.ModelSupportsNativeToolCalls(provider, assistant.Model)
	instructions := buildInstructions(nativeToolCalls, assistant.Instructions)
	timestamp := time.Now().UTC().Format(systemMessageTimestampFormat)

	return fmt.Sprintf("tools:\n%s\n%s\nToday's date and time: %s", toolsJSON, instructions, timestamp), nil
}

// buildInstructions implements spec §4.2's "variant for reasoning-heavy
// models": _build_amended_system_message strips the <TOOL_USAGE_PROTOCOL>
// block from instructions for models with native tool-call support, since
// they never need the inline-markup dialects that block teaches.
func buildInstructions(nativeToolCalls bool, instructions string) string {
	if !nativeToolCalls {
		return instructions
	}

	start := strings.Index(instructions, toolUsageProtocolOpenTag)
	if start < 0 {
		return instructions
	}
	rest := instructions[start:]
	closeIdx := strings.Index(rest, toolUsageProtocolCloseTag)
	if closeIdx < 0 {
		return instructions
	}
	end := start + closeIdx + len(toolUsageProtocolCloseTag)
	return strings.TrimSpace(instructions[:start] + instructions[end:])
}

// trailingHistory prefers the Redis list (most-recent-first, so it's
// reversed) and falls back to the database read when Redis is unavailable
// or the list hasn't been populated yet.
func (b *Builder) trailingHistory(ctx context.Context, workspaceId, threadId string) ([]domain.Message, error) {
	if b.redis != nil {
		raws, err := b.redis.LRange(ctx, historyKey(threadId), 0, threadHistoryCap-1).Result()
		if err == nil && len(raws) > 0 {
			messages := make([]domain.Message, 0, len(raws))
			for i := len(raws) - 1; i >= 0; i-- {
				var m domain.Message
				if jsonErr := json.Unmarshal([]byte(raws[i]), &m); jsonErr == nil {
					messages = append(messages, m)
				}
			}
			return messages, nil
		}
		if err != nil && err != redis.Nil {
			log.Warn().Err(err).Str("threadId", threadId).Msg("redis thread history read failed, falling back to db")
		}
	}
	return b.threads.GetTrailingMessages(ctx, workspaceId, threadId, threadHistoryCap)
}

// truncateToBudget drops the oldest messages until the remaining history's
// estimated token count fits budget, never splitting a message body.
func truncateToBudget(messages []domain.Message, budget int) []domain.Message {
	if budget <= 0 {
		return nil
	}
	total := 0
	for _, m := range messages {
		total += common.EstimateTokens(m.Content)
	}
	start := 0
	for total > budget && start < len(messages) {
		total -= common.EstimateTokens(messages[start].Content)
		start++
	}
	return messages[start:]
}

func historyKey(threadId string) string {
	return fmt.Sprintf("thread:%s:history", threadId)
}
