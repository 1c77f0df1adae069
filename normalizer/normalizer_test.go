package normalizer

import (
	"testing"

	"inference-gateway/domain"
	"inference-gateway/providers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(n *Normalizer, events []providers.Event) []domain.StreamChunk {
	var out []domain.StreamChunk
	for _, ev := range events {
		out = append(out, n.Feed(ev)...)
	}
	return out
}

func TestNormalizer_PlainTextPassesThroughAsContent(t *testing.T) {
	n := New("run_1")
	chunks := feedAll(n, []providers.Event{
		{Type: providers.EventBlockStarted, Index: 0, ContentBlock: &providers.ContentBlock{Type: providers.ContentBlockTypeText}},
		{Type: providers.EventTextDelta, Index: 0, Delta: "hello "},
		{Type: providers.EventTextDelta, Index: 0, Delta: "world"},
		{Type: providers.EventBlockDone, Index: 0},
	})

	var text string
	for _, c := range chunks {
		if c.Type == domain.StreamChunkContent {
			text += c.Content.(string)
		}
	}
	assert.Equal(t, "hello world", text)
}

func TestNormalizer_NativeToolUseBlockEmitsToolCall(t *testing.T) {
	n := New("run_1")
	chunks := feedAll(n, []providers.Event{
		{Type: providers.EventBlockStarted, Index: 0, ContentBlock: &providers.ContentBlock{
			Type:    providers.ContentBlockTypeToolUse,
			ToolUse: &providers.ToolUseBlock{Id: "call_1", Name: "get_weather"},
		}},
		{Type: providers.EventTextDelta, Index: 0, Delta: `{"city":`},
		{Type: providers.EventTextDelta, Index: 0, Delta: `"nyc"}`},
		{Type: providers.EventBlockDone, Index: 0},
	})

	require.Len(t, chunks, 3) // 2 call_arguments deltas + 1 tool_call
	last := chunks[len(chunks)-1]
	require.Equal(t, domain.StreamChunkToolCall, last.Type)
	tc := last.Content.(domain.ToolCallContent)
	assert.Equal(t, "call_1", tc.Id)
	assert.Equal(t, "get_weather", tc.Name)
	assert.Equal(t, "nyc", tc.Arguments["city"])
}

func TestNormalizer_InlineThinkTagRecoveredAsReasoning(t *testing.T) {
	n := New("run_1")
	chunks := feedAll(n, []providers.Event{
		{Type: providers.EventBlockStarted, Index: 0, ContentBlock: &providers.ContentBlock{Type: providers.ContentBlockTypeText}},
		{Type: providers.EventTextDelta, Index: 0, Delta: "<think>pondering"},
		{Type: providers.EventTextDelta, Index: 0, Delta: " deeply</think>answer"},
		{Type: providers.EventBlockDone, Index: 0},
	})

	var reasoning, content string
	for _, c := range chunks {
		switch c.Type {
		case domain.StreamChunkReasoning:
			reasoning += c.Content.(string)
		case domain.StreamChunkContent:
			content += c.Content.(string)
		}
	}
	assert.Equal(t, "pondering deeply", reasoning)
	assert.Equal(t, "answer", content)
}

func TestNormalizer_TagSplitAcrossChunksStillRecognized(t *testing.T) {
	n := New("run_1")
	chunks := feedAll(n, []providers.Event{
		{Type: providers.EventBlockStarted, Index: 0, ContentBlock: &providers.ContentBlock{Type: providers.ContentBlockTypeText}},
		{Type: providers.EventTextDelta, Index: 0, Delta: "<tool_"},
		{Type: providers.EventTextDelta, Index: 0, Delta: `call>{"name":"lookup","arguments":{"q":"go"}}`},
		{Type: providers.EventTextDelta, Index: 0, Delta: "</tool_call>"},
		{Type: providers.EventBlockDone, Index: 0},
	})

	require.Len(t, chunks, 1)
	assert.Equal(t, domain.StreamChunkToolCall, chunks[0].Type)
	tc := chunks[0].Content.(domain.ToolCallContent)
	assert.Equal(t, "lookup", tc.Name)
	assert.Equal(t, "go", tc.Arguments["q"])
}

func TestNormalizer_BareLessThanIsNotMistakenForATag(t *testing.T) {
	n := New("run_1")
	chunks := feedAll(n, []providers.Event{
		{Type: providers.EventBlockStarted, Index: 0, ContentBlock: &providers.ContentBlock{Type: providers.ContentBlockTypeText}},
		{Type: providers.EventTextDelta, Index: 0, Delta: "1 < 2 and 3 < 4"},
		{Type: providers.EventBlockDone, Index: 0},
	})

	var content string
	for _, c := range chunks {
		if c.Type == domain.StreamChunkContent {
			content += c.Content.(string)
		}
	}
	assert.Equal(t, "1 < 2 and 3 < 4", content)
}

func TestNormalizer_UnterminatedTagFlushedAsContent(t *testing.T) {
	n := New("run_1")
	chunks := feedAll(n, []providers.Event{
		{Type: providers.EventBlockStarted, Index: 0, ContentBlock: &providers.ContentBlock{Type: providers.ContentBlockTypeText}},
		{Type: providers.EventTextDelta, Index: 0, Delta: "<plan>never closes"},
		{Type: providers.EventBlockDone, Index: 0},
	})

	require.Len(t, chunks, 1)
	assert.Equal(t, domain.StreamChunkContent, chunks[0].Type)
	assert.Equal(t, "never closes", chunks[0].Content.(string))
}

func TestNormalizer_ReasoningBlockDeltasPassThrough(t *testing.T) {
	n := New("run_1")
	chunks := feedAll(n, []providers.Event{
		{Type: providers.EventBlockStarted, Index: 0, ContentBlock: &providers.ContentBlock{Type: providers.ContentBlockTypeReasoning}},
		{Type: providers.EventTextDelta, Index: 0, Delta: "thinking..."},
		{Type: providers.EventBlockDone, Index: 0},
	})
	require.Len(t, chunks, 1)
	assert.Equal(t, domain.StreamChunkReasoning, chunks[0].Type)
	assert.Equal(t, "thinking...", chunks[0].Content.(string))
}

func TestNormalizer_QwenLazyToolCodeRecoveredAsToolCall(t *testing.T) {
	n := New("run_1")
	chunks := feedAll(n, []providers.Event{
		{Type: providers.EventBlockStarted, Index: 0, ContentBlock: &providers.ContentBlock{Type: providers.ContentBlockTypeText}},
		{Type: providers.EventTextDelta, Index: 0, Delta: `<tool_code>{"name":"lookup","arguments":{"q":"go"}}</tool_code>`},
		{Type: providers.EventBlockDone, Index: 0},
	})

	require.Len(t, chunks, 1)
	assert.Equal(t, domain.StreamChunkToolCall, chunks[0].Type)
	tc := chunks[0].Content.(domain.ToolCallContent)
	assert.Equal(t, "lookup", tc.Name)
}

func TestNormalizer_MarkdownJSONFenceRecoveredAsToolCall(t *testing.T) {
	n := New("run_1")
	chunks := feedAll(n, []providers.Event{
		{Type: providers.EventBlockStarted, Index: 0, ContentBlock: &providers.ContentBlock{Type: providers.ContentBlockTypeText}},
		{Type: providers.EventTextDelta, Index: 0, Delta: "```json"},
		{Type: providers.EventTextDelta, Index: 0, Delta: `{"name":"lookup","arguments":{"q":"go"}}` + "```"},
		{Type: providers.EventBlockDone, Index: 0},
	})

	require.Len(t, chunks, 1)
	assert.Equal(t, domain.StreamChunkToolCall, chunks[0].Type)
	tc := chunks[0].Content.(domain.ToolCallContent)
	assert.Equal(t, "lookup", tc.Name)
}

func TestNormalizer_HermesAnalysisChannelRecoveredAsReasoning(t *testing.T) {
	n := New("run_1")
	chunks := feedAll(n, []providers.Event{
		{Type: providers.EventBlockStarted, Index: 0, ContentBlock: &providers.ContentBlock{Type: providers.ContentBlockTypeText}},
		{Type: providers.EventTextDelta, Index: 0, Delta: "<|channel|>analysis<|message|>weighing options<|call|>"},
		{Type: providers.EventBlockDone, Index: 0},
	})

	require.Len(t, chunks, 1)
	assert.Equal(t, domain.StreamChunkReasoning, chunks[0].Type)
	assert.Equal(t, "weighing options", chunks[0].Content.(string))
}

func TestNormalizer_HermesCommentaryChannelRecoveredAsToolCall(t *testing.T) {
	n := New("run_1")
	chunks := feedAll(n, []providers.Event{
		{Type: providers.EventBlockStarted, Index: 0, ContentBlock: &providers.ContentBlock{Type: providers.ContentBlockTypeText}},
		{Type: providers.EventTextDelta, Index: 0, Delta: `<|channel|>commentary to=functions.lookup<|message|>{"name":"lookup","arguments":{"q":"go"}}<|call|>`},
		{Type: providers.EventBlockDone, Index: 0},
	})

	require.Len(t, chunks, 1)
	assert.Equal(t, domain.StreamChunkToolCall, chunks[0].Type)
	tc := chunks[0].Content.(domain.ToolCallContent)
	assert.Equal(t, "lookup", tc.Name)
}

func TestNormalizer_HermesChannelSwitchClosesPriorChannel(t *testing.T) {
	n := New("run_1")
	chunks := feedAll(n, []providers.Event{
		{Type: providers.EventBlockStarted, Index: 0, ContentBlock: &providers.ContentBlock{Type: providers.ContentBlockTypeText}},
		{Type: providers.EventTextDelta, Index: 0, Delta: "<|channel|>analysis<|message|>thinking"},
		{Type: providers.EventTextDelta, Index: 0, Delta: `<|channel|>commentary<|message|>{"name":"lookup","arguments":{}}<|call|>`},
		{Type: providers.EventBlockDone, Index: 0},
	})

	var reasoning string
	var sawToolCall bool
	for _, c := range chunks {
		switch c.Type {
		case domain.StreamChunkReasoning:
			reasoning += c.Content.(string)
		case domain.StreamChunkToolCall:
			sawToolCall = true
		}
	}
	assert.Equal(t, "thinking", reasoning)
	assert.True(t, sawToolCall)
}

func TestNormalizer_KimiToolCallsSectionRecoveredAsToolCall(t *testing.T) {
	n := New("run_1")
	chunks := feedAll(n, []providers.Event{
		{Type: providers.EventBlockStarted, Index: 0, ContentBlock: &providers.ContentBlock{Type: providers.ContentBlockTypeText}},
		{Type: providers.EventTextDelta, Index: 0, Delta: "<|tool_calls_section_begin|><|tool_call_begin|>"},
		{Type: providers.EventTextDelta, Index: 0, Delta: `<|tool_call_argument_begin|>{"name":"lookup","arguments":{"q":"go"}}`},
		{Type: providers.EventTextDelta, Index: 0, Delta: "<|tool_call_end|><|tool_calls_section_end|>"},
		{Type: providers.EventBlockDone, Index: 0},
	})

	require.Len(t, chunks, 1)
	assert.Equal(t, domain.StreamChunkToolCall, chunks[0].Type)
	tc := chunks[0].Content.(domain.ToolCallContent)
	assert.Equal(t, "lookup", tc.Name)
}
