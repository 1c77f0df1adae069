// Package normalizer turns a provider's raw Event stream into the
// domain.StreamChunk union the rest of the gateway (eventbus, router,
// SSE clients) consumes, per spec §4.1.
//
// Two independent sources of structure are merged:
//   - native content blocks the provider itself tags (tool_use, reasoning,
//     refusal) via providers.Event.ContentBlock/Index, which need no
//     inference;
//   - plain text blocks, which are run through the tagged-enum scanner
//     (scanner.go) to recover inline <think>/<plan>/<decision>/<tool_call>
//     sections some open models emit instead of using native tool-calling.
package normalizer

import (
	"encoding/json"
	"strings"

	"inference-gateway/common"
	"inference-gateway/domain"
	"inference-gateway/providers"
)

type blockState struct {
	kind      providers.ContentBlockType
	toolUseId string
	toolName  string
	args      strings.Builder
	scan      *scanner
}

// Normalizer accumulates per-block state for a single run/turn's event
// stream and emits domain.StreamChunk values as deltas arrive.
type Normalizer struct {
	RunId  string
	blocks map[int]*blockState
}

func New(runId string) *Normalizer {
	return &Normalizer{RunId: runId, blocks: map[int]*blockState{}}
}

// Feed consumes one providers.Event and returns the StreamChunks it implies,
// in emission order. It never blocks and performs no I/O.
func (n *Normalizer) Feed(ev providers.Event) []domain.StreamChunk {
	switch ev.Type {
	case providers.EventBlockStarted:
		return n.onBlockStarted(ev)
	case providers.EventTextDelta, providers.EventSummaryTextDelta:
		return n.onTextDelta(ev)
	case providers.EventSignatureDelta:
		// signature/encrypted reasoning payloads are not surfaced over SSE.
		return nil
	case providers.EventBlockDone:
		return n.onBlockDone(ev)
	default:
		return nil
	}
}

func (n *Normalizer) onBlockStarted(ev providers.Event) []domain.StreamChunk {
	st := &blockState{scan: newScanner()}
	if ev.ContentBlock != nil {
		st.kind = ev.ContentBlock.Type
		if ev.ContentBlock.ToolUse != nil {
			st.toolUseId = ev.ContentBlock.ToolUse.Id
			st.toolName = ev.ContentBlock.ToolUse.Name
		}
	}
	n.blocks[ev.Index] = st
	return nil
}

func (n *Normalizer) onTextDelta(ev providers.Event) []domain.StreamChunk {
	st := n.blocks[ev.Index]
	if st == nil {
		st = &blockState{kind: providers.ContentBlockTypeText, scan: newScanner()}
		n.blocks[ev.Index] = st
	}

	switch st.kind {
	case providers.ContentBlockTypeToolUse, providers.ContentBlockTypeMcpCall:
		st.args.WriteString(ev.Delta)
		return []domain.StreamChunk{{Type: domain.StreamChunkCallArguments, RunId: n.RunId, Content: ev.Delta}}
	case providers.ContentBlockTypeReasoning:
		return []domain.StreamChunk{{Type: domain.StreamChunkReasoning, RunId: n.RunId, Content: ev.Delta}}
	case providers.ContentBlockTypeRefusal:
		return []domain.StreamChunk{{Type: domain.StreamChunkError, RunId: n.RunId, Content: domain.ErrorContent{
			ErrorType: "refusal",
			Message:   ev.Delta,
		}}}
	default:
		return n.scanTextDelta(st, ev.Delta)
	}
}

// scanTextDelta runs the inline-tag scanner over a text block's delta,
// producing content/reasoning/plan/decision chunks and, when a
// <tool_call>/<fc> section or ```json fence closes, a synthesized
// tool_call chunk recovered from text (spec §4.3 fallback detection).
func (n *Normalizer) scanTextDelta(st *blockState, delta string) []domain.StreamChunk {
	var chunks []domain.StreamChunk
	for _, r := range delta {
		for _, res := range st.scan.Feed(r) {
			chunks = append(chunks, n.resultToChunk(res)...)
		}
	}
	return chunks
}

func (n *Normalizer) resultToChunk(res scanResult) []domain.StreamChunk {
	if res.text == "" && !res.closed {
		return nil
	}
	switch res.kind {
	case kindReasoning:
		return []domain.StreamChunk{{Type: domain.StreamChunkReasoning, RunId: n.RunId, Content: res.text}}
	case kindPlan:
		return []domain.StreamChunk{{Type: domain.StreamChunkPlan, RunId: n.RunId, Content: res.text}}
	case kindDecision:
		return []domain.StreamChunk{{Type: domain.StreamChunkDecision, RunId: n.RunId, Content: res.text}}
	case kindToolCallText:
		if !res.closed {
			return nil
		}
		return n.parseInlineToolCall(res.text)
	default:
		return []domain.StreamChunk{{Type: domain.StreamChunkContent, RunId: n.RunId, Content: res.text}}
	}
}

// inlineToolCallPayload is the loose JSON shape <tool_call>/<fc> sections
// carry: {"name": "...", "arguments": {...}}.
type inlineToolCallPayload struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

func (n *Normalizer) parseInlineToolCall(raw string) []domain.StreamChunk {
	repaired := common.RepairJson(strings.TrimSpace(raw))
	var payload inlineToolCallPayload
	if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
		return []domain.StreamChunk{{Type: domain.StreamChunkError, RunId: n.RunId, Content: domain.ErrorContent{
			ErrorType: "tool_call_parse_error",
			Message:   err.Error(),
		}}}
	}
	return []domain.StreamChunk{{
		Type:  domain.StreamChunkToolCall,
		RunId: n.RunId,
		Content: domain.ToolCallContent{
			Name:      payload.Name,
			Arguments: payload.Arguments,
		},
	}}
}

func (n *Normalizer) onBlockDone(ev providers.Event) []domain.StreamChunk {
	st := n.blocks[ev.Index]
	if st == nil {
		return nil
	}
	defer delete(n.blocks, ev.Index)

	if st.kind == providers.ContentBlockTypeToolUse || st.kind == providers.ContentBlockTypeMcpCall {
		var args map[string]interface{}
		repaired := common.RepairJson(st.args.String())
		if repaired == "" {
			args = map[string]interface{}{}
		} else if err := json.Unmarshal([]byte(repaired), &args); err != nil {
			return []domain.StreamChunk{{Type: domain.StreamChunkError, RunId: n.RunId, Content: domain.ErrorContent{
				ErrorType: "tool_call_parse_error",
				Message:   err.Error(),
			}}}
		}
		return []domain.StreamChunk{{
			Type:  domain.StreamChunkToolCall,
			RunId: n.RunId,
			Content: domain.ToolCallContent{
				Id:        st.toolUseId,
				Name:      st.toolName,
				Arguments: args,
			},
		}}
	}

	// flush anything left dangling in the scanner (unterminated tag) as content
	var chunks []domain.StreamChunk
	for _, res := range st.scan.Flush() {
		chunks = append(chunks, n.resultToChunk(res)...)
	}
	return chunks
}
