package orchestrator

import (
	"encoding/json"

	"inference-gateway/common"
	"inference-gateway/domain"
	"inference-gateway/providers"

	"github.com/invopop/jsonschema"
)

// toolsFromAssistant adapts an assistant's native-schema tool catalog into
// the providers.Params.Tools shape each provider worker expects, mirroring
// the teacher's llm/tool_chat.go Tool conversion.
func toolsFromAssistant(tools []*domain.Tool) []*common.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]*common.Tool, 0, len(tools))
	for _, t := range tools {
		var schema *jsonschema.Schema
		if len(t.Parameters) > 0 {
			schema = &jsonschema.Schema{}
			if err := json.Unmarshal(t.Parameters, schema); err != nil {
				schema = nil
			}
		}
		out = append(out, &common.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	return out
}

// messagesToProvider translates the context builder's persisted message
// history into the provider package's content-block message model (spec
// §4.2 feeding §4.5). Tool-role messages are re-expressed as a user-role
// tool_result block, matching how Anthropic/OpenAI expect prior tool output
// to be threaded back into the conversation.
func messagesToProvider(messages []domain.Message) []providers.Message {
	out := make([]providers.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.MessageRoleSystem:
			out = append(out, providers.Message{
				Role:    providers.RoleSystem,
				Content: []providers.ContentBlock{{Type: providers.ContentBlockTypeText, Text: m.Content}},
			})
		case domain.MessageRoleTool:
			out = append(out, providers.Message{
				Role: providers.RoleUser,
				Content: []providers.ContentBlock{{
					Type: providers.ContentBlockTypeToolResult,
					ToolResult: &providers.ToolResultBlock{
						ToolCallId: m.ToolCallId,
						Text:       m.Content,
					},
				}},
			})
		case domain.MessageRoleAssistant:
			out = append(out, providers.Message{
				Role:    providers.RoleAssistant,
				Content: []providers.ContentBlock{{Type: providers.ContentBlockTypeText, Text: m.Content}},
			})
		default:
			out = append(out, providers.Message{
				Role:    providers.RoleUser,
				Content: []providers.ContentBlock{{Type: providers.ContentBlockTypeText, Text: m.Content}},
			})
		}
	}
	return out
}

// serializeAssistantContent renders the final persisted Message.Content for
// a turn: the assembled text when the model produced plain content, or a
// serialized tool-call envelope when the turn ended in tool calls (spec §8
// "persisted Messages equal turns that produced content or a tool-call
// envelope").
func serializeAssistantContent(content string, toolCalls []domain.ToolCallContent) string {
	if len(toolCalls) == 0 {
		return content
	}
	envelope, err := json.Marshal(struct {
		Content   string                  `json:"content,omitempty"`
		ToolCalls []domain.ToolCallContent `json:"toolCalls"`
	}{Content: content, ToolCalls: toolCalls})
	if err != nil {
		return content
	}
	return string(envelope)
}
