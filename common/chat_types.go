package common

import (
	"fmt"

	"github.com/invopop/jsonschema"
)

// ChatMessage is the provider-agnostic wire format the context builder
// assembles and the provider workers translate into their native request
// shape (spec §3 Message, §4.2).
type ChatMessage struct {
	Role      ChatMessageRole `json:"role"`
	Content   string          `json:"content"`
	ToolCalls []ToolCall      `json:"toolCalls,omitempty"`

	// set when Role is tool: which call this message answers
	Name       string `json:"name,omitempty"`
	ToolCallId string `json:"toolCallId,omitempty"`
	IsError    bool   `json:"isError,omitempty"`
}

type ChatMessageRole string

const (
	ChatMessageRoleUser      ChatMessageRole = "user"
	ChatMessageRoleAssistant ChatMessageRole = "assistant"
	ChatMessageRoleSystem    ChatMessageRole = "system"
	ChatMessageRoleTool      ChatMessageRole = "tool"
)

// ChatMessageResponse is a fully assembled (non-streaming) response from a
// ToolChatter, including execution metadata.
type ChatMessageResponse struct {
	ChatMessage
	ReasoningContent string       `json:"reasoningContent,omitempty"`
	StopReason       string       `json:"stopReason"`
	Usage            Usage        `json:"usage"`
	Model            string       `json:"model"`
	Provider         ChatProvider `json:"provider"`
}

type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// ChatMessageDelta is one streaming fragment, modeled on OpenAI's delta
// format but generalized with a ReasoningContent channel (spec §4.1 Hermes
// reasoning channel / <think> blocks) and per-index tool-call deltas so a
// structured tool_calls array can be accumulated slot by slot as it streams.
type ChatMessageDelta struct {
	Role             ChatMessageRole `json:"role,omitempty"`
	Content          string          `json:"content,omitempty"`
	ReasoningContent string          `json:"reasoningContent,omitempty"`
	ToolCalls        []ToolCallDelta `json:"toolCalls,omitempty"`
	FinishReason     string          `json:"finishReason,omitempty"`
	Usage            Usage           `json:"usage"`
}

// ToolCallDelta is one fragment of one tool call in a structured delta
// stream, keyed by Index so fragments for the same call can be merged in
// arrival order regardless of provider chunking.
type ToolCallDelta struct {
	Index            int    `json:"index"`
	Id               string `json:"id,omitempty"`
	Name             string `json:"name,omitempty"`
	ArgumentsDelta   string `json:"argumentsDelta,omitempty"`
}

type ToolChoice struct {
	Type ToolChoiceType `json:"type"`
	Name string         `json:"name"`
}

type ToolChoiceType string

const (
	ToolChoiceTypeAuto        ToolChoiceType = "auto"
	ToolChoiceTypeUnspecified ToolChoiceType = ""
	ToolChoiceTypeTool        ToolChoiceType = "tool" // aka "function" in the OpenAI API
	ToolChoiceTypeRequired    ToolChoiceType = "required" // aka "any" in the Anthropic API
)

// ToolCall is one fully-assembled tool invocation intent, whether it
// originated as a native structured delta or was recovered from inline
// markup by the normalizer (spec §4.1, §4.3).
type ToolCall struct {
	Id        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Tool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

type ChatProvider string

const (
	UnspecifiedChatProvider ChatProvider = ""
	OpenaiChatProvider      ChatProvider = "openai"
	AnthropicChatProvider   ChatProvider = "anthropic"
	GoogleChatProvider      ChatProvider = "google"
)

// ToolChatProvider enumerates every upstream family the provider factory
// (spec §4.5) can dispatch to. The OpenAI-compatible families are all served
// by the OpenAI worker pointed at a different BaseURL; they get their own
// constants so the factory's prefix table and SmallModel/LongContextLargeModel
// lookups can be model-prefix specific.
type ToolChatProvider string

const (
	UnspecifiedToolChatProvider ToolChatProvider = ""
	OpenaiToolChatProvider      ToolChatProvider = "openai"
	AnthropicToolChatProvider   ToolChatProvider = "anthropic"
	GoogleToolChatProvider      ToolChatProvider = "google"
	DeepseekToolChatProvider    ToolChatProvider = "deepseek"
	MetaLlamaToolChatProvider   ToolChatProvider = "meta-llama"
	QwenToolChatProvider        ToolChatProvider = "qwen"
	TogetherAiToolChatProvider  ToolChatProvider = "together-ai"
	HyperbolicToolChatProvider  ToolChatProvider = "hyperbolic"
)

var SmallModels = map[ToolChatProvider]string{
	OpenaiToolChatProvider:    "gpt-4o-mini",
	AnthropicToolChatProvider: "claude-3-5-haiku-20241022",
	GoogleToolChatProvider:    "gemini-2.0-flash",
}

func (provider ToolChatProvider) SmallModel() string {
	return SmallModels[provider]
}

// LongContextLargeModels names, per provider family, a model worth routing
// to when a run's accumulated thread history no longer fits the configured
// default model's context window (spec §3.4 context overflow handling).
var LongContextLargeModels = map[ToolChatProvider]string{
	OpenaiToolChatProvider:    "gpt-4-turbo",
	AnthropicToolChatProvider: "claude-3-opus-20240229",
	GoogleToolChatProvider:    "gemini-1.5-pro",
}

func (provider ToolChatProvider) LongContextLargeModel() string {
	return LongContextLargeModels[provider]
}

func StringToToolChatProvider(provider string) (ToolChatProvider, error) {
	switch ToolChatProvider(provider) {
	case OpenaiToolChatProvider, AnthropicToolChatProvider, GoogleToolChatProvider,
		DeepseekToolChatProvider, MetaLlamaToolChatProvider, QwenToolChatProvider,
		TogetherAiToolChatProvider, HyperbolicToolChatProvider, UnspecifiedToolChatProvider:
		return ToolChatProvider(provider), nil
	default:
		return UnspecifiedToolChatProvider, fmt.Errorf("unknown provider: %s", provider)
	}
}
