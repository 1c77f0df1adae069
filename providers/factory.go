package providers

import (
	"strings"

	"inference-gateway/common"
)

// modelPrefixProviders maps a model-string prefix to the ToolChatProvider
// family that serves it (spec §4.5: "the factory keyed by a model-string
// prefix"). Checked in slice order and the first match wins; none of the
// prefixes here overlap, so the order does not change any result, and a
// slice keeps it fixed rather than relying on map iteration order.
var modelPrefixProviders = []struct {
	prefix   string
	provider common.ToolChatProvider
}{
	{"claude-", common.AnthropicToolChatProvider},
	{"gemini-", common.GoogleToolChatProvider},
	{"gpt-", common.OpenaiToolChatProvider},
	{"o1-", common.OpenaiToolChatProvider},
	{"o3-", common.OpenaiToolChatProvider},
	{"deepseek-", common.DeepseekToolChatProvider},
	{"llama-", common.MetaLlamaToolChatProvider},
	{"qwen-", common.QwenToolChatProvider},
	{"meta-llama/", common.TogetherAiToolChatProvider},
}

// ProviderFromModel infers which ToolChatProvider family a bare model
// string (as received on POST /v1/completions, which carries no explicit
// provider field) belongs to. Unrecognized prefixes fall back to
// UnspecifiedToolChatProvider, which GetProvider resolves to OpenAIProvider
// — most OpenAI-compatible third-party endpoints use unprefixed model names.
func ProviderFromModel(model string) common.ToolChatProvider {
	for _, m := range modelPrefixProviders {
		if strings.HasPrefix(model, m.prefix) {
			return m.provider
		}
	}
	return common.UnspecifiedToolChatProvider
}

// openaiCompatibleBaseURLs maps the OpenAI-compatible ToolChatProvider
// families to the BaseURL the OpenAI worker should be pointed at (spec
// §4.5). Each of these families speaks the OpenAI chat-completions wire
// format, so they are served by OpenAIProvider with Params.BaseURL swapped.
var openaiCompatibleBaseURLs = map[common.ToolChatProvider]string{
	common.DeepseekToolChatProvider:   "https://api.deepseek.com/v1",
	common.MetaLlamaToolChatProvider:  "https://api.llama-api.com",
	common.QwenToolChatProvider:       "https://dashscope.aliyuncs.com/compatible-mode/v1",
	common.TogetherAiToolChatProvider: "https://api.together.xyz/v1",
	common.HyperbolicToolChatProvider: "https://api.hyperbolic.xyz/v1",
}

// GetProvider dispatches on the given ToolChatProvider family (spec §4.5
// provider resolution) and returns the Provider implementation that should
// serve the request. For the OpenAI-compatible families it returns an
// OpenAIProvider with BaseURL set from openaiCompatibleBaseURLs.
func GetProvider(toolChatProvider common.ToolChatProvider) (Provider, error) {
	switch toolChatProvider {
	case common.AnthropicToolChatProvider:
		return AnthropicProvider{}, nil
	case common.GoogleToolChatProvider:
		return GoogleProvider{}, nil
	case common.OpenaiToolChatProvider, common.UnspecifiedToolChatProvider:
		return OpenAIProvider{}, nil
	case common.DeepseekToolChatProvider,
		common.MetaLlamaToolChatProvider,
		common.QwenToolChatProvider,
		common.TogetherAiToolChatProvider,
		common.HyperbolicToolChatProvider:
		return OpenAIProvider{BaseURL: openaiCompatibleBaseURLs[toolChatProvider]}, nil
	default:
		return nil, UnknownProviderError{Provider: string(toolChatProvider)}
	}
}

// ResponsesVariant returns the Responses-API provider for families that
// support it as an alternative wire protocol to the default chat-completions
// style (spec §4.5). Only Anthropic and OpenAI expose a Responses variant in
// this gateway; for other families it returns nil, false.
func ResponsesVariant(toolChatProvider common.ToolChatProvider) (Provider, bool) {
	switch toolChatProvider {
	case common.AnthropicToolChatProvider:
		return AnthropicResponsesProvider{}, true
	case common.OpenaiToolChatProvider, common.UnspecifiedToolChatProvider:
		return OpenAIResponsesProvider{}, true
	default:
		return nil, false
	}
}

type UnknownProviderError struct {
	Provider string
}

func (e UnknownProviderError) Error() string {
	return "unknown tool chat provider: " + e.Provider
}
