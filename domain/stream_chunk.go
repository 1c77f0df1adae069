package domain

// StreamChunkType enumerates the tagged union of events the orchestrator
// yields over SSE and mirrors into the Redis event stream (spec §3, §4.7).
type StreamChunkType string

const (
	StreamChunkContent       StreamChunkType = "content"
	StreamChunkReasoning     StreamChunkType = "reasoning"
	StreamChunkPlan          StreamChunkType = "plan"
	StreamChunkDecision      StreamChunkType = "decision"
	StreamChunkCallArguments StreamChunkType = "call_arguments"
	StreamChunkToolCall      StreamChunkType = "tool_call"
	StreamChunkHotCode       StreamChunkType = "hot_code"
	StreamChunkStatus        StreamChunkType = "status"
	StreamChunkError         StreamChunkType = "error"
)

// StreamChunk is transient: it is never persisted on its own, only mirrored
// into the bounded per-run Redis stream (eventbus) and forwarded to SSE
// subscribers.
type StreamChunk struct {
	Type    StreamChunkType `json:"type"`
	Content interface{}     `json:"content"`
	RunId   string          `json:"run_id"`
}

// ToolCallContent is the Content payload of a StreamChunkToolCall chunk once
// the router has fully assembled and validated a tool call.
type ToolCallContent struct {
	Id        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ErrorContent is the user-visible shape of a failure (spec §4.3).
type ErrorContent struct {
	ErrorType    string `json:"error_type"`
	Message      string `json:"message"`
	StatusCode   int    `json:"status_code,omitempty"`
	URL          string `json:"url,omitempty"`
	ResponseText string `json:"response_text,omitempty"`
	Traceback    string `json:"traceback,omitempty"`
}
