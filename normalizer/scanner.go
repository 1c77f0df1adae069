package normalizer

import "strings"

// scannerState is the tagged-enum driving the rune-at-a-time scan of a
// content block's growing text buffer. Native tool_use blocks from the
// provider never need this path; it exists for models that emit structured
// intent inline as text (Hermes-style <tool_call> blocks, bracketed
// <think>/<plan>/<decision> channels, a bare ```json fence, or one of the
// Harmony/Kimi channel dialects) instead of through the provider's native
// tool-calling wire format (spec §4.1, §4.3 detection precedence: native →
// <fc> regex → loose regex).
type scannerState int

const (
	stateContent scannerState = iota
	stateMaybeTag
	stateInTag
	stateInThink
	stateInPlan
	stateInDecision
	stateInFC
	stateInToolCall
	stateInToolCode
	stateInJSONFence
	stateInHermesChannelName
	stateInHermesBody
	stateInKimiSection
)

// tagTable maps a fully-matched opening marker to the state entered once
// inside it. Markers vary in shape across dialects (spec §4.1's table):
// bracket tags (<think>), triple-backtick fences (```json), and pipe-channel
// markers (<|channel|>, <|tool_calls_section_begin|>) are all just strings
// the candidate-buffer in Feed matches exactly once fully typed.
var tagTable = map[string]scannerState{
	"<think>":                      stateInThink,
	"<plan>":                       stateInPlan,
	"<decision>":                   stateInDecision,
	"<fc>":                         stateInFC,
	"<tool_call>":                  stateInToolCall,
	"<tool_code>":                  stateInToolCode,
	"```json":                      stateInJSONFence,
	"<|channel|>":                  stateInHermesChannelName,
	"<|tool_calls_section_begin|>": stateInKimiSection,
}

// maxTagLen bounds how long a candidate buffer is allowed to grow while it
// could still become a tag; computed from tagTable so adding a longer
// marker (eg Kimi's 28-byte section-begin marker) never needs a manual bump.
var maxTagLen = func() int {
	n := 0
	for tag := range tagTable {
		if len(tag) > n {
			n = len(tag)
		}
	}
	return n
}()

// closeTags covers the dialects with a single, fixed closing tag: the
// bracketed reasoning/plan/decision channels and the three tool-call
// variants (<fc>, <tool_call>, <tool_code>) that bracket their body in a
// matching </tag>.
var closeTags = map[scannerState]string{
	stateInThink:    "</think>",
	stateInPlan:     "</plan>",
	stateInDecision: "</decision>",
	stateInFC:       "</fc>",
	stateInToolCall: "</tool_call>",
	stateInToolCode: "</tool_code>",
}

const (
	hermesMessageMarker = "<|message|>"
	hermesCallMarker    = "<|call|>"
	hermesChannelMarker = "<|channel|>"
	kimiSectionEnd      = "<|tool_calls_section_end|>"
)

// kimiNoiseMarkers are the nested per-call markers inside a Kimi tool-calls
// section; spec §4.1's failure semantics treats unrecognized <|...|>
// sequences within a known channel as noise, so they're stripped rather than
// parsed individually.
var kimiNoiseMarkers = []string{
	"<|tool_call_begin|>",
	"<|tool_call_end|>",
	"<|tool_call_argument_begin|>",
	"<|tool_call_argument_end|>",
}

// chunkKind classifies a span the scanner has finished emitting.
type chunkKind int

const (
	kindContent chunkKind = iota
	kindReasoning
	kindPlan
	kindDecision
	kindToolCallText
)

// scanResult is one classified span produced by a call to Feed.
type scanResult struct {
	kind chunkKind
	text string
	// closed is true when this span completes a tagged section (the closing
	// tag was just matched), signaling the caller should treat the
	// accumulated text for that tag as final (eg parse as a tool call).
	closed bool
}

// scanner consumes a single content block's text one rune at a time,
// buffering partial tag matches so a tag split across two streaming deltas
// (eg "<to" + "ol_call>") is still recognized.
type scanner struct {
	state   scannerState
	pending strings.Builder // partial match against an opening/closing tag
	section strings.Builder // accumulated text inside a fixed-close-tag section
	fenceBuf strings.Builder // accumulated text inside a ```json fence

	// hermesName accumulates the channel name between <|channel|> and
	// <|message|>; hermesKind is the chunk kind that name resolved to.
	hermesName strings.Builder
	hermesKind chunkKind
	hermesBody strings.Builder

	kimiBody strings.Builder
}

func newScanner() *scanner {
	return &scanner{}
}

// Feed scans r and returns any spans it can now conclusively classify.
// Most calls return zero or one result; a tag boundary can flush both the
// tail of the previous span and the start of a new one.
func (s *scanner) Feed(r rune) []scanResult {
	var out []scanResult

	switch s.state {
	case stateContent, stateMaybeTag:
		s.pending.WriteRune(r)
		candidate := s.pending.String()

		if r == '<' && s.pending.Len() > 1 {
			// a stray '<' restarts a fresh candidate; flush everything before it as content
			prefix := candidate[:len(candidate)-1]
			if prefix != "" {
				out = append(out, scanResult{kind: kindContent, text: prefix})
			}
			s.pending.Reset()
			s.pending.WriteRune('<')
			candidate = "<"
		}

		if target, ok := tagTable[candidate]; ok {
			s.pending.Reset()
			switch target {
			case stateInHermesChannelName:
				s.hermesName.Reset()
			case stateInKimiSection:
				s.kimiBody.Reset()
			case stateInJSONFence:
				s.fenceBuf.Reset()
			default:
				s.section.Reset()
			}
			s.state = target
			return out
		}

		if isPrefixOfAnyTag(candidate) {
			s.state = stateMaybeTag
			return out
		}

		// candidate cannot possibly become a tag; flush it as content
		out = append(out, scanResult{kind: kindContent, text: candidate})
		s.pending.Reset()
		s.state = stateContent
		return out

	case stateInThink, stateInPlan, stateInDecision, stateInFC, stateInToolCall, stateInToolCode:
		closeTag := closeTags[s.state]
		s.section.WriteRune(r)
		sectionStr := s.section.String()
		if strings.HasSuffix(sectionStr, closeTag) {
			body := sectionStr[:len(sectionStr)-len(closeTag)]
			out = append(out, scanResult{kind: stateKind(s.state), text: body, closed: true})
			s.section.Reset()
			s.state = stateContent
			return out
		}
		return out

	case stateInJSONFence:
		s.fenceBuf.WriteRune(r)
		if strings.HasSuffix(s.fenceBuf.String(), "```") {
			body := strings.TrimSuffix(s.fenceBuf.String(), "```")
			out = append(out, scanResult{kind: kindToolCallText, text: body, closed: true})
			s.fenceBuf.Reset()
			s.state = stateContent
		}
		return out

	case stateInHermesChannelName:
		s.hermesName.WriteRune(r)
		if strings.HasSuffix(s.hermesName.String(), hermesMessageMarker) {
			name := strings.TrimSuffix(s.hermesName.String(), hermesMessageMarker)
			s.hermesKind = hermesChannelKind(name)
			s.hermesName.Reset()
			s.hermesBody.Reset()
			s.state = stateInHermesBody
		}
		return out

	case stateInHermesBody:
		s.hermesBody.WriteRune(r)
		body := s.hermesBody.String()
		switch {
		case strings.HasSuffix(body, hermesCallMarker):
			out = append(out, scanResult{
				kind:   s.hermesKind,
				text:   strings.TrimSuffix(body, hermesCallMarker),
				closed: true,
			})
			s.hermesBody.Reset()
			s.state = stateContent
		case strings.HasSuffix(body, hermesChannelMarker):
			out = append(out, scanResult{
				kind:   s.hermesKind,
				text:   strings.TrimSuffix(body, hermesChannelMarker),
				closed: true,
			})
			s.hermesBody.Reset()
			s.hermesName.Reset()
			s.state = stateInHermesChannelName
		}
		return out

	case stateInKimiSection:
		s.kimiBody.WriteRune(r)
		if strings.HasSuffix(s.kimiBody.String(), kimiSectionEnd) {
			body := strings.TrimSuffix(s.kimiBody.String(), kimiSectionEnd)
			out = append(out, scanResult{kind: kindToolCallText, text: stripKimiNoise(body), closed: true})
			s.kimiBody.Reset()
			s.state = stateContent
		}
		return out
	}

	return out
}

// hermesChannelKind maps a Harmony/Hermes channel name (the text between
// <|channel|> and <|message|>, possibly followed by "to=functions.x"
// routing info) to the chunk kind spec §4.1 assigns it: the analysis
// channel carries hidden reasoning, commentary/final carry tool-call
// arguments.
func hermesChannelKind(name string) chunkKind {
	if strings.HasPrefix(name, "analysis") {
		return kindReasoning
	}
	return kindToolCallText
}

func stripKimiNoise(body string) string {
	for _, marker := range kimiNoiseMarkers {
		body = strings.ReplaceAll(body, marker, "")
	}
	return body
}

// Flush is called when the block is done; anything still pending or
// mid-section is emitted as plain content since no closing tag ever arrived.
func (s *scanner) Flush() []scanResult {
	var out []scanResult
	if s.pending.Len() > 0 {
		out = append(out, scanResult{kind: kindContent, text: s.pending.String()})
		s.pending.Reset()
	}
	if s.section.Len() > 0 {
		out = append(out, scanResult{kind: kindContent, text: s.section.String()})
		s.section.Reset()
	}
	if s.fenceBuf.Len() > 0 {
		out = append(out, scanResult{kind: kindContent, text: s.fenceBuf.String()})
		s.fenceBuf.Reset()
	}
	if s.hermesName.Len() > 0 {
		out = append(out, scanResult{kind: kindContent, text: s.hermesName.String()})
		s.hermesName.Reset()
	}
	if s.hermesBody.Len() > 0 {
		out = append(out, scanResult{kind: kindContent, text: s.hermesBody.String()})
		s.hermesBody.Reset()
	}
	if s.kimiBody.Len() > 0 {
		out = append(out, scanResult{kind: kindContent, text: s.kimiBody.String()})
		s.kimiBody.Reset()
	}
	s.state = stateContent
	return out
}

func stateKind(st scannerState) chunkKind {
	switch st {
	case stateInThink:
		return kindReasoning
	case stateInPlan:
		return kindPlan
	case stateInDecision:
		return kindDecision
	case stateInFC, stateInToolCall, stateInToolCode:
		return kindToolCallText
	default:
		return kindContent
	}
}

func isPrefixOfAnyTag(candidate string) bool {
	if len(candidate) > maxTagLen {
		return false
	}
	for tag := range tagTable {
		if strings.HasPrefix(tag, candidate) {
			return true
		}
	}
	return false
}
