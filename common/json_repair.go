package common

import "strings"

// RepairJson is a best-effort fixup applied to tool-call argument strings
// before unmarshaling, since models occasionally emit raw newlines inside
// JSON string values (spec §4.3 tool-call argument parsing).
func RepairJson(input string) string {
	return escapeNewLinesInJSON(input)
}

// escapeNewLinesInJSON repairs JSON that has unescaped newlines by escaping
// them. It is robust against valid JSON escapes like `\"` and only escapes
// newlines found inside string literals.
func escapeNewLinesInJSON(input string) string {
	var inString, wasBackslash bool
	var result strings.Builder

	for i := 0; i < len(input); i++ {
		c := input[i]
		if c == '\\' && !wasBackslash {
			wasBackslash = true
			result.WriteByte(c)
			continue
		}
		if c == '"' && !wasBackslash {
			inString = !inString
			result.WriteByte(c)
			continue
		}
		if inString && !wasBackslash {
			if c == 'n' && i > 0 && input[i-1] == '\\' {
				result.WriteString("n")
			} else if c == '\n' {
				result.WriteString("\\n")
			} else if c == '\r' && i+1 < len(input) && input[i+1] == '\n' {
				result.WriteString("\\r\\n")
				i++
			} else {
				result.WriteByte(c)
			}
		} else {
			result.WriteByte(c)
		}
		wasBackslash = false
	}
	return result.String()
}
