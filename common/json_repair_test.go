package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepairJson(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "newline in string",
			input:    "{\"key\": \"value with \n newline\"}",
			expected: `{"key":"value with \n newline"}`,
		},
		{
			name:     "crlf in string",
			input:    "{\"key\": \"value with \r\n newline\"}",
			expected: `{"key":"value with \r\n newline"}`,
		},
		{
			name:     "no newline is untouched",
			input:    `{"key": "value without newline"}`,
			expected: `{"key":"value without newline"}`,
		},
		{
			name:     "already-escaped newline is untouched",
			input:    `{"key": "value with \n escaped newline"}`,
			expected: `{"key":"value with \n escaped newline"}`,
		},
		{
			name:     "valid escaped quote preserved alongside a raw newline",
			input:    "{\"key\": \"value with valid escape: \\\" and \n newline\"}",
			expected: `{"key":"value with valid escape: \" and \n newline"}`,
		},
		{
			name:     "multiple keys with raw newlines",
			input:    "{\"key1\": \"value1\",\n\"key2\": \"value2\"}",
			expected: `{"key1":"value1","key2":"value2"}`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := RepairJson(test.input)

			var expectedJSON, gotJSON interface{}
			if err := json.Unmarshal([]byte(test.expected), &expectedJSON); err != nil {
				t.Fatalf("failed to parse expected JSON %q: %v", test.expected, err)
			}
			if err := json.Unmarshal([]byte(got), &gotJSON); err != nil {
				t.Fatalf("RepairJson output %q is not valid JSON: %v", got, err)
			}
			assert.Equal(t, expectedJSON, gotJSON)
		})
	}
}
