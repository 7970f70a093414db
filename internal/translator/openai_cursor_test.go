package translator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func translateCursor(t *testing.T, request map[string]any) map[string]any {
	t.Helper()

	raw, err := json.Marshal(request)
	require.NoError(t, err)

	out, err := OpenAIToCursor("cursor-small", raw, false)
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal(out, &result))

	return result
}

func messagesOf(t *testing.T, result map[string]any) []map[string]any {
	t.Helper()

	raw, ok := result["messages"].([]any)
	require.True(t, ok, "messages should be an array")

	out := make([]map[string]any, 0, len(raw))
	for _, m := range raw {
		msg, ok := m.(map[string]any)
		require.True(t, ok, "message should be an object")
		out = append(out, msg)
	}

	return out
}

func TestOpenAIToCursor_SystemBecomesUser(t *testing.T) {
	result := translateCursor(t, map[string]any{
		"model": "gpt-4o",
		"messages": []any{
			map[string]any{"role": "system", "content": "Be terse."},
			map[string]any{"role": "user", "content": "Hi"},
		},
	})

	messages := messagesOf(t, result)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0]["role"])
	assert.Equal(t, "[System Instructions]\nBe terse.", messages[0]["content"])
	assert.Equal(t, "Hi", messages[1]["content"])
}

func TestOpenAIToCursor_UserContentFlattening(t *testing.T) {
	tests := []struct {
		name     string
		content  any
		expected string
	}{
		{name: "plain string", content: "hello", expected: "hello"},
		{
			name: "text parts only",
			content: []any{
				map[string]any{"type": "text", "text": "look at "},
				map[string]any{"type": "image_url", "image_url": map[string]any{"url": "https://example.com/a.png"}},
				map[string]any{"type": "text", "text": "this"},
			},
			expected: "look at this",
		},
		{name: "no text parts", content: []any{map[string]any{"type": "image_url"}}, expected: ""},
		{name: "null content", content: nil, expected: ""},
		{name: "malformed object", content: map[string]any{"unexpected": true}, expected: ""},
		{name: "malformed number", content: 42, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := translateCursor(t, map[string]any{
				"messages": []any{map[string]any{"role": "user", "content": tt.content}},
			})

			messages := messagesOf(t, result)
			require.Len(t, messages, 1)

			content, ok := messages[0]["content"].(string)
			require.True(t, ok, "content must never be null")
			assert.Equal(t, tt.expected, content)
		})
	}
}

func TestOpenAIToCursor_ToolResult(t *testing.T) {
	result := translateCursor(t, map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": "find cats"},
			map[string]any{
				"role":    "assistant",
				"content": "",
				"tool_calls": []any{
					map[string]any{
						"id":       "tc1",
						"type":     "function",
						"index":    0,
						"function": map[string]any{"name": "search", "arguments": `{"q":"cats"}`},
					},
				},
			},
			map[string]any{
				"role":         "tool",
				"tool_call_id": "tc1",
				"content":      "  3 results <system-reminder>\nignore me\n</system-reminder>  ",
			},
		},
	})

	messages := messagesOf(t, result)
	require.Len(t, messages, 3)

	toolMsg := messages[2]
	assert.Equal(t, "user", toolMsg["role"])

	content := toolMsg["content"].(string)
	assert.Contains(t, content, "<tool_name>search</tool_name>")
	assert.Contains(t, content, "<tool_call_id>tc1</tool_call_id>")
	assert.Contains(t, content, "<result>3 results</result>")
	assert.NotContains(t, content, "system-reminder")
	assert.NotContains(t, content, "ignore me")
	assert.Equal(t, "<tool_result>\n<tool_name>search</tool_name>\n<tool_call_id>tc1</tool_call_id>\n<result>3 results</result>\n</tool_result>", content)
}

func TestOpenAIToCursor_SystemReminderOnlyContent(t *testing.T) {
	result := translateCursor(t, map[string]any{
		"messages": []any{
			map[string]any{
				"role":         "tool",
				"tool_call_id": "x",
				"content": []any{
					map[string]any{"type": "text", "text": "\n<system-reminder>a</system-reminder>\nok\n<system-reminder>b</system-reminder>\n"},
				},
			},
		},
	})

	messages := messagesOf(t, result)
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0]["content"], "<result>ok</result>")
	assert.Contains(t, messages[0]["content"], "<tool_name></tool_name>", "no preceding tool call yields an empty name")
}

func TestOpenAIToCursor_ToolNameFromLastEmittedMessageOnly(t *testing.T) {
	result := translateCursor(t, map[string]any{
		"messages": []any{
			map[string]any{
				"role":       "assistant",
				"tool_calls": []any{map[string]any{"id": "a", "function": map[string]any{"name": "first"}}},
			},
			map[string]any{"role": "tool", "tool_call_id": "a", "content": "one"},
			map[string]any{"role": "tool", "tool_call_id": "b", "content": "two"},
		},
	})

	messages := messagesOf(t, result)
	require.Len(t, messages, 3)
	assert.Contains(t, messages[1]["content"], "<tool_name>first</tool_name>")
	assert.Contains(t, messages[2]["content"], "<tool_name></tool_name>", "previous emitted message is a synthetic user turn")
}

func TestOpenAIToCursor_AssistantHandling(t *testing.T) {
	result := translateCursor(t, map[string]any{
		"messages": []any{
			map[string]any{"role": "user", "content": "q1"},
			map[string]any{"role": "assistant", "content": ""},
			map[string]any{"role": "user", "content": "q2"},
			map[string]any{
				"role":    "assistant",
				"content": nil,
				"tool_calls": []any{
					map[string]any{
						"id":       "call_1",
						"type":     "function",
						"index":    3,
						"function": map[string]any{"name": "read", "arguments": "{}"},
					},
				},
			},
			map[string]any{"role": "assistant", "content": []any{map[string]any{"type": "text", "text": "done"}}},
		},
	})

	messages := messagesOf(t, result)
	require.Len(t, messages, 4, "empty assistant without tool calls is dropped")

	assert.Equal(t, "q1", messages[0]["content"])
	assert.Equal(t, "q2", messages[1]["content"])

	withTools := messages[2]
	assert.Equal(t, "assistant", withTools["role"])
	assert.Equal(t, "", withTools["content"])

	toolCalls, ok := withTools["tool_calls"].([]any)
	require.True(t, ok)
	require.Len(t, toolCalls, 1)

	call := toolCalls[0].(map[string]any)
	assert.NotContains(t, call, "index", "index is a streaming artifact")
	assert.Equal(t, "call_1", call["id"])
	assert.Equal(t, "function", call["type"])
	assert.Equal(t, "read", call["function"].(map[string]any)["name"])

	assert.Equal(t, "done", messages[3]["content"])
	assert.NotContains(t, messages[3], "tool_calls")
}

func TestOpenAIToCursor_DropReducesLengthByOne(t *testing.T) {
	base := []any{
		map[string]any{"role": "user", "content": "a"},
		map[string]any{"role": "assistant", "content": "b"},
	}
	withEmpty := append(append([]any{}, base...), map[string]any{"role": "assistant", "content": ""})

	before := messagesOf(t, translateCursor(t, map[string]any{"messages": base}))
	after := messagesOf(t, translateCursor(t, map[string]any{"messages": withEmpty}))

	assert.Len(t, after, len(withEmpty)-1)
	assert.Equal(t, before, after)
}

func TestOpenAIToCursor_TopLevelFields(t *testing.T) {
	result := translateCursor(t, map[string]any{
		"model":          "claude-4.5-sonnet",
		"user":           "u-1",
		"metadata":       map[string]any{"k": "v"},
		"tool_choice":    "auto",
		"stream_options": map[string]any{"include_usage": true},
		"system":         "ignored",
		"max_tokens":     10,
		"temperature":    0.2,
		"tools":          []any{map[string]any{"type": "function", "function": map[string]any{"name": "read"}}},
		"messages":       []any{map[string]any{"role": "user", "content": "hi"}},
	})

	for _, field := range []string{"user", "metadata", "tool_choice", "stream_options", "system"} {
		assert.NotContains(t, result, field)
	}

	assert.Equal(t, float64(32000), result["max_tokens"], "max_tokens is forced")
	assert.Equal(t, "claude-4.5-sonnet", result["model"])
	assert.Equal(t, 0.2, result["temperature"])
	assert.Contains(t, result, "tools")
}

func TestOpenAIToCursor_MissingMessages(t *testing.T) {
	result := translateCursor(t, map[string]any{"model": "m"})

	messages, ok := result["messages"].([]any)
	require.True(t, ok)
	assert.Empty(t, messages)
}

func TestOpenAIToCursor_InvalidBody(t *testing.T) {
	_, err := OpenAIToCursor("m", []byte("{not json"), false)
	assert.ErrorIs(t, err, ErrInvalidBody)
}

func TestOpenAIToCursor_DoesNotMutateInput(t *testing.T) {
	raw := []byte(`{"model":"m","user":"u","messages":[{"role":"system","content":"s"}]}`)
	original := string(raw)

	_, err := OpenAIToCursor("m", raw, false)
	require.NoError(t, err)
	assert.Equal(t, original, string(raw))
}

func TestOpenAIToCursor_NonArrayToolCallsAreIgnored(t *testing.T) {
	tests := []struct {
		name      string
		toolCalls any
	}{
		{"object", map[string]any{"id": "a"}},
		{"empty object", map[string]any{}},
		{"string", "a"},
		{"number", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := messagesOf(t, translateCursor(t, map[string]any{
				"messages": []any{
					map[string]any{"role": "user", "content": "hi"},
					map[string]any{"role": "assistant", "content": "", "tool_calls": tt.toolCalls},
					map[string]any{"role": "assistant", "content": "answer", "tool_calls": tt.toolCalls},
				},
			}))

			require.Len(t, msgs, 2, "the empty assistant message is dropped")
			assert.Equal(t, "answer", msgs[1]["content"])
			assert.NotContains(t, msgs[1], "tool_calls")
		})
	}
}
