package translator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	cursorMaxTokens     = 32000
	systemBanner        = "[System Instructions]\n"
	toolResultTemplate  = "<tool_result>\n<tool_name>%s</tool_name>\n<tool_call_id>%s</tool_call_id>\n<result>%s</result>\n</tool_result>"
	roleSystem          = "system"
	roleUser            = "user"
	roleAssistant       = "assistant"
	roleTool            = "tool"
	contentPartTypeText = "text"
)

var (
	ErrInvalidBody = errors.New("translator: request body is not valid JSON")

	systemReminderPattern = regexp.MustCompile(`(?s)<system-reminder>.*?</system-reminder>`)

	// Top-level fields Cursor does not understand.
	cursorStrippedFields = []string{"user", "metadata", "tool_choice", "stream_options", "system"}
)

type cursorMessage struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	ToolCalls []json.RawMessage `json:"tool_calls,omitempty"`
}

// OpenAIToCursor converts an OpenAI chat completions request into the
// Cursor chat dialect. Cursor has no system or tool roles, so those turns
// are folded into user messages.
func OpenAIToCursor(_ string, body []byte, _ bool) ([]byte, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidBody
	}

	messages := convertCursorMessages(gjson.GetBytes(body, "messages"))

	out := bytes.Clone(body)

	var err error
	for _, field := range cursorStrippedFields {
		if out, err = sjson.DeleteBytes(out, field); err != nil {
			return nil, fmt.Errorf("strip %s: %w", field, err)
		}
	}

	if out, err = sjson.SetBytes(out, "messages", messages); err != nil {
		return nil, fmt.Errorf("set messages: %w", err)
	}

	if out, err = sjson.SetBytes(out, "max_tokens", cursorMaxTokens); err != nil {
		return nil, fmt.Errorf("set max_tokens: %w", err)
	}

	return out, nil
}

func convertCursorMessages(messages gjson.Result) []cursorMessage {
	result := make([]cursorMessage, 0, len(messages.Array()))

	messages.ForEach(func(_, msg gjson.Result) bool {
		switch msg.Get("role").String() {
		case roleSystem:
			result = append(result, cursorMessage{
				Role:    roleUser,
				Content: systemBanner + extractText(msg.Get("content")),
			})

		case roleUser:
			result = append(result, cursorMessage{
				Role:    roleUser,
				Content: extractText(msg.Get("content")),
			})

		case roleTool:
			toolContent := systemReminderPattern.ReplaceAllString(extractText(msg.Get("content")), "")
			toolContent = strings.TrimSpace(toolContent)

			result = append(result, cursorMessage{
				Role:    roleUser,
				Content: fmt.Sprintf(toolResultTemplate, lastToolName(result), msg.Get("tool_call_id").String(), toolContent),
			})

		case roleAssistant:
			content := extractText(msg.Get("content"))

			if toolCalls := msg.Get("tool_calls"); toolCalls.IsArray() && len(toolCalls.Array()) > 0 {
				result = append(result, cursorMessage{
					Role:      roleAssistant,
					Content:   content,
					ToolCalls: stripToolCallIndex(toolCalls),
				})
			} else if content != "" {
				result = append(result, cursorMessage{Role: roleAssistant, Content: content})
			}
		}

		return true
	})

	return result
}

// extractText flattens message content. Structured content keeps only text
// parts; anything that is neither a string nor an array becomes "".
func extractText(content gjson.Result) string {
	switch {
	case content.Type == gjson.String:
		return content.String()
	case content.IsArray():
		var sb strings.Builder

		content.ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() == contentPartTypeText {
				sb.WriteString(part.Get("text").String())
			}
			return true
		})

		return sb.String()
	default:
		return ""
	}
}

// lastToolName reads the first tool call name of the most recently emitted message.
func lastToolName(result []cursorMessage) string {
	if len(result) == 0 {
		return ""
	}

	prev := result[len(result)-1]
	if len(prev.ToolCalls) == 0 {
		return ""
	}

	return gjson.GetBytes(prev.ToolCalls[0], "function.name").String()
}

// stripToolCallIndex drops the streaming-only "index" field from each call.
func stripToolCallIndex(toolCalls gjson.Result) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(toolCalls.Array()))

	toolCalls.ForEach(func(_, tc gjson.Result) bool {
		raw := []byte(tc.Raw)

		if tc.IsObject() {
			if stripped, err := sjson.DeleteBytes(raw, "index"); err == nil {
				raw = stripped
			}
		}

		out = append(out, json.RawMessage(raw))

		return true
	})

	return out
}
