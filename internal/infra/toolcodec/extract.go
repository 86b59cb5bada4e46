// Package toolcodec lifts tool calls out of model output: structured
// OpenAI-style tool_calls entries, and ad hoc {"tool_call": ...} objects
// that some models emit inline in plain or fenced-JSON content.
package toolcodec

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"flowgate/internal/domain"
)

var (
	fencedJSONBlock = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	inlineToolObj   = regexp.MustCompile(`\{[^{}]*"tool_call"[^{}]*\}`)
)

// FunctionCall is the OpenAI-shaped function payload: arguments arrive as a
// JSON-encoded string.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// OpenAIToolCall is one entry of a model response's tool_calls array.
type OpenAIToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// ParseToolCalls converts structured tool_calls entries into domain calls.
// A missing call id gets a generated one so correlation never breaks; string
// arguments that fail to parse as JSON are preserved under a "raw" key.
func ParseToolCalls(calls []OpenAIToolCall) []domain.ToolCall {
	parsed := make([]domain.ToolCall, 0, len(calls))
	for _, call := range calls {
		name := call.Function.Name
		if name == "" {
			continue
		}
		id := call.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		parsed = append(parsed, domain.ToolCall{
			CallID:    id,
			ToolName:  name,
			Arguments: normalizeArguments(call.Function.Arguments),
		})
	}
	return parsed
}

// ExtractFromContent finds inline tool-call requests in free-form model
// content: the whole content as one JSON object, fenced ```json blocks, and
// bare single-level objects mentioning "tool_call".
func ExtractFromContent(content string) []domain.ToolCall {
	var calls []domain.ToolCall
	if strings.TrimSpace(content) == "" {
		return calls
	}

	if call, ok := decodeToolCallObject([]byte(strings.TrimSpace(content))); ok {
		calls = append(calls, call)
	}
	for _, match := range fencedJSONBlock.FindAllStringSubmatch(content, -1) {
		if call, ok := decodeToolCallObject([]byte(match[1])); ok {
			calls = append(calls, call)
		}
	}
	for _, match := range inlineToolObj.FindAllString(content, -1) {
		if call, ok := decodeToolCallObject([]byte(match)); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

func decodeToolCallObject(data []byte) (domain.ToolCall, bool) {
	var wrapper struct {
		ToolCall *struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		} `json:"tool_call"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil || wrapper.ToolCall == nil || wrapper.ToolCall.Name == "" {
		return domain.ToolCall{}, false
	}
	args := wrapper.ToolCall.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	return domain.ToolCall{
		CallID:    "call_" + uuid.NewString(),
		ToolName:  wrapper.ToolCall.Name,
		Arguments: args,
	}, true
}

func normalizeArguments(raw string) json.RawMessage {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	fallback, _ := json.Marshal(map[string]string{"raw": raw})
	return fallback
}
