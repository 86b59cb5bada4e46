package toolcodec

import (
	"encoding/json"
	"strings"

	"flowgate/internal/domain"
)

const streamDonePayload = "[DONE]"

// StreamAccumulator buffers content deltas from an SSE stream and surfaces
// inline tool calls once the accumulated text holds balanced braces, so a
// call split across chunks is only parsed when complete.
type StreamAccumulator struct {
	accumulated strings.Builder
}

func NewStreamAccumulator() *StreamAccumulator {
	return &StreamAccumulator{}
}

// ProcessLine consumes one SSE line. It returns any tool calls extractable
// so far and whether the stream signalled completion. Non-data lines and
// undecodable payloads are skipped.
func (a *StreamAccumulator) ProcessLine(line string) ([]domain.ToolCall, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, false
	}
	payload, ok := strings.CutPrefix(trimmed, "data: ")
	if !ok {
		payload, ok = strings.CutPrefix(trimmed, "data:")
		if !ok {
			return nil, false
		}
	}
	payload = strings.TrimSpace(payload)
	if payload == streamDonePayload {
		return a.extract(), true
	}

	var chunk struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return nil, false
	}
	for _, choice := range chunk.Choices {
		a.accumulated.WriteString(choice.Delta.Content)
	}

	if !a.bracesBalanced() {
		return nil, false
	}
	return a.extract(), false
}

// Content returns everything accumulated so far.
func (a *StreamAccumulator) Content() string {
	return a.accumulated.String()
}

func (a *StreamAccumulator) extract() []domain.ToolCall {
	return ExtractFromContent(a.accumulated.String())
}

func (a *StreamAccumulator) bracesBalanced() bool {
	text := a.accumulated.String()
	open := strings.Count(text, "{")
	return open > 0 && open == strings.Count(text, "}")
}
