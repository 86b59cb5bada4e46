package dispatch

import (
	"encoding/json"

	"go.uber.org/zap"

	"flowgate/internal/domain"
)

const toolMessageRole = "tool"

// Synthesizer converts terminal outcomes into correlated result messages so
// the conversation loop can continue deterministically even when calls fail.
type Synthesizer struct {
	logger *zap.Logger
}

func NewSynthesizer(logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{logger: logger.Named("synthesizer")}
}

// Synthesize emits one message per outcome, in input order, each carrying
// the originating call id. Failures become a structured error body in the
// message content.
func (s *Synthesizer) Synthesize(outcomes []domain.ToolCallOutcome) []domain.ToolResultMessage {
	messages := make([]domain.ToolResultMessage, 0, len(outcomes))
	for _, outcome := range outcomes {
		messages = append(messages, s.message(outcome))
	}
	return messages
}

func (s *Synthesizer) message(outcome domain.ToolCallOutcome) domain.ToolResultMessage {
	msg := domain.ToolResultMessage{
		Role:       toolMessageRole,
		ToolCallID: outcome.CallID,
		Name:       outcome.ToolName,
	}

	if outcome.Status == domain.OutcomeSuccess {
		msg.Content = string(outcome.Payload)
		msg.ExecutionTime = outcome.Duration.Seconds()
		return msg
	}

	body, err := json.Marshal(domain.ToolResultError{
		ErrorKind: string(outcome.Status),
		Message:   outcome.Detail,
	})
	if err != nil {
		// Marshal of two strings cannot realistically fail; keep the
		// correlation contract anyway.
		s.logger.Error("encode error result", zap.String("call_id", outcome.CallID), zap.Error(err))
		body = []byte(`{"errorKind":"internal","message":"failed to encode error"}`)
	}
	msg.Content = string(body)
	return msg
}
