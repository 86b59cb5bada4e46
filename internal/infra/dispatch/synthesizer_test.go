package dispatch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowgate/internal/domain"
)

func TestSynthesizer_SuccessCarriesPayloadAndTiming(t *testing.T) {
	s := NewSynthesizer(nil)
	messages := s.Synthesize([]domain.ToolCallOutcome{
		{
			CallID:   "call_1",
			ToolName: "echo",
			Status:   domain.OutcomeSuccess,
			Payload:  []byte(`{"echoed":true}`),
			Duration: 1500 * time.Millisecond,
		},
	})
	require.Len(t, messages, 1)

	msg := messages[0]
	assert.Equal(t, "tool", msg.Role)
	assert.Equal(t, "call_1", msg.ToolCallID)
	assert.Equal(t, "echo", msg.Name)
	assert.Equal(t, `{"echoed":true}`, msg.Content)
	assert.InDelta(t, 1.5, msg.ExecutionTime, 0.001)
}

func TestSynthesizer_FailuresBecomeStructuredErrors(t *testing.T) {
	s := NewSynthesizer(nil)

	tests := []struct {
		status domain.OutcomeStatus
		detail string
	}{
		{domain.OutcomeUnknownTool, "unknown tool"},
		{domain.OutcomeInvocationError, "webhook returned status 502"},
		{domain.OutcomeTimeout, "webhook call timed out"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			messages := s.Synthesize([]domain.ToolCallOutcome{
				{CallID: "call_x", ToolName: "broken", Status: tt.status, Detail: tt.detail},
			})
			require.Len(t, messages, 1)

			var body domain.ToolResultError
			require.NoError(t, json.Unmarshal([]byte(messages[0].Content), &body))
			assert.Equal(t, string(tt.status), body.ErrorKind)
			assert.Equal(t, tt.detail, body.Message)
			assert.Equal(t, "call_x", messages[0].ToolCallID)
			assert.Zero(t, messages[0].ExecutionTime)
		})
	}
}

func TestSynthesizer_OneMessagePerOutcomeInOrder(t *testing.T) {
	s := NewSynthesizer(nil)
	messages := s.Synthesize([]domain.ToolCallOutcome{
		{CallID: "a", Status: domain.OutcomeSuccess, Payload: []byte("one")},
		{CallID: "b", Status: domain.OutcomeTimeout},
		{CallID: "c", Status: domain.OutcomeSuccess, Payload: []byte("three")},
	})
	require.Len(t, messages, 3)
	assert.Equal(t, "a", messages[0].ToolCallID)
	assert.Equal(t, "b", messages[1].ToolCallID)
	assert.Equal(t, "c", messages[2].ToolCallID)
}

func TestSynthesizer_EmptyOutcomes(t *testing.T) {
	assert.Empty(t, NewSynthesizer(nil).Synthesize(nil))
}
