package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// WebhookNode is one webhook trigger extracted from an active workflow's
// node list. Only active workflows contribute nodes; a workflow may
// contribute zero or more.
type WebhookNode struct {
	WorkflowID   string
	WorkflowName string
	NodeName     string
	WebhookID    string
	HTTPMethod   string
	Path         string
}

// ToolEndpoint is a resolved invocation target for a tool name.
type ToolEndpoint struct {
	URL              string
	Headers          map[string]string
	SourceWorkflowID string
	// WorkflowOrder is the node's position in the discovery result and
	// breaks key collisions: lower order wins.
	WorkflowOrder int
}

// NameIndex maps every derived key variant to its endpoint. Indexes are
// built fresh on each refresh and never mutated afterwards.
type NameIndex map[string]ToolEndpoint

// DiscoverySnapshot is one immutable build of the name index.
type DiscoverySnapshot struct {
	Index   NameIndex
	BuiltAt time.Time
}

// WebhookSource lists the current webhook nodes from the automation engine.
// A single call performs one network round trip and never retries.
type WebhookSource interface {
	Refresh(ctx context.Context) ([]WebhookNode, error)
}

// ToolCall is one unit of work lifted from a model response.
type ToolCall struct {
	CallID    string
	ToolName  string
	Arguments json.RawMessage
}

// OutcomeStatus is the terminal state of a dispatched tool call.
type OutcomeStatus string

const (
	OutcomeSuccess         OutcomeStatus = "success"
	OutcomeUnknownTool     OutcomeStatus = "unknown_tool"
	OutcomeInvocationError OutcomeStatus = "invocation_error"
	OutcomeTimeout         OutcomeStatus = "timeout"
)

// ToolCallOutcome is the terminal result for exactly one ToolCall.
// Payload holds the webhook response body on success; Detail carries a
// human-readable description for the failure statuses.
type ToolCallOutcome struct {
	CallID   string
	ToolName string
	Status   OutcomeStatus
	Payload  []byte
	Detail   string
	Duration time.Duration
}

// ToolResultMessage is the correlated result handed back to the
// conversation loop, one per outcome.
type ToolResultMessage struct {
	Role          string  `json:"role"`
	ToolCallID    string  `json:"tool_call_id"`
	Name          string  `json:"name"`
	Content       string  `json:"content"`
	ExecutionTime float64 `json:"execution_time,omitempty"`
}

// ToolResultError is the structured content body of a failed tool result.
type ToolResultError struct {
	ErrorKind string `json:"errorKind"`
	Message   string `json:"message"`
}

var ErrDiscoveryUnavailable = errors.New("discovery unavailable")
var ErrUnknownTool = errors.New("unknown tool")
