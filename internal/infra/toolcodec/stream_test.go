package toolcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkLine(content string) string {
	return `data: {"choices":[{"delta":{"content":"` + content + `"}}]}`
}

func TestStreamAccumulator_ExtractsCallSplitAcrossChunks(t *testing.T) {
	a := NewStreamAccumulator()

	calls, done := a.ProcessLine(chunkLine(`{\"tool_call\": {\"name\": \"echo\",`))
	assert.Empty(t, calls, "unbalanced braces must not be parsed yet")
	assert.False(t, done)

	calls, done = a.ProcessLine(chunkLine(`\"arguments\": {\"msg\": \"hi\"}}}`))
	assert.False(t, done)
	require.Len(t, calls, 1)
	assert.Equal(t, "echo", calls[0].ToolName)
}

func TestStreamAccumulator_DoneSignal(t *testing.T) {
	a := NewStreamAccumulator()
	calls, done := a.ProcessLine("data: [DONE]")
	assert.True(t, done)
	assert.Empty(t, calls)
}

func TestStreamAccumulator_IgnoresNoise(t *testing.T) {
	a := NewStreamAccumulator()

	calls, done := a.ProcessLine("")
	assert.False(t, done)
	assert.Empty(t, calls)

	calls, done = a.ProcessLine(": keepalive comment")
	assert.False(t, done)
	assert.Empty(t, calls)

	calls, done = a.ProcessLine("data: not json")
	assert.False(t, done)
	assert.Empty(t, calls)
}

func TestStreamAccumulator_AccumulatesPlainContent(t *testing.T) {
	a := NewStreamAccumulator()
	_, _ = a.ProcessLine(chunkLine("hello "))
	_, _ = a.ProcessLine(chunkLine("world"))
	assert.Equal(t, "hello world", a.Content())
}
