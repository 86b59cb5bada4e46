package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowgate/internal/domain"
)

func TestParse_StringEntry(t *testing.T) {
	overrides, err := Parse(map[string]any{
		"echo": "http://x/webhook/abc",
	}, nil)
	require.NoError(t, err)

	endpoint, ok := overrides.Resolve("echo")
	require.True(t, ok)
	assert.Equal(t, "http://x/webhook/abc", endpoint.URL)
	assert.Empty(t, endpoint.Headers)
}

func TestParse_ObjectEntryWithHeaders(t *testing.T) {
	overrides, err := Parse(map[string]any{
		"secure": map[string]any{
			"url": "https://x/webhook/abc",
			"headers": map[string]any{
				"Authorization": "Bearer token",
			},
		},
	}, nil)
	require.NoError(t, err)

	endpoint, ok := overrides.Resolve("secure")
	require.True(t, ok)
	assert.Equal(t, "https://x/webhook/abc", endpoint.URL)
	assert.Equal(t, "Bearer token", endpoint.Headers["Authorization"])
}

func TestParse_RejectsBadEntries(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"missing url", map[string]any{"bad": map[string]any{"headers": map[string]any{}}}},
		{"not a url", map[string]any{"bad": "not a url"}},
		{"wrong scheme", map[string]any{"bad": "ftp://x/webhook"}},
		{"wrong type", map[string]any{"bad": 42}},
		{"non-string header", map[string]any{"bad": map[string]any{
			"url":     "http://x/webhook",
			"headers": map[string]any{"Retry": 3},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw, nil)
			require.Error(t, err)
			code, ok := domain.CodeFrom(err)
			require.True(t, ok)
			assert.Equal(t, domain.CodeInvalidArgument, code)
		})
	}
}

func TestResolve_ExactMatchOnly(t *testing.T) {
	overrides, err := Parse(map[string]any{
		"echo": "http://x/webhook/abc",
	}, nil)
	require.NoError(t, err)

	_, ok := overrides.Resolve("Echo")
	assert.False(t, ok)
	_, ok = overrides.Resolve("functions.echo")
	assert.False(t, ok)
}

func TestParse_EmptyIsDiscoveryOnlyMode(t *testing.T) {
	overrides, err := Parse(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, overrides.Len())
	_, ok := overrides.Resolve("anything")
	assert.False(t, ok)
}

func TestNames_Sorted(t *testing.T) {
	overrides := New(map[string]domain.ToolEndpoint{
		"zeta": {URL: "http://x/z"},
		"alfa": {URL: "http://x/a"},
	})
	assert.Equal(t, []string{"alfa", "zeta"}, overrides.Names())
}
