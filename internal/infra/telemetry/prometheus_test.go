package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowgate/internal/domain"
)

func TestNewPrometheusMetrics_UsesProvidedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewPrometheusMetrics(registry)
	m.ObserveDiscoveryRefresh(120*time.Millisecond, nil)
	m.ObserveDiscoveryRefresh(2*time.Second, assert.AnError)
	m.ObserveToolCall(domain.OutcomeSuccess, 50*time.Millisecond)
	m.ObserveToolCall(domain.OutcomeTimeout, 30*time.Second)
	m.ObserveIndexLookup(true)
	m.ObserveIndexLookup(false)
	m.SetIndexSize(42)

	metrics, err := registry.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(metrics))
	for _, mf := range metrics {
		names = append(names, mf.GetName())
	}

	assert.Contains(t, names, "flowgate_discovery_refresh_duration_seconds")
	assert.Contains(t, names, "flowgate_tool_call_duration_seconds")
	assert.Contains(t, names, "flowgate_index_lookups_total")
	assert.Contains(t, names, "flowgate_name_index_size")
}

func TestMetricsImplementInterface(t *testing.T) {
	var _ domain.Metrics = (*PrometheusMetrics)(nil)
	var _ domain.Metrics = (*NoopMetrics)(nil)
}
