package telemetry

import (
	"time"

	"flowgate/internal/domain"
)

type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) ObserveDiscoveryRefresh(_ time.Duration, _ error) {}

func (n *NoopMetrics) ObserveToolCall(_ domain.OutcomeStatus, _ time.Duration) {}

func (n *NoopMetrics) ObserveIndexLookup(_ bool) {}

func (n *NoopMetrics) SetIndexSize(_ int) {}

var _ domain.Metrics = (*NoopMetrics)(nil)
