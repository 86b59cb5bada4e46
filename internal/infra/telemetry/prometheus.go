package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"flowgate/internal/domain"
)

type PrometheusMetrics struct {
	refreshDuration  *prometheus.HistogramVec
	toolCallDuration *prometheus.HistogramVec
	indexLookups     *prometheus.CounterVec
	indexSize        prometheus.Gauge
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		refreshDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowgate_discovery_refresh_duration_seconds",
				Help:    "Duration of workflow discovery refreshes in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"status"},
		),
		toolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowgate_tool_call_duration_seconds",
				Help:    "Duration of dispatched tool calls in seconds",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"status"},
		),
		indexLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowgate_index_lookups_total",
				Help: "Total number of name index lookups",
			},
			[]string{"result"},
		),
		indexSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "flowgate_name_index_size",
				Help: "Number of keys in the current discovery name index",
			},
		),
	}
}

func (p *PrometheusMetrics) ObserveDiscoveryRefresh(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.refreshDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveToolCall(status domain.OutcomeStatus, duration time.Duration) {
	p.toolCallDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveIndexLookup(hit bool) {
	result := "hit"
	if !hit {
		result = "miss"
	}
	p.indexLookups.WithLabelValues(result).Inc()
}

func (p *PrometheusMetrics) SetIndexSize(size int) {
	p.indexSize.Set(float64(size))
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
