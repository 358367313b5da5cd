package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	ServiceName string
	Port        int
}

// InitMetrics initializes the Prometheus metrics exporter.
// Returns the MeterProvider and an HTTP handler for /metrics endpoint.
func InitMetrics(_ MetricsConfig) (*sdkmetric.MeterProvider, http.Handler, error) {
	exporter, err := promexporter.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	handler := promhttp.Handler()

	return provider, handler, nil
}

// EngineMetrics bundles the counters the pipeline stages report.
type EngineMetrics struct {
	MessagesConsumed metric.Int64Counter
	OutboxPublished  metric.Int64Counter
}

// NewEngineMetrics registers the engine's counters on the meter.
func NewEngineMetrics(meter metric.Meter) (*EngineMetrics, error) {
	consumed, err := meter.Int64Counter("engine_messages_consumed_total",
		metric.WithDescription("Messages consumed by pipeline stages"))
	if err != nil {
		return nil, fmt.Errorf("register messages counter: %w", err)
	}
	published, err := meter.Int64Counter("engine_outbox_published_total",
		metric.WithDescription("Outbox rows published to the broker"))
	if err != nil {
		return nil, fmt.Errorf("register outbox counter: %w", err)
	}
	return &EngineMetrics{
		MessagesConsumed: consumed,
		OutboxPublished:  published,
	}, nil
}
