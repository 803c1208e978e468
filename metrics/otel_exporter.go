package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/marcelsud/webhook-engine/breaker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelExporter exposes the collector and breaker registry as
// OpenTelemetry metrics in Prometheus format
type OTelExporter struct {
	meterProvider *sdkmetric.MeterProvider
	collector     *Collector
	breakers      *breaker.Registry

	meter             metric.Meter
	outcomeGauge      metric.Int64ObservableGauge
	throughputGauge   metric.Int64ObservableGauge
	errorRateGauge    metric.Float64ObservableGauge
	latencyGauge      metric.Float64ObservableGauge
	circuitStateGauge metric.Int64ObservableGauge
}

// NewOTelExporter creates a new OpenTelemetry metrics exporter
func NewOTelExporter(collector *Collector, breakers *breaker.Registry) (*OTelExporter, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)

	meter := meterProvider.Meter(
		"webhook-engine",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	oe := &OTelExporter{
		meterProvider: meterProvider,
		collector:     collector,
		breakers:      breakers,
		meter:         meter,
	}

	if err := oe.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}

	return oe, nil
}

// registerInstruments creates and registers all metric instruments
func (oe *OTelExporter) registerInstruments() error {
	var err error

	oe.outcomeGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.outcome.count",
		metric.WithDescription("Number of processed webhooks by event type and outcome"),
		metric.WithUnit("{webhooks}"),
		metric.WithInt64Callback(oe.observeOutcomes),
	)
	if err != nil {
		return fmt.Errorf("creating outcome gauge: %w", err)
	}

	oe.throughputGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.window.throughput",
		metric.WithDescription("Number of webhooks processed inside the rolling window"),
		metric.WithUnit("{webhooks}"),
		metric.WithInt64Callback(oe.observeThroughput),
	)
	if err != nil {
		return fmt.Errorf("creating throughput gauge: %w", err)
	}

	oe.errorRateGauge, err = oe.meter.Float64ObservableGauge(
		"webhook.window.error_rate",
		metric.WithDescription("Failure fraction inside the rolling window"),
		metric.WithUnit("1"),
		metric.WithFloat64Callback(oe.observeErrorRate),
	)
	if err != nil {
		return fmt.Errorf("creating error rate gauge: %w", err)
	}

	oe.latencyGauge, err = oe.meter.Float64ObservableGauge(
		"webhook.latency",
		metric.WithDescription("Processing latency quantiles per event type"),
		metric.WithUnit("ms"),
		metric.WithFloat64Callback(oe.observeLatency),
	)
	if err != nil {
		return fmt.Errorf("creating latency gauge: %w", err)
	}

	oe.circuitStateGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.circuit.state",
		metric.WithDescription("Circuit breaker state per downstream (0 closed, 1 half-open, 2 open)"),
		metric.WithInt64Callback(oe.observeCircuits),
	)
	if err != nil {
		return fmt.Errorf("creating circuit state gauge: %w", err)
	}

	return nil
}

func (oe *OTelExporter) observeOutcomes(_ context.Context, observer metric.Int64Observer) error {
	for eventType, byOutcome := range oe.collector.Counts() {
		for outcome, count := range byOutcome {
			observer.Observe(count, metric.WithAttributes(
				attribute.String("event.type", eventType),
				attribute.String("webhook.outcome", outcome),
			))
		}
	}
	return nil
}

func (oe *OTelExporter) observeThroughput(_ context.Context, observer metric.Int64Observer) error {
	observer.Observe(oe.collector.Window().Total)
	return nil
}

func (oe *OTelExporter) observeErrorRate(_ context.Context, observer metric.Float64Observer) error {
	window := oe.collector.Window()
	if window.Total == 0 {
		observer.Observe(0)
		return nil
	}
	observer.Observe(float64(window.Failures) / float64(window.Total))
	return nil
}

func (oe *OTelExporter) observeLatency(_ context.Context, observer metric.Float64Observer) error {
	for eventType := range oe.collector.Counts() {
		summary := oe.collector.Latency(eventType)
		if summary.Count == 0 {
			continue
		}
		for quantile, value := range map[string]float64{
			"min": float64(summary.Min.Microseconds()) / 1000,
			"p50": float64(summary.Median.Microseconds()) / 1000,
			"p95": float64(summary.P95.Microseconds()) / 1000,
			"p99": float64(summary.P99.Microseconds()) / 1000,
		} {
			observer.Observe(value, metric.WithAttributes(
				attribute.String("event.type", eventType),
				attribute.String("quantile", quantile),
			))
		}
	}
	return nil
}

func (oe *OTelExporter) observeCircuits(_ context.Context, observer metric.Int64Observer) error {
	if oe.breakers == nil {
		return nil
	}
	for name, state := range oe.breakers.States() {
		var value int64
		switch state {
		case breaker.HalfOpen:
			value = 1
		case breaker.Open:
			value = 2
		}
		observer.Observe(value, metric.WithAttributes(
			attribute.String("downstream.name", name),
		))
	}
	return nil
}

// ServeHTTP serves Prometheus-formatted metrics on the given HTTP handler
func (oe *OTelExporter) ServeHTTP() http.Handler {
	return promhttp.Handler()
}

// Shutdown gracefully shuts down the meter provider
func (oe *OTelExporter) Shutdown(ctx context.Context) error {
	if oe.meterProvider != nil {
		return oe.meterProvider.Shutdown(ctx)
	}
	return nil
}
