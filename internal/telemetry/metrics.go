package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName            = "gridpoll2mqtt"
	metricCycles         = "gridpoll.coordinator.cycles"
	metricCycleDuration  = "gridpoll.coordinator.cycle.duration"
	metricFetchDuration  = "gridpoll.fetch.duration"
	attributeCoordinator = "coordinator"
	attributeOutcome     = "outcome"
	attributeVendor      = "vendor"
	attributeResource    = "resource"
	attributeErrorClass  = "error_class"
	OutcomeSuccess       = "success"
	OutcomeFailure       = "failure"
)

// Metrics holds the instruments. A nil *Metrics records nothing.
type Metrics struct {
	cycles        metric.Int64Counter
	cycleDuration metric.Float64Histogram
	fetchDuration metric.Float64Histogram
}

// Metrics returns the instruments registered on the provider's meter.
func (p *Provider) Metrics() *Metrics {
	return NewMetrics(p.Meter(meterName))
}

func NewMetrics(meter metric.Meter) *Metrics {
	m := &Metrics{}
	var err error
	m.cycles, err = meter.Int64Counter(metricCycles,
		metric.WithDescription("Completed coordinator fetch cycles"),
	)
	if err != nil {
		otel.Handle(err)
	}
	m.cycleDuration, err = meter.Float64Histogram(metricCycleDuration,
		metric.WithDescription("Coordinator fetch cycle duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		otel.Handle(err)
	}
	m.fetchDuration, err = meter.Float64Histogram(metricFetchDuration,
		metric.WithDescription("Single resource fetch duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		otel.Handle(err)
	}
	return m
}

func (m *Metrics) RecordCycle(ctx context.Context, coordinator string, elapsed time.Duration, errorClass string) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if errorClass != "" {
		outcome = OutcomeFailure
	}
	attrs := []attribute.KeyValue{
		attribute.String(attributeCoordinator, coordinator),
		attribute.String(attributeOutcome, outcome),
	}
	if errorClass != "" {
		attrs = append(attrs, attribute.String(attributeErrorClass, errorClass))
	}
	if m.cycles != nil {
		m.cycles.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.cycleDuration != nil {
		m.cycleDuration.Record(ctx, millis(elapsed), metric.WithAttributes(
			attribute.String(attributeCoordinator, coordinator),
		))
	}
}

func (m *Metrics) RecordFetch(ctx context.Context, vendor, resource string, elapsed time.Duration, failed bool) {
	if m == nil || m.fetchDuration == nil {
		return
	}
	outcome := OutcomeSuccess
	if failed {
		outcome = OutcomeFailure
	}
	m.fetchDuration.Record(ctx, millis(elapsed), metric.WithAttributes(
		attribute.String(attributeVendor, vendor),
		attribute.String(attributeResource, resource),
		attribute.String(attributeOutcome, outcome),
	))
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
