package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "curatd"

// Metrics holds all curatd metric instruments.
type Metrics struct {
	InstancesStarted  metric.Int64Counter
	InstancesFinished metric.Int64Counter
	InstancesParked   metric.Int64Counter
	ReviewSignals     metric.Int64Counter
	InstanceDuration  metric.Float64Histogram
	ReviewScore       metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.InstancesStarted, err = meter.Int64Counter("curatd.instances.started",
		metric.WithDescription("Number of review workflow instances started"))
	if err != nil {
		return nil, err
	}

	m.InstancesFinished, err = meter.Int64Counter("curatd.instances.finished",
		metric.WithDescription("Number of instances that reached a terminal state"))
	if err != nil {
		return nil, err
	}

	m.InstancesParked, err = meter.Int64Counter("curatd.instances.parked",
		metric.WithDescription("Number of instances parked for operator attention"))
	if err != nil {
		return nil, err
	}

	m.ReviewSignals, err = meter.Int64Counter("curatd.review.signals",
		metric.WithDescription("Number of accepted review decisions"))
	if err != nil {
		return nil, err
	}

	m.InstanceDuration, err = meter.Float64Histogram("curatd.instance.duration_seconds",
		metric.WithDescription("Time from submission to terminal state in seconds"))
	if err != nil {
		return nil, err
	}

	m.ReviewScore, err = meter.Float64Histogram("curatd.review.score",
		metric.WithDescription("Distribution of scorer results"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
