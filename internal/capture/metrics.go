package capture

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/xerrors"
)

// Metrics records per-operation outcomes. A nil *Metrics records nothing.
type Metrics struct {
	operations                    metric.Int64Counter
	operationDurationMilliSeconds metric.Int64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	operations, err := meter.Int64Counter("capture_operations_total")
	if err != nil {
		return nil, xerrors.Errorf("failed to create counter: %w", err)
	}
	duration, err := meter.Int64Histogram("capture_operation_duration_milli_seconds")
	if err != nil {
		return nil, xerrors.Errorf("failed to create histogram: %w", err)
	}
	return &Metrics{
		operations:                    operations,
		operationDurationMilliSeconds: duration,
	}, nil
}

func (m *Metrics) observe(ctx context.Context, operation string, start time.Time, e *Error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if e != nil {
		outcome = string(e.Kind)
	}
	attrs := metric.WithAttributes(
		attribute.Key("operation").String(operation),
		attribute.Key("outcome").String(outcome),
	)
	m.operations.Add(ctx, 1, attrs)
	m.operationDurationMilliSeconds.Record(ctx, time.Since(start).Milliseconds(), attrs)
}
