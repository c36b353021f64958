package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Outcome labels for allocation metrics
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// AllocationMetrics records stock allocation activity.
type AllocationMetrics struct {
	logger *zap.Logger

	ordersTotal      *Counter
	unitsAllocated   *Counter
	unitsReleased    *Counter
	unitsReceived    *Counter
	rollbackFailures *Counter
	duration         *Histogram
}

// NewAllocationMetrics creates the allocation metric instruments on meter.
func NewAllocationMetrics(meter metric.Meter, logger *zap.Logger) (*AllocationMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &AllocationMetrics{logger: logger}
	var err error

	if m.ordersTotal, err = NewCounter(meter,
		"wms_allocation_orders_total",
		"Order allocation attempts by operation and outcome",
		"{orders}"); err != nil {
		return nil, err
	}
	if m.unitsAllocated, err = NewCounter(meter,
		"wms_allocation_units_allocated_total",
		"Units removed from stock lots by order placement",
		"{units}"); err != nil {
		return nil, err
	}
	if m.unitsReleased, err = NewCounter(meter,
		"wms_allocation_units_released_total",
		"Units returned to stock lots by order cancellation",
		"{units}"); err != nil {
		return nil, err
	}
	if m.unitsReceived, err = NewCounter(meter,
		"wms_stock_units_received_total",
		"Units booked into stock lots",
		"{units}"); err != nil {
		return nil, err
	}
	if m.rollbackFailures, err = NewCounter(meter,
		"wms_allocation_rollback_failures_total",
		"Compensations that failed and may have left the ledger inconsistent",
		"{failures}"); err != nil {
		return nil, err
	}
	if m.duration, err = NewHistogram(meter, HistogramOpts{
		Name:        "wms_allocation_duration_seconds",
		Description: "Duration of allocation operations",
		Unit:        "s",
		Boundaries:  SmallDurationBuckets,
	}); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordPlacement records one PlaceOrder call.
func (m *AllocationMetrics) RecordPlacement(ctx context.Context, outcome, errorCode string, units int64, d time.Duration) {
	if m == nil {
		return
	}
	attrs := append(outcomeAttrs(outcome, errorCode), AttrOperation.String("place"))
	m.ordersTotal.Inc(ctx, attrs...)
	m.duration.RecordDuration(ctx, d, AttrOperation.String("place"), AttrOutcome.String(outcome))
	if outcome == OutcomeSuccess && units > 0 {
		m.unitsAllocated.Add(ctx, units)
	}
}

// RecordRelease records one CancelOrder call.
func (m *AllocationMetrics) RecordRelease(ctx context.Context, outcome, errorCode string, units int64, d time.Duration) {
	if m == nil {
		return
	}
	attrs := append(outcomeAttrs(outcome, errorCode), AttrOperation.String("release"))
	m.ordersTotal.Inc(ctx, attrs...)
	m.duration.RecordDuration(ctx, d, AttrOperation.String("release"), AttrOutcome.String(outcome))
	if outcome == OutcomeSuccess && units > 0 {
		m.unitsReleased.Add(ctx, units)
	}
}

// RecordReceipt records stock booked into a lot.
func (m *AllocationMetrics) RecordReceipt(ctx context.Context, units int64) {
	if m == nil {
		return
	}
	m.unitsReceived.Add(ctx, units)
}

// RecordRollbackFailure counts a failed compensation. These need operator attention.
func (m *AllocationMetrics) RecordRollbackFailure(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.rollbackFailures.Inc(ctx, AttrOperation.String(operation))
	m.logger.Error("stock compensation failed", zap.String("operation", operation))
}

func outcomeAttrs(outcome, errorCode string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{AttrOutcome.String(outcome)}
	if errorCode != "" {
		attrs = append(attrs, AttrErrorCode.String(errorCode))
	}
	return attrs
}
