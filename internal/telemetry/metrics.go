package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/mooring-labs/searchlink/sync"

	// ReconcileMetricsMeterName is the name used for the reconciliation metrics meter
	ReconcileMetricsMeterName = "github.com/mooring-labs/searchlink/reconcile"

	// OperationMetricsMeterName is the name used for the long-running operation metrics meter
	OperationMetricsMeterName = "github.com/mooring-labs/searchlink/operation"
)

// SyncMetrics holds the OpenTelemetry instruments for sync pipeline metrics
type SyncMetrics struct {
	recordsTotal metric.Int64Counter
	syncDuration metric.Float64Histogram
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	recordsTotal, err := meter.Int64Counter(
		"slk_sync_records_total",
		metric.WithDescription("Number of records processed by sync runs"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	syncDuration, err := meter.Float64Histogram(
		"slk_sync_duration_seconds",
		metric.WithDescription("Duration of sync runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		recordsTotal: recordsTotal,
		syncDuration: syncDuration,
	}, nil
}

// RecordItemOutcome records the outcome of upserting one record during a sync run
func (m *SyncMetrics) RecordItemOutcome(ctx context.Context, kind string, success bool) {
	if m == nil || m.recordsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("kind", kind),
		attribute.Bool("success", success),
	}

	m.recordsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSyncDuration records the duration of a sync run for one record kind
func (m *SyncMetrics) RecordSyncDuration(ctx context.Context, kind string, duration time.Duration, success bool) {
	if m == nil || m.syncDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("kind", kind),
		attribute.Bool("success", success),
	}

	m.syncDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// ReconcileMetrics holds the OpenTelemetry instruments for lifecycle reconciliation metrics
type ReconcileMetrics struct {
	runsTotal        metric.Int64Counter
	discardedSignals metric.Int64Counter
}

// NewReconcileMetrics creates a new ReconcileMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewReconcileMetrics(provider metric.MeterProvider) (*ReconcileMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(ReconcileMetricsMeterName)

	runsTotal, err := meter.Int64Counter(
		"slk_reconcile_runs_total",
		metric.WithDescription("Number of reconciliation runs by desired state and outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	discardedSignals, err := meter.Int64Counter(
		"slk_reconcile_discarded_signals_total",
		metric.WithDescription("Number of lifecycle signals discarded before reconciliation"),
		metric.WithUnit("{signal}"),
	)
	if err != nil {
		return nil, err
	}

	return &ReconcileMetrics{
		runsTotal:        runsTotal,
		discardedSignals: discardedSignals,
	}, nil
}

// RecordRun records one reconciliation run with its desired state and outcome
func (m *ReconcileMetrics) RecordRun(ctx context.Context, desiredState, outcome string) {
	if m == nil || m.runsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("desired_state", desiredState),
		attribute.String("outcome", outcome),
	}

	m.runsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDiscardedSignal records a lifecycle signal that failed validation
func (m *ReconcileMetrics) RecordDiscardedSignal(ctx context.Context, reason string) {
	if m == nil || m.discardedSignals == nil {
		return
	}

	m.discardedSignals.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// OperationMetrics holds the OpenTelemetry instruments for long-running operation metrics
type OperationMetrics struct {
	pollsTotal        metric.Int64Counter
	operationDuration metric.Float64Histogram
}

// NewOperationMetrics creates a new OperationMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewOperationMetrics(provider metric.MeterProvider) (*OperationMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(OperationMetricsMeterName)

	pollsTotal, err := meter.Int64Counter(
		"slk_operation_polls_total",
		metric.WithDescription("Number of status polls issued for long-running operations"),
		metric.WithUnit("{poll}"),
	)
	if err != nil {
		return nil, err
	}

	operationDuration, err := meter.Float64Histogram(
		"slk_operation_duration_seconds",
		metric.WithDescription("Wall-clock duration of long-running operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600, 900, 1500),
	)
	if err != nil {
		return nil, err
	}

	return &OperationMetrics{
		pollsTotal:        pollsTotal,
		operationDuration: operationDuration,
	}, nil
}

// RecordPoll records one status poll and the status it observed
func (m *OperationMetrics) RecordPoll(ctx context.Context, status string) {
	if m == nil || m.pollsTotal == nil {
		return
	}

	m.pollsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

// RecordOperationDuration records the total duration of one long-running operation
func (m *OperationMetrics) RecordOperationDuration(ctx context.Context, duration time.Duration, outcome string) {
	if m == nil || m.operationDuration == nil {
		return
	}

	m.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}
