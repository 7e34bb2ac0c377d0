package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/cephasgm/safety-sync/sync"

	// MigrationMetricsMeterName is the name used for the migration metrics meter
	MigrationMetricsMeterName = "github.com/cephasgm/safety-sync/migration"
)

// SyncMetrics holds the OpenTelemetry instruments for sync passes
type SyncMetrics struct {
	domainDuration metric.Float64Histogram
	domainRecords  metric.Int64Gauge
	passesTotal    metric.Int64Counter
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	domainDuration, err := meter.Float64Histogram(
		"safety_sync_domain_sync_duration_seconds",
		metric.WithDescription("Duration of per-domain fetch and snapshot replacement in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	domainRecords, err := meter.Int64Gauge(
		"safety_sync_domain_records",
		metric.WithDescription("Number of records in the latest snapshot of each domain"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	passesTotal, err := meter.Int64Counter(
		"safety_sync_passes_total",
		metric.WithDescription("Number of sync passes by trigger source and outcome"),
		metric.WithUnit("{pass}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		domainDuration: domainDuration,
		domainRecords:  domainRecords,
		passesTotal:    passesTotal,
	}, nil
}

// RecordDomainSync records how long a single domain sync took
func (m *SyncMetrics) RecordDomainSync(ctx context.Context, domain string, duration time.Duration, success bool) {
	if m == nil || m.domainDuration == nil {
		return
	}

	m.domainDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("domain", domain),
		attribute.Bool("success", success),
	))
}

// RecordDomainRecords records the snapshot size of a domain
func (m *SyncMetrics) RecordDomainRecords(ctx context.Context, domain string, count int64) {
	if m == nil || m.domainRecords == nil {
		return
	}

	m.domainRecords.Record(ctx, count, metric.WithAttributes(attribute.String("domain", domain)))
}

// RecordPass counts a completed pass. outcome is one of "ok", "partial",
// "failed", "offline", "idle" or "already_running".
func (m *SyncMetrics) RecordPass(ctx context.Context, trigger, outcome string) {
	if m == nil || m.passesTotal == nil {
		return
	}

	m.passesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("outcome", outcome),
	))
}

// MigrationMetrics holds the OpenTelemetry instruments for migration runs
type MigrationMetrics struct {
	recordsTotal metric.Int64Counter
}

// NewMigrationMetrics creates a new MigrationMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewMigrationMetrics(provider metric.MeterProvider) (*MigrationMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(MigrationMetricsMeterName)

	recordsTotal, err := meter.Int64Counter(
		"safety_sync_migration_records_total",
		metric.WithDescription("Number of local records processed by migration, by target collection and outcome"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	return &MigrationMetrics{recordsTotal: recordsTotal}, nil
}

// RecordMigrationRecords adds n records to the counter for a collection and outcome
func (m *MigrationMetrics) RecordMigrationRecords(ctx context.Context, collection, outcome string, n int) {
	if m == nil || m.recordsTotal == nil || n <= 0 {
		return
	}

	m.recordsTotal.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("collection", collection),
		attribute.String("outcome", outcome),
	))
}
