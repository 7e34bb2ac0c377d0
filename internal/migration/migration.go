// Package migration moves legacy local-only record sets into the remote store.
//
// A run walks the configured mappings in order. Each non-empty set is stamped
// with provenance fields and committed to its target collection as one atomic
// batch; the local set is deleted only after the commit succeeds. A second run
// therefore finds already-migrated sets absent and skips them, while failed
// sets are still there to be retried.
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/utils/clock"

	"github.com/cephasgm/safety-sync/internal/audit"
	"github.com/cephasgm/safety-sync/internal/cache"
	"github.com/cephasgm/safety-sync/internal/guard"
	"github.com/cephasgm/safety-sync/internal/model"
	"github.com/cephasgm/safety-sync/internal/otel"
	"github.com/cephasgm/safety-sync/internal/remote"
	pkgsync "github.com/cephasgm/safety-sync/internal/sync"
	"github.com/cephasgm/safety-sync/internal/telemetry"
)

// ErrActorRequired is returned when a run is started without an actor.
var ErrActorRequired = errors.New("migration actor is required")

// ErrRemoteUnavailable wraps the ping failure that aborts a run before any mapping.
var ErrRemoteUnavailable = errors.New("remote store unavailable")

// Coordinator runs migrations. It is safe for concurrent use; concurrent
// runs are rejected with guard.ErrAlreadyRunning.
type Coordinator struct {
	store    cache.Store
	gateway  remote.Gateway
	mappings []Mapping

	guard     guard.Guard
	auditSink audit.Sink
	metrics   *telemetry.MigrationMetrics
	tracer    trace.Tracer
	clock     clock.PassiveClock
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithGuard replaces the in-process guard, e.g. with guard.Multi of a
// process guard and a file guard.
func WithGuard(g guard.Guard) Option {
	return func(c *Coordinator) {
		c.guard = g
	}
}

// WithAuditSink sets where run results are audited.
func WithAuditSink(sink audit.Sink) Option {
	return func(c *Coordinator) {
		c.auditSink = sink
	}
}

// WithMigrationMetrics sets the migration metrics.
func WithMigrationMetrics(m *telemetry.MigrationMetrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithTracer sets the tracer for run and item spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = tracer
	}
}

// WithClock overrides the clock.
func WithClock(clk clock.PassiveClock) Option {
	return func(c *Coordinator) {
		c.clock = clk
	}
}

// New creates a Coordinator over the given mappings.
func New(store cache.Store, gateway remote.Gateway, mappings []Mapping, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		gateway:  gateway,
		mappings: mappings,
		guard:    guard.New(),
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Running reports whether a run is in progress.
func (c *Coordinator) Running() bool {
	return c.guard.IsHeld()
}

// Mappings returns the mappings in processing order.
func (c *Coordinator) Mappings() []Mapping {
	return append([]Mapping(nil), c.mappings...)
}

// Run executes one migration. The caller is responsible for checking that
// opts.Actor is privileged. Guard contention and an unreachable remote store
// abort the run with an error and no result; every other failure is
// confined to its mapping and reported in the result.
//
// Once started the mapping loop runs to completion even if ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	if opts.Actor == "" {
		return nil, ErrActorRequired
	}
	if err := guard.Acquire(c.guard, "migration"); err != nil {
		return nil, err
	}
	defer c.guard.Release()

	ctx = context.WithoutCancel(ctx)
	result := &Result{
		RunID:     uuid.NewString(),
		Actor:     opts.Actor,
		DryRun:    opts.DryRun,
		StartedAt: c.clock.Now().UTC(),
		Items:     make([]ItemResult, 0, len(c.mappings)),
	}

	ctx, span := otel.StartSpan(ctx, c.tracer, otel.SpanMigrationRun,
		trace.WithAttributes(
			otel.AttrRunID.String(result.RunID),
			otel.AttrActor.String(opts.Actor),
		),
	)
	defer span.End()

	logger := slog.With("run_id", result.RunID, "actor", opts.Actor)
	logger.Info("Starting migration", "mappings", len(c.mappings), "dry_run", opts.DryRun)

	if err := c.gateway.Ping(ctx); err != nil {
		otel.RecordError(span, err)
		logger.Error("Migration aborted, remote store unavailable", "error", err)
		c.auditAborted(ctx, result, err)
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}

	for _, m := range c.mappings {
		item := c.migrateItem(ctx, logger, m, opts, result.StartedAt)
		result.Items = append(result.Items, item)
		result.Stats.add(item)
	}

	result.CompletedAt = c.clock.Now().UTC()
	result.Success = result.Stats.Migrated > 0

	logger.Info("Migration completed",
		"success", result.Success,
		"total_records", result.Stats.TotalRecords,
		"migrated_records", result.Stats.MigratedRecords,
		"failed_records", result.Stats.FailedRecords,
		"skipped_items", result.Stats.Skipped)

	c.audit(ctx, result)
	return result, nil
}

// migrateItem processes one mapping. Panics are converted into a failed item.
func (c *Coordinator) migrateItem(
	ctx context.Context,
	logger *slog.Logger,
	m Mapping,
	opts RunOptions,
	migratedAt time.Time,
) (item ItemResult) {
	ctx, span := otel.StartSpan(ctx, c.tracer, otel.SpanMigrationItem,
		trace.WithAttributes(
			otel.AttrSourceKey.String(m.SourceKey),
			otel.AttrTargetCollection.String(m.TargetCollection),
		),
	)
	defer span.End()

	logger = logger.With("source_key", m.SourceKey, "collection", m.TargetCollection)
	item = ItemResult{SourceKey: m.SourceKey, TargetCollection: m.TargetCollection}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic while migrating %s: %v", m.SourceKey, r)
			logger.Error("Migration item panicked", "error", err)
			item.Outcome = OutcomeFailed
			item.Reason = ReasonPanic
			item.Kind = pkgsync.KindUnknown
			item.Err = err
			item.Error = err.Error()
			otel.RecordError(span, err)
		}
		span.SetAttributes(otel.AttrOutcome.String(item.Outcome), otel.AttrRecordCount.Int(item.RecordCount))
		if !opts.DryRun {
			c.metrics.RecordMigrationRecords(ctx, m.TargetCollection, item.Outcome, item.RecordCount)
		}
	}()

	records, err := cache.ReadRecords(ctx, c.store, m.SourceKey)
	switch {
	case errors.Is(err, cache.ErrNotFound):
		logger.Debug("Local set absent, skipping")
		return skipped(item, ReasonAbsent)
	case errors.Is(err, cache.ErrMalformedData):
		logger.Warn("Local set is malformed, skipping", "error", err)
		item.Kind = pkgsync.KindMalformedLocalData
		item.Error = err.Error()
		return skipped(item, ReasonMalformed)
	case err != nil:
		logger.Error("Failed to read local set", "error", err)
		return failed(item, ReasonReadFailed, err)
	case len(records) == 0:
		logger.Debug("Local set empty, skipping")
		return skipped(item, ReasonEmpty)
	}

	item.RecordCount = len(records)
	batch := make([]model.Record, len(records))
	for i, rec := range records {
		batch[i] = stamp(rec, opts.Actor, migratedAt)
	}

	if opts.DryRun {
		item.Outcome = OutcomeWouldMigrate
		logger.Info("Dry run, not committing", "records", item.RecordCount)
		return item
	}

	if err := c.gateway.CommitBatch(ctx, m.TargetCollection, batch); err != nil {
		logger.Error("Batch commit failed, local set kept for retry", "records", item.RecordCount, "error", err)
		otel.RecordError(span, err)
		return failed(item, ReasonCommitFailed, err)
	}

	item.Outcome = OutcomeMigrated
	if err := c.store.DeleteSet(ctx, m.SourceKey); err != nil {
		// The records are already remote; a retry would duplicate them.
		logger.Error("Migrated but failed to clear local set, remove it before retrying", "error", err)
		item.Reason = ReasonNotCleared
		item.Err = err
		item.Error = err.Error()
	}

	logger.Info("Local set migrated", "records", item.RecordCount)
	return item
}

func skipped(item ItemResult, reason string) ItemResult {
	item.Outcome = OutcomeSkipped
	item.Reason = reason
	return item
}

func failed(item ItemResult, reason string, err error) ItemResult {
	item.Outcome = OutcomeFailed
	item.Reason = reason
	item.Kind = pkgsync.Classify(err)
	item.Err = err
	item.Error = err.Error()
	return item
}

func (c *Coordinator) audit(ctx context.Context, result *Result) {
	items := make([]map[string]any, 0, len(result.Items))
	for _, it := range result.Items {
		entry := map[string]any{
			"source_key":        it.SourceKey,
			"target_collection": it.TargetCollection,
			"outcome":           it.Outcome,
			"record_count":      it.RecordCount,
		}
		if it.Reason != "" {
			entry["reason"] = it.Reason
		}
		items = append(items, entry)
	}

	audit.Emit(ctx, c.auditSink, c.clock, model.SecurityAuditEntry{
		Actor:   result.Actor,
		Action:  model.AuditActionMigrationRun,
		Domain:  "*",
		Outcome: auditOutcome(result),
		Details: map[string]any{
			"run_id":           result.RunID,
			"dry_run":          result.DryRun,
			"total_records":    result.Stats.TotalRecords,
			"migrated_records": result.Stats.MigratedRecords,
			"failed_records":   result.Stats.FailedRecords,
			"skipped_items":    result.Stats.Skipped,
			"items":            items,
		},
	})
}

func (c *Coordinator) auditAborted(ctx context.Context, result *Result, err error) {
	audit.Emit(ctx, c.auditSink, c.clock, model.SecurityAuditEntry{
		Actor:   result.Actor,
		Action:  model.AuditActionMigrationRun,
		Domain:  "*",
		Outcome: model.AuditOutcomeFailure,
		Details: map[string]any{
			"run_id": result.RunID,
			"error":  err.Error(),
		},
	})
}

func auditOutcome(result *Result) string {
	s := result.Stats
	switch {
	case s.Migrated > 0 && s.Failed == 0:
		return model.AuditOutcomeSuccess
	case s.Migrated > 0:
		return model.AuditOutcomePartial
	case s.Failed > 0:
		return model.AuditOutcomeFailure
	default:
		return model.AuditOutcomeSkipped
	}
}
