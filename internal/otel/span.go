// Package otel holds span helpers shared by the sync and migration code paths.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names.
const (
	SpanSyncPass      = "sync.pass"
	SpanSyncDomain    = "sync.domain"
	SpanMigrationRun  = "migration.run"
	SpanMigrationItem = "migration.item"
)

// Attribute keys shared across traces.
const (
	AttrDomain           = attribute.Key("sync.domain")
	AttrTrigger          = attribute.Key("sync.trigger")
	AttrPassID           = attribute.Key("sync.pass_id")
	AttrForce            = attribute.Key("sync.force")
	AttrOutcome          = attribute.Key("sync.outcome")
	AttrRunID            = attribute.Key("migration.run_id")
	AttrActor            = attribute.Key("migration.actor")
	AttrSourceKey        = attribute.Key("migration.source_key")
	AttrTargetCollection = attribute.Key("migration.target_collection")
	AttrRecordCount      = attribute.Key("result.count")
)

// StartSpan starts a new span if the tracer is non-nil, otherwise returns the
// span already in ctx (a no-op span when there is none).
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks the span failed. The status
// description stays generic so connection strings never reach span status;
// the error itself is kept on the exception event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
