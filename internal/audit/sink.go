// Package audit hands sync-pass and migration-run records to whatever keeps
// the security audit trail. The sync subsystem never reads entries back.
package audit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/cephasgm/safety-sync/internal/model"
	"github.com/cephasgm/safety-sync/internal/remote"
)

// DefaultCollection is the remote collection GatewaySink writes to.
const DefaultCollection = "security_audit_log"

// SystemActor is used for entries with no human initiator.
const SystemActor = "system"

//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks -source=sink.go Sink

// Sink receives audit entries.
type Sink interface {
	Record(ctx context.Context, entry model.SecurityAuditEntry) error
}

// Emit fills in the entry id, timestamp and actor when missing and records it
// on sink. Failures are logged; auditing never fails the audited operation.
func Emit(ctx context.Context, sink Sink, clk clock.PassiveClock, entry model.SecurityAuditEntry) {
	if sink == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		if clk == nil {
			clk = clock.RealClock{}
		}
		entry.Timestamp = clk.Now().UTC()
	}
	if entry.Actor == "" {
		entry.Actor = SystemActor
	}

	if err := sink.Record(ctx, entry); err != nil {
		slog.Warn("Failed to record audit entry",
			"action", entry.Action,
			"audit_id", entry.ID,
			"error", err)
	}
}

// LogSink writes entries to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

// Record implements Sink
func (s LogSink) Record(ctx context.Context, entry model.SecurityAuditEntry) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "Security audit",
		"audit_id", entry.ID,
		"timestamp", entry.Timestamp,
		"actor", entry.Actor,
		"action", entry.Action,
		"domain", entry.Domain,
		"outcome", entry.Outcome,
		"details", entry.Details)
	return nil
}

// GatewaySink commits each entry as a single-document batch to a remote collection.
type GatewaySink struct {
	gateway    remote.Gateway
	collection string
}

// NewGatewaySink returns a sink writing to collection, or DefaultCollection when empty.
func NewGatewaySink(gateway remote.Gateway, collection string) *GatewaySink {
	if collection == "" {
		collection = DefaultCollection
	}
	return &GatewaySink{gateway: gateway, collection: collection}
}

// Record implements Sink
func (s *GatewaySink) Record(ctx context.Context, entry model.SecurityAuditEntry) error {
	return s.gateway.CommitBatch(ctx, s.collection, []model.Record{toRecord(entry)})
}

func toRecord(entry model.SecurityAuditEntry) model.Record {
	rec := model.Record{
		"id":        entry.ID,
		"timestamp": entry.Timestamp,
		"actor":     entry.Actor,
		"action":    entry.Action,
		"domain":    entry.Domain,
		"outcome":   entry.Outcome,
	}
	if len(entry.Details) > 0 {
		rec["details"] = entry.Details
	}
	return rec
}

// MultiSink records on every sink and joins their errors.
type MultiSink []Sink

// Record implements Sink
func (m MultiSink) Record(ctx context.Context, entry model.SecurityAuditEntry) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
