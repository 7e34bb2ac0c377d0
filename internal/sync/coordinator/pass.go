package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/cephasgm/safety-sync/internal/audit"
	"github.com/cephasgm/safety-sync/internal/guard"
	"github.com/cephasgm/safety-sync/internal/model"
	"github.com/cephasgm/safety-sync/internal/otel"
	pkgsync "github.com/cephasgm/safety-sync/internal/sync"
)

// RunPass executes one pass
func (c *defaultCoordinator) RunPass(ctx context.Context, t Trigger) (*PassSummary, error) {
	if t.Source == "" {
		t.Source = TriggerManual
	}

	inScope, err := c.scope(t.Domain)
	if err != nil {
		return nil, err
	}

	if !c.guard.TryAcquire() {
		c.syncMetrics.RecordPass(ctx, t.Source, PassOutcomeAlreadyRunning)
		return nil, guard.ErrAlreadyRunning
	}
	defer c.guard.Release()

	summary := &PassSummary{
		ID:        uuid.NewString(),
		Trigger:   t,
		StartedAt: c.clock.Now().UTC(),
		Results:   []DomainResult{},
	}

	ctx, span := otel.StartSpan(ctx, c.tracer, otel.SpanSyncPass,
		trace.WithAttributes(
			otel.AttrPassID.String(summary.ID),
			otel.AttrTrigger.String(t.Source),
			otel.AttrForce.Bool(t.Force),
		),
	)
	defer span.End()

	if c.connectivity != nil && !c.connectivity.Online() {
		summary.Offline = true
		slog.Info("Offline, serving cached data", "pass_id", summary.ID, "domains", len(inScope))
	} else if due := c.dueDomains(inScope, summary.StartedAt, t.Force); len(due) > 0 {
		summary.Results = c.syncDomains(ctx, due)
	}

	summary.CompletedAt = c.clock.Now().UTC()
	outcome := summary.Outcome()
	span.SetAttributes(otel.AttrOutcome.String(outcome))
	c.syncMetrics.RecordPass(ctx, t.Source, outcome)

	if len(summary.Results) > 0 {
		slog.Info("Sync pass completed",
			"pass_id", summary.ID,
			"trigger", t.Source,
			"outcome", outcome,
			"synced", len(summary.Successful()),
			"failed", len(summary.Failed()),
			"duration", summary.CompletedAt.Sub(summary.StartedAt))
		c.audit(ctx, summary)
	}

	return summary, nil
}

// dueDomains filters domains down to those the manager says need a fetch.
func (c *defaultCoordinator) dueDomains(domains []pkgsync.Domain, now time.Time, force bool) []pkgsync.Domain {
	var due []pkgsync.Domain
	for _, d := range domains {
		shouldSync, reason := c.manager.ShouldSync(d, now, force)
		if !shouldSync {
			slog.Debug("Domain does not need sync", "domain", d.Name, "reason", reason)
			continue
		}
		slog.Debug("Domain due for sync", "domain", d.Name, "reason", reason)
		due = append(due, d)
	}
	return due
}

// syncDomains fetches the due domains concurrently. Results keep the order of due.
func (c *defaultCoordinator) syncDomains(ctx context.Context, due []pkgsync.Domain) []DomainResult {
	results := make([]DomainResult, len(due))

	var g errgroup.Group
	g.SetLimit(c.config.MaxConcurrentFetches)
	for i, d := range due {
		g.Go(func() error {
			results[i] = c.syncDomain(ctx, d)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (c *defaultCoordinator) syncDomain(ctx context.Context, d pkgsync.Domain) (res DomainResult) {
	ctx, span := otel.StartSpan(ctx, c.tracer, otel.SpanSyncDomain,
		trace.WithAttributes(otel.AttrDomain.String(d.Name)))
	defer span.End()

	start := c.clock.Now()
	res = DomainResult{Domain: d.Name, Outcome: OutcomeFailed}

	defer func() {
		if r := recover(); r != nil {
			syncErr := pkgsync.NewError(fmt.Errorf("panic: %v", r), "Sync aborted")
			res = c.failDomain(ctx, d, start, syncErr)
			otel.RecordError(span, syncErr)
		}
	}()

	if err := c.tracker.MarkSyncing(ctx, d.Name, start); err != nil {
		slog.Warn("Failed to persist syncing status", "domain", d.Name, "error", err)
	}

	result, syncErr := c.manager.PerformSync(ctx, d)
	if syncErr != nil {
		otel.RecordError(span, syncErr)
		return c.failDomain(ctx, d, start, syncErr)
	}

	now := c.clock.Now()
	if err := c.tracker.RecordSuccess(ctx, d.Name, now, result.RecordCount); err != nil {
		// The snapshot is already replaced; the domain stays due and is
		// fetched again next pass.
		slog.Error("Failed to record sync success", "domain", d.Name, "error", err)
	}

	c.syncMetrics.RecordDomainSync(ctx, d.Name, now.Sub(start), true)
	c.syncMetrics.RecordDomainRecords(ctx, d.Name, int64(result.RecordCount))
	span.SetAttributes(otel.AttrRecordCount.Int(result.RecordCount))

	slog.Info("Domain synced", "domain", d.Name, "records", result.RecordCount)

	c.postProcess(ctx, d.Name, result.Snapshot)

	return DomainResult{
		Domain:      d.Name,
		Outcome:     OutcomeSynced,
		RecordCount: result.RecordCount,
		Duration:    now.Sub(start),
	}
}

// postProcess runs every post-processor; a panicking one is logged and skipped.
func (c *defaultCoordinator) postProcess(ctx context.Context, domain string, snapshot *model.Snapshot) {
	for _, pp := range c.postProcessors {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Snapshot post-processor panicked", "domain", domain, "panic", r)
				}
			}()
			pp.Process(ctx, domain, snapshot)
		}()
	}
}

func (c *defaultCoordinator) failDomain(
	ctx context.Context,
	d pkgsync.Domain,
	start time.Time,
	syncErr *pkgsync.Error,
) DomainResult {
	now := c.clock.Now()
	if err := c.tracker.RecordFailure(ctx, d.Name, now, syncErr); err != nil {
		slog.Error("Failed to record sync failure", "domain", d.Name, "error", err)
	}
	c.syncMetrics.RecordDomainSync(ctx, d.Name, now.Sub(start), false)

	slog.Warn("Domain sync failed, keeping cached data",
		"domain", d.Name,
		"kind", syncErr.Kind,
		"error", syncErr.Message)

	return DomainResult{
		Domain:   d.Name,
		Outcome:  OutcomeFailed,
		Kind:     syncErr.Kind,
		Error:    syncErr.Message,
		Err:      syncErr,
		Duration: now.Sub(start),
	}
}

func (c *defaultCoordinator) audit(ctx context.Context, summary *PassSummary) {
	if c.auditSink == nil {
		return
	}

	results := make([]map[string]any, 0, len(summary.Results))
	for _, r := range summary.Results {
		entry := map[string]any{
			"domain":       r.Domain,
			"outcome":      r.Outcome,
			"record_count": r.RecordCount,
		}
		if r.Error != "" {
			entry["error"] = r.Error
		}
		results = append(results, entry)
	}

	domain := summary.Trigger.Domain
	if domain == "" {
		domain = "*"
	}

	outcome := model.AuditOutcomeSuccess
	switch summary.Outcome() {
	case PassOutcomePartial:
		outcome = model.AuditOutcomePartial
	case PassOutcomeFailed:
		outcome = model.AuditOutcomeFailure
	}

	audit.Emit(ctx, c.auditSink, c.clock, model.SecurityAuditEntry{
		Actor:   summary.Trigger.Actor,
		Action:  model.AuditActionSyncPass,
		Domain:  domain,
		Outcome: outcome,
		Details: map[string]any{
			"pass_id": summary.ID,
			"trigger": summary.Trigger.Source,
			"force":   summary.Trigger.Force,
			"results": results,
		},
	})
}
