package sync

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/cephasgm/safety-sync/internal/model"
	"github.com/cephasgm/safety-sync/internal/remote"
	"github.com/cephasgm/safety-sync/internal/sync/state"
	"github.com/cephasgm/safety-sync/internal/sync/writer"
)

// Sync reason constants
const (
	ReasonNeverSynced     = "never-synced"
	ReasonIntervalElapsed = "interval-elapsed"
	ReasonManualForce     = "manual-force"
	ReasonUpToDate        = "up-to-date"
	ReasonUnknownDomain   = "unknown-domain"
)

// Domain is a named category of records synchronized independently
type Domain struct {
	Name            string
	RefreshInterval time.Duration
	Fetch           remote.FetchSpec
}

// Result contains the result of a successful domain sync
type Result struct {
	RecordCount int
	Snapshot    *model.Snapshot
}

// Manager manages synchronization of individual domains
type Manager interface {
	// ShouldSync determines whether the domain should be fetched at now.
	// force makes any registered domain due.
	ShouldSync(domain Domain, now time.Time, force bool) (bool, string)

	// PerformSync fetches the domain from the remote store and overwrites its
	// local snapshot. It does not touch freshness bookkeeping.
	PerformSync(ctx context.Context, domain Domain) (*Result, *Error)
}

// defaultSyncManager is the default implementation of Manager
type defaultSyncManager struct {
	gateway remote.Gateway
	writer  writer.SnapshotWriter
	tracker state.Tracker
	clock   clock.PassiveClock
}

// ManagerOption configures the default manager
type ManagerOption func(*defaultSyncManager)

// WithClock overrides the clock used to stamp snapshots
func WithClock(c clock.PassiveClock) ManagerOption {
	return func(m *defaultSyncManager) {
		m.clock = c
	}
}

// NewDefaultSyncManager creates a new defaultSyncManager
func NewDefaultSyncManager(
	gateway remote.Gateway,
	snapshotWriter writer.SnapshotWriter,
	tracker state.Tracker,
	opts ...ManagerOption,
) Manager {
	m := &defaultSyncManager{
		gateway: gateway,
		writer:  snapshotWriter,
		tracker: tracker,
		clock:   clock.RealClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ShouldSync determines if a fetch is needed for a domain
func (s *defaultSyncManager) ShouldSync(domain Domain, now time.Time, force bool) (bool, string) {
	freshness, err := s.tracker.StatusOf(domain.Name, now)
	if err != nil {
		return false, ReasonUnknownDomain
	}

	switch {
	case freshness.LastSyncAt == nil:
		return true, ReasonNeverSynced
	case freshness.Due:
		return true, ReasonIntervalElapsed
	case force:
		return true, ReasonManualForce
	default:
		return false, ReasonUpToDate
	}
}

// PerformSync fetches the domain and replaces its snapshot
func (s *defaultSyncManager) PerformSync(ctx context.Context, domain Domain) (*Result, *Error) {
	records, err := s.gateway.Fetch(ctx, domain.Fetch)
	if err != nil {
		slog.Error("Fetch operation failed", "domain", domain.Name, "collection", domain.Fetch.Collection, "error", err)
		return nil, NewError(err, "Fetch failed")
	}

	snapshot := &model.Snapshot{
		DomainID:   domain.Name,
		Records:    records,
		CapturedAt: s.clock.Now().UTC(),
	}

	if err := s.writer.Store(ctx, snapshot); err != nil {
		slog.Error("Failed to store snapshot", "domain", domain.Name, "error", err)
		return nil, NewError(err, "Failed to store snapshot")
	}

	slog.Debug("Domain snapshot replaced", "domain", domain.Name, "records", len(records))
	return &Result{
		RecordCount: len(records),
		Snapshot:    snapshot,
	}, nil
}
