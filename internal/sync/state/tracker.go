package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cephasgm/safety-sync/internal/status"
)

type tracker struct {
	statusPersistence status.StatusPersistence

	mu       sync.RWMutex
	domains  []Domain
	index    map[string]int
	statuses map[string]*status.DomainStatus
}

// NewTracker creates a Tracker persisting through statusPersistence
func NewTracker(statusPersistence status.StatusPersistence) Tracker {
	return &tracker{
		statusPersistence: statusPersistence,
		index:             make(map[string]int),
		statuses:          make(map[string]*status.DomainStatus),
	}
}

func (t *tracker) Initialize(ctx context.Context, domains []Domain) error {
	seen := make(map[string]bool, len(domains))
	for _, d := range domains {
		if d.Name == "" {
			return fmt.Errorf("domain name is required")
		}
		if d.RefreshInterval <= 0 {
			return fmt.Errorf("domain %s: refresh interval must be positive", d.Name)
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate domain %s", d.Name)
		}
		seen[d.Name] = true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.domains = append([]Domain(nil), domains...)
	t.index = make(map[string]int, len(domains))
	t.statuses = make(map[string]*status.DomainStatus, len(domains))
	for i, d := range domains {
		t.index[d.Name] = i
		t.statuses[d.Name] = t.loadOrInitializeStatus(ctx, d)
	}
	return nil
}

// loadOrInitializeStatus must be called with mu held
func (t *tracker) loadOrInitializeStatus(ctx context.Context, d Domain) *status.DomainStatus {
	syncStatus, err := t.statusPersistence.LoadStatus(ctx, d.Name)
	if err != nil {
		slog.Warn("Failed to load sync status, initializing with defaults", "domain", d.Name, "error", err)
		syncStatus = &status.DomainStatus{}
	}

	/*
	 * The interrupted-sync cleanup assumes only one process at a time uses
	 * the backing store.
	 */
	dirty := false
	interval := d.RefreshInterval.String()
	if syncStatus.RefreshInterval != interval {
		syncStatus.RefreshInterval = interval
		dirty = true
	}

	if syncStatus.Phase == status.SyncPhaseSyncing {
		slog.Warn("Previous sync was interrupted (status=Syncing), resetting to Failed", "domain", d.Name)
		syncStatus.Phase = status.SyncPhaseFailed
		syncStatus.Message = "Previous sync was interrupted"
		dirty = true
	}

	if dirty {
		if err := t.statusPersistence.SaveStatus(ctx, d.Name, syncStatus); err != nil {
			slog.Warn("Failed to persist sync status", "domain", d.Name, "error", err)
		}
	}

	if syncStatus.LastSyncTime != nil {
		slog.Info("Loaded sync status",
			"domain", d.Name,
			"phase", syncStatus.Phase,
			"last_sync", syncStatus.LastSyncTime.Format(time.RFC3339),
			"records", syncStatus.RecordCount)
	} else {
		slog.Info("No previous sync, domain is due", "domain", d.Name)
	}
	return syncStatus
}

func (t *tracker) Domains() []Domain {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Domain(nil), t.domains...)
}

func (t *tracker) IsDue(domain string, now time.Time) bool {
	f, err := t.StatusOf(domain, now)
	if err != nil {
		return false
	}
	return f.Due
}

func (t *tracker) StatusOf(domain string, now time.Time) (Freshness, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	i, ok := t.index[domain]
	if !ok {
		return Freshness{}, fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}
	d := t.domains[i]
	syncStatus := t.statuses[domain]

	f := Freshness{Domain: domain, RefreshInterval: d.RefreshInterval}
	if syncStatus == nil || syncStatus.LastSyncTime == nil {
		f.Due = true
		return f, nil
	}

	last := *syncStatus.LastSyncTime
	f.LastSyncAt = &last
	f.Elapsed = now.Sub(last)
	f.Due = f.Elapsed >= d.RefreshInterval
	return f, nil
}

func (t *tracker) MarkSyncing(ctx context.Context, domain string, now time.Time) error {
	return t.updateStatus(ctx, domain, func(s *status.DomainStatus) {
		s.Phase = status.SyncPhaseSyncing
		s.Message = "Sync in progress"
		s.LastAttempt = &now
	})
}

func (t *tracker) RecordSuccess(ctx context.Context, domain string, now time.Time, recordCount int) error {
	return t.updateStatus(ctx, domain, func(s *status.DomainStatus) {
		s.Phase = status.SyncPhaseComplete
		s.Message = "Sync completed successfully"
		s.LastAttempt = &now
		s.AttemptCount = 0
		s.RecordCount = recordCount
		if s.LastSyncTime == nil || now.After(*s.LastSyncTime) {
			s.LastSyncTime = &now
		}
	})
}

func (t *tracker) RecordFailure(ctx context.Context, domain string, now time.Time, cause error) error {
	return t.updateStatus(ctx, domain, func(s *status.DomainStatus) {
		s.Phase = status.SyncPhaseFailed
		s.Message = "Sync failed"
		if cause != nil {
			s.Message = cause.Error()
		}
		s.LastAttempt = &now
		s.AttemptCount++
	})
}

// updateStatus applies fn to a copy of the cached status, persists the copy
// and only then makes it visible. A failed save leaves the cache unchanged.
func (t *tracker) updateStatus(ctx context.Context, domain string, fn func(*status.DomainStatus)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.statuses[domain]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}

	updated := current.Clone()
	if updated == nil {
		updated = &status.DomainStatus{}
	}
	fn(updated)

	if err := t.statusPersistence.SaveStatus(ctx, domain, updated); err != nil {
		return fmt.Errorf("failed to persist status for domain %s: %w", domain, err)
	}
	t.statuses[domain] = updated
	return nil
}

func (t *tracker) ListSyncStatuses(_ context.Context) map[string]*status.DomainStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]*status.DomainStatus, len(t.statuses))
	for name, s := range t.statuses {
		result[name] = s.Clone()
	}
	return result
}

func (t *tracker) GetSyncStatus(_ context.Context, domain string) (*status.DomainStatus, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.statuses[domain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}
	return s.Clone(), nil
}
