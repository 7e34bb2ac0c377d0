// Package state contains the freshness tracker: per-domain sync bookkeeping
// that the sync scheduler consults and updates, persisted so it survives
// restarts.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/cephasgm/safety-sync/internal/status"
)

// ErrUnknownDomain is returned for domains that were not registered via Initialize.
var ErrUnknownDomain = errors.New("unknown sync domain")

// Domain is the freshness-relevant part of a sync domain definition.
type Domain struct {
	Name            string
	RefreshInterval time.Duration
}

// Freshness is the introspection view of one domain at a point in time.
type Freshness struct {
	Domain          string        `json:"domain"`
	LastSyncAt      *time.Time    `json:"lastSyncAt,omitempty"`
	Elapsed         time.Duration `json:"elapsed"`
	RefreshInterval time.Duration `json:"refreshInterval"`
	Due             bool          `json:"due"`
}

// Tracker provides methods for inspecting and updating per-domain freshness.
type Tracker interface {
	// Initialize registers the set of domains and loads their persisted status.
	// It is intended to be called once at startup. A status left in Syncing by
	// an interrupted process is reset to Failed.
	Initialize(ctx context.Context, domains []Domain) error

	// Domains returns the registered domains in registration order.
	Domains() []Domain

	// IsDue reports whether the domain has never been synced or its refresh
	// interval has elapsed at now. Unknown domains are never due.
	IsDue(domain string, now time.Time) bool

	// StatusOf returns the freshness of the domain at now.
	StatusOf(domain string, now time.Time) (Freshness, error)

	// MarkSyncing records the start of a fetch attempt.
	MarkSyncing(ctx context.Context, domain string, now time.Time) error

	// RecordSuccess sets the last successful sync time to now and persists it.
	// The last sync time never moves backward.
	RecordSuccess(ctx context.Context, domain string, now time.Time, recordCount int) error

	// RecordFailure records a failed attempt. The last sync time is untouched.
	RecordFailure(ctx context.Context, domain string, now time.Time, cause error) error

	// ListSyncStatuses returns a copy of the status of every registered domain.
	ListSyncStatuses(ctx context.Context) map[string]*status.DomainStatus

	// GetSyncStatus returns a copy of the status of the named domain.
	GetSyncStatus(ctx context.Context, domain string) (*status.DomainStatus, error)
}
