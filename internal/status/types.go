package status

import "time"

// SyncPhase represents the current phase of a domain synchronization
type SyncPhase string

const (
	// SyncPhaseSyncing means a fetch for the domain is in progress
	SyncPhaseSyncing SyncPhase = "Syncing"

	// SyncPhaseComplete means the last fetch succeeded
	SyncPhaseComplete SyncPhase = "Complete"

	// SyncPhaseFailed means the last fetch failed
	SyncPhaseFailed SyncPhase = "Failed"
)

// DomainStatus is the persisted freshness record of one sync domain
type DomainStatus struct {
	// Phase represents the current synchronization phase
	Phase SyncPhase `json:"phase,omitempty"`

	// Message provides additional information about the sync status
	Message string `json:"message,omitempty"`

	// LastAttempt is the timestamp of the last sync attempt
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// AttemptCount is the number of failed attempts since the last success
	AttemptCount int `json:"attemptCount,omitempty"`

	// LastSyncTime is the timestamp of the last successful sync.
	// Nil means the domain has never been synced.
	LastSyncTime *time.Time `json:"lastSyncTime,omitempty"`

	// RecordCount is the number of records in the last snapshot
	RecordCount int `json:"recordCount,omitempty"`

	// RefreshInterval is the configured refresh interval (e.g., "15m", "24h")
	RefreshInterval string `json:"refreshInterval,omitempty"`
}

// Clone returns a deep copy of the status
func (s *DomainStatus) Clone() *DomainStatus {
	if s == nil {
		return nil
	}
	out := *s
	if s.LastAttempt != nil {
		t := *s.LastAttempt
		out.LastAttempt = &t
	}
	if s.LastSyncTime != nil {
		t := *s.LastSyncTime
		out.LastSyncTime = &t
	}
	return &out
}
