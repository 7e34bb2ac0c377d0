package model

import "time"

// Audit actions emitted by the sync subsystem.
const (
	AuditActionSyncPass     = "sync_pass"
	AuditActionMigrationRun = "migration_run"
)

// Audit outcomes.
const (
	AuditOutcomeSuccess = "success"
	AuditOutcomePartial = "partial"
	AuditOutcomeFailure = "failure"
	AuditOutcomeSkipped = "skipped"
)

// SecurityAuditEntry records one sync pass or one migration run. The
// subsystem emits entries but does not own the audit store.
type SecurityAuditEntry struct {
	ID        string         `json:"id" bson:"id"`
	Timestamp time.Time      `json:"timestamp" bson:"timestamp"`
	Actor     string         `json:"actor" bson:"actor"`
	Action    string         `json:"action" bson:"action"`
	Domain    string         `json:"domain" bson:"domain"`
	Outcome   string         `json:"outcome" bson:"outcome"`
	Details   map[string]any `json:"details,omitempty" bson:"details,omitempty"`
}
