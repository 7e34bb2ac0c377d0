package migration

import (
	"time"

	"github.com/cephasgm/safety-sync/internal/config"
	pkgsync "github.com/cephasgm/safety-sync/internal/sync"
)

// Item outcomes.
const (
	OutcomeMigrated     = "migrated"
	OutcomeFailed       = "failed"
	OutcomeSkipped      = "skipped"
	OutcomeWouldMigrate = "would_migrate"
)

// Skip and failure reasons reported on items.
const (
	ReasonAbsent       = "absent"
	ReasonEmpty        = "empty"
	ReasonMalformed    = "malformed"
	ReasonReadFailed   = "read-failed"
	ReasonCommitFailed = "commit-failed"
	ReasonPanic        = "panic"
	ReasonNotCleared   = "local-set-not-cleared"
)

// Mapping pairs a local-only record set with its remote collection.
type Mapping struct {
	SourceKey        string `json:"sourceKey"`
	TargetCollection string `json:"targetCollection"`
}

// MappingsFromConfig returns the configured mappings in declared order.
func MappingsFromConfig(cfg *config.Config) []Mapping {
	mappings := make([]Mapping, 0, len(cfg.Migration.Mappings))
	for _, m := range cfg.Migration.Mappings {
		mappings = append(mappings, Mapping{SourceKey: m.SourceKey, TargetCollection: m.TargetCollection})
	}
	return mappings
}

// RunOptions parameterize one run.
type RunOptions struct {
	// Actor is stamped on every migrated record as migrated_by. Required.
	Actor string
	// DryRun reads and stamps every set but neither commits nor deletes.
	DryRun bool
}

// ItemResult is the outcome of one mapping.
type ItemResult struct {
	SourceKey        string       `json:"sourceKey"`
	TargetCollection string       `json:"targetCollection"`
	Outcome          string       `json:"outcome"`
	RecordCount      int          `json:"recordCount"`
	Reason           string       `json:"reason,omitempty"`
	Kind             pkgsync.Kind `json:"kind,omitempty"`
	Error            string       `json:"error,omitempty"`
	Err              error        `json:"-"`
}

// Stats aggregates a run. TotalRecords, MigratedRecords and FailedRecords
// count records; Migrated, Failed and Skipped count items.
type Stats struct {
	TotalRecords    int `json:"totalRecords"`
	MigratedRecords int `json:"migratedRecords"`
	FailedRecords   int `json:"failedRecords"`

	Migrated int `json:"migrated"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

func (s *Stats) add(item ItemResult) {
	s.TotalRecords += item.RecordCount
	switch item.Outcome {
	case OutcomeMigrated:
		s.Migrated++
		s.MigratedRecords += item.RecordCount
	case OutcomeFailed:
		s.Failed++
		s.FailedRecords += item.RecordCount
	case OutcomeSkipped:
		s.Skipped++
	}
}

// Result is what a run reports back to its initiator.
type Result struct {
	RunID       string       `json:"runId"`
	Actor       string       `json:"actor"`
	DryRun      bool         `json:"dryRun,omitempty"`
	StartedAt   time.Time    `json:"startedAt"`
	CompletedAt time.Time    `json:"completedAt"`
	Stats       Stats        `json:"stats"`
	Items       []ItemResult `json:"items"`
	// Success is true when at least one item migrated.
	Success bool `json:"success"`
}
