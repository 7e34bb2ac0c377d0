package coordinator

import (
	"time"

	pkgsync "github.com/cephasgm/safety-sync/internal/sync"
)

// Trigger sources.
const (
	TriggerInterval   = "interval"
	TriggerStartup    = "startup"
	TriggerForeground = "foreground"
	TriggerReconnect  = "reconnect"
	TriggerManual     = "manual"
)

// Trigger asks for a pass. Domain limits the pass to one domain; empty means
// all domains. Force makes the domains in scope due regardless of freshness.
type Trigger struct {
	Source string `json:"source"`
	Domain string `json:"domain,omitempty"`
	Force  bool   `json:"force,omitempty"`
	Actor  string `json:"actor,omitempty"`
}

// Domain outcomes within a pass.
const (
	OutcomeSynced = "synced"
	OutcomeFailed = "failed"
)

// Pass outcomes, also used as the metrics outcome label.
const (
	PassOutcomeOK             = "ok"
	PassOutcomePartial        = "partial"
	PassOutcomeFailed         = "failed"
	PassOutcomeOffline        = "offline"
	PassOutcomeIdle           = "idle"
	PassOutcomeAlreadyRunning = "already_running"
)

// DomainResult is the outcome of one domain within a pass.
type DomainResult struct {
	Domain      string        `json:"domain"`
	Outcome     string        `json:"outcome"`
	RecordCount int           `json:"recordCount"`
	Kind        pkgsync.Kind  `json:"kind,omitempty"`
	Error       string        `json:"error,omitempty"`
	Err         error         `json:"-"`
	Duration    time.Duration `json:"duration"`
}

// PassSummary describes one executed pass.
type PassSummary struct {
	ID          string         `json:"id"`
	Trigger     Trigger        `json:"trigger"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt time.Time      `json:"completedAt"`
	Offline     bool           `json:"offline,omitempty"`
	Results     []DomainResult `json:"results"`
}

// Successful returns the results of domains that synced.
func (s *PassSummary) Successful() []DomainResult {
	return s.filter(OutcomeSynced)
}

// Failed returns the results of domains whose fetch failed.
func (s *PassSummary) Failed() []DomainResult {
	return s.filter(OutcomeFailed)
}

func (s *PassSummary) filter(outcome string) []DomainResult {
	var out []DomainResult
	for _, r := range s.Results {
		if r.Outcome == outcome {
			out = append(out, r)
		}
	}
	return out
}

// Outcome summarizes the pass as a single label.
func (s *PassSummary) Outcome() string {
	switch {
	case s.Offline:
		return PassOutcomeOffline
	case len(s.Results) == 0:
		return PassOutcomeIdle
	}

	failed := len(s.Failed())
	switch failed {
	case 0:
		return PassOutcomeOK
	case len(s.Results):
		return PassOutcomeFailed
	default:
		return PassOutcomePartial
	}
}
