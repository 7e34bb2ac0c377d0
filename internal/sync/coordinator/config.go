package coordinator

import (
	"math/rand/v2"
	"time"

	"github.com/cephasgm/safety-sync/internal/config"
	"github.com/cephasgm/safety-sync/internal/remote"
	pkgsync "github.com/cephasgm/safety-sync/internal/sync"
)

const (
	defaultCheckInterval        = 30 * time.Minute
	defaultMaxConcurrentFetches = 4
	defaultTriggerQueueSize     = 8

	// intervalJitterDivisor bounds the jitter to ±10% of the check interval
	intervalJitterDivisor = 10
)

// Config controls pass scheduling.
type Config struct {
	CheckInterval        time.Duration
	MaxConcurrentFetches int
	TriggerQueueSize     int
}

// ConfigFromScheduler converts the scheduler section of the application config.
func ConfigFromScheduler(sc config.SchedulerConfig) Config {
	return Config{
		CheckInterval:        sc.GetCheckInterval(),
		MaxConcurrentFetches: sc.MaxConcurrentFetches,
		TriggerQueueSize:     sc.TriggerQueueSize,
	}
}

func (c Config) withDefaults() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = defaultCheckInterval
	}
	if c.MaxConcurrentFetches <= 0 {
		c.MaxConcurrentFetches = defaultMaxConcurrentFetches
	}
	if c.TriggerQueueSize <= 0 {
		c.TriggerQueueSize = defaultTriggerQueueSize
	}
	return c
}

// DomainsFromConfig builds the sync domain list from the application config.
func DomainsFromConfig(cfg *config.Config) []pkgsync.Domain {
	domains := make([]pkgsync.Domain, 0, len(cfg.Domains))
	for _, d := range cfg.Domains {
		domains = append(domains, pkgsync.Domain{
			Name:            d.Name,
			RefreshInterval: d.GetRefreshInterval(),
			Fetch: remote.FetchSpec{
				Collection: d.Fetch.Collection,
				OrderBy:    d.Fetch.OrderBy,
				Ascending:  d.Fetch.Ascending,
				Limit:      d.Fetch.Limit,
			},
		})
	}
	return domains
}

// jitteredInterval returns base shifted by a random offset within ±10%.
func jitteredInterval(base time.Duration) time.Duration {
	jitter := int64(base / intervalJitterDivisor)
	//nolint:gosec // G404: non-cryptographic randomness is fine for jitter
	offset := rand.Int64N(2*jitter+1) - jitter
	return base + time.Duration(offset)
}
