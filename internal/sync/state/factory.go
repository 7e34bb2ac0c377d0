package state

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/cephasgm/safety-sync/internal/config"
	"github.com/cephasgm/safety-sync/internal/status"
)

// NewStatusPersistence creates a StatusPersistence based on the configured cache type.
//
// For sqlite caches the status lives in the domain_status table of the same
// database, and db must not be nil. Every other cache type keeps one status
// file per domain under <dataDir>/status.
func NewStatusPersistence(ctx context.Context, cfg *config.Config, db *sql.DB) (status.StatusPersistence, error) {
	switch cfg.Cache.Type {
	case config.CacheTypeSQLite:
		if db == nil {
			return nil, fmt.Errorf("database is required when cache type is %s", config.CacheTypeSQLite)
		}
		return status.NewSQLiteStatusPersistence(ctx, db)
	default:
		return status.NewFileStatusPersistence(filepath.Join(cfg.DataDir, "status")), nil
	}
}

// DomainsFromConfig converts configured domains into tracker domains
func DomainsFromConfig(cfg *config.Config) []Domain {
	domains := make([]Domain, 0, len(cfg.Domains))
	for i := range cfg.Domains {
		domains = append(domains, Domain{
			Name:            cfg.Domains[i].Name,
			RefreshInterval: cfg.Domains[i].GetRefreshInterval(),
		})
	}
	return domains
}
