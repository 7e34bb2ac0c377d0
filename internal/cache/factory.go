package cache

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cephasgm/safety-sync/internal/config"
)

// NewStore creates a Store based on the configured cache type.
//
// For sqlite storage the caller opens the database (see OpenSQLite) and
// passes it in, so that the same database can also hold sync status. The db
// parameter must not be nil when sqlite storage is configured.
//
// For file storage it returns a file-per-key store under cfg.GetCachePath().
func NewStore(ctx context.Context, cfg *config.Config, db *sql.DB) (Store, error) {
	switch cfg.Cache.Type {
	case config.CacheTypeSQLite:
		if db == nil {
			return nil, fmt.Errorf("database is required when cache type is %s", config.CacheTypeSQLite)
		}
		return NewSQLiteStore(ctx, db)
	case config.CacheTypeFile:
		return NewFileStore(cfg.GetCachePath())
	case config.CacheTypeMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache type %q", cfg.Cache.Type)
	}
}
