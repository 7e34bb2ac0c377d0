// Package v1 provides the /v1 handlers: sync status, sync triggers and
// the local-data migration.
package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"k8s.io/utils/clock"

	"github.com/cephasgm/safety-sync/internal/auth"
	"github.com/cephasgm/safety-sync/internal/migration"
	"github.com/cephasgm/safety-sync/internal/status"
	"github.com/cephasgm/safety-sync/internal/sync/coordinator"
	"github.com/cephasgm/safety-sync/internal/sync/state"
)

// maxRequestBodyBytes bounds JSON request bodies
const maxRequestBodyBytes = 64 << 10

// StatusSource is the read side of the freshness tracker.
type StatusSource interface {
	Domains() []state.Domain
	StatusOf(domain string, now time.Time) (state.Freshness, error)
	GetSyncStatus(ctx context.Context, domain string) (*status.DomainStatus, error)
}

// Migrator runs the local-data migration.
type Migrator interface {
	Run(ctx context.Context, opts migration.RunOptions) (*migration.Result, error)
	Running() bool
	Mappings() []migration.Mapping
}

// Dependencies are the collaborators of the /v1 handlers. Connectivity and
// Migrator are optional. Without Authenticator the migration endpoint
// answers 501.
type Dependencies struct {
	Sync          coordinator.Coordinator
	Status        StatusSource
	Connectivity  coordinator.OnlineChecker
	Migrator      Migrator
	Authenticator *auth.Authenticator
	Clock         clock.PassiveClock
}

// Routes holds the /v1 handlers
type Routes struct {
	deps Dependencies
}

// Router creates the /v1 router
func Router(deps Dependencies) http.Handler {
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	routes := &Routes{deps: deps}

	r := chi.NewRouter()

	r.Route("/sync", func(r chi.Router) {
		r.Get("/status", routes.listSyncStatus)
		r.Get("/status/{domain}", routes.getSyncStatus)
		r.Post("/triggers", routes.postTrigger)
	})

	r.Route("/migrations", func(r chi.Router) {
		r.Get("/status", routes.getMigrationStatus)
		if deps.Authenticator != nil {
			r.With(deps.Authenticator.RequirePrivileged).Post("/", routes.postMigration)
		} else {
			r.Post("/", migrationDisabled)
		}
	})

	return r
}
