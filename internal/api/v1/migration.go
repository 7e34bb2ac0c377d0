package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cephasgm/safety-sync/internal/api/common"
	"github.com/cephasgm/safety-sync/internal/auth"
	"github.com/cephasgm/safety-sync/internal/guard"
	"github.com/cephasgm/safety-sync/internal/migration"
)

// MigrationStatusResponse is the body of GET /v1/migrations/status
type MigrationStatusResponse struct {
	Running  bool                `json:"running"`
	Mappings []migration.Mapping `json:"mappings"`
}

// getMigrationStatus handles GET /v1/migrations/status
func (rr *Routes) getMigrationStatus(w http.ResponseWriter, _ *http.Request) {
	if rr.deps.Migrator == nil {
		common.WriteJSONResponse(w, MigrationStatusResponse{Mappings: []migration.Mapping{}}, http.StatusOK)
		return
	}
	common.WriteJSONResponse(w, MigrationStatusResponse{
		Running:  rr.deps.Migrator.Running(),
		Mappings: rr.deps.Migrator.Mappings(),
	}, http.StatusOK)
}

// postMigration handles POST /v1/migrations. The privileged-role check is
// done by the auth middleware in front of it.
func (rr *Routes) postMigration(w http.ResponseWriter, r *http.Request) {
	if rr.deps.Migrator == nil {
		common.WriteErrorResponse(w, "migration is not available", http.StatusServiceUnavailable)
		return
	}

	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		common.WriteErrorResponse(w, "missing identity", http.StatusUnauthorized)
		return
	}

	dryRun := false
	if v := r.URL.Query().Get("dry_run"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			common.WriteErrorResponse(w, "dry_run must be a boolean", http.StatusBadRequest)
			return
		}
		dryRun = parsed
	}

	result, err := rr.deps.Migrator.Run(r.Context(), migration.RunOptions{Actor: id.Subject, DryRun: dryRun})
	switch {
	case errors.Is(err, guard.ErrAlreadyRunning):
		common.WriteErrorResponse(w, "a migration is already running", http.StatusConflict)
	case errors.Is(err, migration.ErrRemoteUnavailable):
		common.WriteErrorResponse(w, "remote store is unavailable", http.StatusServiceUnavailable)
	case err != nil:
		slog.Error("Migration failed", "actor", id.Subject, "error", err)
		common.WriteErrorResponse(w, "migration failed", http.StatusInternalServerError)
	default:
		common.WriteJSONResponse(w, result, http.StatusOK)
	}
}

func migrationDisabled(w http.ResponseWriter, _ *http.Request) {
	common.WriteErrorResponse(w, "migration requires auth to be configured", http.StatusNotImplemented)
}
