package v1

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cephasgm/safety-sync/internal/api/common"
	"github.com/cephasgm/safety-sync/internal/auth"
	"github.com/cephasgm/safety-sync/internal/guard"
	"github.com/cephasgm/safety-sync/internal/status"
	"github.com/cephasgm/safety-sync/internal/sync/coordinator"
	"github.com/cephasgm/safety-sync/internal/sync/state"
)

// DomainStatusResponse combines the freshness and the last attempt of a domain
type DomainStatusResponse struct {
	state.Freshness
	Phase        status.SyncPhase `json:"phase,omitempty"`
	Message      string           `json:"message,omitempty"`
	LastAttempt  *time.Time       `json:"lastAttempt,omitempty"`
	AttemptCount int              `json:"attemptCount"`
	RecordCount  int              `json:"recordCount"`
}

// SyncStatusResponse is the body of GET /v1/sync/status
type SyncStatusResponse struct {
	Online  bool                   `json:"online"`
	Running bool                   `json:"running"`
	Domains []DomainStatusResponse `json:"domains"`
}

// TriggerRequest is the body of POST /v1/sync/triggers
type TriggerRequest struct {
	Source string `json:"source"`
	Domain string `json:"domain,omitempty"`
	Force  bool   `json:"force,omitempty"`
}

// TriggerQueuedResponse is returned for triggers handed to the loop
type TriggerQueuedResponse struct {
	Queued bool `json:"queued"`
}

// listSyncStatus handles GET /v1/sync/status
func (rr *Routes) listSyncStatus(w http.ResponseWriter, r *http.Request) {
	now := rr.deps.Clock.Now()
	resp := SyncStatusResponse{
		Online:  rr.online(),
		Running: rr.deps.Sync != nil && rr.deps.Sync.Running(),
	}
	for _, d := range rr.deps.Status.Domains() {
		ds, err := rr.domainStatus(r, d.Name, now)
		if err != nil {
			slog.Error("Failed to read sync status", "domain", d.Name, "error", err)
			common.WriteErrorResponse(w, "failed to read sync status", http.StatusInternalServerError)
			return
		}
		resp.Domains = append(resp.Domains, ds)
	}
	common.WriteJSONResponse(w, resp, http.StatusOK)
}

// getSyncStatus handles GET /v1/sync/status/{domain}
func (rr *Routes) getSyncStatus(w http.ResponseWriter, r *http.Request) {
	domain, err := common.DomainParam(r)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	ds, err := rr.domainStatus(r, domain, rr.deps.Clock.Now())
	if errors.Is(err, state.ErrUnknownDomain) {
		common.WriteErrorResponse(w, "unknown domain: "+domain, http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to read sync status", "domain", domain, "error", err)
		common.WriteErrorResponse(w, "failed to read sync status", http.StatusInternalServerError)
		return
	}
	common.WriteJSONResponse(w, ds, http.StatusOK)
}

func (rr *Routes) domainStatus(r *http.Request, domain string, now time.Time) (DomainStatusResponse, error) {
	f, err := rr.deps.Status.StatusOf(domain, now)
	if err != nil {
		return DomainStatusResponse{}, err
	}
	st, err := rr.deps.Status.GetSyncStatus(r.Context(), domain)
	if err != nil {
		return DomainStatusResponse{}, err
	}
	if st == nil {
		return DomainStatusResponse{Freshness: f}, nil
	}
	return DomainStatusResponse{
		Freshness:    f,
		Phase:        st.Phase,
		Message:      st.Message,
		LastAttempt:  st.LastAttempt,
		AttemptCount: st.AttemptCount,
		RecordCount:  st.RecordCount,
	}, nil
}

// postTrigger handles POST /v1/sync/triggers. Manual triggers run a pass
// synchronously; every other source is queued for the trigger loop.
func (rr *Routes) postTrigger(w http.ResponseWriter, r *http.Request) {
	if rr.deps.Sync == nil {
		common.WriteErrorResponse(w, "sync is not available", http.StatusServiceUnavailable)
		return
	}

	var req TriggerRequest
	if err := decodeBody(w, r, &req); err != nil {
		common.WriteErrorResponse(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	t := coordinator.Trigger{Source: req.Source, Domain: req.Domain, Force: req.Force}
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		t.Actor = id.Subject
	}

	switch t.Source {
	case "", coordinator.TriggerManual:
		t.Source = coordinator.TriggerManual
		rr.runManualPass(w, r, t)
	case coordinator.TriggerForeground, coordinator.TriggerReconnect, coordinator.TriggerInterval:
		if t.Domain != "" {
			if _, err := rr.deps.Status.StatusOf(t.Domain, rr.deps.Clock.Now()); err != nil {
				common.WriteErrorResponse(w, "unknown domain: "+t.Domain, http.StatusNotFound)
				return
			}
		}
		queued := rr.deps.Sync.Trigger(t)
		if !queued {
			slog.Info("Trigger coalesced, queue full", "trigger", t.Source, "domain", t.Domain)
		}
		common.WriteJSONResponse(w, TriggerQueuedResponse{Queued: queued}, http.StatusAccepted)
	default:
		common.WriteErrorResponse(w, "unsupported trigger source: "+t.Source, http.StatusBadRequest)
	}
}

func (rr *Routes) runManualPass(w http.ResponseWriter, r *http.Request, t coordinator.Trigger) {
	summary, err := rr.deps.Sync.RunPass(r.Context(), t)
	switch {
	case errors.Is(err, guard.ErrAlreadyRunning):
		common.WriteErrorResponse(w, "a sync pass is already running", http.StatusConflict)
	case errors.Is(err, state.ErrUnknownDomain):
		common.WriteErrorResponse(w, "unknown domain: "+t.Domain, http.StatusNotFound)
	case err != nil:
		slog.Error("Manual sync pass failed", "error", err)
		common.WriteErrorResponse(w, "sync pass failed", http.StatusInternalServerError)
	default:
		common.WriteJSONResponse(w, summary, http.StatusOK)
	}
}

func (rr *Routes) online() bool {
	if rr.deps.Connectivity == nil {
		return true
	}
	return rr.deps.Connectivity.Online()
}

// decodeBody decodes an optional JSON body into v
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
