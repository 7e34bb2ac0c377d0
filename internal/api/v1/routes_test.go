package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/cephasgm/safety-sync/internal/auth"
	authmocks "github.com/cephasgm/safety-sync/internal/auth/mocks"
	"github.com/cephasgm/safety-sync/internal/guard"
	"github.com/cephasgm/safety-sync/internal/migration"
	"github.com/cephasgm/safety-sync/internal/status"
	"github.com/cephasgm/safety-sync/internal/sync/coordinator"
	"github.com/cephasgm/safety-sync/internal/sync/state"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeCoordinator struct {
	mu        sync.Mutex
	queued    []coordinator.Trigger
	ran       []coordinator.Trigger
	runErr    error
	queueFull bool
	running   bool
}

func (f *fakeCoordinator) Start(context.Context) error { return nil }
func (f *fakeCoordinator) Stop() error                 { return nil }
func (f *fakeCoordinator) Running() bool               { return f.running }

func (f *fakeCoordinator) Trigger(t coordinator.Trigger) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queueFull {
		return false
	}
	f.queued = append(f.queued, t)
	return true
}

func (f *fakeCoordinator) RunPass(_ context.Context, t coordinator.Trigger) (*coordinator.PassSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, t)
	if f.runErr != nil {
		return nil, f.runErr
	}
	return &coordinator.PassSummary{
		ID:      "pass-1",
		Trigger: t,
		Results: []coordinator.DomainResult{{Domain: "incidents", Outcome: coordinator.OutcomeSynced, RecordCount: 3}},
	}, nil
}

type fakeMigrator struct {
	opts    []migration.RunOptions
	err     error
	running bool
}

func (f *fakeMigrator) Run(_ context.Context, opts migration.RunOptions) (*migration.Result, error) {
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	return &migration.Result{
		RunID:   "run-1",
		Actor:   opts.Actor,
		DryRun:  opts.DryRun,
		Stats:   migration.Stats{TotalRecords: 2, MigratedRecords: 2, Migrated: 1},
		Success: true,
	}, nil
}

func (f *fakeMigrator) Running() bool { return f.running }

func (f *fakeMigrator) Mappings() []migration.Mapping {
	return []migration.Mapping{{SourceKey: "incidents", TargetCollection: "incidents"}}
}

type offline struct{}

func (offline) Online() bool { return false }

func newTracker(t *testing.T) state.Tracker {
	t.Helper()
	tr := state.NewTracker(status.NewFileStatusPersistence(t.TempDir()))
	require.NoError(t, tr.Initialize(context.Background(), []state.Domain{
		{Name: "standards", RefreshInterval: 24 * time.Hour},
		{Name: "incidents", RefreshInterval: 15 * time.Minute},
	}))
	require.NoError(t, tr.RecordSuccess(context.Background(), "standards", testNow.Add(-time.Hour), 12))
	return tr
}

func newAuthenticator(t *testing.T) *auth.Authenticator {
	t.Helper()
	ctrl := gomock.NewController(t)
	v := authmocks.NewMockTokenValidator(ctrl)
	v.EXPECT().ValidateToken(gomock.Any(), "admin-token").
		Return(jwt.MapClaims{"sub": "hse-lead", "role": "admin"}, nil).AnyTimes()
	v.EXPECT().ValidateToken(gomock.Any(), "worker-token").
		Return(jwt.MapClaims{"sub": "w-1", "role": "worker"}, nil).AnyTimes()
	v.EXPECT().ValidateToken(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("token is malformed")).AnyTimes()
	a, err := auth.NewAuthenticator(v, []string{"admin"}, "")
	require.NoError(t, err)
	return a
}

func do(t *testing.T, h http.Handler, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSyncStatus(t *testing.T) {
	t.Parallel()

	h := Router(Dependencies{
		Sync:         &fakeCoordinator{running: true},
		Status:       newTracker(t),
		Connectivity: offline{},
		Clock:        clocktesting.NewFakePassiveClock(testNow),
	})

	rec := do(t, h, http.MethodGet, "/sync/status", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SyncStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Online)
	assert.True(t, resp.Running)
	require.Len(t, resp.Domains, 2)

	assert.Equal(t, "standards", resp.Domains[0].Domain)
	assert.False(t, resp.Domains[0].Due)
	assert.Equal(t, time.Hour, resp.Domains[0].Elapsed)
	assert.Equal(t, 12, resp.Domains[0].RecordCount)
	assert.Equal(t, status.SyncPhaseComplete, resp.Domains[0].Phase)

	assert.Equal(t, "incidents", resp.Domains[1].Domain)
	assert.True(t, resp.Domains[1].Due)
	assert.Nil(t, resp.Domains[1].LastSyncAt)

	rec = do(t, h, http.MethodGet, "/sync/status/incidents", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"due":true`)

	rec = do(t, h, http.MethodGet, "/sync/status/chemicals", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/sync/status/bad%20name", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid domain")
}

func TestPostTrigger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		coord      *fakeCoordinator
		wantStatus int
		check      func(t *testing.T, c *fakeCoordinator, body string)
	}{
		{
			name:       "manual runs synchronously",
			body:       `{"source":"manual","domain":"incidents","force":true}`,
			coord:      &fakeCoordinator{},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, c *fakeCoordinator, body string) {
				t.Helper()
				require.Len(t, c.ran, 1)
				assert.Equal(t, coordinator.Trigger{Source: "manual", Domain: "incidents", Force: true}, c.ran[0])
				assert.Contains(t, body, `"id":"pass-1"`)
			},
		},
		{
			name:       "empty body is a manual pass over all domains",
			coord:      &fakeCoordinator{},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, c *fakeCoordinator, _ string) {
				t.Helper()
				require.Len(t, c.ran, 1)
				assert.Equal(t, coordinator.TriggerManual, c.ran[0].Source)
				assert.Empty(t, c.ran[0].Domain)
			},
		},
		{
			name:       "manual while running",
			body:       `{"source":"manual"}`,
			coord:      &fakeCoordinator{runErr: guard.ErrAlreadyRunning},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "manual with unknown domain",
			body:       `{"source":"manual","domain":"chemicals"}`,
			coord:      &fakeCoordinator{runErr: state.ErrUnknownDomain},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "manual pass error",
			body:       `{"source":"manual"}`,
			coord:      &fakeCoordinator{runErr: errors.New("boom")},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "foreground is queued",
			body:       `{"source":"foreground"}`,
			coord:      &fakeCoordinator{},
			wantStatus: http.StatusAccepted,
			check: func(t *testing.T, c *fakeCoordinator, body string) {
				t.Helper()
				assert.Empty(t, c.ran)
				require.Len(t, c.queued, 1)
				assert.Equal(t, coordinator.TriggerForeground, c.queued[0].Source)
				assert.JSONEq(t, `{"queued":true}`, body)
			},
		},
		{
			name:       "reconnect coalesced when queue is full",
			body:       `{"source":"reconnect"}`,
			coord:      &fakeCoordinator{queueFull: true},
			wantStatus: http.StatusAccepted,
			check: func(t *testing.T, _ *fakeCoordinator, body string) {
				t.Helper()
				assert.JSONEq(t, `{"queued":false}`, body)
			},
		},
		{
			name:       "queued trigger with unknown domain",
			body:       `{"source":"interval","domain":"chemicals"}`,
			coord:      &fakeCoordinator{},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "startup cannot be triggered remotely",
			body:       `{"source":"startup"}`,
			coord:      &fakeCoordinator{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			body:       `{"source":"manual","everything":true}`,
			coord:      &fakeCoordinator{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			body:       `{`,
			coord:      &fakeCoordinator{},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := Router(Dependencies{
				Sync:   tt.coord,
				Status: newTracker(t),
				Clock:  clocktesting.NewFakePassiveClock(testNow),
			})

			rec := do(t, h, http.MethodPost, "/sync/triggers", tt.body, "")
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.check != nil {
				tt.check(t, tt.coord, rec.Body.String())
			}
		})
	}
}

func TestPostMigration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		target     string
		token      string
		migrator   *fakeMigrator
		wantStatus int
		wantOpts   *migration.RunOptions
	}{
		{
			name:       "privileged actor",
			target:     "/migrations",
			token:      "admin-token",
			migrator:   &fakeMigrator{},
			wantStatus: http.StatusOK,
			wantOpts:   &migration.RunOptions{Actor: "hse-lead"},
		},
		{
			name:       "dry run",
			target:     "/migrations?dry_run=true",
			token:      "admin-token",
			migrator:   &fakeMigrator{},
			wantStatus: http.StatusOK,
			wantOpts:   &migration.RunOptions{Actor: "hse-lead", DryRun: true},
		},
		{
			name:       "invalid dry run flag",
			target:     "/migrations?dry_run=maybe",
			token:      "admin-token",
			migrator:   &fakeMigrator{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing token",
			target:     "/migrations",
			migrator:   &fakeMigrator{},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid token",
			target:     "/migrations",
			token:      "forged",
			migrator:   &fakeMigrator{},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unprivileged actor",
			target:     "/migrations",
			token:      "worker-token",
			migrator:   &fakeMigrator{},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "already running",
			target:     "/migrations",
			token:      "admin-token",
			migrator:   &fakeMigrator{err: guard.ErrAlreadyRunning},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "remote unavailable",
			target:     "/migrations",
			token:      "admin-token",
			migrator:   &fakeMigrator{err: migration.ErrRemoteUnavailable},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := Router(Dependencies{
				Status:        newTracker(t),
				Migrator:      tt.migrator,
				Authenticator: newAuthenticator(t),
			})

			rec := do(t, h, http.MethodPost, tt.target, "", tt.token)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantOpts == nil {
				if tt.wantStatus != http.StatusConflict && tt.wantStatus != http.StatusServiceUnavailable {
					assert.Empty(t, tt.migrator.opts)
				}
				return
			}
			require.Len(t, tt.migrator.opts, 1)
			assert.Equal(t, *tt.wantOpts, tt.migrator.opts[0])

			var result migration.Result
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
			assert.True(t, result.Success)
			assert.Equal(t, "hse-lead", result.Actor)
		})
	}
}

func TestMigrationWithoutAuth(t *testing.T) {
	t.Parallel()

	m := &fakeMigrator{running: true}
	h := Router(Dependencies{Status: newTracker(t), Migrator: m})

	rec := do(t, h, http.MethodPost, "/migrations", "", "admin-token")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Empty(t, m.opts)

	rec = do(t, h, http.MethodGet, "/migrations/status", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp MigrationStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Running)
	assert.Len(t, resp.Mappings, 1)
}
