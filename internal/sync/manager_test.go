package sync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/cephasgm/safety-sync/internal/cache"
	"github.com/cephasgm/safety-sync/internal/model"
	"github.com/cephasgm/safety-sync/internal/remote"
	remotemocks "github.com/cephasgm/safety-sync/internal/remote/mocks"
	"github.com/cephasgm/safety-sync/internal/status"
	"github.com/cephasgm/safety-sync/internal/sync/state"
	"github.com/cephasgm/safety-sync/internal/sync/writer"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

var incidentsDomain = Domain{
	Name:            "incidents",
	RefreshInterval: 15 * time.Minute,
	Fetch:           remote.FetchSpec{Collection: "incidents", OrderBy: "created_at", Limit: 100},
}

func newTracker(t *testing.T) state.Tracker {
	t.Helper()
	tr := state.NewTracker(status.NewFileStatusPersistence(t.TempDir()))
	require.NoError(t, tr.Initialize(context.Background(), []state.Domain{
		{Name: incidentsDomain.Name, RefreshInterval: incidentsDomain.RefreshInterval},
	}))
	return tr
}

func TestDefaultSyncManager_ShouldSync(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		domain     Domain
		lastSync   *time.Time
		force      bool
		wantSync   bool
		wantReason string
	}{
		{
			name:       "never synced",
			domain:     incidentsDomain,
			wantSync:   true,
			wantReason: ReasonNeverSynced,
		},
		{
			name:       "interval elapsed",
			domain:     incidentsDomain,
			lastSync:   ptrTime(testNow.Add(-20 * time.Minute)),
			wantSync:   true,
			wantReason: ReasonIntervalElapsed,
		},
		{
			name:       "up to date",
			domain:     incidentsDomain,
			lastSync:   ptrTime(testNow.Add(-5 * time.Minute)),
			wantSync:   false,
			wantReason: ReasonUpToDate,
		},
		{
			name:       "up to date but forced",
			domain:     incidentsDomain,
			lastSync:   ptrTime(testNow.Add(-5 * time.Minute)),
			force:      true,
			wantSync:   true,
			wantReason: ReasonManualForce,
		},
		{
			name:       "unknown domain even when forced",
			domain:     Domain{Name: "ppe"},
			force:      true,
			wantSync:   false,
			wantReason: ReasonUnknownDomain,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr := newTracker(t)
			if tt.lastSync != nil {
				require.NoError(t, tr.RecordSuccess(context.Background(), incidentsDomain.Name, *tt.lastSync, 1))
			}

			m := NewDefaultSyncManager(nil, nil, tr)
			gotSync, gotReason := m.ShouldSync(tt.domain, testNow, tt.force)
			assert.Equal(t, tt.wantSync, gotSync)
			assert.Equal(t, tt.wantReason, gotReason)
		})
	}
}

func TestDefaultSyncManager_PerformSync(t *testing.T) {
	t.Parallel()

	t.Run("success overwrites snapshot", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		gateway := remotemocks.NewMockGateway(ctrl)
		store := cache.NewMemoryStore()
		fakeClock := clocktesting.NewFakePassiveClock(testNow)

		require.NoError(t, cache.WriteSnapshot(context.Background(), store, &model.Snapshot{
			DomainID: "incidents",
			Records:  []model.Record{{"id": "old"}},
		}))

		gateway.EXPECT().Fetch(gomock.Any(), incidentsDomain.Fetch).Return([]model.Record{
			{"id": "r1"}, {"id": "r2"},
		}, nil)

		m := NewDefaultSyncManager(gateway, writer.NewCacheWriter(store), newTracker(t), WithClock(fakeClock))
		result, syncErr := m.PerformSync(context.Background(), incidentsDomain)
		require.Nil(t, syncErr)
		assert.Equal(t, 2, result.RecordCount)

		snap, err := cache.ReadSnapshot(context.Background(), store, "incidents")
		require.NoError(t, err)
		assert.True(t, testNow.Equal(snap.CapturedAt))
		require.Len(t, snap.Records, 2)
		assert.Equal(t, "r1", snap.Records[0].ID())
	})

	t.Run("fetch failure leaves prior snapshot", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		gateway := remotemocks.NewMockGateway(ctrl)
		store := cache.NewMemoryStore()

		require.NoError(t, cache.WriteSnapshot(context.Background(), store, &model.Snapshot{
			DomainID: "incidents",
			Records:  []model.Record{{"id": "old"}},
		}))

		gateway.EXPECT().Fetch(gomock.Any(), gomock.Any()).
			Return(nil, fmt.Errorf("dial: %w", remote.ErrUnreachable))

		m := NewDefaultSyncManager(gateway, writer.NewCacheWriter(store), newTracker(t))
		result, syncErr := m.PerformSync(context.Background(), incidentsDomain)
		assert.Nil(t, result)
		require.NotNil(t, syncErr)
		assert.Equal(t, KindUnreachable, syncErr.Kind)
		assert.ErrorIs(t, syncErr, remote.ErrUnreachable)

		snap, err := cache.ReadSnapshot(context.Background(), store, "incidents")
		require.NoError(t, err)
		assert.Equal(t, "old", snap.Records[0].ID())
	})

	t.Run("write failure is reported", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		gateway := remotemocks.NewMockGateway(ctrl)
		gateway.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return([]model.Record{{"id": "r1"}}, nil)

		m := NewDefaultSyncManager(gateway, failingWriter{}, newTracker(t))
		_, syncErr := m.PerformSync(context.Background(), incidentsDomain)
		require.NotNil(t, syncErr)
		assert.Equal(t, KindUnknown, syncErr.Kind)
		assert.Contains(t, syncErr.Error(), "Failed to store snapshot")
	})
}

type failingWriter struct{}

func (failingWriter) Store(context.Context, *model.Snapshot) error {
	return errors.New("disk full")
}

func ptrTime(t time.Time) *time.Time { return &t }
