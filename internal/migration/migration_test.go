package migration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	clocktesting "k8s.io/utils/clock/testing"

	auditmocks "github.com/cephasgm/safety-sync/internal/audit/mocks"
	"github.com/cephasgm/safety-sync/internal/cache"
	"github.com/cephasgm/safety-sync/internal/guard"
	"github.com/cephasgm/safety-sync/internal/model"
	"github.com/cephasgm/safety-sync/internal/remote"
	remotemocks "github.com/cephasgm/safety-sync/internal/remote/mocks"
	pkgsync "github.com/cephasgm/safety-sync/internal/sync"
)

const actor = "safety-officer@example.org"

var migrationTime = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ctrl    *gomock.Controller
	store   cache.Store
	gateway *remotemocks.MockGateway
	clock   *clocktesting.FakePassiveClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	return &fixture{
		ctrl:    ctrl,
		store:   cache.NewMemoryStore(),
		gateway: remotemocks.NewMockGateway(ctrl),
		clock:   clocktesting.NewFakePassiveClock(migrationTime),
	}
}

func (f *fixture) seed(t *testing.T, key string, records ...model.Record) {
	t.Helper()
	if records == nil {
		records = []model.Record{}
	}
	require.NoError(t, cache.WriteRecords(context.Background(), f.store, key, records))
}

func (f *fixture) coordinator(mappings []Mapping, opts ...Option) *Coordinator {
	opts = append([]Option{WithClock(f.clock)}, opts...)
	return New(f.store, f.gateway, mappings, opts...)
}

func (f *fixture) localSet(t *testing.T, key string) ([]model.Record, error) {
	t.Helper()
	return cache.ReadRecords(context.Background(), f.store, key)
}

func TestRun_IncidentsAndTrainingScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	f.seed(t, "incidents",
		model.Record{"id": "r1", "title": "Slip in warehouse", "created_at": "2025-11-02T08:00:00Z"},
		model.Record{"id": "r2", "title": "Forklift near miss"},
	)
	f.seed(t, "training")

	var committed []model.Record
	f.gateway.EXPECT().Ping(gomock.Any()).Return(nil)
	f.gateway.EXPECT().CommitBatch(gomock.Any(), "incidents", gomock.Len(2)).
		DoAndReturn(func(_ context.Context, _ string, records []model.Record) error {
			committed = records
			return nil
		})

	sink := auditmocks.NewMockSink(f.ctrl)
	var entry model.SecurityAuditEntry
	sink.EXPECT().Record(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e model.SecurityAuditEntry) error {
			entry = e
			return nil
		})

	c := f.coordinator([]Mapping{
		{SourceKey: "incidents", TargetCollection: "incidents"},
		{SourceKey: "training", TargetCollection: "training_records"},
	}, WithAuditSink(sink))

	result, err := c.Run(ctx, RunOptions{Actor: actor})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, Stats{TotalRecords: 2, MigratedRecords: 2, Migrated: 1, Skipped: 1}, result.Stats)

	require.Len(t, result.Items, 2)
	assert.Equal(t, OutcomeMigrated, result.Items[0].Outcome)
	assert.Equal(t, 2, result.Items[0].RecordCount)
	assert.Equal(t, OutcomeSkipped, result.Items[1].Outcome)
	assert.Equal(t, ReasonEmpty, result.Items[1].Reason)

	require.Len(t, committed, 2)
	assert.Equal(t, "2025-11-02T08:00:00Z", committed[0][FieldCreatedAt])
	assert.Equal(t, migrationTime, committed[1][FieldCreatedAt])
	for i, rec := range committed {
		assert.Equal(t, OriginLocalStorage, rec[FieldMigratedFrom])
		assert.Equal(t, migrationTime, rec[FieldMigratedAt])
		assert.Equal(t, actor, rec[FieldMigratedBy])
		assert.Equal(t, migrationTime, rec[FieldUpdatedAt])
		assert.Equal(t, []string{"r1", "r2"}[i], rec[FieldOriginalID])
	}

	_, err = f.localSet(t, "incidents")
	assert.ErrorIs(t, err, cache.ErrNotFound, "migrated set is deleted")
	training, err := f.localSet(t, "training")
	require.NoError(t, err, "empty set is left alone")
	assert.Empty(t, training)

	assert.Equal(t, actor, entry.Actor)
	assert.Equal(t, model.AuditActionMigrationRun, entry.Action)
	assert.Equal(t, model.AuditOutcomeSuccess, entry.Outcome)
	assert.Equal(t, result.RunID, entry.Details["run_id"])
}

func TestRun_IsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	f.seed(t, "incidents", model.Record{"id": "i1"})
	f.seed(t, "ppe", model.Record{"id": "p1"}, model.Record{"id": "p2"})

	f.gateway.EXPECT().Ping(gomock.Any()).Return(nil).Times(2)
	f.gateway.EXPECT().CommitBatch(gomock.Any(), "incidents", gomock.Len(1)).Return(nil).Times(1)
	f.gateway.EXPECT().CommitBatch(gomock.Any(), "ppe_records", gomock.Len(2)).Return(nil).Times(1)

	c := f.coordinator([]Mapping{
		{SourceKey: "incidents", TargetCollection: "incidents"},
		{SourceKey: "ppe", TargetCollection: "ppe_records"},
	})

	first, err := c.Run(ctx, RunOptions{Actor: actor})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Stats.Migrated)
	assert.Equal(t, 3, first.Stats.MigratedRecords)

	second, err := c.Run(ctx, RunOptions{Actor: actor})
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Equal(t, Stats{Skipped: 2}, second.Stats)
	for _, item := range second.Items {
		assert.Equal(t, ReasonAbsent, item.Reason)
	}
}

func TestRun_PartialFailureIsRetryable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	f.seed(t, "incidents", model.Record{"id": "x1"}, model.Record{"id": "x2"})
	f.seed(t, "ppe", model.Record{"id": "y1"})

	rejected := errors.Join(remote.ErrBatchRejected, errors.New("duplicate key"))
	gomock.InOrder(
		f.gateway.EXPECT().Ping(gomock.Any()).Return(nil),
		f.gateway.EXPECT().CommitBatch(gomock.Any(), "incidents", gomock.Any()).Return(rejected),
		f.gateway.EXPECT().CommitBatch(gomock.Any(), "ppe_records", gomock.Any()).Return(nil),
		f.gateway.EXPECT().Ping(gomock.Any()).Return(nil),
		f.gateway.EXPECT().CommitBatch(gomock.Any(), "incidents", gomock.Len(2)).Return(nil),
	)

	c := f.coordinator([]Mapping{
		{SourceKey: "incidents", TargetCollection: "incidents"},
		{SourceKey: "ppe", TargetCollection: "ppe_records"},
	})

	first, err := c.Run(ctx, RunOptions{Actor: actor})
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, Stats{TotalRecords: 3, MigratedRecords: 1, FailedRecords: 2, Migrated: 1, Failed: 1}, first.Stats)
	assert.Equal(t, OutcomeFailed, first.Items[0].Outcome)
	assert.Equal(t, ReasonCommitFailed, first.Items[0].Reason)
	assert.Equal(t, pkgsync.KindPartialBatchFailure, first.Items[0].Kind)
	assert.ErrorIs(t, first.Items[0].Err, remote.ErrBatchRejected)

	kept, err := f.localSet(t, "incidents")
	require.NoError(t, err)
	assert.Len(t, kept, 2, "failed set is preserved")

	second, err := c.Run(ctx, RunOptions{Actor: actor})
	require.NoError(t, err)
	assert.Equal(t, OutcomeMigrated, second.Items[0].Outcome)
	assert.Equal(t, OutcomeSkipped, second.Items[1].Outcome)
	assert.Equal(t, Stats{TotalRecords: 2, MigratedRecords: 2, Migrated: 1, Skipped: 1}, second.Stats)
}

func TestRun_MalformedSetIsSkipped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.store.WriteSet(ctx, "audits", []byte(`{"not":"an array"`)))
	f.seed(t, "chemicals", model.Record{"id": "c1"})

	f.gateway.EXPECT().Ping(gomock.Any()).Return(nil)
	f.gateway.EXPECT().CommitBatch(gomock.Any(), "chemicals", gomock.Len(1)).Return(nil)

	c := f.coordinator([]Mapping{
		{SourceKey: "audits", TargetCollection: "audits"},
		{SourceKey: "chemicals", TargetCollection: "chemicals"},
	})

	result, err := c.Run(ctx, RunOptions{Actor: actor})
	require.NoError(t, err)

	malformed := result.Items[0]
	assert.Equal(t, OutcomeSkipped, malformed.Outcome)
	assert.Equal(t, ReasonMalformed, malformed.Reason)
	assert.Equal(t, pkgsync.KindMalformedLocalData, malformed.Kind)
	assert.Equal(t, OutcomeMigrated, result.Items[1].Outcome)

	raw, err := f.store.ReadSet(ctx, "audits")
	require.NoError(t, err)
	assert.Equal(t, `{"not":"an array"`, string(raw), "malformed set is untouched")
}

func TestRun_KeepsNumericIDsAndDropsNullEntries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.store.WriteSet(ctx, "incidents",
		[]byte(`[{"id":1700000000123,"title":"Spill"},null,{"_id":1700000000456}]`)))

	var committed []model.Record
	f.gateway.EXPECT().Ping(gomock.Any()).Return(nil)
	f.gateway.EXPECT().CommitBatch(gomock.Any(), "incidents", gomock.Len(2)).
		DoAndReturn(func(_ context.Context, _ string, records []model.Record) error {
			committed = records
			return nil
		})

	c := f.coordinator([]Mapping{{SourceKey: "incidents", TargetCollection: "incidents"}})
	result, err := c.Run(ctx, RunOptions{Actor: actor})
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalRecords: 2, MigratedRecords: 2, Migrated: 1}, result.Stats)

	require.Len(t, committed, 2)
	assert.Equal(t, float64(1700000000123), committed[0][FieldOriginalID])
	assert.Equal(t, "Spill", committed[0]["title"])
	assert.Equal(t, float64(1700000000456), committed[1][FieldOriginalID])
	assert.NotContains(t, committed[1], "_id")
}

func TestRun_PanicFailsOnlyThatItem(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	f.seed(t, "equipment", model.Record{"id": "e1"})
	f.seed(t, "risk_assessments", model.Record{"id": "ra1"})

	f.gateway.EXPECT().Ping(gomock.Any()).Return(nil)
	f.gateway.EXPECT().CommitBatch(gomock.Any(), "equipment", gomock.Any()).
		DoAndReturn(func(context.Context, string, []model.Record) error {
			panic("driver bug")
		})
	f.gateway.EXPECT().CommitBatch(gomock.Any(), "risk_assessments", gomock.Any()).Return(nil)

	c := f.coordinator([]Mapping{
		{SourceKey: "equipment", TargetCollection: "equipment"},
		{SourceKey: "risk_assessments", TargetCollection: "risk_assessments"},
	})

	result, err := c.Run(ctx, RunOptions{Actor: actor})
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, result.Items[0].Outcome)
	assert.Equal(t, ReasonPanic, result.Items[0].Reason)
	assert.Contains(t, result.Items[0].Error, "driver bug")
	assert.Equal(t, OutcomeMigrated, result.Items[1].Outcome)
	assert.Equal(t, 1, result.Stats.FailedRecords)

	kept, err := f.localSet(t, "equipment")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
	assert.False(t, c.Running())
}

func TestRun_DryRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	f.seed(t, "incidents", model.Record{"id": "i1"}, model.Record{"id": "i2"})
	f.gateway.EXPECT().Ping(gomock.Any()).Return(nil)

	c := f.coordinator([]Mapping{
		{SourceKey: "incidents", TargetCollection: "incidents"},
		{SourceKey: "training", TargetCollection: "training_records"},
	})

	result, err := c.Run(ctx, RunOptions{Actor: actor, DryRun: true})
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.False(t, result.Success)
	assert.Equal(t, OutcomeWouldMigrate, result.Items[0].Outcome)
	assert.Equal(t, Stats{TotalRecords: 2, Skipped: 1}, result.Stats)

	kept, err := f.localSet(t, "incidents")
	require.NoError(t, err)
	assert.Len(t, kept, 2)
}

func TestRun_GuardContention(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	g := guard.New()
	require.True(t, g.TryAcquire())
	defer g.Release()

	c := f.coordinator([]Mapping{{SourceKey: "incidents", TargetCollection: "incidents"}}, WithGuard(g))
	assert.True(t, c.Running())

	result, err := c.Run(context.Background(), RunOptions{Actor: actor})
	require.ErrorIs(t, err, guard.ErrAlreadyRunning)
	assert.Nil(t, result)
}

func TestRun_PingFailureAborts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "incidents", model.Record{"id": "i1"})

	f.gateway.EXPECT().Ping(gomock.Any()).Return(remote.ErrUnreachable)

	sink := auditmocks.NewMockSink(f.ctrl)
	sink.EXPECT().Record(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e model.SecurityAuditEntry) error {
			assert.Equal(t, model.AuditOutcomeFailure, e.Outcome)
			return nil
		})

	c := f.coordinator([]Mapping{{SourceKey: "incidents", TargetCollection: "incidents"}}, WithAuditSink(sink))

	result, err := c.Run(ctx, RunOptions{Actor: actor})
	require.ErrorIs(t, err, ErrRemoteUnavailable)
	require.ErrorIs(t, err, remote.ErrUnreachable)
	assert.Nil(t, result)

	kept, err := f.localSet(t, "incidents")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
	assert.False(t, c.Running(), "guard is released")
}

func TestRun_RequiresActor(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	c := f.coordinator(nil)

	_, err := c.Run(context.Background(), RunOptions{})
	require.ErrorIs(t, err, ErrActorRequired)
}

func TestRun_IgnoresCallerCancellation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.seed(t, "incidents", model.Record{"id": "i1"})

	f.gateway.EXPECT().Ping(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		return ctx.Err()
	})
	f.gateway.EXPECT().CommitBatch(gomock.Any(), "incidents", gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, _ []model.Record) error {
			return ctx.Err()
		})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := f.coordinator([]Mapping{{SourceKey: "incidents", TargetCollection: "incidents"}})
	result, err := c.Run(ctx, RunOptions{Actor: actor})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.Migrated)
}

func TestStamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		in          model.Record
		wantCreated any
		wantOrigID  any
	}{
		{
			name:        "snake case created_at kept",
			in:          model.Record{"id": "a", "created_at": "2024-01-01"},
			wantCreated: "2024-01-01",
			wantOrigID:  "a",
		},
		{
			name:        "camel case createdAt used",
			in:          model.Record{"id": 7, "createdAt": "2024-02-02"},
			wantCreated: "2024-02-02",
			wantOrigID:  7,
		},
		{
			name:        "empty created_at falls back",
			in:          model.Record{"_id": "local-1", "created_at": ""},
			wantCreated: migrationTime,
			wantOrigID:  "local-1",
		},
		{
			name:        "no id",
			in:          model.Record{"title": "x"},
			wantCreated: migrationTime,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out := stamp(tt.in, actor, migrationTime)

			assert.Equal(t, tt.wantCreated, out[FieldCreatedAt])
			assert.Equal(t, migrationTime, out[FieldUpdatedAt])
			assert.Equal(t, tt.wantOrigID, out[FieldOriginalID])
			assert.NotContains(t, out, "_id")
			assert.NotContains(t, tt.in, FieldMigratedFrom, "input is not mutated")
		})
	}
}
