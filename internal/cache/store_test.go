package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cephasgm/safety-sync/internal/config"
)

// newBackends returns one instance of every Store implementation.
func newBackends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)

	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	sqliteStore, err := NewSQLiteStore(ctx, db)
	require.NoError(t, err)

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"sqlite": sqliteStore,
	}
}

func TestStoreBackends(t *testing.T) {
	t.Parallel()

	for name, store := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			_, err := store.ReadSet(ctx, "incidents")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.WriteSet(ctx, "incidents", []byte(`[{"id":"r1"}]`)))
			got, err := store.ReadSet(ctx, "incidents")
			require.NoError(t, err)
			assert.JSONEq(t, `[{"id":"r1"}]`, string(got))

			// overwrite replaces the whole payload
			require.NoError(t, store.WriteSet(ctx, "incidents", []byte(`[]`)))
			got, err = store.ReadSet(ctx, "incidents")
			require.NoError(t, err)
			assert.Equal(t, `[]`, string(got))

			require.NoError(t, store.DeleteSet(ctx, "incidents"))
			_, err = store.ReadSet(ctx, "incidents")
			assert.ErrorIs(t, err, ErrNotFound)

			// deleting a missing key is not an error
			require.NoError(t, store.DeleteSet(ctx, "incidents"))

			err = store.WriteSet(ctx, "../escape", []byte(`[]`))
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.WriteSet(ctx, "training", []byte(`[{"id":"t1"}]`)))

	second, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := second.ReadSet(ctx, "training")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"t1"}]`, string(got))
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	db, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	store, err := NewSQLiteStore(ctx, db)
	require.NoError(t, err)
	require.NoError(t, store.WriteSet(ctx, "ppe", []byte(`[{"id":"p1"}]`)))
	require.NoError(t, db.Close())

	db, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer db.Close()
	store, err = NewSQLiteStore(ctx, db)
	require.NoError(t, err)

	got, err := store.ReadSet(ctx, "ppe")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"p1"}]`, string(got))
}

func TestMemoryStoreCopiesPayload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	payload := []byte(`[1]`)
	require.NoError(t, store.WriteSet(ctx, "k", payload))
	payload[1] = '2'

	got, err := store.ReadSet(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `[1]`, string(got))
}

func TestNewStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name      string
		cacheType string
		withDB    bool
		wantErr   bool
	}{
		{name: "memory", cacheType: config.CacheTypeMemory},
		{name: "file", cacheType: config.CacheTypeFile},
		{name: "sqlite", cacheType: config.CacheTypeSQLite, withDB: true},
		{name: "sqlite_without_db", cacheType: config.CacheTypeSQLite, wantErr: true},
		{name: "unknown", cacheType: "etcd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &config.Config{DataDir: t.TempDir(), Cache: config.CacheConfig{Type: tt.cacheType}}

			var err error
			if tt.withDB {
				db, openErr := OpenSQLite(ctx, cfg.GetCachePath())
				require.NoError(t, openErr)
				t.Cleanup(func() { _ = db.Close() })
				_, err = NewStore(ctx, cfg, db)
			} else {
				_, err = NewStore(ctx, cfg, nil)
			}

			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateKey(t *testing.T) {
	t.Parallel()
	for _, key := range []string{"incidents", "snapshot.employee_health", "risk-assessments"} {
		assert.NoError(t, ValidateKey(key), key)
	}
	for _, key := range []string{"", "a/b", "..\\x", "with space"} {
		assert.True(t, errors.Is(ValidateKey(key), ErrInvalidKey), key)
	}
}
