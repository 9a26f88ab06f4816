package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waivern/wct/pkg/message"
	"github.com/waivern/wct/pkg/schema"
)

// backends under test; the s3 backend needs a live endpoint and is
// covered by its own config tests.
func testStores(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	sq, err := NewSQLiteStore(filepath.Join(t.TempDir(), "wct.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"memory":     NewMemoryStore(),
		"filesystem": fs,
		"sqlite":     sq,
	}
}

func testMessage(id string) *message.Message {
	return message.New(id, map[string]any{
		"schemaVersion": "1.0.0",
		"name":          "extract",
		"data":          []any{},
	}, schema.New("standard_input", "1.0.0"))
}

func TestStoreSaveGetRoundTrip(t *testing.T) {
	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			msg := testMessage("m1").WithRunID("run-1")
			require.NoError(t, st.Save(ctx, "run-1", ArtifactPrefix+"raw", msg))

			got, err := st.Get(ctx, "run-1", ArtifactPrefix+"raw")
			require.NoError(t, err)
			assert.Equal(t, msg.ID, got.ID)
			assert.Equal(t, msg.Schema, got.Schema)
			assert.Equal(t, "run-1", got.RunID)

			ok, err := st.Exists(ctx, "run-1", ArtifactPrefix+"raw")
			require.NoError(t, err)
			assert.True(t, ok)

			// Upsert replaces.
			require.NoError(t, st.Save(ctx, "run-1", ArtifactPrefix+"raw", testMessage("m2")))
			got, err = st.Get(ctx, "run-1", ArtifactPrefix+"raw")
			require.NoError(t, err)
			assert.Equal(t, "m2", got.ID)
		})
	}
}

func TestStoreGetAbsentKey(t *testing.T) {
	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := st.Get(ctx, "run-1", ArtifactPrefix+"ghost")
			require.ErrorIs(t, err, ErrArtifactNotFound)

			ok, err := st.Exists(ctx, "run-1", ArtifactPrefix+"ghost")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.Save(ctx, "run-1", ArtifactPrefix+"raw", testMessage("m1")))
			require.NoError(t, st.Delete(ctx, "run-1", ArtifactPrefix+"raw"))
			require.NoError(t, st.Delete(ctx, "run-1", ArtifactPrefix+"raw"))

			_, err := st.Get(ctx, "run-1", ArtifactPrefix+"raw")
			require.ErrorIs(t, err, ErrArtifactNotFound)
		})
	}
}

func TestStoreListKeysExcludesSystemKeys(t *testing.T) {
	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.Save(ctx, "run-1", ArtifactPrefix+"b", testMessage("m1")))
			require.NoError(t, st.Save(ctx, "run-1", ArtifactPrefix+"a", testMessage("m2")))
			require.NoError(t, st.PutDoc(ctx, "run-1", CachePrefix+"entry", map[string]any{"v": 1}))
			require.NoError(t, st.PutDoc(ctx, "run-1", StateKey, map[string]any{"run_id": "run-1"}))

			keys, err := st.ListKeys(ctx, "run-1", "")
			require.NoError(t, err)
			assert.Equal(t, []string{ArtifactPrefix + "a", ArtifactPrefix + "b", CachePrefix + "entry"}, keys)

			keys, err = st.ListKeys(ctx, "run-1", ArtifactPrefix)
			require.NoError(t, err)
			assert.Equal(t, []string{ArtifactPrefix + "a", ArtifactPrefix + "b"}, keys)
		})
	}
}

func TestStoreClearKeepsSystemKeys(t *testing.T) {
	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.Save(ctx, "run-1", ArtifactPrefix+"raw", testMessage("m1")))
			require.NoError(t, st.PutDoc(ctx, "run-1", CachePrefix+"entry", map[string]any{"v": 1}))
			require.NoError(t, st.PutDoc(ctx, "run-1", StateKey, map[string]any{"run_id": "run-1"}))
			// Another run is untouched.
			require.NoError(t, st.Save(ctx, "run-2", ArtifactPrefix+"raw", testMessage("m2")))

			require.NoError(t, st.Clear(ctx, "run-1"))

			keys, err := st.ListKeys(ctx, "run-1", "")
			require.NoError(t, err)
			assert.Empty(t, keys)

			var state map[string]any
			require.NoError(t, st.GetDoc(ctx, "run-1", StateKey, &state))
			assert.Equal(t, "run-1", state["run_id"])

			ok, err := st.Exists(ctx, "run-2", ArtifactPrefix+"raw")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestStoreDocRoundTrip(t *testing.T) {
	type job struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.PutDoc(ctx, "run-1", BatchJobPrefix+"j1", job{ID: "j1", Status: "pending"}))

			var got job
			require.NoError(t, st.GetDoc(ctx, "run-1", BatchJobPrefix+"j1", &got))
			assert.Equal(t, job{ID: "j1", Status: "pending"}, got)

			err := st.GetDoc(ctx, "run-1", BatchJobPrefix+"ghost", &got)
			require.ErrorIs(t, err, ErrArtifactNotFound)
		})
	}
}

func TestStoreRunMetadata(t *testing.T) {
	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			older := RunMetadata{RunID: "run-a", RunbookPath: "a.yaml", StartedAt: time.Now().Add(-time.Hour).UTC(), Status: RunStatusCompleted}
			newer := RunMetadata{RunID: "run-b", RunbookPath: "b.yaml", StartedAt: time.Now().UTC(), Status: RunStatusPaused}
			require.NoError(t, st.SaveRunMetadata(ctx, older))
			require.NoError(t, st.SaveRunMetadata(ctx, newer))

			runs, err := st.ListRuns(ctx, "")
			require.NoError(t, err)
			require.Len(t, runs, 2)
			assert.Equal(t, "run-b", runs[0].RunID, "most recent first")

			paused, err := st.ListRuns(ctx, RunStatusPaused)
			require.NoError(t, err)
			require.Len(t, paused, 1)
			assert.Equal(t, "run-b", paused[0].RunID)

			// Status updates overwrite.
			newer.Status = RunStatusCompleted
			require.NoError(t, st.SaveRunMetadata(ctx, newer))
			paused, err = st.ListRuns(ctx, RunStatusPaused)
			require.NoError(t, err)
			assert.Empty(t, paused)
		})
	}
}

func TestStoreRejectsInvalidKeys(t *testing.T) {
	for name, st := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			msg := testMessage("m1")

			require.ErrorIs(t, st.Save(ctx, "run-1", "", msg), ErrInvalidKey)
			require.ErrorIs(t, st.Save(ctx, "run-1", "/abs", msg), ErrInvalidKey)
			require.ErrorIs(t, st.Save(ctx, "run-1", "a/../b", msg), ErrInvalidKey)
			require.ErrorIs(t, st.Save(ctx, "", ArtifactPrefix+"raw", msg), ErrInvalidKey)
			require.ErrorIs(t, st.Save(ctx, "run/1", ArtifactPrefix+"raw", msg), ErrInvalidKey)
		})
	}
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, ValidateKey("artifacts/raw"))
	assert.NoError(t, ValidateKey("cache/abc123"))
	assert.ErrorIs(t, ValidateKey(""), ErrInvalidKey)
	assert.ErrorIs(t, ValidateKey("/etc/passwd"), ErrInvalidKey)
	assert.ErrorIs(t, ValidateKey("../escape"), ErrInvalidKey)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	st, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, "run-1", ArtifactPrefix+"raw", testMessage("m1")))
	require.NoError(t, st.SaveRunMetadata(ctx, RunMetadata{RunID: "run-1", RunbookPath: "rb.yaml", StartedAt: time.Now().UTC(), Status: RunStatusRunning}))

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "run-1", ArtifactPrefix+"raw")
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID)

	runs, err := reopened.ListRuns(ctx, "")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].RunID)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wct.db")
	ctx := context.Background()

	st, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, "run-1", ArtifactPrefix+"raw", testMessage("m1")))
	require.NoError(t, st.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	got, err := reopened.Get(ctx, "run-1", ArtifactPrefix+"raw")
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID)
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("WAIVERN_STORE_TYPE", "memory")
	st, err := NewFromEnv(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, st)

	t.Setenv("WAIVERN_STORE_TYPE", "filesystem")
	t.Setenv("WAIVERN_STORE_PATH", t.TempDir())
	st, err = NewFromEnv(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, st)

	t.Setenv("WAIVERN_STORE_TYPE", "sqlite")
	t.Setenv("WAIVERN_STORE_PATH", filepath.Join(t.TempDir(), "wct.db"))
	st, err = NewFromEnv(context.Background())
	require.NoError(t, err)
	require.IsType(t, &SQLiteStore{}, st)
	require.NoError(t, st.(*SQLiteStore).Close())

	t.Setenv("WAIVERN_STORE_TYPE", "s3")
	t.Setenv("WAIVERN_S3_BUCKET", "")
	_, err = NewFromEnv(context.Background())
	require.Error(t, err)

	t.Setenv("WAIVERN_STORE_TYPE", "carrier-pigeon")
	_, err = NewFromEnv(context.Background())
	require.Error(t, err)
}
