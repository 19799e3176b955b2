package cache_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studybuddy/studybuddy-api/internal/cache"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rc.Close()
	})
	return rc, mr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHash(t *testing.T) {
	t.Parallel()

	a := cache.Hash([]byte("study material"))
	b := cache.Hash([]byte("study material"))
	c := cache.Hash([]byte("different material"))

	assert.Equal(t, a, b, "identical bytes must produce identical keys")
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestContentCache(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		rc, _ := newTestRedis(t)
		cc := cache.NewContentCache(rc, time.Hour, testLogger())
		ctx := context.Background()

		key := cache.Hash([]byte("doc"))
		_, ok := cc.Get(ctx, key)
		assert.False(t, ok)

		cc.Put(ctx, key, &cache.Artifact{
			Title:    "Notes",
			Notes:    "content",
			Summary:  "summary",
			QuizJSON: `[]`,
		})

		got, ok := cc.Get(ctx, key)
		require.True(t, ok)
		assert.Equal(t, "Notes", got.Title)
		assert.NotZero(t, got.CacheTime)
	})

	t.Run("expires after TTL", func(t *testing.T) {
		t.Parallel()

		rc, mr := newTestRedis(t)
		cc := cache.NewContentCache(rc, time.Minute, testLogger())
		ctx := context.Background()

		key := cache.Hash([]byte("doc"))
		cc.Put(ctx, key, &cache.Artifact{Title: "Notes", Notes: "content"})

		mr.FastForward(2 * time.Minute)

		_, ok := cc.Get(ctx, key)
		assert.False(t, ok)
	})

	t.Run("backend outage reads as miss", func(t *testing.T) {
		t.Parallel()

		rc, mr := newTestRedis(t)
		cc := cache.NewContentCache(rc, time.Hour, testLogger())
		ctx := context.Background()

		mr.Close()

		// Neither operation may fail; the cache is advisory.
		cc.Put(ctx, "deadbeef", &cache.Artifact{Title: "Notes", Notes: "content"})
		_, ok := cc.Get(ctx, "deadbeef")
		assert.False(t, ok)
	})

	t.Run("invalidate removes entry", func(t *testing.T) {
		t.Parallel()

		rc, _ := newTestRedis(t)
		cc := cache.NewContentCache(rc, time.Hour, testLogger())
		ctx := context.Background()

		key := cache.Hash([]byte("doc"))
		cc.Put(ctx, key, &cache.Artifact{Title: "Notes", Notes: "content"})
		cc.Invalidate(ctx, key)

		_, ok := cc.Get(ctx, key)
		assert.False(t, ok)
	})
}

func TestInFlightLocks(t *testing.T) {
	t.Parallel()

	t.Run("second acquire joins the first job", func(t *testing.T) {
		t.Parallel()

		rc, _ := newTestRedis(t)
		locks := cache.NewInFlightLocks(rc, time.Minute, testLogger())
		ctx := context.Background()

		entityID := uuid.New()
		firstJob := uuid.New()
		secondJob := uuid.New()

		existing, acquired := locks.Acquire(ctx, entityID, firstJob)
		require.True(t, acquired)
		assert.Equal(t, uuid.Nil, existing)

		existing, acquired = locks.Acquire(ctx, entityID, secondJob)
		assert.False(t, acquired)
		assert.Equal(t, firstJob, existing)
	})

	t.Run("release allows a fresh run", func(t *testing.T) {
		t.Parallel()

		rc, _ := newTestRedis(t)
		locks := cache.NewInFlightLocks(rc, time.Minute, testLogger())
		ctx := context.Background()

		entityID := uuid.New()
		_, acquired := locks.Acquire(ctx, entityID, uuid.New())
		require.True(t, acquired)

		locks.Release(ctx, entityID)

		_, acquired = locks.Acquire(ctx, entityID, uuid.New())
		assert.True(t, acquired)
	})

	t.Run("lock expires via TTL", func(t *testing.T) {
		t.Parallel()

		rc, mr := newTestRedis(t)
		locks := cache.NewInFlightLocks(rc, time.Minute, testLogger())
		ctx := context.Background()

		entityID := uuid.New()
		_, acquired := locks.Acquire(ctx, entityID, uuid.New())
		require.True(t, acquired)

		mr.FastForward(2 * time.Minute)

		_, acquired = locks.Acquire(ctx, entityID, uuid.New())
		assert.True(t, acquired, "an expired lock must not dedup forever")
	})

	t.Run("backend outage disables dedup", func(t *testing.T) {
		t.Parallel()

		rc, mr := newTestRedis(t)
		locks := cache.NewInFlightLocks(rc, time.Minute, testLogger())
		ctx := context.Background()

		mr.Close()

		existing, acquired := locks.Acquire(ctx, uuid.New(), uuid.New())
		assert.True(t, acquired)
		assert.Equal(t, uuid.Nil, existing)
	})
}

func TestStaging(t *testing.T) {
	t.Parallel()

	t.Run("round trips", func(t *testing.T) {
		t.Parallel()

		rc, _ := newTestRedis(t)
		staging := cache.NewStaging(rc, time.Minute, testLogger())
		ctx := context.Background()
		runID := uuid.New()

		require.NoError(t, staging.PutBytes(ctx, runID, []byte{0x25, 0x50}))
		require.NoError(t, staging.PutText(ctx, runID, "extracted text"))
		require.NoError(t, staging.PutArtifact(ctx, runID, []byte(`{"title":"T"}`)))

		data, err := staging.GetBytes(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x25, 0x50}, data)

		text, err := staging.GetText(ctx, runID)
		require.NoError(t, err)
		assert.Equal(t, "extracted text", text)

		artifact, err := staging.GetArtifact(ctx, runID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"title":"T"}`, string(artifact))
	})

	t.Run("missing data is a distinct error", func(t *testing.T) {
		t.Parallel()

		rc, _ := newTestRedis(t)
		staging := cache.NewStaging(rc, time.Minute, testLogger())

		_, err := staging.GetBytes(context.Background(), uuid.New())
		assert.ErrorIs(t, err, cache.ErrStagedDataMissing)
	})

	t.Run("expires after TTL", func(t *testing.T) {
		t.Parallel()

		rc, mr := newTestRedis(t)
		staging := cache.NewStaging(rc, time.Minute, testLogger())
		ctx := context.Background()
		runID := uuid.New()

		require.NoError(t, staging.PutText(ctx, runID, "text"))
		mr.FastForward(2 * time.Minute)

		_, err := staging.GetText(ctx, runID)
		assert.ErrorIs(t, err, cache.ErrStagedDataMissing)
	})

	t.Run("clear removes everything for the run", func(t *testing.T) {
		t.Parallel()

		rc, _ := newTestRedis(t)
		staging := cache.NewStaging(rc, time.Minute, testLogger())
		ctx := context.Background()
		runID := uuid.New()
		otherRun := uuid.New()

		require.NoError(t, staging.PutBytes(ctx, runID, []byte("a")))
		require.NoError(t, staging.PutText(ctx, runID, "b"))
		require.NoError(t, staging.PutText(ctx, otherRun, "keep"))

		staging.Clear(ctx, runID)

		_, err := staging.GetBytes(ctx, runID)
		assert.ErrorIs(t, err, cache.ErrStagedDataMissing)

		text, err := staging.GetText(ctx, otherRun)
		require.NoError(t, err)
		assert.Equal(t, "keep", text)
	})
}

func TestProcessingLocks(t *testing.T) {
	t.Parallel()

	t.Run("one claim per job and queue", func(t *testing.T) {
		t.Parallel()

		rc, _ := newTestRedis(t)
		locks := cache.NewProcessingLocks(rc, time.Minute, testLogger())
		ctx := context.Background()
		jobID := uuid.New()

		assert.True(t, locks.Acquire(ctx, jobID, "download", "worker-0"))
		assert.False(t, locks.Acquire(ctx, jobID, "download", "worker-1"))

		// The same job advancing to the next stage gets a fresh claim.
		assert.True(t, locks.Acquire(ctx, jobID, "extract", "worker-2"))
	})

	t.Run("held tracks claim lifecycle", func(t *testing.T) {
		t.Parallel()

		rc, mr := newTestRedis(t)
		locks := cache.NewProcessingLocks(rc, time.Minute, testLogger())
		ctx := context.Background()
		jobID := uuid.New()

		assert.False(t, locks.Held(ctx, jobID, "download"))

		require.True(t, locks.Acquire(ctx, jobID, "download", "worker-0"))
		assert.True(t, locks.Held(ctx, jobID, "download"))

		locks.Release(ctx, jobID, "download")
		assert.False(t, locks.Held(ctx, jobID, "download"))

		require.True(t, locks.Acquire(ctx, jobID, "download", "worker-0"))
		mr.FastForward(2 * time.Minute)
		assert.False(t, locks.Held(ctx, jobID, "download"),
			"a crashed worker's claim must expire")
	})

	t.Run("renew extends the claim", func(t *testing.T) {
		t.Parallel()

		rc, mr := newTestRedis(t)
		locks := cache.NewProcessingLocks(rc, time.Minute, testLogger())
		ctx := context.Background()
		jobID := uuid.New()

		require.True(t, locks.Acquire(ctx, jobID, "generate", "worker-0"))

		mr.FastForward(30 * time.Second)
		locks.Renew(ctx, jobID, "generate")
		mr.FastForward(45 * time.Second)

		assert.True(t, locks.Held(ctx, jobID, "generate"))
	})

	t.Run("backend errors fail safe", func(t *testing.T) {
		t.Parallel()

		rc, mr := newTestRedis(t)
		locks := cache.NewProcessingLocks(rc, time.Minute, testLogger())
		ctx := context.Background()
		jobID := uuid.New()

		mr.Close()

		// Claims are granted so processing continues, and Held reports
		// true so the stalled monitor does not requeue blindly.
		assert.True(t, locks.Acquire(ctx, jobID, "download", "worker-0"))
		assert.True(t, locks.Held(ctx, jobID, "download"))
	})
}
