package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultArtifactTTL bounds how long a generated artifact is served from
// cache for identical input bytes.
const DefaultArtifactTTL = 24 * time.Hour

// Artifact is the cached result of a successful generation run. A cache
// hit short-circuits the pipeline directly to the finalize stage.
type Artifact struct {
	Title     string `json:"title"`
	Notes     string `json:"notes"`
	Summary   string `json:"summary"`
	QuizJSON  string `json:"quiz_json"`
	CacheTime int64  `json:"cache_time"`
}

// ContentCache stores generated artifacts keyed by a cryptographic hash
// of the raw input bytes. The backend is advisory: every error is logged
// and reported as a miss so that an unreachable cache can never fail a
// job.
type ContentCache struct {
	rc     *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewContentCache creates a ContentCache on the given redis client.
// A non-positive ttl falls back to DefaultArtifactTTL.
func NewContentCache(rc *redis.Client, ttl time.Duration, logger *slog.Logger) *ContentCache {
	if ttl <= 0 {
		ttl = DefaultArtifactTTL
	}
	return &ContentCache{
		rc:     rc,
		ttl:    ttl,
		logger: logger.With("component", "content_cache"),
	}
}

// Hash returns the hex-encoded SHA-256 digest of the input bytes. The
// digest fully determines the cache key for a submission.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Get looks up a previously generated artifact by content hash. It
// returns (nil, false) on a miss, on expiry, and on any backend error.
func (c *ContentCache) Get(ctx context.Context, key string) (*Artifact, bool) {
	raw, err := c.rc.Get(ctx, artifactKey(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache lookup failed, treating as miss",
				"content_hash", key,
				"error", err)
		}
		return nil, false
	}

	var artifact Artifact
	if err := json.Unmarshal([]byte(raw), &artifact); err != nil {
		c.logger.Warn("cached artifact is malformed, treating as miss",
			"content_hash", key,
			"error", err)
		return nil, false
	}

	return &artifact, true
}

// Put stores the artifact under the content hash for future identical
// submissions. Failures are logged and swallowed: a missed cache write
// only costs a future regeneration, never correctness.
func (c *ContentCache) Put(ctx context.Context, key string, artifact *Artifact) {
	artifact.CacheTime = time.Now().UTC().UnixMilli()

	raw, err := json.Marshal(artifact)
	if err != nil {
		c.logger.Warn("failed to marshal artifact for caching",
			"content_hash", key,
			"error", err)
		return
	}

	if err := c.rc.Set(ctx, artifactKey(key), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed, artifact not cached",
			"content_hash", key,
			"error", err)
	}
}

// Invalidate removes a cached artifact. Errors are logged and swallowed.
func (c *ContentCache) Invalidate(ctx context.Context, key string) {
	if err := c.rc.Del(ctx, artifactKey(key)).Err(); err != nil {
		c.logger.Warn("cache invalidation failed",
			"content_hash", key,
			"error", err)
	}
}

func artifactKey(hash string) string {
	return "artifact:" + hash
}
