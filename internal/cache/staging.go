package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultStagingTTL bounds how long intermediate stage output is kept.
// It must comfortably exceed the worst-case gap between a stage
// completing and its successor being dispatched, including retries.
const DefaultStagingTTL = 15 * time.Minute

// ErrStagedDataMissing is returned when staged data for a correlation ID
// has expired or was never written. Callers treat it as a transient
// failure and re-derive the data where possible.
var ErrStagedDataMissing = errors.New("staged data missing or expired")

// Staging carries intermediate pipeline data (raw bytes, extracted text,
// generated artifacts) between stage jobs keyed by the run's correlation
// ID, so job payloads stay small and contain identifiers only.
//
// Unlike the content cache, staged reads are load-bearing: a read error
// is a real error, because the successor stage cannot proceed without
// the data.
type Staging struct {
	rc     *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewStaging creates a Staging store on the given redis client.
// A non-positive ttl falls back to DefaultStagingTTL.
func NewStaging(rc *redis.Client, ttl time.Duration, logger *slog.Logger) *Staging {
	if ttl <= 0 {
		ttl = DefaultStagingTTL
	}
	return &Staging{
		rc:     rc,
		ttl:    ttl,
		logger: logger.With("component", "staging"),
	}
}

// PutBytes stages the raw document bytes for a pipeline run.
func (s *Staging) PutBytes(ctx context.Context, correlationID uuid.UUID, data []byte) error {
	return s.put(ctx, stagingKey(correlationID, "bytes"), data)
}

// GetBytes retrieves the staged raw bytes for a pipeline run.
func (s *Staging) GetBytes(ctx context.Context, correlationID uuid.UUID) ([]byte, error) {
	return s.get(ctx, stagingKey(correlationID, "bytes"))
}

// PutText stages the extracted text for a pipeline run.
func (s *Staging) PutText(ctx context.Context, correlationID uuid.UUID, text string) error {
	return s.put(ctx, stagingKey(correlationID, "text"), []byte(text))
}

// GetText retrieves the staged extracted text for a pipeline run.
func (s *Staging) GetText(ctx context.Context, correlationID uuid.UUID) (string, error) {
	data, err := s.get(ctx, stagingKey(correlationID, "text"))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// PutArtifact stages a generated artifact between the generate and save
// stages.
func (s *Staging) PutArtifact(ctx context.Context, correlationID uuid.UUID, data []byte) error {
	return s.put(ctx, stagingKey(correlationID, "generated"), data)
}

// GetArtifact retrieves the staged generated artifact.
func (s *Staging) GetArtifact(ctx context.Context, correlationID uuid.UUID) ([]byte, error) {
	return s.get(ctx, stagingKey(correlationID, "generated"))
}

// Clear removes all staged data for a pipeline run. Invoked by finalize;
// errors are logged and swallowed because the TTL reaps leftovers.
func (s *Staging) Clear(ctx context.Context, correlationID uuid.UUID) {
	keys := []string{
		stagingKey(correlationID, "bytes"),
		stagingKey(correlationID, "text"),
		stagingKey(correlationID, "generated"),
	}
	if err := s.rc.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn("failed to clear staged data, TTL will reap it",
			"correlation_id", correlationID,
			"error", err)
	}
}

func (s *Staging) put(ctx context.Context, key string, data []byte) error {
	if err := s.rc.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to stage data under %s: %w", key, err)
	}
	return nil
}

func (s *Staging) get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rc.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStagedDataMissing
		}
		return nil, fmt.Errorf("failed to read staged data under %s: %w", key, err)
	}
	return data, nil
}

func stagingKey(correlationID uuid.UUID, kind string) string {
	return "staging:" + correlationID.String() + ":" + kind
}
