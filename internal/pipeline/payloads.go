package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/studybuddy/studybuddy-api/internal/queue"
)

var validate = validator.New()

// RunRef carries the identifiers shared by every stage payload.
// Payloads hold identifiers only; document bytes, extracted text and
// generated artifacts travel through the staging store keyed by
// correlation ID.
type RunRef struct {
	EntityID      uuid.UUID `json:"entity_id" validate:"required"`
	OwnerUserID   uuid.UUID `json:"owner_user_id" validate:"required"`
	CorrelationID uuid.UUID `json:"correlation_id" validate:"required"`
	SourcePath    string    `json:"source_path" validate:"required"`
}

// DownloadPayload is the payload of the first pipeline stage.
type DownloadPayload struct {
	RunRef

	// SizeHint is the declared document size in bytes, used only for
	// dispatch priority. Zero means unknown.
	SizeHint int64 `json:"size_hint,omitempty"`
}

// Validate implements queue.Payload.
func (p DownloadPayload) Validate() error {
	return validate.Struct(p)
}

// ExtractPayload is the payload of the text extraction stage.
type ExtractPayload struct {
	RunRef

	ContentHash string `json:"content_hash" validate:"required"`
}

// Validate implements queue.Payload.
func (p ExtractPayload) Validate() error {
	return validate.Struct(p)
}

// GeneratePayload is the payload of the AI generation stage.
type GeneratePayload struct {
	RunRef

	ContentHash string `json:"content_hash" validate:"required"`
}

// Validate implements queue.Payload.
func (p GeneratePayload) Validate() error {
	return validate.Struct(p)
}

// SavePayload is the payload of the persistence stage.
type SavePayload struct {
	RunRef

	ContentHash string `json:"content_hash" validate:"required"`
}

// Validate implements queue.Payload.
func (p SavePayload) Validate() error {
	return validate.Struct(p)
}

// FinalizePayload is the payload of the last stage. On the cache-hit
// path NoteID and QuizID are zero and the artifact is materialized from
// the content cache during finalization.
type FinalizePayload struct {
	RunRef

	ContentHash string    `json:"content_hash" validate:"required"`
	CacheHit    bool      `json:"cache_hit"`
	NoteID      uuid.UUID `json:"note_id,omitempty"`
	QuizID      uuid.UUID `json:"quiz_id,omitempty"`
}

// Validate implements queue.Payload.
func (p FinalizePayload) Validate() error {
	return validate.Struct(p)
}

// unmarshalPayload decodes and validates a stage payload. Failures are
// fatal: a malformed payload can never succeed on retry.
func unmarshalPayload(raw json.RawMessage, p interface{ Validate() error }) error {
	if err := json.Unmarshal(raw, p); err != nil {
		return fmt.Errorf("%w: malformed job payload: %v", queue.ErrValidation, err)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: invalid job payload: %v", queue.ErrValidation, err)
	}
	return nil
}
