package queue

import "errors"

// Error taxonomy for pipeline job failures. Handlers classify failures
// by wrapping one of these sentinels; the orchestrator decides between
// retry and terminal failure based on the classification.
var (
	// ErrValidation marks fatal input errors (malformed or empty input,
	// payload validation failures). Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrTransientIO marks temporary I/O failures (timeouts, connection
	// resets, rate limits). Retried with backoff.
	ErrTransientIO = errors.New("transient I/O failure")

	// ErrExternalService marks failures of the external AI dependency.
	// Retried with backoff; repeated occurrences trip the circuit breaker.
	ErrExternalService = errors.New("external service failure")

	// ErrStalled marks jobs whose worker stopped renewing its processing
	// lock. Detected by infrastructure and requeued automatically.
	ErrStalled = errors.New("job stalled")

	// ErrExhaustedRetries marks jobs that failed after their full retry
	// budget. Terminal.
	ErrExhaustedRetries = errors.New("retry attempts exhausted")
)

// Retryable reports whether the error should be fed back into the retry
// machinery. Unclassified errors are treated as fatal so that handler
// bugs fail fast instead of burning the retry budget.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransientIO) ||
		errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrStalled)
}

// FailureCode maps an error to the structured code carried by failed
// events.
func FailureCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrExhaustedRetries):
		return "exhausted_retries"
	case errors.Is(err, ErrStalled):
		return "stalled_job"
	case errors.Is(err, ErrExternalService):
		return "external_service_error"
	case errors.Is(err, ErrTransientIO):
		return "transient_io_error"
	default:
		return "internal_error"
	}
}

// Recoverable reports whether a plain resubmission of the same input is
// likely to succeed. True for transient classes even after the retry
// budget is spent; false for validation failures.
func Recoverable(err error) bool {
	return Retryable(err) || errors.Is(err, ErrExhaustedRetries)
}
