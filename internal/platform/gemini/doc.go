// Package gemini implements generation.Generator against Google's
// Gemini API. Prompts ask for strict JSON and responses are validated
// before they reach the pipeline; transport failures are classified as
// transient so the orchestrator's retry policy and the circuit breaker
// can act on them.
package gemini
