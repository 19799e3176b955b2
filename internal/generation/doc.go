// Package generation defines the Generator interface and error taxonomy
// for AI-backed study material generation. It is the boundary between
// the pipeline core and external LLM services, following the hexagonal
// architecture pattern; the Gemini implementation lives in
// internal/platform/gemini.
package generation
