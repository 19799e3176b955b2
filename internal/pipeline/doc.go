// Package pipeline chains the five processing stages (download,
// extract, generate, save, finalize) into a single run per document
// submission. The coordinator owns submission-time deduplication, the
// per-stage handlers mounted on the worker pools, and the guarantee
// that every run ends in exactly one completed or failed notification.
package pipeline
