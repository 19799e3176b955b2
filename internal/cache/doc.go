// Package cache implements the redis-backed content cache and
// deduplication layer: artifact caching keyed by content hash, in-flight
// locks that collapse duplicate concurrent submissions, processing locks
// used for stalled-job detection, and the staging area that carries
// intermediate data between stage jobs.
//
// The content cache and both lock types are advisory by design: backend
// failures degrade to cache misses and disabled deduplication, never to
// job failures.
package cache
