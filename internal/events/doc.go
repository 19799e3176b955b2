// Package events defines the pipeline's outbound notification events and
// two delivery components: an in-memory Broker with per-job and per-user
// rooms for live subscribers, and a redis-backed History ring for late
// subscribers. Delivery is at-most-once throughout; polling the job
// record is the reliable fallback.
package events
