// Package queue implements the job queue orchestrator: named priority
// queues, durable job records with retry and backoff policy, stalled-job
// detection against processing locks, startup recovery and terminal
// record retention. It also defines the failure taxonomy used to decide
// between retrying a job and failing it terminally.
package queue
