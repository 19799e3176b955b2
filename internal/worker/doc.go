// Package worker implements the worker pool runtime: bounded-concurrency
// pools with a shared rate limiter per queue, processing lock renewal
// for stalled-job detection, and the circuit breaker policy applied to
// external AI calls.
package worker
