// Package progress implements the stage progress tracker. It binds the
// durable job record, the event publisher and the catch-up history
// together behind three operations: Progress, Completed and Failed.
package progress
