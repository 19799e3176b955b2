// Package store defines the persistence interfaces consumed by the
// pipeline (JobStore, NoteStore, QuizStore), the shared DBTX abstraction
// over *sql.DB and *sql.Tx, and the store error taxonomy. Concrete
// implementations live in internal/platform/postgres.
package store
