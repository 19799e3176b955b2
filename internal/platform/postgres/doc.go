// Package postgres contains the PostgreSQL implementations of the store
// interfaces. All methods route database errors through MapError so
// callers only see the store error taxonomy.
package postgres
