// Package api contains the HTTP handlers: document submission, job
// status polling, progress streaming and retrieval of the generated
// study material. Handlers translate internal errors into sanitized
// responses; raw error text never reaches clients.
package api
