// Package storage provides the blob storage boundary used to fetch
// uploaded documents. Two implementations exist: S3 for deployments and
// the local filesystem for development and tests.
package storage

import (
	"context"
	"errors"
)

// ErrBlobNotFound is returned when the requested object does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore fetches uploaded document bytes. Download is invoked once
// per pipeline job.
type BlobStore interface {
	// Download returns the raw bytes stored at the given path.
	Download(ctx context.Context, path string) ([]byte, error)
}
