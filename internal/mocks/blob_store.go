package mocks

import (
	"context"
	"sync"

	"github.com/studybuddy/studybuddy-api/internal/platform/storage"
)

// BlobStore is an in-memory storage.BlobStore.
type BlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte

	// DownloadFn, when set, replaces the default lookup.
	DownloadFn func(ctx context.Context, path string) ([]byte, error)

	DownloadCount int
}

// NewBlobStore creates a blob store preloaded with the given objects.
func NewBlobStore(blobs map[string][]byte) *BlobStore {
	if blobs == nil {
		blobs = make(map[string][]byte)
	}
	return &BlobStore{blobs: blobs}
}

// Put stores an object.
func (s *BlobStore) Put(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[path] = data
}

// Download implements storage.BlobStore.
func (s *BlobStore) Download(ctx context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	s.DownloadCount++
	fn := s.DownloadFn
	data, ok := s.blobs[path]
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, path)
	}
	if !ok {
		return nil, storage.ErrBlobNotFound
	}
	return data, nil
}

var _ storage.BlobStore = (*BlobStore)(nil)
