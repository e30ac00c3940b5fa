// Package blobstore implements the content-addressed batch store: write a
// mempool batch once, read it back by the digest a committed block names.
// A missing digest on read is the one condition the state machine treats
// as fatal to the node (see internal/node), so both implementations here
// report a distinguishable not-found error rather than returning a zero
// value silently.
package blobstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// ErrNotFound is returned by Read when no blob exists under the given
// digest.
var ErrNotFound = errors.New("blobstore: digest not found")

// BlobStore is the persistence collaborator, selected by the
// `blob_store.backend` config key; neither implementation here reads
// `store_path`. Write is content-addressed: the caller never chooses the
// key.
type BlobStore interface {
	Write(ctx context.Context, data []byte) (digest string, err error)
	Read(ctx context.Context, digest string) ([]byte, error)
}

// Digest returns the blake2b-256 content digest of data, hex-encoded. This
// is the key every BlobStore implementation uses, so batches written by
// one backend are addressable the same way regardless of which backend a
// node is configured with.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MemoryBlobStore is an in-process BlobStore backed by a plain map. It is
// the default backend (`blob_store.backend: memory`) and what every test
// in this tree uses.
type MemoryBlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBlobStore returns an empty in-memory store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{data: make(map[string][]byte)}
}

func (s *MemoryBlobStore) Write(ctx context.Context, data []byte) (string, error) {
	digest := Digest(data)
	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	s.data[digest] = cp
	s.mu.Unlock()
	return digest, nil
}

func (s *MemoryBlobStore) Read(ctx context.Context, digest string) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.data[digest]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, digest)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}
