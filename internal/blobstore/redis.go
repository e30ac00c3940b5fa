package blobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBlobStore is the alternate backend selected by
// `blob_store.backend: redis`, for nodes that want batch storage shared
// across process restarts or replicated outside the node's own disk —
// the teacher's multi-pod deployments use the same Redis-as-shared-state
// pattern for spoke registrations (internal/fabric.RedisHubStore).
type RedisBlobStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisBlobStore wraps client. keyPrefix namespaces keys so a shared
// Redis instance can host multiple nodes' stores; it defaults to
// "flnode:blob:" when empty.
func NewRedisBlobStore(client *redis.Client, keyPrefix string) *RedisBlobStore {
	if keyPrefix == "" {
		keyPrefix = "flnode:blob:"
	}
	return &RedisBlobStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisBlobStore) Write(ctx context.Context, data []byte) (string, error) {
	digest := Digest(data)
	key := s.keyPrefix + digest
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return "", fmt.Errorf("blobstore: redis SET %s: %w", key, err)
	}
	return digest, nil
}

func (s *RedisBlobStore) Read(ctx context.Context, digest string) ([]byte, error) {
	key := s.keyPrefix + digest
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, digest)
		}
		return nil, fmt.Errorf("blobstore: redis GET %s: %w", key, err)
	}
	return data, nil
}
