package blobstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBlobStoreWriteRead(t *testing.T) {
	s := NewMemoryBlobStore()
	ctx := context.Background()

	digest, err := s.Write(ctx, []byte("batch-one"))
	require.NoError(t, err)
	assert.NotEmpty(t, digest)

	data, err := s.Read(ctx, digest)
	require.NoError(t, err)
	assert.Equal(t, []byte("batch-one"), data)
}

func TestMemoryBlobStoreMissingDigest(t *testing.T) {
	s := NewMemoryBlobStore()
	_, err := s.Read(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDigestIsDeterministic(t *testing.T) {
	a := Digest([]byte("same bytes"))
	b := Digest([]byte("same bytes"))
	assert.Equal(t, a, b)

	c := Digest([]byte("different bytes"))
	assert.NotEqual(t, a, c)
}

func TestWriteIsIdempotentUnderSameDigest(t *testing.T) {
	s := NewMemoryBlobStore()
	ctx := context.Background()
	d1, err := s.Write(ctx, []byte("x"))
	require.NoError(t, err)
	d2, err := s.Write(ctx, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}
