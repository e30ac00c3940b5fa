// Package mempool defines the batching boundary: client transactions the
// filter forwards (because the Filter found them to be consensus-bound —
// UPD_WEIGHTS, NEW_EPOCH_VOTE, or an unrecognized method) are collected
// into batches, written to the blob store, and handed to the consensus
// engine as a digest. The batching and ordering policy itself is an
// out-of-scope collaborator; this package only defines the batch wire
// shape the state machine must be able to decode back out of the blob
// store (see internal/node), plus a minimal reference batch maker.
package mempool

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ocx/flnode/internal/blobstore"
)

// Batch is the unit the blob store stores and a committed block's digest
// names: an ordered sequence of raw, still-encoded client transactions —
// exactly the bytes the filter forwarded, never re-encoded.
type Batch struct {
	Transactions [][]byte
}

// EncodeBatch serializes b as a count followed by length-prefixed
// transaction byte strings.
func EncodeBatch(b Batch) []byte {
	out := make([]byte, 0, 4)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(b.Transactions)))
	out = append(out, countBuf[:]...)
	for _, tx := range b.Transactions {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(tx)))
		out = append(out, lenBuf[:]...)
		out = append(out, tx...)
	}
	return out
}

// DecodeBatch parses the form EncodeBatch produces.
func DecodeBatch(data []byte) (Batch, error) {
	if len(data) < 4 {
		return Batch{}, fmt.Errorf("mempool: batch too short for count prefix: %d bytes", len(data))
	}
	count := binary.BigEndian.Uint32(data[:4])
	rest := data[4:]
	txs := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(rest) < 4 {
			return Batch{}, fmt.Errorf("mempool: batch truncated reading transaction %d length", i)
		}
		txLen := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint64(txLen) > uint64(len(rest)) {
			return Batch{}, fmt.Errorf("mempool: batch truncated reading transaction %d body", i)
		}
		tx := make([]byte, txLen)
		copy(tx, rest[:txLen])
		txs = append(txs, tx)
		rest = rest[txLen:]
	}
	return Batch{Transactions: txs}, nil
}

// BatchMaker collects forwarded transactions and flushes them to the blob
// store as a Batch once maxBatchSize is reached. It is a minimal reference
// implementation of the batching policy spec.md leaves unspecified — a
// real deployment's mempool/batcher is expected to have its own
// flush-on-timer and backpressure policy, out of scope here.
type BatchMaker struct {
	store       blobstore.BlobStore
	maxBatch    int
	pending     [][]byte
	Committed   chan string // digests of flushed batches, for a consensus engine to pick up
}

// NewBatchMaker returns a BatchMaker that flushes every maxBatchSize
// transactions.
func NewBatchMaker(store blobstore.BlobStore, maxBatchSize int) *BatchMaker {
	if maxBatchSize <= 0 {
		maxBatchSize = 1
	}
	return &BatchMaker{
		store:     store,
		maxBatch:  maxBatchSize,
		Committed: make(chan string, 16),
	}
}

// Submit adds tx to the pending batch, flushing immediately if that fills
// the batch.
func (m *BatchMaker) Submit(ctx context.Context, tx []byte) error {
	m.pending = append(m.pending, tx)
	if len(m.pending) >= m.maxBatch {
		return m.Flush(ctx)
	}
	return nil
}

// Flush writes the pending batch (even if partially filled) to the blob
// store and emits its digest on Committed. It is a no-op when nothing is
// pending.
func (m *BatchMaker) Flush(ctx context.Context) error {
	if len(m.pending) == 0 {
		return nil
	}
	batch := Batch{Transactions: m.pending}
	digest, err := m.store.Write(ctx, EncodeBatch(batch))
	if err != nil {
		return fmt.Errorf("mempool: write batch: %w", err)
	}
	m.pending = nil
	m.Committed <- digest
	return nil
}
