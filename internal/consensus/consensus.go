// Package consensus defines the boundary to the BFT consensus engine the
// core sits atop. The engine itself — leader election, view changes,
// Byzantine-fault voting — is an explicit out-of-scope collaborator; this
// package only names the shape the core consumes: a stream of committed
// blocks, each a sequence of batch digests already ordered and agreed.
package consensus

import "context"

// Block is a committed unit of the consensus log: an ordered list of
// digests into the blob store, each digest naming one mempool batch.
type Block struct {
	Height  uint64
	Digests []string
}

// CommitStream is the read side of the consensus engine's output. The node
// state machine consumes exactly one of these, in order, for its lifetime.
type CommitStream interface {
	// Next blocks until the next committed block is available, or ctx is
	// canceled. A closed stream returns (Block{}, false, nil).
	Next(ctx context.Context) (Block, bool, error)
}

// ChannelCommitStream adapts a Go channel of committed blocks to
// CommitStream — the shape cmd/flnode's single-node relay feeds, and the
// one a real consensus engine integration can feed too.
type ChannelCommitStream struct {
	ch <-chan Block
}

// NewChannelCommitStream wraps ch.
func NewChannelCommitStream(ch <-chan Block) *ChannelCommitStream {
	return &ChannelCommitStream{ch: ch}
}

func (s *ChannelCommitStream) Next(ctx context.Context) (Block, bool, error) {
	select {
	case <-ctx.Done():
		return Block{}, false, ctx.Err()
	case b, ok := <-s.ch:
		if !ok {
			return Block{}, false, nil
		}
		return b, true, nil
	}
}
