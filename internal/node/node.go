// Package node implements the epoch state machine: the single per-node
// consumer of the consensus commit stream, and the only writer of the
// `current` epoch databank. It reduces each committed block to a sequence
// of client transactions and applies them one at a time, in commit order.
// FETCH_W_LAST and CLIENT_REGISTER never reach this package — the filter
// and obsido listener serve those locally, outside consensus.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ocx/flnode/internal/blobstore"
	"github.com/ocx/flnode/internal/consensus"
	"github.com/ocx/flnode/internal/defl"
	"github.com/ocx/flnode/internal/mempool"
	"github.com/ocx/flnode/internal/protocol"
	"github.com/ocx/flnode/internal/registry"
	"github.com/ocx/flnode/internal/responder"
)

// Metrics is the subset of internal/metrics.Metrics the state machine
// touches, kept as an interface here so this package does not import
// internal/metrics directly — metrics are ambient, not a state-machine
// dependency.
type Metrics interface {
	RecordApply(method defl.Method, status defl.Status)
	RecordEpochClose(epochID int64, clientCount int)
	RecordDuplicateVote()
	RecordDuplicateWeights()
}

type noopMetrics struct{}

func (noopMetrics) RecordApply(defl.Method, defl.Status) {}
func (noopMetrics) RecordEpochClose(int64, int)          {}
func (noopMetrics) RecordDuplicateVote()                 {}
func (noopMetrics) RecordDuplicateWeights()              {}

// EpochObserver is notified whenever the state machine closes an epoch, in
// addition to the RecordEpochClose metric. internal/adminhttp.Server
// satisfies this directly with its PublishEpochClose method.
type EpochObserver interface {
	PublishEpochClose(closed defl.EpochDatabank, newEpochID int64)
}

type noopEpochObserver struct{}

func (noopEpochObserver) PublishEpochClose(defl.EpochDatabank, int64) {}

// Node holds the two epoch databanks and the vote set, and drives the
// transition table. Exactly one goroutine (AnalyzeBlock's caller) may call
// apply; ReadLast is safe to call concurrently from any number of readers.
type Node struct {
	quorum int

	mu       sync.Mutex
	current  defl.EpochDatabank
	votedSet defl.VotedSet

	lastMu sync.RWMutex
	last   defl.EpochDatabank

	contacts  *registry.ContactRegistry
	responder *responder.Responder
	store     blobstore.BlobStore
	commits   consensus.CommitStream
	metrics   Metrics
	observer  EpochObserver
	logger    *slog.Logger
}

// Config carries the constructor's dependencies.
type Config struct {
	Quorum    int
	Contacts  *registry.ContactRegistry
	Responder *responder.Responder
	Store     blobstore.BlobStore
	Commits   consensus.CommitStream
	Metrics   Metrics
	Observer  EpochObserver
	Logger    *slog.Logger
}

// New constructs a Node at its boot state: `current` at epoch 0 with no
// weights, `last` at the bootstrap epoch -1, empty vote set.
func New(cfg Config) *Node {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := cfg.Metrics
	if m == nil {
		m = noopMetrics{}
	}
	o := cfg.Observer
	if o == nil {
		o = noopEpochObserver{}
	}
	return &Node{
		quorum:    cfg.Quorum,
		current:   defl.NewCurrentDatabank(),
		votedSet:  defl.NewVotedSet(),
		last:      defl.NewBootstrapDatabank(),
		contacts:  cfg.Contacts,
		responder: cfg.Responder,
		store:     cfg.Store,
		commits:   cfg.Commits,
		metrics:   m,
		observer:  o,
		logger:    logger,
	}
}

// ReadLast returns a deep copy of the `last` databank, the data FETCH_W_LAST
// serves. Safe for concurrent use by any number of readers while the state
// machine continues mutating `current`.
func (n *Node) ReadLast() defl.EpochDatabank {
	n.lastMu.RLock()
	defer n.lastMu.RUnlock()
	return n.last.Snapshot()
}

// AnalyzeBlock consumes the commit stream until ctx is canceled or the
// stream closes. For each committed block it reads every named digest from
// the blob store, decodes the batch, and applies each transaction in
// order. An empty block payload is a no-op. A missing digest is an
// invariant violation — the consensus layer never commits a digest the
// blob store doesn't have — and is reported as an error the caller should
// treat as fatal to the node process.
func (n *Node) AnalyzeBlock(ctx context.Context) error {
	for {
		block, ok, err := n.commits.Next(ctx)
		if err != nil {
			return fmt.Errorf("node: commit stream: %w", err)
		}
		if !ok {
			return nil
		}
		for _, digest := range block.Digests {
			if err := n.applyDigest(ctx, digest); err != nil {
				return err
			}
		}
	}
}

func (n *Node) applyDigest(ctx context.Context, digest string) error {
	data, err := n.store.Read(ctx, digest)
	if err != nil {
		return fmt.Errorf("node: committed digest %s missing from blob store: %w", digest, err)
	}
	batch, err := mempool.DecodeBatch(data)
	if err != nil {
		return fmt.Errorf("node: decode batch for digest %s: %w", digest, err)
	}
	for _, txBytes := range batch.Transactions {
		n.applyTransaction(ctx, txBytes)
	}
	return nil
}

// applyTransaction decodes and applies one client transaction. A malformed
// transaction is logged and dropped — it is not a node-fatal condition,
// unlike a missing digest, since the bytes never round-tripped through a
// verified consensus commitment of their *content*, only of their
// presence in the batch.
func (n *Node) applyTransaction(ctx context.Context, txBytes []byte) {
	req, err := protocol.DecodeEnvelope(txBytes)
	if err != nil {
		n.logger.Warn("dropping malformed transaction", "err", err)
		return
	}

	resp, weightsResp := n.apply(req)
	n.metrics.RecordApply(req.Meta.Method, resp.Status)

	// Every client gets an acknowledgement, even for error statuses.
	if _, err := n.responder.RespondUnicast(ctx, req.Meta.ClientName, protocol.EncodeResponse(resp)); err != nil {
		n.logger.Warn("unicast response failed", "client", string(req.Meta.ClientName), "err", err)
	}
	if weightsResp != nil {
		n.responder.RespondBroadcast(ctx, protocol.EncodeWeightsResponse(*weightsResp))
	}
}

// apply is the transition table. It mutates `current` (and, on epoch
// close, swaps `last`) and returns the unicast Response plus, only on an
// epoch close triggered by this vote, the WeightsResponse to broadcast.
func (n *Node) apply(req protocol.ClientRequest) (protocol.Response, *protocol.WeightsResponse) {
	switch req.Meta.Method {
	case defl.MethodUpdWeights:
		return n.applyUpdWeights(req), nil
	case defl.MethodNewEpochVote:
		return n.applyNewEpochVote(req)
	default:
		return protocol.Response{
			RequestUUID:  req.Meta.UUID,
			ResponseUUID: uuid.NewString(),
			Status:       defl.StatusServerInternalError,
		}, nil
	}
}

func (n *Node) applyUpdWeights(req protocol.ClientRequest) protocol.Response {
	n.mu.Lock()
	defer n.mu.Unlock()

	resp := protocol.Response{RequestUUID: req.Meta.UUID, ResponseUUID: uuid.NewString()}

	if len(req.Weights) == 0 {
		resp.Status = defl.StatusNoWeightsInRequestError
		return resp
	}
	if req.Meta.TargetEpochID != n.current.EpochID {
		resp.Status = defl.StatusUWTargetEpochIDError
		return resp
	}

	if _, duplicate := n.current.ClientWeights[req.Meta.ClientName]; duplicate {
		n.logger.Warn("duplicate UPD_WEIGHTS", "client", string(req.Meta.ClientName), "epoch", n.current.EpochID)
		n.metrics.RecordDuplicateWeights()
	}
	n.current.ClientWeights[req.Meta.ClientName] = req.Weights

	resp.Status = defl.StatusOK
	return resp
}

func (n *Node) applyNewEpochVote(req protocol.ClientRequest) (protocol.Response, *protocol.WeightsResponse) {
	n.mu.Lock()

	resp := protocol.Response{RequestUUID: req.Meta.UUID, ResponseUUID: uuid.NewString()}

	if req.Meta.TargetEpochID != n.current.EpochID {
		n.mu.Unlock()
		resp.Status = defl.StatusNEVTargetEpochIDError
		return resp, nil
	}
	if n.votedSet.Contains(req.Meta.ClientName) {
		n.logger.Warn("duplicate NEW_EPOCH_VOTE", "client", string(req.Meta.ClientName), "epoch", n.current.EpochID)
		n.metrics.RecordDuplicateVote()
		n.mu.Unlock()
		resp.Status = defl.StatusClientAlreadyVotedError
		return resp, nil
	}

	n.votedSet.Add(req.Meta.ClientName)
	if len(n.votedSet) < n.quorum {
		n.mu.Unlock()
		resp.Status = defl.StatusNotMeetQuorumWait
		return resp, nil
	}

	// Epoch close: advance current and clear VotedSet under n.mu, so no
	// other apply() call sees a half-done transition; the closed databank
	// is then copied into `last` under lastMu, after n.mu is released.
	closed := n.current
	n.current = defl.EpochDatabank{EpochID: closed.EpochID + 1, ClientWeights: defl.ClientWeights{}}
	n.votedSet = defl.NewVotedSet()
	n.mu.Unlock()

	n.lastMu.Lock()
	n.last = closed.Snapshot()
	n.lastMu.Unlock()

	n.metrics.RecordEpochClose(closed.EpochID, len(closed.ClientWeights))
	n.observer.PublishEpochClose(closed, closed.EpochID+1)

	weightsResp := protocol.WeightsResponse{
		RequestUUID:  nil,
		ResponseUUID: uuid.NewString(),
		WLast:        closed.ClientWeights,
		RLastEpochID: closed.EpochID,
	}
	resp.Status = defl.StatusOK
	return resp, &weightsResp
}
