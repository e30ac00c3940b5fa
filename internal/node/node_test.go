package node

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/flnode/internal/blobstore"
	"github.com/ocx/flnode/internal/defl"
	"github.com/ocx/flnode/internal/protocol"
	"github.com/ocx/flnode/internal/registry"
	"github.com/ocx/flnode/internal/responder"
)

type fakeDialer struct {
	mu   sync.Mutex
	sent []string
}

func (d *fakeDialer) Send(ctx context.Context, host string, port uint16, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, host)
	return nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func newTestNode(t *testing.T, quorum int) (*Node, *registry.ContactRegistry, *fakeDialer) {
	t.Helper()
	reg := registry.New()
	dialer := &fakeDialer{}
	r := responder.New(reg, dialer, nil)
	store := blobstore.NewMemoryBlobStore()
	n := New(Config{
		Quorum:    quorum,
		Contacts:  reg,
		Responder: r,
		Store:     store,
	})
	return n, reg, dialer
}

func updWeightsReq(client defl.ClientName, epoch int64, weights []byte) protocol.ClientRequest {
	return protocol.ClientRequest{
		Meta: protocol.MetaInfo{
			Method:        defl.MethodUpdWeights,
			ClientName:    client,
			UUID:          "uuid-" + string(client),
			TargetEpochID: epoch,
		},
		Weights: weights,
	}
}

func voteReq(client defl.ClientName, epoch int64) protocol.ClientRequest {
	return protocol.ClientRequest{
		Meta: protocol.MetaInfo{
			Method:        defl.MethodNewEpochVote,
			ClientName:    client,
			UUID:          "vote-" + string(client),
			TargetEpochID: epoch,
		},
	}
}

func TestUpdWeightsAcceptsCurrentEpoch(t *testing.T) {
	n, reg, _ := newTestNode(t, 2)
	reg.Register("alice", defl.RegisterInfo{ActiveHost: "10.0.0.1"})

	resp, weightsResp := n.apply(updWeightsReq("alice", 0, []byte{1, 2, 3}))
	assert.Equal(t, defl.StatusOK, resp.Status)
	assert.Nil(t, weightsResp)
}

func TestUpdWeightsRejectsStaleEpoch(t *testing.T) {
	n, _, _ := newTestNode(t, 2)
	resp, _ := n.apply(updWeightsReq("alice", 7, []byte{1}))
	assert.Equal(t, defl.StatusUWTargetEpochIDError, resp.Status)
}

func TestUpdWeightsRejectsEmptyWeights(t *testing.T) {
	n, _, _ := newTestNode(t, 2)
	resp, _ := n.apply(updWeightsReq("alice", 0, nil))
	assert.Equal(t, defl.StatusNoWeightsInRequestError, resp.Status)
}

func TestNewEpochVoteNotMeetingQuorumWaits(t *testing.T) {
	n, _, _ := newTestNode(t, 2)
	resp, weightsResp := n.apply(voteReq("alice", 0))
	assert.Equal(t, defl.StatusNotMeetQuorumWait, resp.Status)
	assert.Nil(t, weightsResp)
}

func TestNewEpochVoteRejectsDuplicateVote(t *testing.T) {
	n, _, _ := newTestNode(t, 2)
	n.apply(voteReq("alice", 0))
	resp, _ := n.apply(voteReq("alice", 0))
	assert.Equal(t, defl.StatusClientAlreadyVotedError, resp.Status)
}

func TestNewEpochVoteRejectsStaleEpoch(t *testing.T) {
	n, _, _ := newTestNode(t, 2)
	resp, _ := n.apply(voteReq("alice", 99))
	assert.Equal(t, defl.StatusNEVTargetEpochIDError, resp.Status)
}

func TestSingleClientEpochCloseAtQuorumOne(t *testing.T) {
	n, _, _ := newTestNode(t, 1)
	n.apply(updWeightsReq("alice", 0, []byte{9, 9}))

	resp, weightsResp := n.apply(voteReq("alice", 0))
	require.NotNil(t, weightsResp)
	assert.Equal(t, defl.StatusOK, resp.Status)
	assert.Nil(t, weightsResp.RequestUUID)
	assert.Equal(t, int64(0), weightsResp.RLastEpochID)
	assert.Equal(t, []byte{9, 9}, weightsResp.WLast["alice"])
	assert.Equal(t, int64(1), n.current.EpochID)

	last := n.ReadLast()
	assert.Equal(t, int64(0), last.EpochID)
	assert.Equal(t, []byte{9, 9}, last.ClientWeights["alice"])
}

func TestEpochClosesOnceQuorumReachedBySecondVoter(t *testing.T) {
	n, _, _ := newTestNode(t, 2)

	resp1, weightsResp1 := n.apply(voteReq("alice", 0))
	assert.Equal(t, defl.StatusNotMeetQuorumWait, resp1.Status)
	assert.Nil(t, weightsResp1)

	resp2, weightsResp2 := n.apply(voteReq("bob", 0))
	assert.Equal(t, defl.StatusOK, resp2.Status)
	require.NotNil(t, weightsResp2)
	assert.Equal(t, int64(0), weightsResp2.RLastEpochID)
}

func TestVoteSetClearsAfterEpochClose(t *testing.T) {
	n, _, _ := newTestNode(t, 1)
	n.apply(voteReq("alice", 0))
	assert.Empty(t, n.votedSet)

	// alice can vote again immediately in the new epoch without hitting
	// the already-voted error.
	resp, _ := n.apply(voteReq("alice", 1))
	assert.NotEqual(t, defl.StatusClientAlreadyVotedError, resp.Status)
}

func TestUnregisteredClientResponseDeliveryIsLoggedNotFatal(t *testing.T) {
	n, _, dialer := newTestNode(t, 1)
	// alice never registered — RespondUnicast inside applyTransaction
	// should fail quietly (logged) rather than panicking the caller.
	envelope, err := protocol.EncodeEnvelope(updWeightsReq("alice", 0, []byte{1}))
	require.NoError(t, err)

	n.applyTransaction(context.Background(), envelope)
	assert.Equal(t, 0, dialer.count())
}

func TestRegisterThenReadLast(t *testing.T) {
	n, reg, dialer := newTestNode(t, 1)
	reg.Register("alice", defl.RegisterInfo{ActiveHost: "10.0.0.9", ActivePort: 9000})

	envelope, err := protocol.EncodeEnvelope(updWeightsReq("alice", 0, []byte{5}))
	require.NoError(t, err)
	n.applyTransaction(context.Background(), envelope)
	assert.Equal(t, 1, dialer.count())

	voteEnvelope, err := protocol.EncodeEnvelope(voteReq("alice", 0))
	require.NoError(t, err)
	n.applyTransaction(context.Background(), voteEnvelope)

	last := n.ReadLast()
	assert.Equal(t, []byte{5}, last.ClientWeights["alice"])
}
