package filter

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/flnode/internal/defl"
	"github.com/ocx/flnode/internal/protocol"
	"github.com/ocx/flnode/internal/registry"
	"github.com/ocx/flnode/internal/responder"
)

type recordingDialer struct {
	mu      sync.Mutex
	targets []string
	last    []byte
}

func (d *recordingDialer) Send(_ context.Context, host string, _ uint16, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets = append(d.targets, host)
	d.last = payload
	return nil
}

type fakeForwarder struct {
	mu  sync.Mutex
	txs [][]byte
}

func (f *fakeForwarder) Submit(_ context.Context, tx []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs = append(f.txs, tx)
	return nil
}

func (f *fakeForwarder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.txs)
}

type fakeLastReader struct {
	bank defl.EpochDatabank
}

func (f fakeLastReader) ReadLast() defl.EpochDatabank { return f.bank }

func newTestFilter(t *testing.T, last defl.EpochDatabank) (*Filter, *registry.ContactRegistry, *recordingDialer, *fakeForwarder) {
	t.Helper()
	reg := registry.New()
	dialer := &recordingDialer{}
	resp := responder.New(reg, dialer, nil)
	fwd := &fakeForwarder{}
	f := New(reg, resp, fakeLastReader{bank: last}, fwd, nil)
	return f, reg, dialer, fwd
}

func envelopeFor(t *testing.T, meta protocol.MetaInfo, weights []byte) []byte {
	t.Helper()
	raw, err := protocol.EncodeEnvelope(protocol.ClientRequest{Meta: meta, Weights: weights})
	require.NoError(t, err)
	return raw
}

func TestFetchWLastUnicastsWeightsResponse(t *testing.T) {
	last := defl.EpochDatabank{EpochID: 3, ClientWeights: defl.ClientWeights{"alice": {1, 2}}}
	f, reg, dialer, fwd := newTestFilter(t, last)
	reg.Register("alice", defl.RegisterInfo{ActiveHost: "10.0.0.1", ActivePort: 9001})

	raw := envelopeFor(t, protocol.MetaInfo{
		Method:     defl.MethodFetchWLast,
		ClientName: "alice",
		UUID:       "req-1",
	}, nil)
	f.Handle(context.Background(), raw)

	require.Len(t, dialer.targets, 1)
	assert.Equal(t, "10.0.0.1", dialer.targets[0])
	assert.Equal(t, 0, fwd.count())

	decoded, err := protocol.DecodeWeightsResponse(dialer.last)
	require.NoError(t, err)
	require.NotNil(t, decoded.RequestUUID)
	assert.Equal(t, "req-1", *decoded.RequestUUID)
	assert.Equal(t, int64(3), decoded.RLastEpochID)
	assert.Equal(t, []byte{1, 2}, decoded.WLast["alice"])
}

func TestClientRegisterUpsertsRegistryAndReplies(t *testing.T) {
	f, reg, dialer, fwd := newTestFilter(t, defl.NewBootstrapDatabank())

	raw := envelopeFor(t, protocol.MetaInfo{
		Method:     defl.MethodClientRegister,
		ClientName: "bob",
		UUID:       "req-2",
		RegisterInfo: &defl.RegisterInfo{
			ActiveHost: "10.0.0.2", ActivePort: 1, PassiveHost: "10.0.0.3", PassivePort: 2,
		},
	}, nil)
	f.Handle(context.Background(), raw)

	info, ok := reg.Lookup("bob")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2", info.ActiveHost)
	assert.Equal(t, 0, fwd.count())

	require.Len(t, dialer.targets, 1)
	decoded, err := protocol.DecodeResponse(dialer.last)
	require.NoError(t, err)
	assert.Equal(t, defl.StatusOK, decoded.Status)
}

func TestClientRegisterWithoutInfoRepliesServerError(t *testing.T) {
	f, reg, dialer, _ := newTestFilter(t, defl.NewBootstrapDatabank())
	reg.Register("carol", defl.RegisterInfo{ActiveHost: "10.0.0.4"})

	raw := envelopeFor(t, protocol.MetaInfo{
		Method:     defl.MethodClientRegister,
		ClientName: "carol",
		UUID:       "req-3",
	}, nil)
	f.Handle(context.Background(), raw)

	require.Len(t, dialer.targets, 1)
	decoded, err := protocol.DecodeResponse(dialer.last)
	require.NoError(t, err)
	assert.Equal(t, defl.StatusServerInternalError, decoded.Status)
}

func TestUpdWeightsAndVoteAreForwardedUnchanged(t *testing.T) {
	f, _, dialer, fwd := newTestFilter(t, defl.NewBootstrapDatabank())

	raw := envelopeFor(t, protocol.MetaInfo{
		Method:     defl.MethodUpdWeights,
		ClientName: "dan",
		UUID:       "req-4",
	}, []byte{9, 9, 9})
	f.Handle(context.Background(), raw)

	require.Equal(t, 1, fwd.count())
	assert.Equal(t, raw, fwd.txs[0])
	assert.Empty(t, dialer.targets)

	voteRaw := envelopeFor(t, protocol.MetaInfo{
		Method:     defl.MethodNewEpochVote,
		ClientName: "dan",
		UUID:       "req-5",
	}, nil)
	f.Handle(context.Background(), voteRaw)
	require.Equal(t, 2, fwd.count())
	assert.Equal(t, voteRaw, fwd.txs[1])
}

func TestUnrecognizedMethodIsForwardedUnchanged(t *testing.T) {
	f, _, _, fwd := newTestFilter(t, defl.NewBootstrapDatabank())

	raw := envelopeFor(t, protocol.MetaInfo{
		Method:     defl.Method(200),
		ClientName: "eve",
		UUID:       "req-6",
	}, nil)
	f.Handle(context.Background(), raw)
	require.Equal(t, 1, fwd.count())
	assert.Equal(t, raw, fwd.txs[0])
}

func TestMalformedEnvelopeIsDroppedSilently(t *testing.T) {
	f, _, dialer, fwd := newTestFilter(t, defl.NewBootstrapDatabank())
	f.Handle(context.Background(), []byte{0x00})
	assert.Empty(t, dialer.targets)
	assert.Equal(t, 0, fwd.count())
}
