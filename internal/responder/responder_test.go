package responder

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/flnode/internal/defl"
	"github.com/ocx/flnode/internal/registry"
)

type recordingDialer struct {
	mu    sync.Mutex
	sent  []string
	failFor string
}

func (d *recordingDialer) Send(ctx context.Context, host string, port uint16, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := host
	if key == d.failFor {
		return errors.New("simulated send failure")
	}
	d.sent = append(d.sent, key)
	return nil
}

func TestRespondUnicastSuccess(t *testing.T) {
	reg := registry.New()
	reg.Register("alice", defl.RegisterInfo{ActiveHost: "10.0.0.1", ActivePort: 9000})
	d := &recordingDialer{}
	r := New(reg, d, nil)

	n, err := r.RespondUnicast(context.Background(), "alice", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Contains(t, d.sent, "10.0.0.1")
}

func TestRespondUnicastUnregisteredClient(t *testing.T) {
	reg := registry.New()
	r := New(reg, &recordingDialer{}, nil)

	_, err := r.RespondUnicast(context.Background(), "ghost", []byte("x"))
	require.Error(t, err)
	var regErr *RegistrationError
	assert.ErrorAs(t, err, &regErr)
	assert.Equal(t, defl.ClientName("ghost"), regErr.ClientName)
}

func TestRespondUnicastNetworkFailure(t *testing.T) {
	reg := registry.New()
	reg.Register("alice", defl.RegisterInfo{ActiveHost: "10.0.0.1", ActivePort: 9000})
	d := &recordingDialer{failFor: "10.0.0.1"}
	r := New(reg, d, nil)

	_, err := r.RespondUnicast(context.Background(), "alice", []byte("x"))
	require.Error(t, err)
	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
}

func TestRespondBroadcastToleratesPerClientFailure(t *testing.T) {
	reg := registry.New()
	reg.Register("alice", defl.RegisterInfo{PassiveHost: "10.0.0.1", PassivePort: 1})
	reg.Register("bob", defl.RegisterInfo{PassiveHost: "10.0.0.2", PassivePort: 2})
	d := &recordingDialer{failFor: "10.0.0.1"}
	r := New(reg, d, nil)

	n := r.RespondBroadcast(context.Background(), []byte("hi"))
	assert.Equal(t, 2, n)
	assert.Contains(t, d.sent, "10.0.0.2")
	assert.NotContains(t, d.sent, "10.0.0.1")
}

func TestRespondBroadcastEmptyRegistry(t *testing.T) {
	reg := registry.New()
	r := New(reg, &recordingDialer{}, nil)
	n := r.RespondBroadcast(context.Background(), []byte("hi"))
	assert.Equal(t, 2, n)
}
