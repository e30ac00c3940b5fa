package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/flnode/internal/defl"
)

func strPtr(s string) *string { return &s }

func TestResponseRoundTrip(t *testing.T) {
	resp := Response{
		RequestUUID:  "req-99",
		ResponseUUID: "resp-99",
		Status:       defl.StatusOK,
	}
	decoded, err := DecodeResponse(EncodeResponse(resp))
	require.NoError(t, err)
	assert.Equal(t, resp, decoded)
}

func TestResponseRoundTripErrorStatus(t *testing.T) {
	resp := Response{RequestUUID: "req-1", ResponseUUID: "resp-1", Status: defl.StatusNotMeetQuorumWait}
	decoded, err := DecodeResponse(EncodeResponse(resp))
	require.NoError(t, err)
	assert.Equal(t, resp.Status, decoded.Status)
}

func TestWeightsResponseRoundTripWithRequestUUID(t *testing.T) {
	wr := WeightsResponse{
		RequestUUID:  strPtr("req-1"),
		ResponseUUID: "resp-1",
		RLastEpochID: 5,
		WLast: defl.ClientWeights{
			"alice": {0x01, 0x02},
			"bob":   {0x03},
		},
	}
	decoded, err := DecodeWeightsResponse(EncodeWeightsResponse(wr))
	require.NoError(t, err)
	require.NotNil(t, decoded.RequestUUID)
	assert.Equal(t, *wr.RequestUUID, *decoded.RequestUUID)
	assert.Equal(t, wr.ResponseUUID, decoded.ResponseUUID)
	assert.Equal(t, wr.RLastEpochID, decoded.RLastEpochID)
	assert.Equal(t, wr.WLast, decoded.WLast)
}

func TestWeightsResponseRoundTripNilRequestUUID(t *testing.T) {
	wr := WeightsResponse{ResponseUUID: "s", RLastEpochID: -1, WLast: defl.ClientWeights{}}
	decoded, err := DecodeWeightsResponse(EncodeWeightsResponse(wr))
	require.NoError(t, err)
	assert.Nil(t, decoded.RequestUUID)
	assert.Empty(t, decoded.WLast)
	assert.Equal(t, int64(-1), decoded.RLastEpochID)
}

func TestObsidoRequestRoundTripWithRegisterInfo(t *testing.T) {
	req := ObsidoRequest{
		Method:      defl.ObsidoClientRegister,
		RequestUUID: "uuid-1",
		ClientName:  "node-3",
		RegisterInfo: &defl.RegisterInfo{
			ActiveHost:  "127.0.0.1",
			ActivePort:  8001,
			PassiveHost: "127.0.0.1",
			PassivePort: 8002,
		},
	}
	decoded, err := DecodeObsidoRequest(EncodeObsidoRequest(req))
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}

func TestObsidoRequestRoundTripFetchWLastHasNilRegisterInfo(t *testing.T) {
	req := ObsidoRequest{Method: defl.ObsidoFetchWLast, RequestUUID: "uuid-2", ClientName: "node-1"}
	decoded, err := DecodeObsidoRequest(EncodeObsidoRequest(req))
	require.NoError(t, err)
	assert.Nil(t, decoded.RegisterInfo)
	assert.Equal(t, req.ClientName, decoded.ClientName)
}

func TestDecodeResponseRejectsTruncatedInput(t *testing.T) {
	_, err := DecodeResponse([]byte{0xff})
	assert.Error(t, err)
}
