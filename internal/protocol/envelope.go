package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ocx/flnode/internal/defl"
)

// MetaInfo is the JSON-encoded header of a ClientRequest envelope. Field
// names are fixed by the wire format clients already speak; do not rename
// them without also changing the `json` tags that pin the wire spelling.
// ListenHost/ListenPort are the original weight-carrying-request fields;
// RegisterInfo is carried alongside them so a CLIENT_REGISTER sent over
// this same client-to-filter envelope can declare both the active and
// passive endpoints the data model requires (the bare listen_host/port
// pair cannot represent that distinction).
type MetaInfo struct {
	Method        defl.Method        `json:"method"`
	ListenHost    string             `json:"listen_host"`
	ListenPort    uint16             `json:"listen_port"`
	UUID          string             `json:"uuid"`
	ClientName    defl.ClientName    `json:"client_name"`
	TargetEpochID int64              `json:"target_epoch_id"`
	RegisterInfo  *defl.RegisterInfo `json:"register_info,omitempty"`
}

// ClientRequest is a client-originated message: a MetaInfo header plus an
// optional raw weight blob. It is the only message type using the envelope
// encoding rather than the tagged binary one — the filter forwards its
// bytes unchanged into the mempool, so the wire form must round-trip
// exactly, without reinterpretation, all the way to the state machine.
type ClientRequest struct {
	Meta    MetaInfo
	Weights []byte
}

// EncodeEnvelope serializes req as: a 4-byte big-endian length of the JSON
// MetaInfo blob, the JSON blob itself, then the raw weight bytes appended
// with no further delimiter.
func EncodeEnvelope(req ClientRequest) ([]byte, error) {
	metaJSON, err := json.Marshal(req.Meta)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal MetaInfo: %w", err)
	}
	out := make([]byte, 0, 4+len(metaJSON)+len(req.Weights))
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(metaJSON)))
	out = append(out, lenBuf[:]...)
	out = append(out, metaJSON...)
	out = append(out, req.Weights...)
	return out, nil
}

// DecodeEnvelope parses the form EncodeEnvelope produces. Any trailing
// bytes after the MetaInfo blob are taken as the weight payload verbatim,
// including zero of them.
func DecodeEnvelope(data []byte) (ClientRequest, error) {
	if len(data) < 4 {
		return ClientRequest{}, fmt.Errorf("protocol: envelope too short for length prefix: %d bytes", len(data))
	}
	metaLen := binary.BigEndian.Uint32(data[:4])
	rest := data[4:]
	if uint64(metaLen) > uint64(len(rest)) {
		return ClientRequest{}, fmt.Errorf("protocol: envelope meta length %d exceeds available %d bytes", metaLen, len(rest))
	}
	var meta MetaInfo
	if err := json.Unmarshal(rest[:metaLen], &meta); err != nil {
		return ClientRequest{}, fmt.Errorf("protocol: unmarshal MetaInfo: %w", err)
	}
	weights := rest[metaLen:]
	weightsCopy := make([]byte, len(weights))
	copy(weightsCopy, weights)
	return ClientRequest{Meta: meta, Weights: weightsCopy}, nil
}
