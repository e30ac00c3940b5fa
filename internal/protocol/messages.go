package protocol

import (
	"fmt"

	"github.com/ocx/flnode/internal/defl"
)

// Response is the unicast reply to a ClientRequest, carrying only the
// outcome status and the UUID pair needed for client-side correlation. A
// successful FETCH_W_LAST never produces a Response — it produces a
// WeightsResponse instead (see the filter and obsido packages). Response
// is the reply to UPD_WEIGHTS, NEW_EPOCH_VOTE and CLIENT_REGISTER, and to
// any other method that reaches the state machine (as
// SERVER_INTERNAL_ERROR).
type Response struct {
	RequestUUID  string
	ResponseUUID string
	Status       defl.Status
}

// EncodeResponse serializes r as a tagged binary message.
func EncodeResponse(r Response) []byte {
	w := newFieldWriter()
	w.writeString(r.RequestUUID)
	w.writeString(r.ResponseUUID)
	w.writeByte(byte(r.Status))
	return w.Bytes()
}

// DecodeResponse parses the form EncodeResponse produces.
func DecodeResponse(data []byte) (Response, error) {
	r := newFieldReader(data)
	requestUUID, err := r.readString()
	if err != nil {
		return Response{}, fmt.Errorf("protocol: decode Response.RequestUUID: %w", err)
	}
	responseUUID, err := r.readString()
	if err != nil {
		return Response{}, fmt.Errorf("protocol: decode Response.ResponseUUID: %w", err)
	}
	statusByte, err := r.readByte()
	if err != nil {
		return Response{}, fmt.Errorf("protocol: decode Response.Status: %w", err)
	}
	return Response{
		RequestUUID:  requestUUID,
		ResponseUUID: responseUUID,
		Status:       defl.Status(statusByte),
	}, nil
}

// WeightsResponse is both the broadcast epoch-close notification and the
// reply to a FETCH_W_LAST read — the two operations differ only in
// delivery (unicast vs broadcast) and in whether RequestUUID is set. An
// epoch close triggered by a vote sets RequestUUID to nil per the
// transition spec; a FETCH_W_LAST reply sets it to the requester's UUID.
type WeightsResponse struct {
	RequestUUID  *string
	ResponseUUID string
	WLast        defl.ClientWeights
	RLastEpochID int64
}

// EncodeWeightsResponse serializes wr as a tagged binary message.
func EncodeWeightsResponse(wr WeightsResponse) []byte {
	w := newFieldWriter()
	w.writeOptionalString(wr.RequestUUID)
	w.writeString(wr.ResponseUUID)
	w.writeInt64(wr.RLastEpochID)
	w.writeVarint(uint64(len(wr.WLast)))
	for name, blob := range wr.WLast {
		w.writeString(string(name))
		w.writeBytes(blob)
	}
	return w.Bytes()
}

// DecodeWeightsResponse parses the form EncodeWeightsResponse produces.
func DecodeWeightsResponse(data []byte) (WeightsResponse, error) {
	r := newFieldReader(data)
	requestUUID, err := r.readOptionalString()
	if err != nil {
		return WeightsResponse{}, fmt.Errorf("protocol: decode WeightsResponse.RequestUUID: %w", err)
	}
	responseUUID, err := r.readString()
	if err != nil {
		return WeightsResponse{}, fmt.Errorf("protocol: decode WeightsResponse.ResponseUUID: %w", err)
	}
	epochID, err := r.readInt64()
	if err != nil {
		return WeightsResponse{}, fmt.Errorf("protocol: decode WeightsResponse.RLastEpochID: %w", err)
	}
	count, err := r.readVarint()
	if err != nil {
		return WeightsResponse{}, fmt.Errorf("protocol: decode WeightsResponse weight count: %w", err)
	}
	wLast := make(defl.ClientWeights, count)
	for i := uint64(0); i < count; i++ {
		name, err := r.readString()
		if err != nil {
			return WeightsResponse{}, fmt.Errorf("protocol: decode WeightsResponse client name %d: %w", i, err)
		}
		blob, err := r.readBytes()
		if err != nil {
			return WeightsResponse{}, fmt.Errorf("protocol: decode WeightsResponse blob %d: %w", i, err)
		}
		wLast[defl.ClientName(name)] = blob
	}
	return WeightsResponse{
		RequestUUID:  requestUUID,
		ResponseUUID: responseUUID,
		WLast:        wLast,
		RLastEpochID: epochID,
	}, nil
}

// writeRegisterInfo writes a presence byte followed by the four endpoint
// fields when info is non-nil.
func (w *fieldWriter) writeRegisterInfo(info *defl.RegisterInfo) {
	if info == nil {
		w.writeByte(0)
		return
	}
	w.writeByte(1)
	w.writeString(info.ActiveHost)
	w.writeUint16(info.ActivePort)
	w.writeString(info.PassiveHost)
	w.writeUint16(info.PassivePort)
}

func (r *fieldReader) readRegisterInfo() (*defl.RegisterInfo, error) {
	present, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	activeHost, err := r.readString()
	if err != nil {
		return nil, err
	}
	activePort, err := r.readUint16()
	if err != nil {
		return nil, err
	}
	passiveHost, err := r.readString()
	if err != nil {
		return nil, err
	}
	passivePort, err := r.readUint16()
	if err != nil {
		return nil, err
	}
	return &defl.RegisterInfo{
		ActiveHost:  activeHost,
		ActivePort:  activePort,
		PassiveHost: passiveHost,
		PassivePort: passivePort,
	}, nil
}

// ObsidoRequest is the message form the secondary ingress (Obsido) accepts:
// registration or a read-last-weights trigger, never a weight submission
// or a vote.
type ObsidoRequest struct {
	Method       defl.ObsidoMethod
	RequestUUID  string
	ClientName   defl.ClientName
	RegisterInfo *defl.RegisterInfo // present on CLIENT_REGISTER, nil on FETCH_W_LAST
}

// EncodeObsidoRequest serializes req as a tagged binary message.
func EncodeObsidoRequest(req ObsidoRequest) []byte {
	w := newFieldWriter()
	w.writeVarint(uint64(req.Method))
	w.writeString(req.RequestUUID)
	w.writeString(string(req.ClientName))
	w.writeRegisterInfo(req.RegisterInfo)
	return w.Bytes()
}

// DecodeObsidoRequest parses the form EncodeObsidoRequest produces.
func DecodeObsidoRequest(data []byte) (ObsidoRequest, error) {
	r := newFieldReader(data)
	method, err := r.readVarint()
	if err != nil {
		return ObsidoRequest{}, fmt.Errorf("protocol: decode ObsidoRequest.Method: %w", err)
	}
	requestUUID, err := r.readString()
	if err != nil {
		return ObsidoRequest{}, fmt.Errorf("protocol: decode ObsidoRequest.RequestUUID: %w", err)
	}
	clientName, err := r.readString()
	if err != nil {
		return ObsidoRequest{}, fmt.Errorf("protocol: decode ObsidoRequest.ClientName: %w", err)
	}
	registerInfo, err := r.readRegisterInfo()
	if err != nil {
		return ObsidoRequest{}, fmt.Errorf("protocol: decode ObsidoRequest.RegisterInfo: %w", err)
	}
	return ObsidoRequest{
		Method:       defl.ObsidoMethod(method),
		RequestUUID:  requestUUID,
		ClientName:   defl.ClientName(clientName),
		RegisterInfo: registerInfo,
	}, nil
}
