// Package obsido implements the secondary client ingress. It speaks the
// tagged binary ObsidoRequest form rather than the client SDK's JSON
// envelope, and accepts only registration and read-last-weights requests —
// never a weight submission or a vote, and never anything bound for
// consensus. Its FETCH_W_LAST differs from the primary filter's: the
// reply is broadcast to every registered client's passive endpoint, not
// unicast to the requester alone.
package obsido

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ocx/flnode/internal/defl"
	"github.com/ocx/flnode/internal/protocol"
	"github.com/ocx/flnode/internal/registry"
	"github.com/ocx/flnode/internal/responder"
)

// LastReader is the read side of the node's `last` databank.
type LastReader interface {
	ReadLast() defl.EpochDatabank
}

// Obsido is the secondary ingress's request handler.
type Obsido struct {
	contacts  *registry.ContactRegistry
	responder *responder.Responder
	last      LastReader
	logger    *slog.Logger
}

// New constructs an Obsido handler.
func New(contacts *registry.ContactRegistry, resp *responder.Responder, last LastReader, logger *slog.Logger) *Obsido {
	if logger == nil {
		logger = slog.Default()
	}
	return &Obsido{contacts: contacts, responder: resp, last: last, logger: logger}
}

// Handle decodes raw as an ObsidoRequest and dispatches it. An unrecognized
// ObsidoMethod, or a decode failure, is logged and dropped — this ingress
// has no forwarding path, so there is nowhere else for it to go.
func (o *Obsido) Handle(ctx context.Context, raw []byte) {
	req, err := protocol.DecodeObsidoRequest(raw)
	if err != nil {
		o.logger.Warn("obsido: dropping malformed request", "err", err)
		return
	}

	switch req.Method {
	case defl.ObsidoFetchWLast:
		o.handleFetchWLast(ctx, req)
	case defl.ObsidoClientRegister:
		o.handleClientRegister(ctx, req)
	default:
		o.logger.Warn("obsido: unrecognized method", "method", req.Method)
	}
}

// handleFetchWLast reads the `last` databank and broadcasts a
// WeightsResponse to every registered client's passive endpoint, with
// RequestUUID explicitly set to the triggering request's UUID.
func (o *Obsido) handleFetchWLast(ctx context.Context, req protocol.ObsidoRequest) {
	last := o.last.ReadLast()
	requestUUID := req.RequestUUID
	wr := protocol.WeightsResponse{
		RequestUUID:  &requestUUID,
		ResponseUUID: uuid.NewString(),
		WLast:        last.ClientWeights,
		RLastEpochID: last.EpochID,
	}
	o.responder.RespondBroadcast(ctx, protocol.EncodeWeightsResponse(wr))
}

// handleClientRegister upserts the contact registry when register_info is
// present, then unicasts a plain OK/error Response, identically to the
// primary filter's CLIENT_REGISTER handling.
func (o *Obsido) handleClientRegister(ctx context.Context, req protocol.ObsidoRequest) {
	resp := protocol.Response{RequestUUID: req.RequestUUID, ResponseUUID: uuid.NewString()}

	if req.RegisterInfo == nil {
		resp.Status = defl.StatusServerInternalError
	} else {
		o.contacts.Register(req.ClientName, *req.RegisterInfo)
		resp.Status = defl.StatusOK
	}

	if _, err := o.responder.RespondUnicast(ctx, req.ClientName, protocol.EncodeResponse(resp)); err != nil {
		o.logger.Warn("obsido: CLIENT_REGISTER reply failed", "client", string(req.ClientName), "err", err)
	}
}
