// Package filter implements the primary client ingress's traffic split:
// FETCH_W_LAST and CLIENT_REGISTER are served locally, against the node's
// registry and `last` databank, without ever entering consensus.
// UPD_WEIGHTS, NEW_EPOCH_VOTE, and any unrecognized method are forwarded
// to the mempool byte-for-byte — the filter never rewrites a transaction
// it doesn't understand.
package filter

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ocx/flnode/internal/defl"
	"github.com/ocx/flnode/internal/protocol"
	"github.com/ocx/flnode/internal/registry"
	"github.com/ocx/flnode/internal/responder"
)

// LastReader is the read side of the node's `last` databank — the filter
// depends on this narrow interface rather than *node.Node so it can be
// tested without the full state machine.
type LastReader interface {
	ReadLast() defl.EpochDatabank
}

// Forwarder accepts a raw, still-encoded transaction bound for consensus.
type Forwarder interface {
	Submit(ctx context.Context, tx []byte) error
}

// Filter is the primary ingress's request handler.
type Filter struct {
	contacts  *registry.ContactRegistry
	responder *responder.Responder
	last      LastReader
	forward   Forwarder
	logger    *slog.Logger
}

// New constructs a Filter.
func New(contacts *registry.ContactRegistry, resp *responder.Responder, last LastReader, forward Forwarder, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{contacts: contacts, responder: resp, last: last, forward: forward, logger: logger}
}

// Handle decodes raw as a ClientRequest envelope and dispatches it. A
// decode failure is logged and dropped — the sender gets no reply, the
// same way a malformed transaction reaching the state machine would be
// dropped rather than crash the node.
func (f *Filter) Handle(ctx context.Context, raw []byte) {
	req, err := protocol.DecodeEnvelope(raw)
	if err != nil {
		f.logger.Warn("filter: dropping malformed request", "err", err)
		return
	}

	switch req.Meta.Method {
	case defl.MethodFetchWLast:
		f.handleFetchWLast(ctx, req)
	case defl.MethodClientRegister:
		f.handleClientRegister(ctx, req)
	default:
		// UPD_WEIGHTS, NEW_EPOCH_VOTE, and anything this filter doesn't
		// recognize are forwarded unchanged — the state machine is the
		// authority on what's valid, not the filter.
		if err := f.forward.Submit(ctx, raw); err != nil {
			f.logger.Error("filter: forward to mempool failed", "method", req.Meta.Method, "err", err)
		}
	}
}

// handleFetchWLast reads the `last` databank and unicasts a WeightsResponse
// to the requester, with RequestUUID set to the requester's UUID — this
// read never touches consensus.
func (f *Filter) handleFetchWLast(ctx context.Context, req protocol.ClientRequest) {
	last := f.last.ReadLast()
	requestUUID := req.Meta.UUID
	wr := protocol.WeightsResponse{
		RequestUUID:  &requestUUID,
		ResponseUUID: uuid.NewString(),
		WLast:        last.ClientWeights,
		RLastEpochID: last.EpochID,
	}
	if _, err := f.responder.RespondUnicast(ctx, req.Meta.ClientName, protocol.EncodeWeightsResponse(wr)); err != nil {
		f.logger.Warn("filter: FETCH_W_LAST reply failed", "client", string(req.Meta.ClientName), "err", err)
	}
}

// handleClientRegister upserts the contact registry when register_info is
// present, then unicasts a plain OK/error Response. A CLIENT_REGISTER with
// no register_info has nothing to register — it is answered with
// SERVER_INTERNAL_ERROR rather than silently accepted.
func (f *Filter) handleClientRegister(ctx context.Context, req protocol.ClientRequest) {
	resp := protocol.Response{RequestUUID: req.Meta.UUID, ResponseUUID: uuid.NewString()}

	if req.Meta.RegisterInfo == nil {
		resp.Status = defl.StatusServerInternalError
	} else {
		f.contacts.Register(req.Meta.ClientName, *req.Meta.RegisterInfo)
		resp.Status = defl.StatusOK
	}

	if _, err := f.responder.RespondUnicast(ctx, req.Meta.ClientName, protocol.EncodeResponse(resp)); err != nil {
		f.logger.Warn("filter: CLIENT_REGISTER reply failed", "client", string(req.Meta.ClientName), "err", err)
	}
}
