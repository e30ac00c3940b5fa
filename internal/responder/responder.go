// Package responder implements the unicast and broadcast reply paths, the
// Go counterpart of defl_sender.rs: look up (or snapshot) the contact
// registry, release the lock, then perform network I/O. No responder
// method ever holds the registry lock while sending.
package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/ocx/flnode/internal/defl"
	"github.com/ocx/flnode/internal/registry"
)

// ErrContactsLockPoisoned names the poisoned-registry-lock condition of the
// responder's error taxonomy. Go's sync.RWMutex does not poison when a
// holder panics, and no code path in this tree returns this error.
var ErrContactsLockPoisoned = errors.New("responder: contacts registry lock poisoned")

// RegistrationError means the target client has no entry in the registry.
type RegistrationError struct {
	ClientName defl.ClientName
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("responder: client %q is not registered", e.ClientName)
}

// NetworkError wraps a transport failure while replying to a specific
// client.
type NetworkError struct {
	ClientName defl.ClientName
	Err        error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("responder: send to client %q failed: %v", e.ClientName, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Dialer abstracts the UDP/TCP send so tests can substitute an in-memory
// transport without opening real sockets.
type Dialer interface {
	Send(ctx context.Context, host string, port uint16, payload []byte) error
}

// UDPDialer is the default Dialer, one-shot UDP writes — matching the
// fire-and-forget nature of the original sender, which does not wait for
// an application-level acknowledgment from the client.
type UDPDialer struct {
	WriteTimeout time.Duration
}

// NewUDPDialer returns a UDPDialer with a sane default write timeout.
func NewUDPDialer() *UDPDialer {
	return &UDPDialer{WriteTimeout: 5 * time.Second}
}

func (d *UDPDialer) Send(ctx context.Context, host string, port uint16, payload []byte) error {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline := time.Now().Add(d.WriteTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	_, err = conn.Write(payload)
	return err
}

// Metrics is the subset of internal/metrics.Metrics the responder reports
// through, kept as an interface so this package does not import
// internal/metrics directly.
type Metrics interface {
	RecordUnicastFailure(kind string)
	RecordBroadcastBytes(n int)
}

type noopMetrics struct{}

func (noopMetrics) RecordUnicastFailure(string) {}
func (noopMetrics) RecordBroadcastBytes(int)    {}

// Responder performs unicast and broadcast replies against a
// ContactRegistry using a Dialer for the actual network send.
type Responder struct {
	contacts *registry.ContactRegistry
	dialer   Dialer
	metrics  Metrics
	logger   *slog.Logger
}

// New constructs a Responder bound to contacts, reporting no metrics. Use
// NewWithMetrics to wire RecordUnicastFailure/RecordBroadcastBytes.
func New(contacts *registry.ContactRegistry, dialer Dialer, logger *slog.Logger) *Responder {
	return NewWithMetrics(contacts, dialer, nil, logger)
}

// NewWithMetrics constructs a Responder that reports unicast failures and
// broadcast byte counts through metrics.
func NewWithMetrics(contacts *registry.ContactRegistry, dialer Dialer, metrics Metrics, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Responder{contacts: contacts, dialer: dialer, metrics: metrics, logger: logger}
}

// RespondUnicast sends payload to name's active endpoint. It returns
// *RegistrationError if name has no registry entry, or *NetworkError if
// the send itself fails.
func (r *Responder) RespondUnicast(ctx context.Context, name defl.ClientName, payload []byte) (int, error) {
	info, ok := r.contacts.Lookup(name)
	if !ok {
		r.metrics.RecordUnicastFailure("registration")
		return 0, &RegistrationError{ClientName: name}
	}
	if err := r.dialer.Send(ctx, info.ActiveHost, info.ActivePort, payload); err != nil {
		r.logger.Warn("unicast reply failed", "client", string(name), "err", err)
		r.metrics.RecordUnicastFailure("network")
		return 0, &NetworkError{ClientName: name, Err: err}
	}
	return len(payload), nil
}

// RespondBroadcast sends payload to every registered client's passive
// endpoint. It snapshots the registry once up front, then sends outside
// the lock. Per-client send failures are logged but do not
// abort the broadcast or change the returned byte count — this matches
// the original implementation, which reports success once the payload is
// built regardless of individual delivery outcomes.
func (r *Responder) RespondBroadcast(ctx context.Context, payload []byte) int {
	contacts := r.contacts.Snapshot()
	for name, info := range contacts {
		if err := r.dialer.Send(ctx, info.PassiveHost, info.PassivePort, payload); err != nil {
			r.logger.Warn("broadcast reply failed", "client", string(name), "err", err)
		}
	}
	r.metrics.RecordBroadcastBytes(len(payload))
	return len(payload)
}
