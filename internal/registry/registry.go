// Package registry implements the contact registry: the concurrent
// multi-reader/single-writer map from client name to the endpoint pair a
// client declared at registration time. It is deliberately the thinnest
// possible wrapper over sync.RWMutex — the teacher's spoke map
// (internal/fabric.Hub) carries routing and capability indexes this domain
// has no use for, so only its locking discipline is kept.
package registry

import (
	"sync"

	"github.com/ocx/flnode/internal/defl"
)

// Metrics is the subset of internal/metrics.Metrics the registry reports
// through, kept as an interface so this package does not import
// internal/metrics directly.
type Metrics interface {
	SetRegisteredClients(n int)
}

type noopMetrics struct{}

func (noopMetrics) SetRegisteredClients(int) {}

// ContactRegistry is the single shared, concurrency-safe map of registered
// clients. A node holds exactly one; it is passed by reference to every
// component that reads or writes it.
type ContactRegistry struct {
	mu       sync.RWMutex
	contacts map[defl.ClientName]defl.RegisterInfo
	metrics  Metrics
}

// New returns an empty registry that reports no metrics. Use
// NewWithMetrics to wire SetRegisteredClients.
func New() *ContactRegistry {
	return NewWithMetrics(nil)
}

// NewWithMetrics returns an empty registry that updates the registered
// client count through metrics on every Register call.
func NewWithMetrics(metrics Metrics) *ContactRegistry {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &ContactRegistry{contacts: make(map[defl.ClientName]defl.RegisterInfo), metrics: metrics}
}

// Register inserts or overwrites the entry for name. A client that
// re-registers replaces its previous endpoint pair wholesale — there is no
// merge semantics, matching the original register-overwrites-in-place
// behavior.
func (r *ContactRegistry) Register(name defl.ClientName, info defl.RegisterInfo) {
	r.mu.Lock()
	r.contacts[name] = info
	n := len(r.contacts)
	r.mu.Unlock()
	r.metrics.SetRegisteredClients(n)
}

// Lookup returns the registered endpoint pair for name, or false if no such
// client has registered.
func (r *ContactRegistry) Lookup(name defl.ClientName) (defl.RegisterInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.contacts[name]
	return info, ok
}

// Snapshot returns a copy of the full registry, safe to range over and
// dial against after releasing the lock — the responder's broadcast path
// must never hold this lock across a network send.
func (r *ContactRegistry) Snapshot() map[defl.ClientName]defl.RegisterInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[defl.ClientName]defl.RegisterInfo, len(r.contacts))
	for name, info := range r.contacts {
		out[name] = info
	}
	return out
}

// Len reports the number of registered clients.
func (r *ContactRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contacts)
}
