package gossip

import (
	"sync"
	"time"

	"github.com/ryandielhenn/hera/pkg/clock"
)

// PeerHealth is what the local node has observed when pulling from a peer.
// It is informational only: the peer set never changes because of it.
type PeerHealth struct {
	LastSuccess         time.Time `json:"last_success,omitzero"`
	LastFailure         time.Time `json:"last_failure,omitzero"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// HealthTracker records pull outcomes per peer.
type HealthTracker struct {
	mu    sync.RWMutex
	peers map[string]*PeerHealth
	clock clock.Clock
}

// NewHealthTracker stamps observations with c, or the wall clock when c is nil.
func NewHealthTracker(c clock.Clock) *HealthTracker {
	if c == nil {
		c = clock.System{}
	}
	return &HealthTracker{peers: make(map[string]*PeerHealth), clock: c}
}

func (h *HealthTracker) now() time.Time {
	return time.UnixMilli(h.clock.Now())
}

func (h *HealthTracker) Observe(peer string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.peers[peer]
	if !ok {
		p = &PeerHealth{}
		h.peers[peer] = p
	}
	if err == nil {
		p.LastSuccess = h.now()
		p.ConsecutiveFailures = 0
		return
	}
	p.LastFailure = h.now()
	p.LastError = err.Error()
	p.ConsecutiveFailures++
}

// Snapshot returns a copy of the per-peer records.
func (h *HealthTracker) Snapshot() map[string]PeerHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]PeerHealth, len(h.peers))
	for name, p := range h.peers {
		out[name] = *p
	}
	return out
}
