// v0
// internal/httpserver/health.go
package httpserver

import "sync"

// HealthState tracks readiness information for the HTTP API. Liveness is
// always true while the process runs; readiness toggles once the server is
// listening and again when it starts shutting down.
type HealthState struct {
	mu    sync.RWMutex
	ready bool
}

// NewHealthState constructs the tracker with readiness set to false.
func NewHealthState() *HealthState {
	return &HealthState{}
}

// SetReady flips the readiness flag.
func (h *HealthState) SetReady(value bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = value
}

// Ready exposes the current readiness flag.
func (h *HealthState) Ready() bool {
	if h == nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}
