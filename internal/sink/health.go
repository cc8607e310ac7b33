package sink

import (
	"sync"
	"time"
)

// Status classifies a sink's recent delivery record.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// failedAfter is the consecutive write failure count at which a sink is
// reported failed rather than degraded.
const failedAfter = 5

// Health tracks delivery outcomes for a single sink. Fields are protected by
// mu because the multiplexer writes them from the delivery path while
// Snapshot() reads them from the stats endpoint.
type Health struct {
	mu          sync.Mutex
	writes      uint64
	failures    uint64
	consecutive int
	lastErr     string
	lastFailAt  time.Time
}

// NewHealth returns a tracker with no recorded outcomes.
func NewHealth() *Health {
	return &Health{}
}

func (h *Health) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writes++
	h.consecutive = 0
}

func (h *Health) recordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writes++
	h.failures++
	h.consecutive++
	h.lastErr = err.Error()
	h.lastFailAt = time.Now()
}

// statusLocked computes the status. Caller must hold h.mu.
func (h *Health) statusLocked() Status {
	switch {
	case h.consecutive >= failedAfter:
		return StatusFailed
	case h.consecutive > 0:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Status computes the current status for this sink.
func (h *Health) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statusLocked()
}

// HealthSnapshot is a consistent copy of a sink's health, shaped for the
// stats endpoint.
type HealthSnapshot struct {
	Status      Status     `json:"status"`
	Writes      uint64     `json:"writes"`
	Failures    uint64     `json:"failures"`
	Consecutive int        `json:"consecutiveFailures"`
	LastError   string     `json:"lastError,omitempty"`
	LastFailAt  *time.Time `json:"lastFailureAt,omitempty"`
}

// Snapshot returns a consistent copy of all health fields under the lock.
// Use this when reading from a different goroutine (e.g. the stats handler).
func (h *Health) Snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	snap := HealthSnapshot{
		Status:      h.statusLocked(),
		Writes:      h.writes,
		Failures:    h.failures,
		Consecutive: h.consecutive,
		LastError:   h.lastErr,
	}
	if !h.lastFailAt.IsZero() {
		t := h.lastFailAt
		snap.LastFailAt = &t
	}
	return snap
}
