package sink

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/agent-trace/bridge/internal/trace"
)

// Multi fans each event out to a live broadcast callback and an ordered list
// of sinks. A failing sink is recorded in its health tracker and logged; the
// remaining sinks still receive the event, and Write reports success to the
// producer regardless. Durability problems surface through logs and the
// stats endpoint, never back up into the event source.
//
// Writers are serialized by an internal mutex, so every sink observes events
// in the same order they were written.
type Multi struct {
	mu        sync.Mutex
	broadcast func(*trace.Event)
	sinks     []Sink
	health    []*Health
	redact    *trace.Redactor
	logger    *zap.Logger
	written   atomic.Uint64
}

var _ interface {
	Sink
	Flusher
	Closer
} = (*Multi)(nil)

// NewMulti builds a multiplexer over the given sinks. broadcast is invoked
// before the sinks on every write and may be nil; it must not block.
func NewMulti(logger *zap.Logger, broadcast func(*trace.Event), sinks ...Sink) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Multi{
		broadcast: broadcast,
		sinks:     sinks,
		logger:    logger,
	}
	for range sinks {
		m.health = append(m.health, NewHealth())
	}
	return m
}

// Name implements Sink.
func (m *Multi) Name() string { return "multi" }

// SetRedactor installs a masking pass applied before broadcast and sinks.
// Call it during wiring, before traffic starts.
func (m *Multi) SetRedactor(r *trace.Redactor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redact = r
}

// Write delivers ev to the broadcast callback and then to each sink in
// order. It always returns nil.
func (m *Multi) Write(ctx context.Context, sessionID string, ev *trace.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.redact.IsNoop() {
		sessionID = m.redact.SessionID(sessionID)
		ev = m.redact.Apply(ev)
	}
	if m.broadcast != nil {
		m.broadcast(ev)
	}
	for i, s := range m.sinks {
		if err := s.Write(ctx, sessionID, ev); err != nil {
			m.health[i].recordFailure(err)
			m.logger.Warn("sink write failed",
				zap.String("sink", s.Name()),
				zap.String("session", sessionID),
				zap.Error(err))
			continue
		}
		m.health[i].recordSuccess()
	}
	m.written.Add(1)
	return nil
}

// Flush flushes every sink that buffers. Errors are collected per sink and
// returned combined; one sink's flush failure does not skip the others.
func (m *Multi) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs error
	for _, s := range m.sinks {
		f, ok := s.(Flusher)
		if !ok {
			continue
		}
		if err := f.Flush(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("flush %s: %w", s.Name(), err))
		}
	}
	return errs
}

// Close releases every sink. Sinks without a Close method are flushed
// instead when they buffer; sinks with neither capability are skipped.
// Errors are collected per sink and returned combined.
func (m *Multi) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs error
	for _, s := range m.sinks {
		var err error
		switch t := s.(type) {
		case Closer:
			err = t.Close()
		case Flusher:
			err = t.Flush()
		default:
			continue
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
		}
	}
	return errs
}

// EventsWritten returns the number of events accepted by Write.
func (m *Multi) EventsWritten() uint64 {
	return m.written.Load()
}

// SinkStatus pairs a sink name with its health for the stats endpoint.
type SinkStatus struct {
	Name string `json:"name"`
	HealthSnapshot
}

// Status reports per-sink health in configuration order.
func (m *Multi) Status() []SinkStatus {
	out := make([]SinkStatus, len(m.sinks))
	for i, s := range m.sinks {
		out[i] = SinkStatus{Name: s.Name(), HealthSnapshot: m.health[i].Snapshot()}
	}
	return out
}
