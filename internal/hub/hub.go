package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/agent-trace/bridge/internal/trace"
)

// ErrShutdown is returned by Register once the hub has shut down.
var ErrShutdown = errors.New("hub: shut down")

// Conn is one live observer attached to the hub. Implementations wrap a
// transport (SSE response, websocket). Send must not block: a conn that
// cannot accept the payload returns an error and gets dropped.
type Conn interface {
	Send(data []byte) error
	Close() error
}

// Hub distributes events to every attached observer. Each event is
// serialized once per broadcast; every conn receives the same byte slice
// and must not mutate it.
type Hub struct {
	logger *zap.Logger

	mu     sync.RWMutex
	conns  map[Conn]bool
	closed bool

	broadcasts atomic.Uint64
	dropped    atomic.Uint64
}

func New(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger: logger,
		conns:  make(map[Conn]bool),
	}
}

// Register attaches a conn. It fails only after Shutdown.
func (h *Hub) Register(c Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrShutdown
	}
	h.conns[c] = true
	return nil
}

// Deregister detaches c without closing it. The transport handler owns the
// conn on its own exit path; the hub closes conns only when it drops them
// itself or shuts down.
func (h *Hub) Deregister(c Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// Broadcast fans ev out to every attached conn. A conn whose Send fails is
// dropped and closed; neither the failure nor a conn removed mid-broadcast
// affects delivery to the rest, and nothing propagates back to the event's
// producer.
func (h *Hub) Broadcast(ev *trace.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("broadcast marshal error", zap.Error(err))
		return
	}

	h.mu.RLock()
	conns := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.Send(data); err != nil {
			h.logger.Warn("observer dropped", zap.Error(err))
			h.dropped.Add(1)
			h.Deregister(c)
			_ = c.Close()
		}
	}
	h.broadcasts.Add(1)
}

// Shutdown detaches and closes every conn. Register fails afterwards;
// Broadcast becomes a no-op against an empty set. Safe to call more than
// once.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	conns := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[Conn]bool)
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Stats is a point-in-time view for the stats endpoint.
type Stats struct {
	Observers  int    `json:"observers"`
	Broadcasts uint64 `json:"broadcasts"`
	Dropped    uint64 `json:"dropped"`
}

func (h *Hub) Stats() Stats {
	return Stats{
		Observers:  h.ClientCount(),
		Broadcasts: h.broadcasts.Load(),
		Dropped:    h.dropped.Load(),
	}
}
