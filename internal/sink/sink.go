package sink

import (
	"context"

	"github.com/agent-trace/bridge/internal/trace"
)

// Sink is a destination for trace events. Implementations persist, forward,
// or index events; the multiplexer fans each event out to every configured
// sink and keeps one sink's failure from affecting the others.
//
// Write may be called from multiple goroutines; implementations must be safe
// for concurrent use.
type Sink interface {
	// Name returns a short lowercase identifier for this sink, e.g.
	// "file", "forward". Used in log fields and the stats endpoint.
	Name() string

	// Write delivers one event. sessionID is the session the event belongs
	// to and may be empty for events recorded outside a session.
	Write(ctx context.Context, sessionID string, ev *trace.Event) error
}

// Flusher is implemented by sinks that buffer writes. Flush pushes any
// buffered data to the underlying destination without closing the sink.
type Flusher interface {
	Flush() error
}

// Closer is implemented by sinks that hold releasable resources. After Close
// returns the sink must not be written to again.
//
// A sink that buffers but holds no long-lived resources can implement
// Flusher alone; the multiplexer falls back to Flush when closing it.
type Closer interface {
	Close() error
}
