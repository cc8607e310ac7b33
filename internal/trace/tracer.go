package trace

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Writer receives produced events. The sink multiplexer satisfies it; tests
// substitute an in-memory recorder.
type Writer interface {
	Write(ctx context.Context, sessionID string, ev *Event) error
}

// Tracer is the producer-facing API. It builds events, stamps the configured
// service/environment tags on them, and hands them to the underlying writer.
// A write failure is logged and swallowed: tracing must never take down the
// instrumented application.
type Tracer struct {
	out         Writer
	logger      *zap.Logger
	service     string
	environment string
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithService sets the service tag stamped on every emitted event.
func WithService(name string) Option {
	return func(t *Tracer) { t.service = name }
}

// WithEnvironment sets the environment tag stamped on every emitted event.
func WithEnvironment(env string) Option {
	return func(t *Tracer) { t.environment = env }
}

// WithLogger sets the logger for write failures. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracer) { t.logger = l }
}

// New creates a Tracer writing to out.
func New(out Writer, opts ...Option) *Tracer {
	t := &Tracer{
		out:    out,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Session returns a handle bound to the given session id. An empty id gets a
// generated one.
func (t *Tracer) Session(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{tracer: t, id: id}
}

// Close flushes and closes the underlying writer when it supports either.
// Flush-only writers get flushed; writers with neither capability need no
// shutdown action.
func (t *Tracer) Close() error {
	if c, ok := t.out.(interface{ Close() error }); ok {
		return c.Close()
	}
	if f, ok := t.out.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// emit builds the event and writes it. The write uses context.Background()
// so a cancelled producer context cannot sever delivery mid-sequence.
func (t *Tracer) emit(sessionID string, kind Kind, fields map[string]any) {
	if t.service != "" {
		fields["service"] = t.service
	}
	if t.environment != "" {
		fields["environment"] = t.environment
	}
	ev := &Event{
		Kind:      kind,
		Timestamp: time.Now().UnixMilli(),
		SessionID: sessionID,
		Fields:    fields,
	}
	if err := t.out.Write(context.Background(), sessionID, ev); err != nil {
		t.logger.Warn("trace write failed",
			zap.String("kind", string(kind)),
			zap.String("session", sessionID),
			zap.Error(err))
	}
}

// Session correlates a sequence of events under one session id.
type Session struct {
	tracer *Tracer
	id     string
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Message records a conversation message.
func (s *Session) Message(role, content string) {
	s.tracer.emit(s.id, KindMessage, map[string]any{
		"role":    role,
		"content": content,
	})
}

// Usage records a token usage measurement.
func (s *Session) Usage(u Usage) {
	fields := map[string]any{
		"inputTokens":  u.InputTokens,
		"outputTokens": u.OutputTokens,
		"totalTokens":  u.InputTokens + u.OutputTokens,
	}
	if u.Model != "" {
		fields["model"] = u.Model
	}
	s.tracer.emit(s.id, KindUsage, fields)
}

// StartSpan opens a named interval of work and emits its span_start event.
// attrs may be nil.
func (s *Session) StartSpan(name string, attrs map[string]any) *Span {
	sp := &Span{
		session: s,
		id:      uuid.NewString(),
		name:    name,
		started: time.Now(),
	}
	fields := map[string]any{
		"spanId": sp.id,
		"name":   name,
	}
	if len(attrs) > 0 {
		fields["attrs"] = attrs
	}
	s.tracer.emit(s.id, KindSpanStart, fields)
	return sp
}

// Usage is a token usage measurement attached to a session.
type Usage struct {
	InputTokens  int
	OutputTokens int
	Model        string
}

// Span is an open interval of work within a session.
type Span struct {
	session *Session
	id      string
	name    string
	started time.Time
	ended   bool
}

// ID returns the span identifier.
func (sp *Span) ID() string {
	return sp.id
}

// ToolCall records a tool invocation inside the span and returns the call id
// used to correlate the eventual result.
func (sp *Span) ToolCall(tool string, args map[string]any) string {
	callID := uuid.NewString()
	fields := map[string]any{
		"spanId": sp.id,
		"callId": callID,
		"tool":   tool,
	}
	if len(args) > 0 {
		fields["args"] = args
	}
	sp.session.tracer.emit(sp.session.id, KindToolCall, fields)
	return callID
}

// ToolResult records the result of a prior tool call.
func (sp *Span) ToolResult(callID string, result any) {
	sp.session.tracer.emit(sp.session.id, KindToolResult, map[string]any{
		"spanId": sp.id,
		"callId": callID,
		"result": result,
	})
}

// End closes the span with the given status and emits its span_end event.
// Calling End more than once emits only the first.
func (sp *Span) End(status string) {
	if sp.ended {
		return
	}
	sp.ended = true
	sp.session.tracer.emit(sp.session.id, KindSpanEnd, map[string]any{
		"spanId":     sp.id,
		"name":       sp.name,
		"status":     status,
		"durationMs": time.Since(sp.started).Milliseconds(),
	})
}
