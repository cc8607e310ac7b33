package sink

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/agent-trace/bridge/internal/trace"
)

// memSink records every event it receives. It implements Sink and nothing
// else, standing in for a destination with no flush or close capability.
type memSink struct {
	name    string
	onWrite func()

	mu       sync.Mutex
	sessions []string
	events   []*trace.Event
}

func (s *memSink) Name() string {
	if s.name == "" {
		return "mem"
	}
	return s.name
}

func (s *memSink) Write(_ context.Context, sessionID string, ev *trace.Event) error {
	if s.onWrite != nil {
		s.onWrite()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, sessionID)
	s.events = append(s.events, ev)
	return nil
}

func (s *memSink) kinds() []trace.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]trace.Kind, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind
	}
	return out
}

// flakySink fails its first failFirst writes, then behaves like memSink.
type flakySink struct {
	memSink
	failFirst int
	calls     int
}

func (s *flakySink) Write(ctx context.Context, sessionID string, ev *trace.Event) error {
	s.calls++
	if s.calls <= s.failFirst {
		return errors.New("sink exploded")
	}
	return s.memSink.Write(ctx, sessionID, ev)
}

// flushSink adds Flush on top of memSink.
type flushSink struct {
	memSink
	flushes  int
	flushErr error
}

func (s *flushSink) Flush() error {
	s.flushes++
	return s.flushErr
}

// closeSink adds Close on top of flushSink.
type closeSink struct {
	flushSink
	closes int
}

func (s *closeSink) Close() error {
	s.closes++
	return nil
}

func event(kind trace.Kind) *trace.Event {
	return &trace.Event{Kind: kind, Fields: map[string]any{"content": "hi"}}
}

func TestMultiFanOut(t *testing.T) {
	a := &memSink{name: "a"}
	b := &memSink{name: "b"}
	m := NewMulti(nil, nil, a, b)

	if err := m.Write(context.Background(), "s1", event(trace.KindMessage)); err != nil {
		t.Fatalf("Write returned %v, want nil", err)
	}
	if err := m.Write(context.Background(), "s1", event(trace.KindSpanStart)); err != nil {
		t.Fatalf("Write returned %v, want nil", err)
	}

	want := []trace.Kind{trace.KindMessage, trace.KindSpanStart}
	for _, s := range []*memSink{a, b} {
		got := s.kinds()
		if len(got) != len(want) {
			t.Fatalf("sink %s saw %d events, want %d", s.Name(), len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("sink %s event %d = %q, want %q", s.Name(), i, got[i], want[i])
			}
		}
	}
	if got := m.EventsWritten(); got != 2 {
		t.Errorf("EventsWritten() = %d, want 2", got)
	}
}

func TestMultiBroadcastRunsBeforeSinks(t *testing.T) {
	var order []string
	bc := func(*trace.Event) { order = append(order, "broadcast") }
	s := &memSink{onWrite: func() { order = append(order, "sink") }}
	m := NewMulti(nil, bc, s)

	if err := m.Write(context.Background(), "s1", event(trace.KindMessage)); err != nil {
		t.Fatalf("Write returned %v, want nil", err)
	}

	if len(order) != 2 || order[0] != "broadcast" || order[1] != "sink" {
		t.Fatalf("delivery order = %v, want [broadcast sink]", order)
	}
}

func TestMultiIsolatesFailingSink(t *testing.T) {
	ok1 := &memSink{name: "ok1"}
	bad := &flakySink{memSink: memSink{name: "bad"}, failFirst: 1}
	ok2 := &memSink{name: "ok2"}
	m := NewMulti(nil, nil, ok1, bad, ok2)

	if err := m.Write(context.Background(), "s1", event(trace.KindMessage)); err != nil {
		t.Fatalf("Write returned %v, want nil", err)
	}

	if got := len(ok1.kinds()); got != 1 {
		t.Errorf("sink before the failure saw %d events, want 1", got)
	}
	if got := len(ok2.kinds()); got != 1 {
		t.Errorf("sink after the failure saw %d events, want 1", got)
	}

	status := m.Status()
	if len(status) != 3 {
		t.Fatalf("Status() returned %d entries, want 3", len(status))
	}
	if status[1].Name != "bad" || status[1].Status != StatusDegraded {
		t.Errorf("failing sink status = %s/%s, want bad/%s", status[1].Name, status[1].Status, StatusDegraded)
	}
	if status[1].Failures != 1 || status[1].Consecutive != 1 {
		t.Errorf("failing sink counters = %d failures, %d consecutive, want 1, 1",
			status[1].Failures, status[1].Consecutive)
	}
	if status[1].LastError == "" {
		t.Error("failing sink has no LastError")
	}
	if status[0].Status != StatusHealthy || status[2].Status != StatusHealthy {
		t.Errorf("healthy sinks reported %s and %s, want %s", status[0].Status, status[2].Status, StatusHealthy)
	}
}

func TestMultiHealthTransitions(t *testing.T) {
	bad := &flakySink{failFirst: failedAfter}
	m := NewMulti(nil, nil, bad)

	write := func() {
		t.Helper()
		if err := m.Write(context.Background(), "s1", event(trace.KindMessage)); err != nil {
			t.Fatalf("Write returned %v, want nil", err)
		}
	}

	write()
	if got := m.Status()[0].Status; got != StatusDegraded {
		t.Fatalf("after 1 failure status = %s, want %s", got, StatusDegraded)
	}
	for i := 1; i < failedAfter; i++ {
		write()
	}
	if got := m.Status()[0].Status; got != StatusFailed {
		t.Fatalf("after %d failures status = %s, want %s", failedAfter, got, StatusFailed)
	}
	write() // flaky sink recovers on this write
	if got := m.Status()[0].Status; got != StatusHealthy {
		t.Fatalf("after recovery status = %s, want %s", got, StatusHealthy)
	}
}

func TestMultiFlushAggregatesErrors(t *testing.T) {
	ok := &flushSink{memSink: memSink{name: "ok"}}
	bad := &flushSink{memSink: memSink{name: "bad"}, flushErr: errors.New("disk full")}
	plain := &memSink{name: "plain"}
	m := NewMulti(nil, nil, ok, bad, plain)

	err := m.Flush()
	if err == nil {
		t.Fatal("Flush returned nil, want error from bad sink")
	}
	if !strings.Contains(err.Error(), "bad") || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Flush error = %q, want it to name the sink and cause", err)
	}
	if ok.flushes != 1 {
		t.Errorf("healthy sink flushed %d times, want 1", ok.flushes)
	}
}

func TestMultiAppliesRedaction(t *testing.T) {
	var seen *trace.Event
	bc := func(ev *trace.Event) { seen = ev }
	s := &memSink{}
	m := NewMulti(nil, bc, s)
	m.SetRedactor(trace.NewRedactor([]string{"content"}, true))

	original := &trace.Event{
		Kind:      trace.KindMessage,
		SessionID: "sess-1",
		Fields:    map[string]any{"content": "hi", "role": "user"},
	}
	if err := m.Write(context.Background(), "sess-1", original); err != nil {
		t.Fatalf("Write returned %v, want nil", err)
	}

	if seen == nil {
		t.Fatal("broadcast never ran")
	}
	if seen.Fields["content"] != "[redacted]" {
		t.Errorf("broadcast content = %v, want masked", seen.Fields["content"])
	}
	if seen.Fields["role"] != "user" {
		t.Errorf("broadcast role = %v, want untouched", seen.Fields["role"])
	}

	s.mu.Lock()
	gotSession := s.sessions[0]
	gotEvent := s.events[0]
	s.mu.Unlock()
	if gotSession == "sess-1" || len(gotSession) != 12 {
		t.Errorf("sink session = %q, want 12-char hash", gotSession)
	}
	if gotEvent.SessionID != gotSession {
		t.Errorf("event session %q does not match write session %q", gotEvent.SessionID, gotSession)
	}
	if original.Fields["content"] != "hi" {
		t.Error("redaction modified the producer's event")
	}
}

func TestMultiCloseUsesBestCapability(t *testing.T) {
	closable := &closeSink{}
	flushOnly := &flushSink{}
	plain := &memSink{}
	m := NewMulti(nil, nil, closable, flushOnly, plain)

	if err := m.Close(); err != nil {
		t.Fatalf("Close returned %v, want nil", err)
	}
	if closable.closes != 1 {
		t.Errorf("closable sink closed %d times, want 1", closable.closes)
	}
	if closable.flushes != 0 {
		t.Errorf("closable sink flushed %d times during close, want 0", closable.flushes)
	}
	if flushOnly.flushes != 1 {
		t.Errorf("flush-only sink flushed %d times, want 1", flushOnly.flushes)
	}
}
