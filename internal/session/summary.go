package session

import (
	"github.com/agent-trace/bridge/internal/trace"
)

// Summary is a per-session rollup derived from the events that passed
// through the bridge. This is what the sessions API serves; the full event
// history lives in the durable sinks.
type Summary struct {
	ID          string `json:"id"`
	Service     string `json:"service,omitempty"`
	Environment string `json:"environment,omitempty"`

	// FirstEventAt and LastEventAt are epoch milliseconds, the same clock
	// events carry in their ts field.
	FirstEventAt int64 `json:"firstEventAt"`
	LastEventAt  int64 `json:"lastEventAt"`

	Events    int            `json:"events"`
	Kinds     map[string]int `json:"kinds"`
	LastKind  string         `json:"lastKind,omitempty"`
	OpenSpans int            `json:"openSpans"`
}

// Clone returns a deep copy of the Summary, duplicating the kind counts so
// the copy can be read independently of the original.
func (s *Summary) Clone() *Summary {
	c := *s
	if len(s.Kinds) > 0 {
		c.Kinds = make(map[string]int, len(s.Kinds))
		for k, v := range s.Kinds {
			c.Kinds[k] = v
		}
	}
	return &c
}

// observe folds one event into the summary. ts is the event timestamp in
// epoch milliseconds, already defaulted by the caller when the event carries
// none.
func (s *Summary) observe(ev *trace.Event, ts int64) {
	s.Events++
	if s.Kinds == nil {
		s.Kinds = make(map[string]int)
	}
	s.Kinds[string(ev.Kind)]++
	s.LastKind = string(ev.Kind)
	if s.FirstEventAt == 0 || ts < s.FirstEventAt {
		s.FirstEventAt = ts
	}
	if ts > s.LastEventAt {
		s.LastEventAt = ts
	}
	switch ev.Kind {
	case trace.KindSpanStart:
		s.OpenSpans++
	case trace.KindSpanEnd:
		if s.OpenSpans > 0 {
			s.OpenSpans--
		}
	}
	if v, ok := ev.Fields["service"].(string); ok && v != "" {
		s.Service = v
	}
	if v, ok := ev.Fields["environment"].(string); ok && v != "" {
		s.Environment = v
	}
}
