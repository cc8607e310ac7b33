package trace

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

const redactedValue = "[redacted]"

// Redactor masks sensitive material on the write path before events reach
// observers or durable sinks. Field names are matched case-insensitively at
// any nesting depth, so a "token" entry inside tool call args is caught the
// same as one at the top level. A nil or empty Redactor passes events
// through untouched.
type Redactor struct {
	fields  map[string]bool
	hashIDs bool
}

// NewRedactor builds a redactor that masks the named fields and, when
// hashSessionIDs is set, replaces session IDs with a truncated digest.
func NewRedactor(fields []string, hashSessionIDs bool) *Redactor {
	r := &Redactor{hashIDs: hashSessionIDs}
	if len(fields) > 0 {
		r.fields = make(map[string]bool, len(fields))
		for _, f := range fields {
			if f = strings.TrimSpace(f); f != "" {
				r.fields[strings.ToLower(f)] = true
			}
		}
	}
	return r
}

// IsNoop reports whether the redactor does nothing.
func (r *Redactor) IsNoop() bool {
	return r == nil || (len(r.fields) == 0 && !r.hashIDs)
}

// SessionID returns the identifier as it should appear downstream.
func (r *Redactor) SessionID(id string) string {
	if r == nil || !r.hashIDs || id == "" {
		return id
	}
	return shortHash(id)
}

// Apply returns a copy of ev with masking applied. The original event is
// never modified. A no-op redactor returns ev itself.
func (r *Redactor) Apply(ev *Event) *Event {
	if r.IsNoop() || ev == nil {
		return ev
	}
	masked := *ev
	masked.SessionID = r.SessionID(ev.SessionID)
	if len(r.fields) > 0 && len(ev.Fields) > 0 {
		masked.Fields = r.maskValue(ev.Fields).(map[string]any)
	}
	return &masked
}

func (r *Redactor) maskValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if r.fields[strings.ToLower(k)] {
				out[k] = redactedValue
				continue
			}
			out[k] = r.maskValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = r.maskValue(val)
		}
		return out
	default:
		return v
	}
}

// shortHash returns a truncated SHA-256 hex digest for an opaque identifier.
func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:6])
}
