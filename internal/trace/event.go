package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind classifies a trace event.
type Kind string

const (
	KindMessage    Kind = "message"
	KindSpanStart  Kind = "span_start"
	KindSpanEnd    Kind = "span_end"
	KindToolCall   Kind = "tool_call"
	KindToolResult Kind = "tool_result"
	KindUsage      Kind = "usage"
)

var validKinds = map[Kind]bool{
	KindMessage:    true,
	KindSpanStart:  true,
	KindSpanEnd:    true,
	KindToolCall:   true,
	KindToolResult: true,
	KindUsage:      true,
}

// Valid reports whether k is one of the known event kinds.
func (k Kind) Valid() bool {
	return validKinds[k]
}

// Reserved top-level keys in the wire form. Payload fields with these names
// are dropped on marshal rather than allowed to shadow the envelope.
const (
	keyKind      = "kind"
	keyTimestamp = "ts"
	keySessionID = "sessionId"
)

// Event is one occurrence in an instrumented workflow: a message, a span
// boundary, a tool invocation or result, or a usage measurement. Events are
// immutable once handed to a sink; producers build a fresh Event per
// occurrence and never retain it.
//
// The wire form is a single flat JSON object: "kind" first, then "ts"
// (epoch milliseconds) and "sessionId" when set, then the payload fields in
// sorted key order. {Kind: "message", Fields: {"content": "hi"}} marshals to
// exactly {"kind":"message","content":"hi"}.
type Event struct {
	Kind      Kind
	Timestamp int64 // epoch milliseconds; 0 means unset
	SessionID string
	Fields    map[string]any
}

// MarshalJSON emits the flat wire form.
func (e *Event) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.WriteString(`"kind":`)
	kind, err := json.Marshal(string(e.Kind))
	if err != nil {
		return nil, err
	}
	buf.Write(kind)

	if e.Timestamp != 0 {
		buf.WriteString(`,"ts":`)
		buf.WriteString(strconv.FormatInt(e.Timestamp, 10))
	}
	if e.SessionID != "" {
		buf.WriteString(`,"sessionId":`)
		sid, err := json.Marshal(e.SessionID)
		if err != nil {
			return nil, err
		}
		buf.Write(sid)
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		if k == keyKind || k == keyTimestamp || k == keySessionID {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Fields[k])
		if err != nil {
			return nil, fmt.Errorf("marshaling field %q: %w", k, err)
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(val)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON parses the flat wire form back into an Event. Unknown
// top-level keys land in Fields; numbers inside Fields stay json.Number so
// integer payloads survive a round trip.
func (e *Event) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	raw := make(map[string]any)
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	if v, ok := raw[keyKind]; ok {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("event kind must be a string, got %T", v)
		}
		e.Kind = Kind(s)
		delete(raw, keyKind)
	}
	if v, ok := raw[keyTimestamp]; ok {
		n, ok := v.(json.Number)
		if !ok {
			return fmt.Errorf("event ts must be a number, got %T", v)
		}
		ts, err := n.Int64()
		if err != nil {
			return fmt.Errorf("event ts: %w", err)
		}
		e.Timestamp = ts
		delete(raw, keyTimestamp)
	}
	if v, ok := raw[keySessionID]; ok {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("event sessionId must be a string, got %T", v)
		}
		e.SessionID = s
		delete(raw, keySessionID)
	}

	if len(raw) > 0 {
		e.Fields = raw
	} else {
		e.Fields = nil
	}
	return nil
}
