package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/multierr"

	"github.com/agent-trace/bridge/internal/trace"
)

// ErrClosed is returned by Write after a sink has been closed.
var ErrClosed = errors.New("sink: closed")

// maxOpenFiles bounds how many per-session log files the sink keeps open at
// once. Sessions are short-lived while the sink runs indefinitely, so handles
// for idle sessions are evicted (flushed and closed) and reopened in append
// mode if the session produces another event.
const maxOpenFiles = 64

type sessionFile struct {
	f *os.File
	w *bufio.Writer
}

// FileSink appends events to one JSON Lines file per session under a base
// directory. Filenames are the sanitized session ID plus ".jsonl".
type FileSink struct {
	dir string

	mu       sync.Mutex
	files    *lru.Cache // session ID -> *sessionFile
	evictErr error      // flush/close errors from evictions, drained by Flush/Close
	closed   bool
}

var _ interface {
	Sink
	Flusher
	Closer
} = (*FileSink)(nil)

// NewFileSink creates the base directory if needed and returns a sink
// writing into it.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sink dir: %w", err)
	}
	s := &FileSink{dir: dir}
	cache, err := lru.NewWithEvict(maxOpenFiles, s.onEvict)
	if err != nil {
		return nil, err
	}
	s.files = cache
	return s, nil
}

// Name implements Sink.
func (s *FileSink) Name() string { return "file" }

// onEvict flushes and closes an evicted session file. Evictions only happen
// inside cache calls made while s.mu is held, so this must not take the lock;
// errors are stashed for the next Flush or Close to report.
func (s *FileSink) onEvict(key, value interface{}) {
	sf, ok := value.(*sessionFile)
	if !ok {
		return
	}
	if err := sf.w.Flush(); err != nil {
		s.evictErr = multierr.Append(s.evictErr, fmt.Errorf("flush %v: %w", key, err))
	}
	if err := sf.f.Close(); err != nil {
		s.evictErr = multierr.Append(s.evictErr, fmt.Errorf("close %v: %w", key, err))
	}
}

// Write appends ev as one JSON line to the session's log file. An empty
// sessionID falls back to the ID carried by the event itself.
func (s *FileSink) Write(_ context.Context, sessionID string, ev *trace.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if sessionID == "" {
		sessionID = ev.SessionID
	}
	sf, err := s.fileLocked(sessionID)
	if err != nil {
		return err
	}
	if _, err := sf.w.Write(data); err != nil {
		return fmt.Errorf("append session log: %w", err)
	}
	if err := sf.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("append session log: %w", err)
	}
	return nil
}

// fileLocked returns the open file for sessionID, opening it (and possibly
// evicting the least recently used handle) on first use. Caller must hold
// s.mu.
func (s *FileSink) fileLocked(sessionID string) (*sessionFile, error) {
	if v, ok := s.files.Get(sessionID); ok {
		return v.(*sessionFile), nil
	}
	path := filepath.Join(s.dir, sanitizeSessionID(sessionID)+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	sf := &sessionFile{f: f, w: bufio.NewWriter(f)}
	s.files.Add(sessionID, sf)
	return sf, nil
}

// Flush pushes buffered writes for every open session file to disk and
// reports any errors stashed by earlier evictions.
func (s *FileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := s.evictErr
	s.evictErr = nil
	for _, k := range s.files.Keys() {
		v, ok := s.files.Get(k)
		if !ok {
			continue
		}
		if err := v.(*sessionFile).w.Flush(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("flush %v: %w", k, err))
		}
	}
	return errs
}

// Close flushes and closes every open session file. The sink rejects writes
// afterwards.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.files.Purge()
	errs := s.evictErr
	s.evictErr = nil
	return errs
}

// sanitizeSessionID maps a session ID to a safe filename component. Anything
// outside [A-Za-z0-9._-] becomes '_'; an empty ID files under "untagged".
func sanitizeSessionID(id string) string {
	if id == "" {
		return "untagged"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, id)
}
