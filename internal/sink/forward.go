package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/agent-trace/bridge/internal/trace"
)

const (
	forwardTimeout      = 10 * time.Second
	forwardRetryWaitMin = 500 * time.Millisecond
	forwardRetryWaitMax = 5 * time.Second
)

// ForwardSink POSTs events to a remote collector as newline-delimited JSON.
// Events are buffered and sent in batches; each batch is retried with backoff
// before being reported as failed. The sink buffers but holds no long-lived
// resources, so it implements Flusher without Closer and the multiplexer
// flushes it on close.
type ForwardSink struct {
	url    string
	client *retryablehttp.Client
	batch  int

	mu      sync.Mutex
	buf     bytes.Buffer
	pending int
}

var _ interface {
	Sink
	Flusher
} = (*ForwardSink)(nil)

// NewForwardSink returns a sink batching up to batchSize events per POST to
// url, retrying each POST up to retries times.
func NewForwardSink(url string, batchSize, retries int) *ForwardSink {
	if batchSize < 1 {
		batchSize = 1
	}
	if retries < 0 {
		retries = 0
	}
	return &ForwardSink{
		url: url,
		client: &retryablehttp.Client{
			HTTPClient:   &http.Client{Timeout: forwardTimeout},
			RetryWaitMin: forwardRetryWaitMin,
			RetryWaitMax: forwardRetryWaitMax,
			RetryMax:     retries,
			CheckRetry:   retryablehttp.DefaultRetryPolicy,
			Backoff:      retryablehttp.DefaultBackoff,
		},
		batch: batchSize,
	}
}

// Name implements Sink.
func (s *ForwardSink) Name() string { return "forward" }

// Write buffers ev and sends the batch once it reaches the configured size.
func (s *ForwardSink) Write(ctx context.Context, _ string, ev *trace.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Write(data)
	s.buf.WriteByte('\n')
	s.pending++
	if s.pending < s.batch {
		return nil
	}
	return s.sendLocked(ctx)
}

// Flush sends any partially filled batch.
func (s *ForwardSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked(context.Background())
}

// sendLocked POSTs the buffered batch. The buffer is cleared before sending:
// a batch that still fails after retries is dropped, not requeued. Caller
// must hold s.mu.
func (s *ForwardSink) sendLocked(ctx context.Context) error {
	if s.pending == 0 {
		return nil
	}
	body := make([]byte, s.buf.Len())
	copy(body, s.buf.Bytes())
	n := s.pending
	s.buf.Reset()
	s.pending = 0

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.url, body)
	if err != nil {
		return fmt.Errorf("build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("forward %d events: %w", n, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("forward %d events: collector returned %s", n, resp.Status)
	}
	return nil
}
