package demo

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/agent-trace/bridge/internal/trace"
)

// MinInterval is the floor for the emission interval. Configured values
// below it are raised, never honored.
const MinInterval = 250 * time.Millisecond

// stopGrace bounds how long the stop handle waits for an in-flight cycle to
// finish writing before giving up on it.
const stopGrace = 2 * time.Second

// scenario is one synthetic agent exchange the generator can play: a user
// prompt, a tool round-trip inside a span, and a usage record.
type scenario struct {
	name      string
	prompt    string
	tool      string
	args      map[string]any
	result    string
	model     string
	inTokens  int
	outTokens int
}

var scenarios = []scenario{
	{
		name:   "summarize-deploy-logs",
		prompt: "Summarize the errors from the last deploy",
		tool:   "search_logs",
		args:   map[string]any{"query": "level:error", "limit": 20},
		result: "3 entries: two timeouts connecting to the cache, one nil deref in the worker",
		model:  "demo-large", inTokens: 412, outTokens: 95,
	},
	{
		name:   "explain-config",
		prompt: "What does the retry_budget setting control?",
		tool:   "read_file",
		args:   map[string]any{"path": "config/service.yaml"},
		result: "retry_budget caps retries per minute across all upstreams",
		model:  "demo-small", inTokens: 188, outTokens: 64,
	},
	{
		name:   "lookup-order",
		prompt: "Find order 58271 and check its refund status",
		tool:   "query_db",
		args:   map[string]any{"table": "orders", "id": 58271},
		result: "order 58271: refunded 2024-11-02, amount 39.90",
		model:  "demo-large", inTokens: 301, outTokens: 48,
	},
	{
		name:   "check-endpoint",
		prompt: "Is the billing healthcheck passing?",
		tool:   "http_get",
		args:   map[string]any{"url": "https://billing.internal/healthz"},
		result: "200 OK in 84ms",
		model:  "demo-small", inTokens: 150, outTokens: 22,
	},
	{
		name:   "draft-reply",
		prompt: "Draft a reply to the customer asking about data export",
		tool:   "fetch_ticket",
		args:   map[string]any{"id": "ZD-4410"},
		result: "ticket ZD-4410: customer wants CSV export of 2023 invoices",
		model:  "demo-large", inTokens: 529, outTokens: 210,
	},
}

// Generator emits synthetic trace traffic so the bridge has something to
// show without a real agent attached. Each cycle runs one scenario as a
// fresh session: message, span_start, tool_call, tool_result, usage,
// span_end.
type Generator struct {
	tracer   *trace.Tracer
	logger   *zap.Logger
	interval time.Duration
	rng      *rand.Rand

	seq      atomic.Uint64
	skipped  atomic.Uint64
	inFlight atomic.Bool
	running  atomic.Bool
}

// NewGenerator builds a generator emitting one cycle per interval. Intervals
// below MinInterval are raised to it.
func NewGenerator(tracer *trace.Tracer, interval time.Duration, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval < MinInterval {
		logger.Warn("demo interval below floor, raising",
			zap.Duration("configured", interval),
			zap.Duration("floor", MinInterval))
		interval = MinInterval
	}
	return &Generator{
		tracer:   tracer,
		logger:   logger,
		interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start begins emitting, with the first cycle fired immediately rather than
// one interval in. The returned stop function cancels future ticks and waits
// up to stopGrace for a cycle already emitting, so its events reach the sinks
// before they shut down behind it.
func (g *Generator) Start() func() {
	ctx, cancel := context.WithCancel(context.Background())
	g.running.Store(true)
	go g.run(ctx)
	return func() {
		g.running.Store(false)
		cancel()
		deadline := time.Now().Add(stopGrace)
		for g.inFlight.Load() && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func (g *Generator) run(ctx context.Context) {
	g.tick()
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.tick()
		}
	}
}

// tick starts one emission cycle unless the previous one is still running.
// A busy tick is skipped outright, not queued; the skipped cycle consumes no
// sequence number.
func (g *Generator) tick() {
	if !g.inFlight.CompareAndSwap(false, true) {
		g.skipped.Add(1)
		g.logger.Debug("previous cycle still emitting, skipping tick")
		return
	}
	seq := g.seq.Add(1) - 1
	go func() {
		defer g.inFlight.Store(false)
		g.emit(seq)
	}()
}

// emit plays one randomly chosen scenario as a new session. Emissions are
// serialized by the in-flight guard, so g.rng needs no lock.
func (g *Generator) emit(seq uint64) {
	sc := g.scenario()
	sess := g.tracer.Session("")

	sess.Message("user", sc.prompt)
	span := sess.StartSpan(sc.name, map[string]any{"seq": seq})
	callID := span.ToolCall(sc.tool, sc.args)
	span.ToolResult(callID, sc.result)
	sess.Usage(trace.Usage{
		InputTokens:  sc.inTokens + g.rng.Intn(40),
		OutputTokens: sc.outTokens + g.rng.Intn(20),
		Model:        sc.model,
	})
	span.End("ok")
}

func (g *Generator) scenario() scenario {
	return scenarios[g.rng.Intn(len(scenarios))]
}

// Stats is a point-in-time view for the stats endpoint.
type Stats struct {
	Running    bool   `json:"running"`
	Cycles     uint64 `json:"cycles"`
	Skipped    uint64 `json:"skippedTicks"`
	IntervalMs int64  `json:"intervalMs"`
}

func (g *Generator) Stats() Stats {
	return Stats{
		Running:    g.running.Load(),
		Cycles:     g.seq.Load(),
		Skipped:    g.skipped.Load(),
		IntervalMs: g.interval.Milliseconds(),
	}
}
