package lifecycle

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State tracks where the bridge is in its lifecycle.
type State int32

const (
	Running State = iota
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Step is one named shutdown action. A failing step is logged and the drain
// moves on; shutdown is best effort end to end.
type Step struct {
	Name string
	Run  func() error
}

// Coordinator runs an ordered drain exactly once. Trigger is safe to call
// from any goroutine and any number of times; callers block until the drain
// has finished.
type Coordinator struct {
	logger *zap.Logger
	steps  []Step
	state  atomic.Int32
	once   sync.Once
	done   chan struct{}
}

func NewCoordinator(logger *zap.Logger, steps ...Step) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		logger: logger,
		steps:  steps,
		done:   make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Done is closed once the drain has completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Trigger starts the drain on first call and waits for it on every call.
func (c *Coordinator) Trigger() {
	c.once.Do(c.drain)
	<-c.done
}

func (c *Coordinator) drain() {
	start := time.Now()
	c.state.Store(int32(Draining))
	c.logger.Info("shutdown started", zap.Int("steps", len(c.steps)))

	for _, step := range c.steps {
		c.logger.Debug("shutdown step", zap.String("step", step.Name))
		if err := step.Run(); err != nil {
			c.logger.Warn("shutdown step failed",
				zap.String("step", step.Name),
				zap.Error(err))
		}
	}

	c.state.Store(int32(Stopped))
	close(c.done)
	c.logger.Info("shutdown complete", zap.Duration("elapsed", time.Since(start)))
}
