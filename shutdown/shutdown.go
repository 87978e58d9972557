// Package shutdown turns SIGINT and SIGTERM into context cancellation and
// runs registered hooks first.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/amp-labs/diagramfsm/logger"
)

// DefaultHookTimeout bounds the context handed to hooks.
const DefaultHookTimeout = 5 * time.Second

// Coordinator owns one shutdown sequence. Hooks run once, newest first,
// before the root context is cancelled.
type Coordinator struct {
	hookTimeout time.Duration

	mu      sync.Mutex
	hooks   []func(context.Context)
	trigger chan os.Signal
	done    bool
}

// New returns a Coordinator whose hooks get a context bounded by
// hookTimeout (DefaultHookTimeout when not positive).
func New(hookTimeout time.Duration) *Coordinator {
	if hookTimeout <= 0 {
		hookTimeout = DefaultHookTimeout
	}

	return &Coordinator{
		hookTimeout: hookTimeout,
		trigger:     make(chan os.Signal, 1),
	}
}

// BeforeShutdown registers h. Hooks registered after shutdown started are
// ignored.
func (c *Coordinator) BeforeShutdown(h func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.done {
		c.hooks = append(c.hooks, h)
	}
}

// Listen returns a child of parent cancelled after the hooks ran, on the
// first SIGINT or SIGTERM, or on Trigger.
func (c *Coordinator) Listen(parent context.Context) context.Context {
	signal.Notify(c.trigger, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(parent)

	go func() {
		defer signal.Stop(c.trigger)

		select {
		case sig := <-c.trigger:
			logger.Get(ctx).Warn("Received " + sig.String() + ", shutting down")
			c.run(ctx)
		case <-parent.Done():
		}

		cancel()
	}()

	return ctx
}

// Trigger starts the shutdown as if a signal had arrived.
func (c *Coordinator) Trigger() {
	select {
	case c.trigger <- os.Interrupt:
	default:
	}
}

func (c *Coordinator) run(ctx context.Context) {
	c.mu.Lock()
	hooks := c.hooks
	c.hooks = nil
	c.done = true
	c.mu.Unlock()

	hookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.hookTimeout)
	defer cancel()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i](hookCtx)
	}
}
