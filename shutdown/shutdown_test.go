package shutdown

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, ctx context.Context) {
	t.Helper()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled")
	}
}

func TestTriggerRunsHooksNewestFirst(t *testing.T) {
	t.Parallel()

	c := New(0)

	var (
		mu    sync.Mutex
		order []string
	)

	record := func(name string) func(context.Context) {
		return func(ctx context.Context) {
			require.NoError(t, ctx.Err())

			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)

			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	c.BeforeShutdown(record("server"))
	c.BeforeShutdown(record("telemetry"))

	ctx := c.Listen(context.Background())

	select {
	case <-ctx.Done():
		t.Fatal("context cancelled before shutdown")
	default:
	}

	c.Trigger()
	c.Trigger()
	waitDone(t, ctx)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []string{"telemetry", "server"}, order)
}

func TestHooksAfterShutdownAreIgnored(t *testing.T) {
	t.Parallel()

	c := New(time.Second)
	ctx := c.Listen(context.Background())

	c.Trigger()
	waitDone(t, ctx)

	called := false
	c.BeforeShutdown(func(context.Context) { called = true })

	c.mu.Lock()
	assert.Empty(t, c.hooks)
	c.mu.Unlock()
	assert.False(t, called)
}

func TestParentCancellationSkipsHooks(t *testing.T) {
	t.Parallel()

	c := New(time.Second)

	called := make(chan struct{}, 1)
	c.BeforeShutdown(func(context.Context) { called <- struct{}{} })

	parent, cancel := context.WithCancel(context.Background())
	ctx := c.Listen(parent)

	cancel()
	waitDone(t, ctx)

	select {
	case <-called:
		t.Fatal("hook ran without a shutdown")
	default:
	}
}
