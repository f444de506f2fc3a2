package shutdown_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetcore/shutdown"
)

func TestShutdownRunsHandlersInReverseOrder(t *testing.T) {
	c := shutdown.NewCoordinator(time.Second)

	var mu sync.Mutex
	var order []string
	record := func(name string) shutdown.Handler {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	c.Register("first", record("first"))
	c.Register("second", record("second"))
	c.Register("third", record("third"))

	c.Shutdown()
	c.Wait()

	require.Len(t, order, 3)
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestShutdownIsIdempotent(t *testing.T) {
	c := shutdown.NewCoordinator(time.Second)
	var calls int
	c.Register("h", func(ctx context.Context) error {
		calls++
		return nil
	})

	c.Shutdown()
	c.Shutdown()
	c.Wait()

	assert.Equal(t, 1, calls)
}

func TestShutdownContinuesPastAFailingHandler(t *testing.T) {
	c := shutdown.NewCoordinator(time.Second)
	var ran bool
	c.Register("failing", func(ctx context.Context) error { return assertErr{} })
	c.Register("other", func(ctx context.Context) error {
		ran = true
		return nil
	})

	c.Shutdown()
	c.Wait()

	assert.True(t, ran)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
