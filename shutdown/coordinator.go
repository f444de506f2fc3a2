// Package shutdown coordinates graceful process termination: registered
// handlers run in LIFO order (last registered, first stopped) under an
// overall grace deadline, each bounded by its own per-handler timeout.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fleetcore/logger"
)

// Handler is a single shutdown step: flush, drain, or close something.
type Handler func(ctx context.Context) error

const defaultHandlerTimeout = 5 * time.Second

// Coordinator runs registered handlers once, in reverse registration order,
// when either an OS signal arrives or Shutdown is called directly.
type Coordinator struct {
	mu             sync.Mutex
	names          []string
	handlers       []Handler
	handlerTimeout time.Duration

	once     sync.Once
	done     chan struct{}
	grace    time.Duration
}

// NewCoordinator builds a coordinator with an overall grace deadline for
// the whole shutdown sequence.
func NewCoordinator(grace time.Duration) *Coordinator {
	return &Coordinator{
		done:           make(chan struct{}),
		grace:          grace,
		handlerTimeout: defaultHandlerTimeout,
	}
}

// Register adds a named handler. Handlers registered later run earlier
// during shutdown (LIFO), so dependents stop before their dependencies —
// e.g. the HTTP server before the pool it dispatches into.
func (c *Coordinator) Register(name string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, name)
	c.handlers = append(c.handlers, h)
}

// ListenForSignals triggers Shutdown on SIGINT/SIGTERM/SIGHUP/SIGQUIT.
func (c *Coordinator) ListenForSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		c.Shutdown()
	}()
}

// Shutdown runs the handler sequence exactly once.
func (c *Coordinator) Shutdown() {
	c.once.Do(func() {
		defer close(c.done)
		logger.Info("starting graceful shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), c.grace)
		defer cancel()
		c.run(ctx)
	})
}

func (c *Coordinator) run(ctx context.Context) {
	c.mu.Lock()
	names := append([]string(nil), c.names...)
	handlers := append([]Handler(nil), c.handlers...)
	c.mu.Unlock()

	var wg sync.WaitGroup
	errs := make(chan error, len(handlers))

	// Each handler waits for the one registered after it to return, so the
	// sequence runs strictly in reverse registration order.
	prev := make(chan struct{})
	close(prev)
	for i := len(handlers) - 1; i >= 0; i-- {
		wg.Add(1)
		next := make(chan struct{})
		go func(name string, h Handler, prev <-chan struct{}, next chan<- struct{}) {
			defer wg.Done()
			defer close(next)
			<-prev
			hctx, cancel := context.WithTimeout(ctx, c.handlerTimeout)
			defer cancel()

			logger.Info("shutting down component", zap.String("name", name))
			if err := h(hctx); err != nil {
				logger.Error("shutdown handler failed", zap.String("name", name), zap.Error(err))
				errs <- err
				return
			}
			logger.Info("component shutdown complete", zap.String("name", name))
		}(names[i], handlers[i], prev, next)
		prev = next
	}

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
		logger.Info("all components shut down gracefully")
	case <-ctx.Done():
		logger.Warn("shutdown grace period exceeded, proceeding with exit")
	}

	// errs stays open: handlers still running past the grace deadline may
	// yet send to it.
	failed := len(errs)
	if failed > 0 {
		logger.Warn("shutdown completed with errors", zap.Int("failed_handlers", failed))
	}
}

// Wait blocks until Shutdown has run to completion.
func (c *Coordinator) Wait() {
	<-c.done
}
