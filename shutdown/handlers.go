package shutdown

import "context"

// PoolHandler adapts pool.Pool.Shutdown (drain leases, close every instance)
// to the Handler signature.
func PoolHandler(p interface{ Shutdown(context.Context) error }) Handler {
	return func(ctx context.Context) error {
		return p.Shutdown(ctx)
	}
}

// HTTPHandler adapts any component exposing Close(ctx) error — httpobs.Server
// in practice — to the Handler signature.
func HTTPHandler(closer interface{ Close(context.Context) error }) Handler {
	return func(ctx context.Context) error {
		return closer.Close(ctx)
	}
}

// SweeperHandler stops a sessionstore.Sweeper's background loop by
// cancelling the context its Run was started with; callers pass that
// cancel func here so shutdown order is explicit rather than implied by
// process exit.
func SweeperHandler(cancel context.CancelFunc) Handler {
	return func(ctx context.Context) error {
		cancel()
		return nil
	}
}

// ReplicatorHandler runs one final FullSync before the process exits, so
// replicas don't miss the last batch of in-flight writes.
func ReplicatorHandler(r interface{ FullSync(context.Context) }) Handler {
	return func(ctx context.Context) error {
		r.FullSync(ctx)
		return nil
	}
}

// CloserHandler adapts any io.Closer-shaped dependency (Mongo client,
// Redis client) whose Close takes no context.
func CloserHandler(c interface{ Close() error }) Handler {
	return func(ctx context.Context) error {
		return c.Close()
	}
}
