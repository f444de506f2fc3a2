// Package sessionstore implements the abstract session store contract (spec
// §4.7): create/get/update/touch/delete/listByUser/clear, TTL invisibility,
// and two backends (in-memory, Redis-like remote).
package sessionstore

import (
	"context"
	"time"

	"fleetcore/apxerrors"
	"fleetcore/models/session"
)

// Store is the abstract session store contract every backend implements.
// get/listByUser never return entries past their ExpiresAt even if the
// backend has not physically removed them yet (TTL invisibility, spec §4.7).
type Store interface {
	Create(ctx context.Context, s *session.Session) (*session.Session, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	Update(ctx context.Context, id string, patch session.Patch) (*session.Session, error)
	Touch(ctx context.Context, id string, now time.Time) error
	Delete(ctx context.Context, id string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]*session.Session, error)
	Clear(ctx context.Context) error

	// ids returns every id physically present, expired or not; used by the
	// sweeper to find entries to hard-delete and by replication's full sync.
	ids(ctx context.Context) ([]string, error)
	// peek returns the raw entry ignoring TTL visibility, or nil if absent.
	peek(ctx context.Context, id string) (*session.Session, error)
	// hardDelete removes an entry unconditionally, bypassing TTL checks.
	hardDelete(ctx context.Context, id string) error
}

func notFound(id string) error { return apxerrors.SessionNotFound(id) }
