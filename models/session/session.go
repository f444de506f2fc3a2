// Package session defines the authenticated identity anchor shared across
// protocols (spec §3 "Session"). It mirrors the shape the store package
// persists and the executor reads as an immutable snapshot.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Role is a coarse permission grant; sets of these form a principal's role set.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// Principal is the "who" behind a session.
type Principal struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Roles       []Role `json:"roles"`
}

// HasRole reports whether the principal carries the given role.
func (p Principal) HasRole(r Role) bool {
	for _, have := range p.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// Session is the identity anchor. Ownership lives with the session store;
// the executor only ever sees read-only snapshots of it.
type Session struct {
	ID         string                 `json:"id" bson:"_id"`
	Principal  Principal              `json:"principal" bson:"principal"`
	CreatedAt  time.Time              `json:"created_at" bson:"created_at"`
	LastAccess time.Time              `json:"last_access" bson:"last_access"`
	ExpiresAt  time.Time              `json:"expires_at" bson:"expires_at"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`

	// LogicalClock is bumped on every primary-side mutation and used to break
	// last-write-wins ties when wall-clock LastAccess values collide across a
	// replica with clock skew (open question in spec §9, resolved in SPEC_FULL).
	LogicalClock uint64 `json:"logical_clock" bson:"logical_clock"`
}

// New creates a session with the invariants from spec §3 established:
// lastAccess == creation <= expiresAt, expiresAt > creation.
func New(principal Principal, ttl time.Duration) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:         uuid.NewString(),
		Principal:  principal,
		CreatedAt:  now,
		LastAccess: now,
		ExpiresAt:  now.Add(ttl),
		Metadata:   map[string]interface{}{},
	}
}

// Valid checks the invariants from §3 hold: lastAccess <= expiresAt and
// expiresAt > creation.
func (s *Session) Valid() bool {
	return !s.LastAccess.After(s.ExpiresAt) && s.ExpiresAt.After(s.CreatedAt)
}

// Expired reports whether now is past ExpiresAt.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Touch updates LastAccess to now and bumps the logical clock.
func (s *Session) Touch(now time.Time) {
	s.LastAccess = now
	s.LogicalClock++
}

// Patch is the set of fields `update` may merge; identity (ID, Principal.UserID)
// is never mutated through it.
type Patch struct {
	DisplayName *string
	Roles       []Role
	ExpiresAt   *time.Time
	Metadata    map[string]interface{}
}

// Apply merges allowed fields from a patch onto the session and bumps the
// logical clock so replication can order it against concurrent mutations.
func (s *Session) Apply(p Patch) {
	if p.DisplayName != nil {
		s.Principal.DisplayName = *p.DisplayName
	}
	if p.Roles != nil {
		s.Principal.Roles = p.Roles
	}
	if p.ExpiresAt != nil {
		s.ExpiresAt = *p.ExpiresAt
	}
	for k, v := range p.Metadata {
		if s.Metadata == nil {
			s.Metadata = map[string]interface{}{}
		}
		s.Metadata[k] = v
	}
	s.LogicalClock++
}

// Sanitized is the safe-to-log projection: id, userID, username, timestamps
// only (spec §4.7 "Serialization").
type Sanitized struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	CreatedAt  time.Time `json:"created_at"`
	LastAccess time.Time `json:"last_access"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Sanitize projects a session down to fields safe to log or return in
// diagnostics.
func (s *Session) Sanitize() Sanitized {
	return Sanitized{
		ID:         s.ID,
		UserID:     s.Principal.UserID,
		Username:   s.Principal.DisplayName,
		CreatedAt:  s.CreatedAt,
		LastAccess: s.LastAccess,
		ExpiresAt:  s.ExpiresAt,
	}
}

// Clone returns a deep-enough copy so callers can't mutate the store's
// internal state through a returned snapshot.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Principal.Roles = append([]Role(nil), s.Principal.Roles...)
	clone.Metadata = make(map[string]interface{}, len(s.Metadata))
	for k, v := range s.Metadata {
		clone.Metadata[k] = v
	}
	return &clone
}
