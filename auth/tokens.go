// Package auth issues and verifies access/refresh tokens and manages API
// key material (spec §4.9).
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"fleetcore/apxerrors"
	"fleetcore/models/session"
)

// Kind distinguishes an access token from a refresh token within the same
// claim shape, so a refresh token can never be replayed as an access token.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

const (
	// DefaultAccessTTL and DefaultRefreshTTL match spec §4.9's examples.
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the payload carried by both access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string         `json:"sid"`
	Roles     []session.Role `json:"roles"`
	Kind      Kind           `json:"kind"`
}

// TokenPair is returned from issuance and refresh.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Issuer signs and verifies tokens with a configured HMAC secret.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	redeemed   sync.Map // ids (jti) of refresh tokens already exchanged by Refresh
}

// NewIssuer builds an Issuer. Zero TTLs fall back to the spec defaults.
func NewIssuer(secret []byte, accessTTL, refreshTTL time.Duration) *Issuer {
	if accessTTL == 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL == 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &Issuer{secret: secret, accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

func (i *Issuer) sign(userID string, s *session.Session, kind Kind, ttl time.Duration) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		SessionID: s.ID,
		Roles:     s.Principal.Roles,
		Kind:      kind,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// Issue mints a fresh access+refresh pair for an established session.
func (i *Issuer) Issue(s *session.Session) (TokenPair, error) {
	access, accessExp, err := i.sign(s.Principal.UserID, s, KindAccess, i.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := i.sign(s.Principal.UserID, s, KindRefresh, i.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: accessExp}, nil
}

// Verify parses and validates a token of the expected kind, returning its
// claims. Signature, expiry, and kind mismatches all produce an
// apxerrors.Unauthenticated error (spec §4.5 — never leak parser internals).
func (i *Issuer) Verify(tokenString string, want Kind) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apxerrors.Unauthenticated("invalid or expired token")
	}
	if claims.Kind != want {
		return nil, apxerrors.Unauthenticated(fmt.Sprintf("expected a %s token", want))
	}
	return &claims, nil
}

// SessionLookup resolves a session by id during refresh; satisfied by
// sessionstore.Store's Get/Touch methods.
type SessionLookup interface {
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	Touch(ctx context.Context, sessionID string, now time.Time) error
}

// Refresh verifies a refresh token, loads its session, checks expiry, and
// issues a new access token plus a rotated refresh token (spec §4.9 — the
// old refresh token must not be reusable after this).
func (i *Issuer) Refresh(ctx context.Context, refreshToken string, lookup SessionLookup) (TokenPair, *session.Session, error) {
	claims, err := i.Verify(refreshToken, KindRefresh)
	if err != nil {
		return TokenPair{}, nil, err
	}
	if _, used := i.redeemed.LoadOrStore(claims.ID, struct{}{}); used {
		return TokenPair{}, nil, apxerrors.Unauthenticated("refresh token already used")
	}

	s, err := lookup.Get(ctx, claims.SessionID)
	if err != nil {
		return TokenPair{}, nil, apxerrors.SessionNotFound(claims.SessionID)
	}
	now := i.now()
	if s.Expired(now) {
		return TokenPair{}, nil, apxerrors.SessionExpired(s.ID, false)
	}

	pair, err := i.Issue(s)
	if err != nil {
		return TokenPair{}, nil, err
	}
	_ = lookup.Touch(ctx, s.ID, now)
	return pair, s, nil
}
