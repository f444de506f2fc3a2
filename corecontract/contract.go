// Package corecontract defines the single surface any frontend (HTTP/JSON,
// gRPC, WebSocket, MCP) is allowed to depend on. None of those frontends
// are implemented here — this package only names the boundary and provides
// the one concrete implementation every frontend would wrap.
package corecontract

import (
	"context"

	"fleetcore/auth"
	"fleetcore/models/action"
	"fleetcore/models/browsercontext"
	"fleetcore/pool"
)

// CredentialKind distinguishes how the caller proved identity.
type CredentialKind string

const (
	CredentialPassword CredentialKind = "password"
	CredentialAPIKey   CredentialKind = "api_key"
)

// Credential is the input to Authenticate; exactly one of the fields
// matching Kind is expected to be populated.
type Credential struct {
	Kind CredentialKind

	// CredentialPassword
	UserID   string
	Password string

	// CredentialAPIKey
	APIKeySecret string
}

// Core is the boundary interface: session lifecycle, action execution, and
// pool observability, with nothing protocol-specific leaking through.
type Core interface {
	Authenticate(ctx context.Context, credential Credential) (*auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error)
	Execute(ctx context.Context, sessionID, contextID string, act action.Action) (action.Result, error)
	CreateContext(ctx context.Context, sessionID string, caps browsercontext.Capabilities) (string, error)
	TerminateSession(ctx context.Context, sessionID string) error
	PoolMetrics(ctx context.Context) pool.Metrics
}
