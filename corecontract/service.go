package corecontract

import (
	"context"
	"strings"
	"time"

	"fleetcore/apxerrors"
	"fleetcore/auth"
	"fleetcore/executor"
	"fleetcore/models/action"
	"fleetcore/models/apikey"
	"fleetcore/models/browsercontext"
	"fleetcore/models/session"
	"fleetcore/pagemanager"
	"fleetcore/pool"
	"fleetcore/sessionstore"
)

// APIKeyLookup resolves an API key by its public prefix, for the
// CredentialAPIKey authentication path.
type APIKeyLookup interface {
	GetAPIKeyByPrefix(ctx context.Context, prefix string) (*apikey.APIKey, error)
}

// PasswordVerifier resolves a principal from a userID/password pair, for
// the CredentialPassword authentication path. Left pluggable: this service
// has no identity-provider opinion of its own.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, userID, password string) (session.Principal, error)
}

// Service is the concrete Core implementation wiring the pool, executor,
// page manager, session store, and token issuer together (SPEC_FULL §6).
type Service struct {
	pool     *pool.Pool
	executor *executor.Executor
	pages    *pagemanager.Manager
	store    sessionstore.Store
	issuer   *auth.Issuer
	apiKeys  APIKeyLookup
	password PasswordVerifier
	sessionTTL time.Duration
}

// NewService wires the Core dependencies. password may be nil if only
// API-key authentication is configured.
func NewService(p *pool.Pool, exec *executor.Executor, pages *pagemanager.Manager, store sessionstore.Store, issuer *auth.Issuer, apiKeys APIKeyLookup, password PasswordVerifier, sessionTTL time.Duration) *Service {
	return &Service{
		pool: p, executor: exec, pages: pages, store: store,
		issuer: issuer, apiKeys: apiKeys, password: password, sessionTTL: sessionTTL,
	}
}

var _ Core = (*Service)(nil)

// Authenticate establishes a new session for the proven identity and
// mints a token pair bound to it.
func (s *Service) Authenticate(ctx context.Context, cred Credential) (*auth.TokenPair, error) {
	principal, err := s.resolvePrincipal(ctx, cred)
	if err != nil {
		return nil, err
	}

	sess := session.New(principal, s.sessionTTL)
	sess, err = s.store.Create(ctx, sess)
	if err != nil {
		return nil, err
	}

	pair, err := s.issuer.Issue(sess)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

func (s *Service) resolvePrincipal(ctx context.Context, cred Credential) (session.Principal, error) {
	switch cred.Kind {
	case CredentialAPIKey:
		return s.resolveAPIKey(ctx, cred.APIKeySecret)
	case CredentialPassword:
		if s.password == nil {
			return session.Principal{}, apxerrors.Unauthenticated("password authentication is not configured")
		}
		return s.password.VerifyPassword(ctx, cred.UserID, cred.Password)
	default:
		return session.Principal{}, apxerrors.Validation("credential.kind", "must be api_key or password")
	}
}

func (s *Service) resolveAPIKey(ctx context.Context, secret string) (session.Principal, error) {
	if len(secret) < 8 {
		return session.Principal{}, apxerrors.Unauthenticated("malformed api key")
	}
	prefix := secret[:8]
	record, err := s.apiKeys.GetAPIKeyByPrefix(ctx, prefix)
	if err != nil {
		return session.Principal{}, apxerrors.Unauthenticated("invalid api key")
	}
	if record == nil || !auth.VerifyAPIKey(secret, record) {
		return session.Principal{}, apxerrors.Unauthenticated("invalid api key")
	}
	return session.Principal{UserID: record.OwnerUserID, DisplayName: record.DisplayName}, nil
}

// Refresh rotates a refresh token into a fresh pair, touching the session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	pair, _, err := s.issuer.Refresh(ctx, refreshToken, s.store)
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

// CreateContext provisions a browsing context for an existing session,
// lazily acquiring a pool lease if the session doesn't hold one yet.
func (s *Service) CreateContext(ctx context.Context, sessionID string, caps browsercontext.Capabilities) (string, error) {
	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	contextID := newContextID(sessionID)
	if _, err := s.pages.Resolve(ctx, sess.ID, contextID, pool.AcquireRequest{SessionID: sess.ID}, caps); err != nil {
		return "", err
	}
	return contextID, nil
}

// Execute validates, advises, and dispatches one action against the named
// session/context page, serialized by the page manager.
func (s *Service) Execute(ctx context.Context, sessionID, contextID string, act action.Action) (action.Result, error) {
	act.SessionID = sessionID
	act.ContextID = contextID

	var result action.Result
	err := s.pages.WithPage(ctx, sessionID, contextID, func(lease *pool.Lease, pageID string) error {
		act.PageID = pageID
		res, _, runErr := s.executor.Run(ctx, lease, act)
		result = res
		return runErr
	})
	if err != nil {
		return action.Result{}, err
	}
	_ = s.store.Touch(ctx, sessionID, time.Now())
	return result, nil
}

// TerminateSession closes every context belonging to the session, releases
// its pool lease, and deletes the session record.
func (s *Service) TerminateSession(ctx context.Context, sessionID string) error {
	s.pages.ReleaseSession(ctx, sessionID)
	_, err := s.store.Delete(ctx, sessionID)
	return err
}

// PoolMetrics snapshots current pool utilization.
func (s *Service) PoolMetrics(ctx context.Context) pool.Metrics {
	return s.pool.Metrics()
}

func newContextID(sessionID string) string {
	return strings.Join([]string{sessionID, "ctx", time.Now().UTC().Format("150405.000000000")}, "-")
}
