package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetcore/auth"
	"fleetcore/models/apikey"
	"fleetcore/models/session"
)

type fakeLookup struct {
	sessions map[string]*session.Session
	touched  []string
}

func (f *fakeLookup) Get(ctx context.Context, id string) (*session.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, assertErr{}
	}
	return s, nil
}

func (f *fakeLookup) Touch(ctx context.Context, id string, now time.Time) error {
	f.touched = append(f.touched, id)
	return nil
}

type assertErr struct{}

func (assertErr) Error() string { return "not found" }

func newSession() *session.Session {
	return session.New(session.Principal{UserID: "u1", DisplayName: "Ada", Roles: []session.Role{session.RoleOperator}}, time.Hour)
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	issuer := auth.NewIssuer([]byte("test-secret"), time.Minute, time.Hour)
	s := newSession()

	pair, err := issuer.Issue(s)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	claims, err := issuer.Verify(pair.AccessToken, auth.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, s.ID, claims.SessionID)
}

func TestVerifyRejectsWrongKind(t *testing.T) {
	issuer := auth.NewIssuer([]byte("test-secret"), time.Minute, time.Hour)
	s := newSession()
	pair, err := issuer.Issue(s)
	require.NoError(t, err)

	_, err = issuer.Verify(pair.AccessToken, auth.KindRefresh)
	assert.Error(t, err)
}

func TestRefreshRotatesTokensAndTouchesSession(t *testing.T) {
	issuer := auth.NewIssuer([]byte("test-secret"), time.Minute, time.Hour)
	s := newSession()
	pair, err := issuer.Issue(s)
	require.NoError(t, err)

	lookup := &fakeLookup{sessions: map[string]*session.Session{s.ID: s}}
	newPair, gotSession, err := issuer.Refresh(context.Background(), pair.RefreshToken, lookup)
	require.NoError(t, err)
	assert.Equal(t, s.ID, gotSession.ID)
	assert.NotEqual(t, pair.AccessToken, newPair.AccessToken)
	assert.Contains(t, lookup.touched, s.ID)
}

func TestRefreshRejectsExpiredSession(t *testing.T) {
	issuer := auth.NewIssuer([]byte("test-secret"), time.Minute, time.Hour)
	s := newSession()
	s.ExpiresAt = time.Now().Add(-time.Minute)
	pair, err := issuer.Issue(s)
	require.NoError(t, err)

	lookup := &fakeLookup{sessions: map[string]*session.Session{s.ID: s}}
	_, _, err = issuer.Refresh(context.Background(), pair.RefreshToken, lookup)
	assert.Error(t, err)
}

func TestGenerateAndVerifyAPIKey(t *testing.T) {
	issued, err := auth.GenerateAPIKey("u1", "ci key", []apikey.Scope{apikey.ScopeActionsExecute}, time.Now())
	require.NoError(t, err)
	assert.True(t, auth.VerifyAPIKey(issued.Secret, issued.Record))
	assert.False(t, auth.VerifyAPIKey("wrong-secret-altogether", issued.Record))
}

func TestVerifyAPIKeyRejectsRevokedKey(t *testing.T) {
	issued, err := auth.GenerateAPIKey("u1", "ci key", []apikey.Scope{apikey.ScopeActionsExecute}, time.Now())
	require.NoError(t, err)
	issued.Record.Revoke()
	assert.False(t, auth.VerifyAPIKey(issued.Secret, issued.Record))
}
