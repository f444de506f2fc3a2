package corecontract_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetcore/auth"
	"fleetcore/corecontract"
	"fleetcore/executor"
	"fleetcore/models/action"
	"fleetcore/models/apikey"
	"fleetcore/models/browser"
	"fleetcore/models/browsercontext"
	"fleetcore/pagemanager"
	"fleetcore/pool"
	"fleetcore/sessionstore"
	"fleetcore/testharness"
)

type fakeAPIKeys struct {
	records map[string]*apikey.APIKey
}

func (f *fakeAPIKeys) GetAPIKeyByPrefix(ctx context.Context, prefix string) (*apikey.APIKey, error) {
	return f.records[prefix], nil
}

func newService(t *testing.T) (*corecontract.Service, *apikey.APIKey, string) {
	t.Helper()
	driver := testharness.NewFakeDriver()
	p, err := pool.New(pool.Config{
		MaxSize:       2,
		Drivers:       map[browser.Driver]pool.Driver{browser.DriverPlaywright: driver},
		DefaultDriver: browser.DriverPlaywright,
	})
	require.NoError(t, err)

	pages := pagemanager.New(p, func(pagemanager.Event) {})
	store := sessionstore.NewMemoryStore()
	issuer := auth.NewIssuer([]byte("test-secret"), time.Minute, time.Hour)

	issued, err := auth.GenerateAPIKey("u1", "ci", []apikey.Scope{apikey.ScopeActionsExecute}, time.Now())
	require.NoError(t, err)
	keys := &fakeAPIKeys{records: map[string]*apikey.APIKey{issued.Record.Prefix: issued.Record}}

	svc := corecontract.NewService(p, executor.New(), pages, store, issuer, keys, nil, time.Hour)
	return svc, issued.Record, issued.Secret
}

func TestAuthenticateWithAPIKeyIssuesTokens(t *testing.T) {
	svc, _, secret := newService(t)
	pair, err := svc.Authenticate(context.Background(), corecontract.Credential{Kind: corecontract.CredentialAPIKey, APIKeySecret: secret})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
}

func TestAuthenticateRejectsBadAPIKey(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Authenticate(context.Background(), corecontract.Credential{Kind: corecontract.CredentialAPIKey, APIKeySecret: "not-a-real-key-at-all"})
	assert.Error(t, err)
}

func TestCreateContextAndExecuteNavigate(t *testing.T) {
	svc, _, secret := newService(t)
	ctx := context.Background()

	pair, err := svc.Authenticate(ctx, corecontract.Credential{Kind: corecontract.CredentialAPIKey, APIKeySecret: secret})
	require.NoError(t, err)

	claims, err := auth.NewIssuer([]byte("test-secret"), time.Minute, time.Hour).Verify(pair.AccessToken, auth.KindAccess)
	require.NoError(t, err)

	contextID, err := svc.CreateContext(ctx, claims.SessionID, browsercontext.Capabilities{})
	require.NoError(t, err)
	require.NotEmpty(t, contextID)

	result, err := svc.Execute(ctx, claims.SessionID, contextID, action.Action{
		Type:     action.TypeNavigate,
		Navigate: &action.NavigateParams{URL: "https://example.com"},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestTerminateSessionDeletesIt(t *testing.T) {
	svc, _, secret := newService(t)
	ctx := context.Background()

	pair, err := svc.Authenticate(ctx, corecontract.Credential{Kind: corecontract.CredentialAPIKey, APIKeySecret: secret})
	require.NoError(t, err)
	claims, err := auth.NewIssuer([]byte("test-secret"), time.Minute, time.Hour).Verify(pair.AccessToken, auth.KindAccess)
	require.NoError(t, err)

	require.NoError(t, svc.TerminateSession(ctx, claims.SessionID))

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.Error(t, err)
}
