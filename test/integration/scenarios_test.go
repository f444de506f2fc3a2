// Package integration exercises the six scenarios the core spec calls out
// by name (S1-S6), each composing the real packages end to end rather than
// asserting against a single unit. Run with `go test ./test/integration/...`
// — no external services required, every backend here is in-memory/fake.
package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"fleetcore/auth"
	"fleetcore/circuitbreaker"
	"fleetcore/corecontract"
	"fleetcore/executor"
	"fleetcore/models/action"
	"fleetcore/models/apikey"
	"fleetcore/models/browser"
	"fleetcore/models/browsercontext"
	"fleetcore/models/session"
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

type ScenarioSuite struct {
	suite.Suite
}

func TestScenarioSuite(t *testing.T) {
	suite.Run(t, new(ScenarioSuite))
}

// S1 Session + refresh.
func (s *ScenarioSuite) TestS1SessionAndRefresh() {
	driver := testharness.NewFakeDriver()
	p, err := pool.New(pool.Config{
		MaxSize:       2,
		Drivers:       map[browser.Driver]pool.Driver{browser.DriverPlaywright: driver},
		DefaultDriver: browser.DriverPlaywright,
	})
	require.NoError(s.T(), err)

	pages := pagemanager.New(p, func(pagemanager.Event) {})
	store := sessionstore.NewMemoryStore()
	issuer := auth.NewIssuer([]byte("s1-secret"), time.Minute, time.Hour)

	issued, err := auth.GenerateAPIKey("alice", "alice's ci key", []apikey.Scope{apikey.ScopeActionsExecute}, time.Now())
	require.NoError(s.T(), err)
	keys := &fakeAPIKeys{records: map[string]*apikey.APIKey{issued.Record.Prefix: issued.Record}}

	svc := corecontract.NewService(p, executor.New(), pages, store, issuer, keys, nil, time.Hour)
	ctx := context.Background()

	pair0, err := svc.Authenticate(ctx, corecontract.Credential{Kind: corecontract.CredentialAPIKey, APIKeySecret: issued.Secret})
	require.NoError(s.T(), err)
	s.NotEmpty(pair0.AccessToken)
	s.NotEmpty(pair0.RefreshToken)

	time.Sleep(time.Second)

	pair1, err := svc.Refresh(ctx, pair0.RefreshToken)
	require.NoError(s.T(), err)
	s.NotEqual(pair0.AccessToken, pair1.AccessToken)
	s.NotEqual(pair0.RefreshToken, pair1.RefreshToken)

	_, err = svc.Refresh(ctx, pair0.RefreshToken)
	s.Error(err, "a rotated-away refresh token must not be reusable")
}

// S2 Pool saturation.
func (s *ScenarioSuite) TestS2PoolSaturation() {
	driver := testharness.NewFakeDriver()
	p, err := pool.New(pool.Config{
		MaxSize:       1,
		Drivers:       map[browser.Driver]pool.Driver{browser.DriverPlaywright: driver},
		DefaultDriver: browser.DriverPlaywright,
	})
	require.NoError(s.T(), err)

	first, err := p.Acquire(context.Background(), pool.AcquireRequest{SessionID: "a"})
	require.NoError(s.T(), err)

	deadline := 500 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	start := time.Now()
	_, err = p.Acquire(ctx, pool.AcquireRequest{SessionID: "b"})
	elapsed := time.Since(start)

	s.Error(err, "second acquire must time out while the only instance is held")
	s.InDelta(deadline.Seconds(), elapsed.Seconds(), 0.2)

	first.Release()
}

// S3 Navigate + extract.
func (s *ScenarioSuite) TestS3NavigateAndExtract() {
	driver := testharness.NewFakeDriver()
	driver.Contents = "<html><body><h1>Example</h1></body></html>"
	p, err := pool.New(pool.Config{
		MaxSize:       1,
		Drivers:       map[browser.Driver]pool.Driver{browser.DriverPlaywright: driver},
		DefaultDriver: browser.DriverPlaywright,
	})
	require.NoError(s.T(), err)

	pages := pagemanager.New(p, func(pagemanager.Event) {})
	store := sessionstore.NewMemoryStore()
	issuer := auth.NewIssuer([]byte("s3-secret"), time.Minute, time.Hour)

	sess, err := store.Create(context.Background(), session.New(session.Principal{UserID: "bob"}, time.Hour))
	require.NoError(s.T(), err)

	svc := corecontract.NewService(p, executor.New(), pages, store, issuer, nil, nil, time.Hour)
	ctx := context.Background()

	contextID, err := svc.CreateContext(ctx, sess.ID, browsercontext.Capabilities{})
	require.NoError(s.T(), err)

	navResult, err := svc.Execute(ctx, sess.ID, contextID, action.Action{
		Type:     action.TypeNavigate,
		Navigate: &action.NavigateParams{URL: "https://example.test/"},
	})
	require.NoError(s.T(), err)
	s.True(navResult.Success)

	contentResult, err := svc.Execute(ctx, sess.ID, contextID, action.Action{
		Type:     action.TypeContent,
		Selector: "h1",
	})
	require.NoError(s.T(), err)
	s.True(contentResult.Success)
	html, ok := contentResult.Data.(string)
	s.True(ok)
	s.Contains(html, "Example")
}

// S4 Circuit open and half-open.
func (s *ScenarioSuite) TestS4CircuitOpenAndHalfOpen() {
	reg := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold: 5,
		OpenTimeout:      200 * time.Millisecond,
		HalfOpenMaxCalls: 3,
	})
	ctx := context.Background()
	failingCall := func(ctx context.Context) (interface{}, error) {
		return nil, assert.AnError
	}

	for i := 0; i < 5; i++ {
		_, err := reg.Execute(ctx, "page.navigate", failingCall)
		s.Error(err)
	}
	s.Equal(circuitbreaker.StateOpen, reg.State("page.navigate"))

	_, err := reg.Execute(ctx, "page.navigate", failingCall)
	s.Error(err, "the 6th call must be rejected without reaching the driver")

	time.Sleep(250 * time.Millisecond)

	succeedingCall := func(ctx context.Context) (interface{}, error) { return nil, nil }
	for i := 0; i < 3; i++ {
		_, err := reg.Execute(ctx, "page.navigate", succeedingCall)
		s.NoError(err)
	}
	s.Equal(circuitbreaker.StateClosed, reg.State("page.navigate"))
}

// S5 Recycling on use cap.
func (s *ScenarioSuite) TestS5RecyclingOnUseCap() {
	driver := testharness.NewFakeDriver()
	policy := pool.RecyclingPolicy{
		MaxUseCount:       2,
		WeightUsage:       1,
		CriticalThreshold: 0.99,
		DegradedThreshold: 0.5,
	}
	p, err := pool.New(pool.Config{
		MaxSize:         1,
		Drivers:         map[browser.Driver]pool.Driver{browser.DriverPlaywright: driver},
		DefaultDriver:   browser.DriverPlaywright,
		RecyclingPolicy: policy,
	})
	require.NoError(s.T(), err)

	engine := pool.NewRecyclingEngine(p, policy, 10*time.Millisecond, 2)
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(runCtx)

	ctx := context.Background()

	lease1, err := p.Acquire(ctx, pool.AcquireRequest{SessionID: "s1"})
	require.NoError(s.T(), err)
	firstInstance := lease1.InstanceID
	lease1.Release()

	lease2, err := p.Acquire(ctx, pool.AcquireRequest{SessionID: "s2"})
	require.NoError(s.T(), err)
	s.Equal(firstInstance, lease2.InstanceID, "must reuse the idle instance for the second use")
	lease2.Release()

	time.Sleep(50 * time.Millisecond) // let the second release's asynchronous disposal finish

	lease3, err := p.Acquire(ctx, pool.AcquireRequest{SessionID: "s3"})
	require.NoError(s.T(), err)
	s.NotEqual(firstInstance, lease3.InstanceID, "the used-up instance must have been disposed and replaced")
	lease3.Release()
}

// S6 Replication reconcile.
func (s *ScenarioSuite) TestS6ReplicationReconcile() {
	ctx := context.Background()
	primary := sessionstore.NewMemoryStore()
	replica := sessionstore.NewMemoryStore()

	sessA, err := primary.Create(ctx, session.New(session.Principal{UserID: "a"}, time.Hour))
	require.NoError(s.T(), err)
	sessB, err := primary.Create(ctx, session.New(session.Principal{UserID: "b"}, time.Hour))
	require.NoError(s.T(), err)

	_, err = replica.Create(ctx, &session.Session{
		ID: sessB.ID, Principal: sessB.Principal, CreatedAt: sessB.CreatedAt,
		ExpiresAt: sessB.ExpiresAt, LastAccess: sessB.LastAccess,
	})
	require.NoError(s.T(), err)
	sessC, err := replica.Create(ctx, session.New(session.Principal{UserID: "c"}, time.Hour))
	require.NoError(s.T(), err)

	require.NoError(s.T(), primary.Touch(ctx, sessA.ID, time.Now().Add(time.Minute)))

	var mu sync.Mutex
	replicator := sessionstore.NewReplicator(primary, []*sessionstore.Replica{{ID: "r1", Store: replica}}, nil, "", sessionstore.PolicyLastWriteWins, func(sessionstore.ConflictEvent) {
		mu.Lock()
		defer mu.Unlock()
	})

	replicator.FullSync(ctx)

	_, err = replica.Get(ctx, sessA.ID)
	s.NoError(err, "a must be pushed to the replica")
	_, err = replica.Get(ctx, sessB.ID)
	s.NoError(err, "b stays on both sides")
	_, err = replica.Get(ctx, sessC.ID)
	s.Error(err, "c must be removed from the replica, the primary no longer has it")
}
