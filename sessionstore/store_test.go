package sessionstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetcore/models/session"
	"fleetcore/sessionstore"
)

func newPrincipal() session.Principal {
	return session.Principal{UserID: "u1", DisplayName: "Ada", Roles: []session.Role{session.RoleOperator}}
}

func TestMemoryStoreCreateGetUpdateDelete(t *testing.T) {
	store := sessionstore.NewMemoryStore()
	ctx := context.Background()

	s := session.New(newPrincipal(), time.Hour)
	created, err := store.Create(ctx, s)
	require.NoError(t, err)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Principal.DisplayName)

	newName := "Grace"
	updated, err := store.Update(ctx, created.ID, session.Patch{DisplayName: &newName})
	require.NoError(t, err)
	assert.Equal(t, "Grace", updated.Principal.DisplayName)

	ok, err := store.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = store.Get(ctx, created.ID)
	assert.Error(t, err)
}

func TestMemoryStoreGetHidesExpiredEntries(t *testing.T) {
	store := sessionstore.NewMemoryStore()
	ctx := context.Background()

	s := session.New(newPrincipal(), -time.Minute) // already expired
	created, err := store.Create(ctx, s)
	require.NoError(t, err)

	_, err = store.Get(ctx, created.ID)
	assert.Error(t, err)
}

func TestMemoryStoreListByUser(t *testing.T) {
	store := sessionstore.NewMemoryStore()
	ctx := context.Background()

	_, err := store.Create(ctx, session.New(newPrincipal(), time.Hour))
	require.NoError(t, err)
	_, err = store.Create(ctx, session.New(newPrincipal(), time.Hour))
	require.NoError(t, err)

	list, err := store.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSweeperRemovesExpiredEntries(t *testing.T) {
	store := sessionstore.NewMemoryStore()
	ctx := context.Background()

	created, err := store.Create(ctx, session.New(newPrincipal(), -time.Minute))
	require.NoError(t, err)

	sweeper := sessionstore.NewSweeper(store, time.Hour)
	removed := sweeper.SweepOnce(ctx)
	assert.Equal(t, 1, removed)

	list, err := store.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.NotContains(t, idsOf(list), created.ID)
}

func idsOf(list []*session.Session) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.ID
	}
	return out
}

func TestReplicatorPublishAppliesToReplicas(t *testing.T) {
	primary := sessionstore.NewMemoryStore()
	replicaStore := sessionstore.NewMemoryStore()
	replica := &sessionstore.Replica{ID: "r1", Store: replicaStore}

	replicator := sessionstore.NewReplicator(primary, []*sessionstore.Replica{replica}, nil, "", sessionstore.PolicyLastWriteWins, nil)

	s := session.New(newPrincipal(), time.Hour)
	created, err := primary.Create(context.Background(), s)
	require.NoError(t, err)

	replicator.Publish(context.Background(), sessionstore.ReplicateOp{Kind: sessionstore.OpCreate, SessionID: created.ID, Session: created})

	got, err := replicaStore.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestReplicatorFullSyncPushesMissingAndRemovesExtra(t *testing.T) {
	primary := sessionstore.NewMemoryStore()
	replicaStore := sessionstore.NewMemoryStore()
	replica := &sessionstore.Replica{ID: "r1", Store: replicaStore}
	replicator := sessionstore.NewReplicator(primary, []*sessionstore.Replica{replica}, nil, "", sessionstore.PolicyLastWriteWins, nil)

	ctx := context.Background()
	created, err := primary.Create(ctx, session.New(newPrincipal(), time.Hour))
	require.NoError(t, err)

	extra, err := replicaStore.Create(ctx, session.New(newPrincipal(), time.Hour))
	require.NoError(t, err)

	replicator.FullSync(ctx)

	_, err = replicaStore.Get(ctx, created.ID)
	assert.NoError(t, err, "missing entry should have been pushed to the replica")

	_, err = replicaStore.Get(ctx, extra.ID)
	assert.Error(t, err, "entry absent from primary should have been removed from the replica")
}
