package sessionstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"fleetcore/models/session"
	"fleetcore/retry"
)

// OpKind names a replicate-op's mutation kind.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// ReplicateOp is queued per-replica on every primary mutation (spec §4.8).
type ReplicateOp struct {
	Kind      OpKind
	SessionID string
	Session   *session.Session // nil for OpDelete
}

// ConflictPolicy names how full-sync reconciles a divergent entry.
type ConflictPolicy string

const (
	PolicyLastWriteWins ConflictPolicy = "last-write-wins"
	PolicyOldestWins    ConflictPolicy = "oldest-wins"
	PolicyManual        ConflictPolicy = "manual"
)

// ConflictEvent is emitted under PolicyManual instead of auto-resolving.
type ConflictEvent struct {
	SessionID string
	PrimaryID string
	ReplicaID string
	At        time.Time
}

const degradeThreshold = 5

type replicaMetrics struct {
	mu              sync.Mutex
	consecutiveFails int
	degraded        bool
}

// Replica is one follower store kept in sync with the primary.
type Replica struct {
	ID      string
	Store   Store
	metrics replicaMetrics
}

func (r *Replica) recordResult(err error) {
	r.metrics.mu.Lock()
	defer r.metrics.mu.Unlock()
	if err != nil {
		r.metrics.consecutiveFails++
		if r.metrics.consecutiveFails >= degradeThreshold {
			r.metrics.degraded = true
		}
		return
	}
	r.metrics.consecutiveFails = 0
	r.metrics.degraded = false
}

// Degraded reports whether this replica has crossed the consecutive-failure
// threshold and is currently excluded from fan-out (spec §4.8).
func (r *Replica) Degraded() bool {
	r.metrics.mu.Lock()
	defer r.metrics.mu.Unlock()
	return r.metrics.degraded
}

// Replicator fans out primary mutations to N replicas with retry, and
// additionally publishes each mutation to a Kafka topic keyed by session id
// for out-of-process consumers (spec §4.8, transport expansion).
type Replicator struct {
	primary  Store
	replicas []*Replica
	writer   *kafka.Writer
	topic    string
	retryCfg retry.Config
	policy   ConflictPolicy
	onConflict func(ConflictEvent)
	now      func() time.Time
}

// NewReplicator builds a replicator. writer may be nil to disable the Kafka
// publish path (direct per-replica fan-out still runs).
func NewReplicator(primary Store, replicas []*Replica, writer *kafka.Writer, topic string, policy ConflictPolicy, onConflict func(ConflictEvent)) *Replicator {
	if onConflict == nil {
		onConflict = func(ConflictEvent) {}
	}
	return &Replicator{
		primary:    primary,
		replicas:   replicas,
		writer:     writer,
		topic:      topic,
		retryCfg:   retry.DefaultConfig(),
		policy:     policy,
		onConflict: onConflict,
		now:        time.Now,
	}
}

// Publish queues op against every non-degraded replica and the Kafka topic.
// Each replica apply runs in its own goroutine so one slow/failing replica
// cannot block delivery to the others.
func (rp *Replicator) Publish(ctx context.Context, op ReplicateOp) {
	if rp.writer != nil {
		go rp.publishKafka(ctx, op)
	}

	var wg sync.WaitGroup
	for _, replica := range rp.replicas {
		if replica.Degraded() {
			continue
		}
		wg.Add(1)
		go func(r *Replica) {
			defer wg.Done()
			err := retry.Do(ctx, rp.retryCfg, func(ctx context.Context, attempt int) error {
				return applyOp(ctx, r.Store, op)
			})
			r.recordResult(err)
		}(replica)
	}
	wg.Wait()
}

func (rp *Replicator) publishKafka(ctx context.Context, op ReplicateOp) error {
	data, err := json.Marshal(op)
	if err != nil {
		return err
	}
	return rp.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(op.SessionID),
		Value: data,
	})
}

func applyOp(ctx context.Context, store Store, op ReplicateOp) error {
	switch op.Kind {
	case OpCreate:
		_, err := store.Create(ctx, op.Session)
		return err
	case OpUpdate:
		_, err := store.Update(ctx, op.SessionID, session.Patch{
			DisplayName: &op.Session.Principal.DisplayName,
			Roles:       op.Session.Principal.Roles,
			ExpiresAt:   &op.Session.ExpiresAt,
			Metadata:    op.Session.Metadata,
		})
		return err
	case OpDelete:
		_, err := store.Delete(ctx, op.SessionID)
		return err
	}
	return nil
}

// FullSync reconciles each replica against the primary: computes missing and
// extra ids, and applies the configured conflict policy to ids present on
// both sides with diverging LastAccess (spec §4.8).
func (rp *Replicator) FullSync(ctx context.Context) {
	primaryIDs, err := rp.primary.ids(ctx)
	if err != nil {
		return
	}
	primarySet := make(map[string]struct{}, len(primaryIDs))
	for _, id := range primaryIDs {
		primarySet[id] = struct{}{}
	}

	for _, replica := range rp.replicas {
		if replica.Degraded() {
			continue
		}
		rp.syncReplica(ctx, replica, primaryIDs, primarySet)
	}
}

func (rp *Replicator) syncReplica(ctx context.Context, replica *Replica, primaryIDs []string, primarySet map[string]struct{}) {
	replicaIDs, err := replica.Store.ids(ctx)
	if err != nil {
		return
	}
	replicaSet := make(map[string]struct{}, len(replicaIDs))
	for _, id := range replicaIDs {
		replicaSet[id] = struct{}{}
	}

	for _, id := range primaryIDs {
		if _, ok := replicaSet[id]; ok {
			rp.reconcileShared(ctx, replica, id)
			continue
		}
		// missing on replica: push the primary's copy
		if s, err := rp.primary.peek(ctx, id); err == nil && s != nil {
			_ = applyOp(ctx, replica.Store, ReplicateOp{Kind: OpCreate, SessionID: id, Session: s})
		}
	}
	for _, id := range replicaIDs {
		if _, ok := primarySet[id]; !ok {
			// extra on replica: primary no longer has it
			_, _ = replica.Store.Delete(ctx, id)
		}
	}
}

func (rp *Replicator) reconcileShared(ctx context.Context, replica *Replica, id string) {
	primaryCopy, err := rp.primary.peek(ctx, id)
	if err != nil || primaryCopy == nil {
		return
	}
	replicaCopy, err := replica.Store.peek(ctx, id)
	if err != nil || replicaCopy == nil {
		return
	}
	if primaryCopy.LogicalClock == replicaCopy.LogicalClock && primaryCopy.LastAccess.Equal(replicaCopy.LastAccess) {
		return
	}

	switch rp.policy {
	case PolicyLastWriteWins:
		winner := primaryCopy
		if replicaCopy.LogicalClock > primaryCopy.LogicalClock ||
			(replicaCopy.LogicalClock == primaryCopy.LogicalClock && replicaCopy.LastAccess.After(primaryCopy.LastAccess)) {
			winner = replicaCopy
		}
		_ = applyOp(ctx, replica.Store, ReplicateOp{Kind: OpCreate, SessionID: id, Session: winner})
	case PolicyOldestWins:
		winner := primaryCopy
		if replicaCopy.CreatedAt.Before(primaryCopy.CreatedAt) {
			winner = replicaCopy
		}
		_ = applyOp(ctx, replica.Store, ReplicateOp{Kind: OpCreate, SessionID: id, Session: winner})
	case PolicyManual:
		rp.onConflict(ConflictEvent{SessionID: id, PrimaryID: id, ReplicaID: replica.ID, At: rp.now()})
	}
}
