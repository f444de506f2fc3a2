package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fleetcore/models/session"
)

const userSetBuffer = time.Hour

func sessionKey(id string) string  { return "session:" + id }
func userSetKey(userID string) string { return "user_sessions:" + userID }

// RedisStore is the Redis-like remote backend from spec §4.7: string-valued
// keys with prefix session:{id}, a per-user set user_sessions:{userId}, and
// a per-key TTL synchronized to ExpiresAt.
type RedisStore struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

func encode(s *session.Session) ([]byte, error) { return json.Marshal(s) }

func decode(data []byte) (*session.Session, error) {
	var s session.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("sessionstore: malformed session payload: %w", err)
	}
	if s.ID == "" || s.ExpiresAt.IsZero() {
		return nil, fmt.Errorf("sessionstore: stale or incomplete session schema")
	}
	return &s, nil
}

func (r *RedisStore) Create(ctx context.Context, s *session.Session) (*session.Session, error) {
	clone := s.Clone()
	data, err := encode(clone)
	if err != nil {
		return nil, err
	}
	ttl := time.Until(clone.ExpiresAt)
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(clone.ID), data, ttl)
	pipe.SAdd(ctx, userSetKey(clone.Principal.UserID), clone.ID)
	pipe.Expire(ctx, userSetKey(clone.Principal.UserID), ttl+userSetBuffer)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("sessionstore: create: %w", err)
	}
	return clone, nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*session.Session, error) {
	data, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("sessionstore: get: %w", err)
	}
	s, err := decode(data)
	if err != nil {
		return nil, err
	}
	if s.Expired(r.now()) {
		return nil, notFound(id)
	}
	return s, nil
}

func (r *RedisStore) Update(ctx context.Context, id string, patch session.Patch) (*session.Session, error) {
	s, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Apply(patch)
	data, err := encode(s)
	if err != nil {
		return nil, err
	}
	ttl := time.Until(s.ExpiresAt)
	if err := r.rdb.Set(ctx, sessionKey(id), data, ttl).Err(); err != nil {
		return nil, fmt.Errorf("sessionstore: update: %w", err)
	}
	return s, nil
}

func (r *RedisStore) Touch(ctx context.Context, id string, now time.Time) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	s.Touch(now)
	data, err := encode(s)
	if err != nil {
		return err
	}
	ttl := time.Until(s.ExpiresAt)
	return r.rdb.Set(ctx, sessionKey(id), data, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	s, err := r.peek(ctx, id)
	if err != nil {
		return false, err
	}
	if s == nil {
		return false, nil
	}
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.SRem(ctx, userSetKey(s.Principal.UserID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("sessionstore: delete: %w", err)
	}
	return true, nil
}

// ListByUser reads the user set, then multi-gets (spec §4.7 "Indexing").
func (r *RedisStore) ListByUser(ctx context.Context, userID string) ([]*session.Session, error) {
	ids, err := r.rdb.SMembers(ctx, userSetKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("sessionstore: list_by_user: %w", err)
	}
	out := make([]*session.Session, 0, len(ids))
	for _, id := range ids {
		s, err := r.Get(ctx, id)
		if err != nil {
			continue // expired or raced with a sweep; not an error for the caller
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	return r.rdb.FlushDB(ctx).Err()
}

func (r *RedisStore) ids(ctx context.Context) ([]string, error) {
	var out []string
	iter := r.rdb.Scan(ctx, 0, "session:*", 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val()[len("session:"):])
	}
	return out, iter.Err()
}

func (r *RedisStore) peek(ctx context.Context, id string) (*session.Session, error) {
	data, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sessionstore: peek: %w", err)
	}
	return decode(data)
}

func (r *RedisStore) hardDelete(ctx context.Context, id string) error {
	s, err := r.peek(ctx, id)
	if err != nil {
		return err
	}
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	if s != nil {
		pipe.SRem(ctx, userSetKey(s.Principal.UserID), id)
	}
	_, err = pipe.Exec(ctx)
	return err
}

var _ Store = (*RedisStore)(nil)
