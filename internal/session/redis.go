package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/redis/go-redis/v9"
)

// compile-time check that *RedisStore is a context-aware scs store
var _ scs.CtxStore = (*RedisStore)(nil)

// DefaultRedisPrefix namespaces session keys in a shared Redis database.
const DefaultRedisPrefix = "secrets:session:"

// RedisStore keeps scs session data in Redis, so sessions survive restarts
// and are shared by every replica behind a load balancer.
//
// Each session is one string key holding scs's encoded blob. Redis expires
// the key at the session deadline, so there is no cleanup goroutine.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisClient builds a go-redis client from plain settings.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisStore wraps an existing client. The caller owns the client and
// closes it on shutdown.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: DefaultRedisPrefix}
}

// FindCtx returns the session data for token. A missing or expired key is
// (nil, false, nil), as scs expects.
func (s *RedisStore) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	b, err := s.client.Get(ctx, s.prefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("session/redis: finding session: %w", err)
	}
	return b, true, nil
}

// CommitCtx stores b under token until expiry.
func (s *RedisStore) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	ttl := time.Until(expiry)
	if ttl <= 0 {
		return s.DeleteCtx(ctx, token)
	}
	if err := s.client.Set(ctx, s.prefix+token, b, ttl).Err(); err != nil {
		return fmt.Errorf("session/redis: committing session: %w", err)
	}
	return nil
}

// DeleteCtx removes the session. Deleting a missing key is not an error.
func (s *RedisStore) DeleteCtx(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.prefix+token).Err(); err != nil {
		return fmt.Errorf("session/redis: deleting session: %w", err)
	}
	return nil
}

// Find, Commit and Delete satisfy the plain scs.Store interface. scs calls
// the Ctx variants whenever the store provides them.

func (s *RedisStore) Find(token string) ([]byte, bool, error) {
	return s.FindCtx(context.Background(), token)
}

func (s *RedisStore) Commit(token string, b []byte, expiry time.Time) error {
	return s.CommitCtx(context.Background(), token, b, expiry)
}

func (s *RedisStore) Delete(token string) error {
	return s.DeleteCtx(context.Background(), token)
}
