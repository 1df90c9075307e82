package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "session:"

var _ Store = (*Redis)(nil)

// Redis stores sessions as JSON under session:<token> with a TTL.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl, now: time.Now}
}

func (r *Redis) Create(ctx context.Context, email string) (Session, error) {
	s, err := newSession(email, r.now(), r.ttl)
	if err != nil {
		return Session{}, err
	}
	b, err := json.Marshal(s)
	if err != nil {
		return Session{}, err
	}
	if err := r.rdb.Set(ctx, keyPrefix+s.Token, b, r.ttl).Err(); err != nil {
		return Session{}, fmt.Errorf("store session: %w", err)
	}
	return s, nil
}

func (r *Redis) Get(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrNotFound
	}
	b, err := r.rdb.Get(ctx, keyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}

func (r *Redis) Delete(ctx context.Context, token string) error {
	return r.rdb.Del(ctx, keyPrefix+token).Err()
}
