// Package session resolves session tokens to the member acting on a request.
// Sessions are written by the sign-in service; this service only reads them.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"confreg/internal/workflow"
)

var ErrNotFound = errors.New("session not found")

const keyPrefix = "session:"

type Store interface {
	Get(ctx context.Context, token string) (*workflow.Actor, error)
}

type RedisStore struct {
	c   redis.Cmdable
	ttl time.Duration
}

func NewRedisStore(c redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{c: c, ttl: ttl}
}

func Key(token string) string { return keyPrefix + token }

func (s *RedisStore) Get(ctx context.Context, token string) (*workflow.Actor, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	val, err := s.c.Get(ctx, Key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	return decode(val)
}

func (s *RedisStore) Put(ctx context.Context, token string, actor workflow.Actor) error {
	val, err := encode(actor)
	if err != nil {
		return err
	}
	return s.c.Set(ctx, Key(token), val, s.ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	return s.c.Del(ctx, Key(token)).Err()
}

func encode(actor workflow.Actor) (string, error) {
	b, err := json.Marshal(actor)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	return string(b), nil
}

func decode(val string) (*workflow.Actor, error) {
	var actor workflow.Actor
	if err := json.Unmarshal([]byte(val), &actor); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if actor.MemberID <= 0 {
		return nil, fmt.Errorf("decode session: missing member_id")
	}
	return &actor, nil
}
