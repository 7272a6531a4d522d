package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps states across restarts. Abandoned dialogues expire after
// ttl.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Get(ctx context.Context, userID int64) (State, error) {
	data, err := r.client.Get(ctx, stateKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Idle(), nil
		}
		return State{}, fmt.Errorf("getting state: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("unmarshalling state: %w", err)
	}
	return state, nil
}

func (r *RedisStore) Set(ctx context.Context, userID int64, state State) error {
	if state.IsIdle() {
		return r.Clear(ctx, userID)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}
	if err := r.client.Set(ctx, stateKey(userID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, stateKey(userID)).Err(); err != nil {
		return fmt.Errorf("deleting state: %w", err)
	}
	return nil
}

func stateKey(userID int64) string {
	return fmt.Sprintf("promobot:conversation:%d", userID)
}
