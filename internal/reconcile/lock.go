package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Locker makes reconciliation runs exclusive. Acquire fails fast with
// ErrAlreadyRunning instead of waiting.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

type MutexLocker struct {
	mu sync.Mutex
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{}
}

func (m *MutexLocker) Acquire(context.Context) (func(), error) {
	if !m.mu.TryLock() {
		return nil, ErrAlreadyRunning
	}
	return m.mu.Unlock, nil
}

// release only deletes the key if we still own it.
var redisUnlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares the lock between the bot and the admin API. The ttl
// bounds how long a crashed holder blocks others.
type RedisLocker struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client: client,
		key:    "promobot:lock:reconcile",
		ttl:    ttl,
	}
}

func (r *RedisLocker) Acquire(ctx context.Context) (func(), error) {
	token := uuid.New().String()
	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}

	return func() {
		// The run context may already be cancelled here.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisUnlockScript.Run(ctx, r.client, []string{r.key}, token).Err(); err != nil {
			logrus.WithField("component", "reconcile").Errorf("failed to release lock: %v", err)
		}
	}, nil
}
