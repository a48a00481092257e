package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrPassInProgress is returned when another pass holds the sweep lease.
var ErrPassInProgress = errors.New("reconcile: another pass is in progress")

// Locker grants the right to run one pass at a time.
type Locker interface {
	TryLock(ctx context.Context) (release func(), err error)
}

// LocalLock serialises passes inside one process.
type LocalLock struct {
	mu sync.Mutex
}

func (l *LocalLock) TryLock(context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, ErrPassInProgress
	}
	return l.mu.Unlock, nil
}

// 自分のトークンのときだけ削除する
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLock is a lease shared by every instance pointed at the same Redis.
// The TTL bounds how long a crashed holder blocks the others.
type RedisLock struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{rdb: rdb, key: key, ttl: ttl}
}

func (l *RedisLock) TryLock(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire sweep lease: %w", err)
	}
	if !ok {
		return nil, ErrPassInProgress
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Err()
	}, nil
}
