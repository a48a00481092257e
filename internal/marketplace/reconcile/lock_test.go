package reconcile

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLock(t *testing.T) {
	var l LocalLock
	release, err := l.TryLock(context.Background())
	require.NoError(t, err)

	_, err = l.TryLock(context.Background())
	assert.ErrorIs(t, err, ErrPassInProgress)

	release()
	release2, err := l.TryLock(context.Background())
	require.NoError(t, err)
	release2()
}

// Redis が無い環境ではスキップする
func TestRedisLock(t *testing.T) {
	addr := os.Getenv("LENDING_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LENDING_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })

	ctx := context.Background()
	key := "lending:test:sweep:" + uuid.NewString()
	a := NewRedisLock(rdb, key, 5*time.Second)
	b := NewRedisLock(rdb, key, 5*time.Second)

	release, err := a.TryLock(ctx)
	require.NoError(t, err)

	_, err = b.TryLock(ctx)
	assert.ErrorIs(t, err, ErrPassInProgress)

	release()
	releaseB, err := b.TryLock(ctx)
	require.NoError(t, err)
	releaseB()
}
