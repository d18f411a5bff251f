package infra

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacer-gateway/middleware/ratelimit/domain"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisQuotaStore_ConsumeBatch(t *testing.T) {
	mr, client := setupMiniredis(t)
	s := NewRedisQuotaStore(client)
	ctx := context.Background()

	got, err := s.ExecAtomic(ctx, consumeBatch("alice", 5, 10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4, 10}, got)

	got, err = s.ExecAtomic(ctx, consumeBatch("alice", 5, 10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 3, 10}, got)

	v, err := mr.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, "3", v)
	assert.Equal(t, 10*time.Second, mr.TTL("alice"))
}

func TestRedisQuotaStore_QueryBatch(t *testing.T) {
	_, client := setupMiniredis(t)
	s := NewRedisQuotaStore(client)

	got, err := s.ExecAtomic(context.Background(), []domain.Command{
		{Op: domain.OpSetNX, Key: "q", Value: 7, TTL: time.Minute},
		{Op: domain.OpGet, Key: "q"},
		{Op: domain.OpTTL, Key: "q"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 7, 60}, got)
}

func TestRedisQuotaStore_WindowExpires(t *testing.T) {
	mr, client := setupMiniredis(t)
	s := NewRedisQuotaStore(client)
	ctx := context.Background()

	_, err := s.ExecAtomic(ctx, consumeBatch("w", 2, 2*time.Second))
	require.NoError(t, err)
	_, err = s.ExecAtomic(ctx, consumeBatch("w", 2, 2*time.Second))
	require.NoError(t, err)

	mr.FastForward(3 * time.Second)

	got, err := s.ExecAtomic(ctx, consumeBatch("w", 2, 2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1, 2}, got)
}

func TestRedisQuotaStore_TTLSpecialValues(t *testing.T) {
	mr, client := setupMiniredis(t)
	require.NoError(t, mr.Set("forever", "3"))
	s := NewRedisQuotaStore(client)

	got, err := s.ExecAtomic(context.Background(), []domain.Command{
		{Op: domain.OpTTL, Key: "forever"},
		{Op: domain.OpTTL, Key: "missing"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{-1, -2}, got)
}

func TestRedisQuotaStore_NonNumericValueIsMalformed(t *testing.T) {
	mr, client := setupMiniredis(t)
	require.NoError(t, mr.Set("text", "abc"))
	s := NewRedisQuotaStore(client)

	_, err := s.ExecAtomic(context.Background(), []domain.Command{
		{Op: domain.OpSetNX, Key: "text", Value: 1, TTL: time.Minute},
		{Op: domain.OpGet, Key: "text"},
	})
	assert.ErrorIs(t, err, domain.ErrMalformedReply)
}

func TestRedisQuotaStore_ServerErrorFailsWholeBatch(t *testing.T) {
	mr, client := setupMiniredis(t)
	s := NewRedisQuotaStore(client)

	mr.SetError("LOADING Redis is loading the dataset in memory")
	_, err := s.ExecAtomic(context.Background(), consumeBatch("k", 1, time.Second))
	assert.Error(t, err)

	mr.SetError("")
	assert.False(t, mr.Exists("k"))
}

func TestRedisQuotaStore_UnreachableServer(t *testing.T) {
	mr, client := setupMiniredis(t)
	s := NewRedisQuotaStore(client)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.ExecAtomic(ctx, consumeBatch("k", 1, time.Second))
	assert.Error(t, err)
	assert.Error(t, s.Ping(ctx))
}

func TestRedisQuotaStore_Concurrent(t *testing.T) {
	mr, client := setupMiniredis(t)
	s := NewRedisQuotaStore(client)

	const total = 60
	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ExecAtomic(context.Background(), consumeBatch("c", 10, time.Minute)); err != nil {
				t.Errorf("ExecAtomic() error = %v", err)
			}
		}()
	}
	wg.Wait()

	v, err := mr.Get("c")
	require.NoError(t, err)
	assert.Equal(t, "-50", v, "counter keeps going below zero")
}

func TestTTLSeconds(t *testing.T) {
	assert.Equal(t, int64(-1), ttlSeconds(time.Duration(-1)))
	assert.Equal(t, int64(-2), ttlSeconds(time.Duration(-2)))
	assert.Equal(t, int64(42), ttlSeconds(42*time.Second))
}
