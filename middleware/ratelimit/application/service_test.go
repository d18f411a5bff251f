package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pacer-gateway/middleware/ratelimit/domain"
	"pacer-gateway/middleware/ratelimit/infra"
)

type recordingStore struct {
	inner domain.QuotaStore
	calls int
}

func (s *recordingStore) ExecAtomic(ctx context.Context, cmds []domain.Command) ([]int64, error) {
	s.calls++
	return s.inner.ExecAtomic(ctx, cmds)
}

func newTestService(cfg domain.Config) (*Service, *recordingStore, *fakeClock) {
	clk := &fakeClock{now: epoch}
	store := &recordingStore{inner: infra.NewMemoryQuotaStore(infra.WithClock(clk.Now))}
	return &Service{Config: cfg, Executor: NewExecutor(store, cfg)}, store, clk
}

func TestService_ConsumeUsesResolvedOverrides(t *testing.T) {
	svc, _, _ := newTestService(domain.Config{DefaultLimit: 100, DefaultWindow: 3600})

	res := svc.Consume(context.Background(), domain.Consumer{ID: "bob", Limit: 1234, Reset: 5678})
	require.NoError(t, res.Error)
	assert.Equal(t, 1234, res.Limit)
	assert.Equal(t, 1233, res.Remaining)
	assert.Equal(t, 5678, res.Reset)
}

func TestService_QueryDoesNotMutate(t *testing.T) {
	cfg := domain.Config{DefaultLimit: 5, DefaultWindow: 10}
	withQueries, _, _ := newTestService(cfg)
	plain, _, _ := newTestService(cfg)
	ctx := context.Background()

	var got, want []int
	for i := 0; i < 6; i++ {
		q := withQueries.Query(ctx, "alice")
		require.NoError(t, q.Error)
		withQueries.Query(ctx, "alice")

		got = append(got, withQueries.Consume(ctx, "alice").Remaining)
		want = append(want, plain.Consume(ctx, "alice").Remaining)
	}
	assert.Equal(t, want, got)
	assert.Equal(t, []int{4, 3, 2, 1, 0, 0}, got)
}

func TestService_QueryOnFreshConsumerReportsFullLimit(t *testing.T) {
	svc, _, _ := newTestService(domain.Config{DefaultLimit: 5, DefaultWindow: 10})

	res := svc.Query(context.Background(), "new")
	require.NoError(t, res.Error)
	assert.Equal(t, 5, res.Remaining)
	assert.True(t, res.Allowed)
	assert.Equal(t, 10, res.Reset)
}

func TestService_ExistingWindowIsNeverReset(t *testing.T) {
	svc, _, clk := newTestService(domain.Config{DefaultLimit: 5, DefaultWindow: 10})
	ctx := context.Background()

	svc.Consume(ctx, "dave")
	svc.Consume(ctx, "dave")
	clk.Advance(3 * time.Second)

	// outra chamada com limit/reset diferentes não recria o contador
	res := svc.Consume(ctx, domain.Consumer{ID: "dave", Limit: 50, Reset: 100})
	require.NoError(t, res.Error)
	assert.Equal(t, 2, res.Remaining)
	assert.Equal(t, 7, res.Reset)

	res = svc.Query(ctx, domain.Consumer{ID: "dave", Limit: 50, Reset: 100})
	assert.Equal(t, 2, res.Remaining)
	assert.Equal(t, 7, res.Reset)
}

func TestService_MalformedConsumerSkipsStore(t *testing.T) {
	svc, store, _ := newTestService(domain.Config{DefaultLimit: 5, DefaultWindow: 10, FailOpen: true})

	res := svc.Consume(context.Background(), domain.Consumer{Limit: 3})
	assert.ErrorIs(t, res.Error, domain.ErrInvalidConsumer)
	assert.False(t, res.Allowed, "malformed input is denied even when failing open")
	assert.Equal(t, 0, res.Remaining)
	assert.Empty(t, res.ID)
	assert.Equal(t, 0, store.calls)
}

func TestService_InvalidOverrideEchoesID(t *testing.T) {
	svc, store, _ := newTestService(domain.Config{DefaultLimit: 5, DefaultWindow: 10, FailOpen: true})

	res := svc.Consume(context.Background(), domain.Consumer{ID: "frank", Reset: -1})
	assert.ErrorIs(t, res.Error, domain.ErrInvalidOverride)
	assert.Equal(t, "frank", res.ID)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, store.calls)
}

func TestService_FloatIdentifierIsStringified(t *testing.T) {
	svc, _, _ := newTestService(domain.Config{DefaultLimit: 5, DefaultWindow: 10})

	res := svc.Consume(context.Background(), 3.5)
	require.NoError(t, res.Error)
	assert.Equal(t, "3.5", res.ID)
	assert.Equal(t, 4, res.Remaining)
	assert.True(t, res.Allowed)
}

func TestService_RecordsStats(t *testing.T) {
	svc, _, _ := newTestService(domain.Config{DefaultLimit: 1, DefaultWindow: 10})
	stats := infra.NewMemoryStatsStore(infra.WithTrackKeys(true))
	svc.Stats = stats

	ctx := WithRequestInfo(context.Background(), "GET", "/items")
	svc.Consume(ctx, "erin")
	svc.Consume(ctx, "erin")
	svc.Query(context.Background(), "erin")

	assert.Equal(t, infra.Counters{Allowed: 0, Denied: 3}, stats.Total())
	assert.Equal(t, infra.Counters{Denied: 2}, stats.ByMode(domain.ModeConsume))
	assert.Equal(t, infra.Counters{Denied: 2}, stats.ByRoute()["GET /items"])
	assert.Equal(t, int64(3), stats.ByKey()["erin"].Denied)
}

func TestService_RecordsDegradedStats(t *testing.T) {
	cfg := domain.Config{DefaultLimit: 3, DefaultWindow: 10, FailOpen: true}
	stats := infra.NewMemoryStatsStore()
	svc := &Service{Config: cfg, Executor: NewExecutor(failingStore{err: context.DeadlineExceeded}, cfg), Stats: stats}

	res := svc.Consume(context.Background(), "frank")
	assert.True(t, res.Allowed)
	assert.Equal(t, infra.Counters{Allowed: 1, Degraded: 1}, stats.Total())
}
