package infra

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"pacer-gateway/middleware/ratelimit/domain"
)

func TestMemoryStatsStore_Record(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	ctx := context.Background()

	events := []domain.StatsEvent{
		{Key: "a", Mode: domain.ModeConsume, Allowed: true, Method: "GET", Path: "/x"},
		{Key: "a", Mode: domain.ModeConsume, Allowed: false, Method: "GET", Path: "/x"},
		{Key: "b", Mode: domain.ModeQuery, Allowed: true, Degraded: true},
	}
	for _, ev := range events {
		assert.NoError(t, s.Record(ctx, ev))
	}

	assert.Equal(t, Counters{Allowed: 2, Denied: 1, Degraded: 1}, s.Total())
	assert.Equal(t, Counters{Allowed: 1, Denied: 1}, s.ByMode(domain.ModeConsume))
	assert.Equal(t, Counters{Allowed: 1, Degraded: 1}, s.ByMode(domain.ModeQuery))
	assert.Equal(t, map[string]Counters{"GET /x": {Allowed: 1, Denied: 1}}, s.ByRoute())
	assert.Equal(t, Counters{Allowed: 1, Denied: 1}, s.ByKey()["a"])
	assert.Equal(t, Counters{Allowed: 1, Degraded: 1}, s.ByKey()["b"])
}

func TestMemoryStatsStore_KeysNotTrackedByDefault(t *testing.T) {
	s := NewMemoryStatsStore()
	_ = s.Record(context.Background(), domain.StatsEvent{Key: "a", Mode: domain.ModeConsume})

	assert.Empty(t, s.ByKey())
	assert.Empty(t, s.ByRoute())
	assert.Equal(t, int64(1), s.Total().Denied)
}
