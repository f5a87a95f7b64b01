package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/smarttransit/rail-reservation-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingLookup counts calls reaching the underlying timetable
type countingLookup struct {
	next  TrainLookup
	mu    sync.Mutex
	calls int
}

func (l *countingLookup) GetTrain(ctx context.Context, trainNumber, serviceDate string) (*models.TrainInfo, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return l.next.GetTrain(ctx, trainNumber, serviceDate)
}

func (l *countingLookup) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func newCachedLookup(t *testing.T) (*CachedTrainLookup, *countingLookup, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	counting := &countingLookup{next: NewStaticTrainLookup(testTrain())}
	return NewCachedTrainLookup(counting, client, 5*time.Minute, testLogger()), counting, mr
}

func TestCachedTrainLookup_ServesFromCache(t *testing.T) {
	cache, counting, mr := newCachedLookup(t)
	ctx := context.Background()

	first, err := cache.GetTrain(ctx, "G101", "2025-12-15")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.True(t, mr.Exists("train:G101:2025-12-15"))
	assert.Equal(t, 5*time.Minute, mr.TTL("train:G101:2025-12-15"))

	second, err := cache.GetTrain(ctx, "G101", "2025-12-15")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, counting.Calls())

	mr.FastForward(6 * time.Minute)
	_, err = cache.GetTrain(ctx, "G101", "2025-12-15")
	require.NoError(t, err)
	assert.Equal(t, 2, counting.Calls(), "expired entry is refetched")
}

func TestCachedTrainLookup_MissingTrainIsNotCached(t *testing.T) {
	cache, counting, mr := newCachedLookup(t)

	train, err := cache.GetTrain(context.Background(), "Z99", "2025-12-15")
	require.NoError(t, err)
	assert.Nil(t, train)
	assert.False(t, mr.Exists("train:Z99:2025-12-15"))

	_, _ = cache.GetTrain(context.Background(), "Z99", "2025-12-15")
	assert.Equal(t, 2, counting.Calls())
}

func TestCachedTrainLookup_Invalidate(t *testing.T) {
	cache, counting, mr := newCachedLookup(t)
	ctx := context.Background()

	_, err := cache.GetTrain(ctx, "G101", "2025-12-15")
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(ctx, "G101", "2025-12-15"))
	assert.False(t, mr.Exists("train:G101:2025-12-15"))

	_, err = cache.GetTrain(ctx, "G101", "2025-12-15")
	require.NoError(t, err)
	assert.Equal(t, 2, counting.Calls())
}

func TestCachedTrainLookup_DegradesWhenRedisIsDown(t *testing.T) {
	cache, counting, mr := newCachedLookup(t)
	mr.Close()

	train, err := cache.GetTrain(context.Background(), "G101", "2025-12-15")
	require.NoError(t, err)
	require.NotNil(t, train)
	assert.Equal(t, "G101", train.TrainNumber)
	assert.Equal(t, 1, counting.Calls())
}

func TestCachedTrainLookup_UnreadableEntryIsRefetched(t *testing.T) {
	cache, counting, mr := newCachedLookup(t)
	require.NoError(t, mr.Set("train:G101:2025-12-15", "{not json"))

	train, err := cache.GetTrain(context.Background(), "G101", "2025-12-15")
	require.NoError(t, err)
	require.NotNil(t, train)
	assert.Equal(t, 1, counting.Calls())
}

func TestCachedTrainLookup_NilClientPassesThrough(t *testing.T) {
	counting := &countingLookup{next: NewStaticTrainLookup(testTrain())}
	cache := NewCachedTrainLookup(counting, nil, time.Minute, testLogger())

	for i := 0; i < 3; i++ {
		_, err := cache.GetTrain(context.Background(), "G101", "2025-12-15")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, counting.Calls())
	assert.NoError(t, cache.Invalidate(context.Background(), "G101", "2025-12-15"))
}
