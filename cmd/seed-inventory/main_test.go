package main

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation-backend/internal/models"
	"github.com/smarttransit/rail-reservation-backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryTimetable is an in-memory timetable that can be written and read
type memoryTimetable struct {
	mu     sync.Mutex
	trains map[string]models.TrainInfo
	err    error
}

func (m *memoryTimetable) UpsertTrain(ctx context.Context, train *models.TrainInfo) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.trains == nil {
		m.trains = make(map[string]models.TrainInfo)
	}
	m.trains[train.TrainNumber+"/"+train.ServiceDate] = *train
	return nil
}

func (m *memoryTimetable) GetTrain(ctx context.Context, trainNumber, serviceDate string) (*models.TrainInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	train, ok := m.trains[trainNumber+"/"+serviceDate]
	if !ok {
		return nil, nil
	}
	return &train, nil
}

func seedTrain(active bool) models.TrainInfo {
	return models.TrainInfo{
		TrainNumber: "G101",
		ServiceDate: "2025-12-15",
		Origin:      "Beijing",
		Destination: "Shanghai",
		Active:      active,
		Classes:     []models.TrainClass{{SeatClass: "second", TotalSeats: 180, UnitPrice: 55.5}},
	}
}

func TestWriteTimetable_DeactivationIsVisibleThroughCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	timetable := &memoryTimetable{}
	cache := services.NewCachedTrainLookup(timetable, client, 10*time.Minute, logger)
	ctx := context.Background()

	train := seedTrain(true)
	require.NoError(t, writeTimetable(ctx, timetable, cache, &train))

	cached, err := cache.GetTrain(ctx, "G101", "2025-12-15")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.True(t, cached.Active)
	assert.True(t, mr.Exists("train:G101:2025-12-15"))

	deactivated := seedTrain(false)
	require.NoError(t, writeTimetable(ctx, timetable, cache, &deactivated))
	assert.False(t, mr.Exists("train:G101:2025-12-15"))

	refreshed, err := cache.GetTrain(ctx, "G101", "2025-12-15")
	require.NoError(t, err)
	require.NotNil(t, refreshed)
	assert.False(t, refreshed.Active)
}

func TestWriteTimetable(t *testing.T) {
	tests := []struct {
		name        string
		writerErr   error
		withCache   bool
		expectedErr string
	}{
		{name: "Without cache", withCache: false},
		{name: "With cache", withCache: true},
		{name: "Write failure skips invalidation", writerErr: errors.New("connection reset"), withCache: true,
			expectedErr: "failed to write timetable: connection reset"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			timetable := &memoryTimetable{err: tc.writerErr}
			var cache trainCacheInvalidator
			invalidations := &recordingInvalidator{}
			if tc.withCache {
				cache = invalidations
			}

			train := seedTrain(true)
			err := writeTimetable(context.Background(), timetable, cache, &train)
			if tc.expectedErr != "" {
				assert.EqualError(t, err, tc.expectedErr)
				assert.Empty(t, invalidations.keys)
				return
			}
			require.NoError(t, err)
			if tc.withCache {
				assert.Equal(t, []string{"G101/2025-12-15"}, invalidations.keys)
			}
		})
	}
}

type recordingInvalidator struct {
	keys []string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, trainNumber, serviceDate string) error {
	r.keys = append(r.keys, trainNumber+"/"+serviceDate)
	return nil
}
