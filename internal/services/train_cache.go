package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation-backend/internal/models"
)

// CachedTrainLookup caches timetable answers in Redis for a fixed TTL.
// Redis failures degrade to the underlying lookup. A nil client disables caching.
type CachedTrainLookup struct {
	next   TrainLookup
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCachedTrainLookup wraps next with a Redis cache
func NewCachedTrainLookup(next TrainLookup, client *redis.Client, ttl time.Duration, logger *logrus.Logger) *CachedTrainLookup {
	return &CachedTrainLookup{next: next, client: client, ttl: ttl, logger: logger}
}

func trainCacheKey(trainNumber, serviceDate string) string {
	return fmt.Sprintf("train:%s:%s", trainNumber, serviceDate)
}

func (c *CachedTrainLookup) GetTrain(ctx context.Context, trainNumber, serviceDate string) (*models.TrainInfo, error) {
	if c.client == nil || c.ttl <= 0 {
		return c.next.GetTrain(ctx, trainNumber, serviceDate)
	}

	key := trainCacheKey(trainNumber, serviceDate)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var train models.TrainInfo
		if jsonErr := json.Unmarshal(raw, &train); jsonErr == nil {
			return &train, nil
		}
		c.logger.WithField("cache_key", key).Warn("Discarding unreadable cached train")
	case !errors.Is(err, redis.Nil):
		c.logger.WithError(err).WithField("cache_key", key).Warn("Train cache read failed")
	}

	train, err := c.next.GetTrain(ctx, trainNumber, serviceDate)
	if err != nil || train == nil {
		return train, err
	}

	if payload, err := json.Marshal(train); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.WithError(err).WithField("cache_key", key).Warn("Train cache write failed")
		}
	}
	return train, nil
}

// Invalidate drops the cached answer for a train/date
func (c *CachedTrainLookup) Invalidate(ctx context.Context, trainNumber, serviceDate string) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, trainCacheKey(trainNumber, serviceDate)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate train cache: %w", err)
	}
	return nil
}
