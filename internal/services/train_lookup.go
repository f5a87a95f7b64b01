package services

import (
	"context"
	"sync"

	"github.com/smarttransit/rail-reservation-backend/internal/models"
)

// TrainLookup answers whether a train runs on a date and which classes it sells.
// A train that does not run is reported as (nil, nil).
type TrainLookup interface {
	GetTrain(ctx context.Context, trainNumber, serviceDate string) (*models.TrainInfo, error)
}

// StaticTrainLookup serves a fixed timetable held in memory
type StaticTrainLookup struct {
	mu     sync.RWMutex
	trains map[string]models.TrainInfo
}

// NewStaticTrainLookup creates a lookup over the given trains
func NewStaticTrainLookup(trains ...models.TrainInfo) *StaticTrainLookup {
	l := &StaticTrainLookup{trains: make(map[string]models.TrainInfo)}
	for _, t := range trains {
		l.Put(t)
	}
	return l
}

// Put adds or replaces a train
func (l *StaticTrainLookup) Put(train models.TrainInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trains[train.TrainNumber+"|"+train.ServiceDate] = train
}

func (l *StaticTrainLookup) GetTrain(ctx context.Context, trainNumber, serviceDate string) (*models.TrainInfo, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	train, ok := l.trains[trainNumber+"|"+serviceDate]
	if !ok {
		return nil, nil
	}
	train.Classes = append([]models.TrainClass(nil), train.Classes...)
	return &train, nil
}
