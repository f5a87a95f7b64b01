package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/rail-reservation-backend/internal/database"
	"github.com/smarttransit/rail-reservation-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconciler_ExpiresUnpaidOrdersAfterTTL(t *testing.T) {
	engine := newTestEngine(t, testTrain(), withOrderTTL(time.Millisecond))
	ctx := context.Background()
	ownerID := uuid.New()

	order := createTestOrder(t, engine, ownerID, "second-class", "second-class")
	assert.Equal(t, 178, engine.inventory(t, "second-class").AvailableSeats)

	// Exactly at the deadline the order is still payable
	engine.clock.Advance(time.Millisecond)
	report, err := engine.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Expired)

	engine.clock.Advance(time.Millisecond)
	report, err = engine.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 0, report.Failed)
	assert.Empty(t, report.Drift)

	stored, err := engine.service.GetOrder(ctx, ownerID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, stored.Status)
	assert.Equal(t, 180, engine.inventory(t, "second-class").AvailableSeats)
	assert.Contains(t, engine.publisher.Types(), models.OrderEventExpired)

	// Nothing left to do on the next run
	report, err = engine.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Expired)
	assert.Equal(t, 180, engine.inventory(t, "second-class").AvailableSeats)
}

func TestReconciler_PaidOrdersAreNotExpired(t *testing.T) {
	engine := newTestEngine(t, testTrain(), withOrderTTL(time.Millisecond))
	ctx := context.Background()
	ownerID := uuid.New()

	order := createTestOrder(t, engine, ownerID, "second-class")
	_, err := engine.service.MarkPaid(ctx, ownerID, order.ID, "card", nil)
	require.NoError(t, err)

	engine.clock.Advance(time.Hour)
	report, err := engine.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Expired)
	assert.Equal(t, 0, report.Completed)

	stored, err := engine.service.GetOrder(ctx, ownerID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, stored.Status)
	assert.Equal(t, 179, engine.inventory(t, "second-class").AvailableSeats)
}

func TestReconciler_CompletesDepartedPaidOrders(t *testing.T) {
	engine := newTestEngine(t, testTrain())
	ctx := context.Background()
	ownerID := uuid.New()

	paid := createTestOrder(t, engine, ownerID, "second-class")
	_, err := engine.service.MarkPaid(ctx, ownerID, paid.ID, "card", nil)
	require.NoError(t, err)
	unpaid := createTestOrder(t, engine, ownerID, "first")

	engine.clock.Set(paid.DepartureAt)
	report, err := engine.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)
	// Departure is 2h after booking, so the unpaid order's window has elapsed too
	assert.Equal(t, 1, report.Expired)
	assert.Empty(t, report.Drift)

	stored, err := engine.service.GetOrder(ctx, ownerID, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, stored.Status)
	assert.Equal(t, 179, engine.inventory(t, "second-class").AvailableSeats, "completed orders keep their seats")

	stored, err = engine.service.GetOrder(ctx, ownerID, unpaid.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, stored.Status)
	assert.Equal(t, 48, engine.inventory(t, "first").AvailableSeats)

	stats := engine.reconciler.Stats()
	assert.Equal(t, int64(1), stats.Runs)
	assert.Equal(t, int64(1), stats.TotalCompleted)
	assert.Equal(t, int64(1), stats.TotalExpired)
	require.NotNil(t, stats.LastRunAt)
	assert.Equal(t, paid.DepartureAt, *stats.LastRunAt)
	assert.False(t, stats.Running)
}

func TestReconciler_ReportsInventoryDrift(t *testing.T) {
	engine := newTestEngine(t, testTrain())
	key := models.InventoryKey{TrainNumber: "G101", ServiceDate: "2025-12-15", SeatClass: "business"}
	engine.memory.SeedInventory(models.SeatInventory{
		InventoryKey: key, TotalSeats: 24, AvailableSeats: 20, UnitPrice: 180,
	})

	report, err := engine.reconciler.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Drift, 1)
	assert.Equal(t, key, report.Drift[0].InventoryKey)
	assert.Equal(t, 4, report.Drift[0].Difference())
}

// blockingStore holds the expire pass listing until released
type blockingStore struct {
	*database.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) ListExpiredUnpaid(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	close(s.entered)
	<-s.release
	return s.MemoryStore.ListExpiredUnpaid(ctx, cutoff, limit)
}

func TestReconciler_RunsAreExclusive(t *testing.T) {
	blocking := &blockingStore{entered: make(chan struct{}), release: make(chan struct{})}
	engine := newTestEngine(t, testTrain(), withStore(func(m *database.MemoryStore) database.Store {
		blocking.MemoryStore = m
		return blocking
	}))

	done := make(chan error, 1)
	go func() {
		_, err := engine.reconciler.RunOnce(context.Background())
		done <- err
	}()

	<-blocking.entered
	assert.True(t, engine.reconciler.Stats().Running)
	_, err := engine.reconciler.RunOnce(context.Background())
	assert.True(t, errors.Is(err, ErrReconcileInProgress))

	close(blocking.release)
	require.NoError(t, <-done)
	assert.Equal(t, int64(1), engine.reconciler.Stats().Runs)
}

// failingListStore fails the completion pass listing
type failingListStore struct {
	*database.MemoryStore
}

func (s *failingListStore) ListDepartedPaid(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	return nil, errors.New("connection reset")
}

func TestReconciler_PassFailureDoesNotStopOtherPass(t *testing.T) {
	engine := newTestEngine(t, testTrain(), withOrderTTL(time.Minute), withStore(func(m *database.MemoryStore) database.Store {
		return &failingListStore{MemoryStore: m}
	}))
	createTestOrder(t, engine, uuid.New(), "second-class")
	engine.clock.Advance(2 * time.Minute)

	report, err := engine.reconciler.RunOnce(context.Background())
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Expired)
	assert.Len(t, report.PassErrors, 1)
}

func TestReconciler_RegistersCronJob(t *testing.T) {
	engine := newTestEngine(t, testTrain())
	cronService := NewCronService(testLogger())

	require.NoError(t, engine.reconciler.Register(cronService))

	status := cronService.GetJobStatus()
	assert.Equal(t, 1, status["job_count"])
	jobs := status["jobs"].([]map[string]interface{})
	require.Len(t, jobs, 1)
	assert.Equal(t, "order-lifecycle-reconcile", jobs[0]["name"])

	assert.Error(t, cronService.AddJob("broken", "not a schedule", func() {}))
}
