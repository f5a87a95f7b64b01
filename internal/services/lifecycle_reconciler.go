package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-reservation-backend/internal/database"
	"github.com/smarttransit/rail-reservation-backend/internal/models"
	"golang.org/x/sync/errgroup"
)

// ErrReconcileInProgress is returned by RunOnce while another run is active
var ErrReconcileInProgress = errors.New("reconcile run already in progress")

// ReconcilerConfig holds configuration for the lifecycle reconciler
type ReconcilerConfig struct {
	Schedule  string // Cron schedule (default every 30 seconds)
	BatchSize int    // Orders per pass (default 200)
	Workers   int    // Orders processed concurrently per pass (default 8)
}

// DefaultReconcilerConfig returns default configuration
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		Schedule:  "@every 30s",
		BatchSize: 200,
		Workers:   8,
	}
}

// ReconcileReport summarizes one reconciler run
type ReconcileReport struct {
	StartedAt  time.Time               `json:"started_at"`
	Duration   time.Duration           `json:"duration_ns"`
	Expired    int                     `json:"expired"`
	Completed  int                     `json:"completed"`
	Skipped    int                     `json:"skipped"`
	Failed     int                     `json:"failed"`
	Drift      []models.InventoryDrift `json:"drift"`
	PassErrors []string                `json:"pass_errors,omitempty"`
}

// ReconcilerStats holds cumulative reconciler statistics
type ReconcilerStats struct {
	Running        bool             `json:"running"`
	Runs           int64            `json:"runs"`
	TotalExpired   int64            `json:"total_expired"`
	TotalCompleted int64            `json:"total_completed"`
	TotalFailed    int64            `json:"total_failed"`
	LastRunAt      *time.Time       `json:"last_run_at,omitempty"`
	LastReport     *ReconcileReport `json:"last_report,omitempty"`
}

// LifecycleReconciler drives time-based transitions: it expires unpaid
// orders past their payment window, completes paid orders whose train has
// departed and audits inventory against live tickets.
type LifecycleReconciler struct {
	store     database.Store
	lifecycle *OrderLifecycle
	clock     Clock
	config    ReconcilerConfig
	logger    *logrus.Logger

	running atomic.Bool

	mu    sync.Mutex
	stats ReconcilerStats
}

// NewLifecycleReconciler creates a new lifecycle reconciler
func NewLifecycleReconciler(
	store database.Store,
	lifecycle *OrderLifecycle,
	clock Clock,
	config ReconcilerConfig,
	logger *logrus.Logger,
) *LifecycleReconciler {
	defaults := DefaultReconcilerConfig()
	if config.Schedule == "" {
		config.Schedule = defaults.Schedule
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	return &LifecycleReconciler{
		store:     store,
		lifecycle: lifecycle,
		clock:     clock,
		config:    config,
		logger:    logger,
	}
}

// Register schedules the reconciler on a cron service
func (r *LifecycleReconciler) Register(cronService *CronService) error {
	return cronService.AddJob("order-lifecycle-reconcile", r.config.Schedule, r.runScheduled)
}

func (r *LifecycleReconciler) runScheduled() {
	if _, err := r.RunOnce(context.Background()); err != nil {
		if errors.Is(err, ErrReconcileInProgress) {
			r.logger.Debug("Reconcile tick skipped, previous run still active")
			return
		}
		r.logger.WithError(err).Error("Reconcile run failed")
	}
}

// ============================================================================
// RUN
// ============================================================================

type passResult struct {
	processed int64
	skipped   int64
	failed    int64
}

// RunOnce performs one reconcile run. The expire and completion passes run
// concurrently; a failing order is logged and left for the next run.
func (r *LifecycleReconciler) RunOnce(ctx context.Context) (*ReconcileReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrReconcileInProgress
	}
	defer r.running.Store(false)

	started := r.clock.Now()
	report := &ReconcileReport{StartedAt: started}
	cutoff := started.Add(-r.lifecycle.OrderTTL())

	var expired, completed passResult
	var g errgroup.Group

	g.Go(func() error {
		res, err := r.runPass(ctx, "expire",
			func(ctx context.Context) ([]uuid.UUID, error) {
				return r.store.ListExpiredUnpaid(ctx, cutoff, r.config.BatchSize)
			},
			r.lifecycle.Expire,
		)
		expired = res
		return err
	})

	g.Go(func() error {
		res, err := r.runPass(ctx, "complete",
			func(ctx context.Context) ([]uuid.UUID, error) {
				return r.store.ListDepartedPaid(ctx, started, r.config.BatchSize)
			},
			r.lifecycle.Complete,
		)
		completed = res
		return err
	})

	passErr := g.Wait()
	if passErr != nil {
		report.PassErrors = append(report.PassErrors, passErr.Error())
	}

	report.Expired = int(expired.processed)
	report.Completed = int(completed.processed)
	report.Skipped = int(expired.skipped + completed.skipped)
	report.Failed = int(expired.failed + completed.failed)

	// Audit after both passes so released seats are accounted for
	drift, err := r.store.InventoryDrift(ctx)
	if err != nil {
		report.PassErrors = append(report.PassErrors, fmt.Sprintf("inventory audit: %v", err))
		r.logger.WithError(err).Error("Inventory audit failed")
	}
	report.Drift = drift
	for _, d := range drift {
		r.logger.WithFields(logrus.Fields{
			"train_number":    d.TrainNumber,
			"service_date":    d.ServiceDate,
			"seat_class":      d.SeatClass,
			"total_seats":     d.TotalSeats,
			"available_seats": d.AvailableSeats,
			"live_tickets":    d.LiveTickets,
			"difference":      d.Difference(),
		}).Warn("Inventory drift detected")
	}

	report.Duration = r.clock.Now().Sub(started)
	r.record(report)

	if report.Expired > 0 || report.Completed > 0 || report.Failed > 0 {
		r.logger.WithFields(logrus.Fields{
			"expired":   report.Expired,
			"completed": report.Completed,
			"skipped":   report.Skipped,
			"failed":    report.Failed,
		}).Info("Reconcile run finished")
	}

	if passErr != nil {
		return report, fmt.Errorf("reconcile pass failed: %w", passErr)
	}
	return report, nil
}

// runPass lists candidate orders and applies transition to each with
// bounded concurrency. Only a failed listing is returned as an error.
func (r *LifecycleReconciler) runPass(
	ctx context.Context,
	name string,
	list func(ctx context.Context) ([]uuid.UUID, error),
	transition func(ctx context.Context, orderID uuid.UUID) (*models.Order, error),
) (passResult, error) {
	var res passResult

	ids, err := list(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list %s candidates: %w", name, err)
	}
	if len(ids) == 0 {
		return res, nil
	}

	var g errgroup.Group
	g.SetLimit(r.config.Workers)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := transition(ctx, id); err != nil {
				// Lost a race with the owner or payment; nothing left to do
				if errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, models.ErrNotFound) {
					atomic.AddInt64(&res.skipped, 1)
					return nil
				}
				atomic.AddInt64(&res.failed, 1)
				r.logger.WithError(err).WithFields(logrus.Fields{
					"order_id": id,
					"pass":     name,
				}).Error("Failed to reconcile order")
				return nil
			}
			atomic.AddInt64(&res.processed, 1)
			return nil
		})
	}
	_ = g.Wait()
	return res, nil
}

func (r *LifecycleReconciler) record(report *ReconcileReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at := report.StartedAt
	r.stats.Runs++
	r.stats.TotalExpired += int64(report.Expired)
	r.stats.TotalCompleted += int64(report.Completed)
	r.stats.TotalFailed += int64(report.Failed)
	r.stats.LastRunAt = &at
	r.stats.LastReport = report
}

// Stats returns a snapshot of cumulative statistics
func (r *LifecycleReconciler) Stats() ReconcilerStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := r.stats
	stats.Running = r.running.Load()
	return stats
}
