package services

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronService manages scheduled background jobs. Jobs never overlap with
// themselves: a tick that fires while the previous run is still going is skipped.
type CronService struct {
	cron   *cron.Cron
	logger *logrus.Logger

	mu   sync.Mutex
	jobs map[cron.EntryID]string
}

// NewCronService creates a new CronService
func NewCronService(logger *logrus.Logger) *CronService {
	cronLogger := &cronLogrusAdapter{logger: logger}

	// Schedules use seconds precision: "second minute hour day month weekday"
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cronLogger),
		cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		),
	)

	return &CronService{
		cron:   c,
		logger: logger,
		jobs:   make(map[cron.EntryID]string),
	}
}

// AddJob schedules fn under a descriptive name
func (s *CronService) AddJob(name, schedule string, fn func()) error {
	id, err := s.cron.AddFunc(schedule, fn)
	if err != nil {
		return fmt.Errorf("failed to schedule %s job: %w", name, err)
	}

	s.mu.Lock()
	s.jobs[id] = name
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"job":      name,
		"schedule": schedule,
	}).Info("Scheduled cron job")
	return nil
}

// Start starts all cron jobs
func (s *CronService) Start() {
	s.cron.Start()
	s.logger.Info("Cron service started")
}

// Stop stops scheduling and waits for running jobs to finish
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"name":     s.jobs[entry.ID],
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}

// cronLogrusAdapter routes cron's own logging through logrus
type cronLogrusAdapter struct {
	logger *logrus.Logger
}

func (a *cronLogrusAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.WithFields(cronFields(keysAndValues)).Debug("cron: " + msg)
}

func (a *cronLogrusAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.WithFields(cronFields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func cronFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}
	return fields
}
