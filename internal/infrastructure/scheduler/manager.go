// Package scheduler runs the coordinator's periodic maintenance: rate-limit
// window sweeps, session expiry, and settlement retries.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/inferpay/inferpay/internal/shared/logger"
)

// BatchJob is a scheduled batch task. Execute processes one batch and
// returns how many items it handled.
type BatchJob interface {
	Execute(ctx context.Context) (int, error)
}

// Manager owns a single gocron scheduler for all periodic jobs.
type Manager struct {
	scheduler gocron.Scheduler
	logger    logger.Interface

	started   bool
	startedMu sync.RWMutex
}

func NewManager(log logger.Interface) (*Manager, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Manager{
		scheduler: scheduler,
		logger:    log,
	}, nil
}

// RegisterJob schedules job at the given interval. The first run starts
// immediately.
func (m *Manager) RegisterJob(name string, interval time.Duration, job BatchJob) error {
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func(ctx context.Context) {
			start := time.Now()
			processed, err := job.Execute(ctx)
			if err != nil {
				m.logger.Errorw("scheduled job failed",
					"job", name, "error", err, "duration", time.Since(start))
				return
			}
			if processed > 0 {
				m.logger.Infow("scheduled job completed",
					"job", name, "processed", processed, "duration", time.Since(start))
			}
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithName(name),
	)
	if err != nil {
		return err
	}
	m.logger.Infow("job registered", "job", name, "interval", interval)
	return nil
}

// Start begins executing registered jobs. Safe to call once.
func (m *Manager) Start() {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()
	if m.started {
		return
	}
	m.scheduler.Start()
	m.started = true
	m.logger.Infow("scheduler started", "jobs", len(m.scheduler.Jobs()))
}

// Stop shuts the scheduler down, waiting for running jobs.
func (m *Manager) Stop() {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()
	if !m.started {
		return
	}
	if err := m.scheduler.Shutdown(); err != nil {
		m.logger.Errorw("scheduler shutdown failed", "error", err)
	}
	m.started = false
	m.logger.Infow("scheduler stopped")
}
