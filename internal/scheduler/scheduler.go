// Package scheduler implements the periodic job runner (spec §4.11):
// independently-cancellable interval jobs plus cron-style daily jobs,
// with a hard shutdown timer.
//
// Grounded on the teacher's cmd/main.go launch shape (go func() { ... }()
// then block on a channel) generalized to N independently-cancellable
// tickers, one goroutine each, each carrying its own context.CancelFunc.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config lists every job's interval plus the two daily-digest fields.
type Config struct {
	PoolRefreshInterval       time.Duration
	PriceRefreshInterval      time.Duration
	VolumeRefreshInterval     time.Duration
	HealthCheckInterval       time.Duration
	BackupPollInterval        time.Duration
	CachePruneInterval        time.Duration
	PersistenceFlushInterval  time.Duration
	PortfolioAutoSyncInterval time.Duration

	DailyDigestHour   int
	DailyDigestMinute int
	SeenTxPruneHour   int
}

// Job is one named, independently cancellable unit of work.
type Job struct {
	Name string
	Run  func(ctx context.Context)
}

// Scheduler owns the goroutines for every registered job.
type Scheduler struct {
	log zerolog.Logger
	now func() time.Time

	mu      sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a Scheduler.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{log: log.With().Str("component", "scheduler").Logger(), now: time.Now}
}

// StartInterval registers a job that runs immediately on ticks of d
// until ctx is cancelled or Stop is called.
func (s *Scheduler) StartInterval(ctx context.Context, name string, d time.Duration, fn func(ctx context.Context)) {
	jobCtx, cancel := context.WithCancel(ctx)
	s.register(cancel)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-jobCtx.Done():
				return
			case <-ticker.C:
				s.runSafely(jobCtx, name, fn)
			}
		}
	}()
}

// StartDaily registers a job that runs once per day at the given UTC
// hour:minute, checked every minute.
func (s *Scheduler) StartDaily(ctx context.Context, name string, hour, minute int, fn func(ctx context.Context)) {
	jobCtx, cancel := context.WithCancel(ctx)
	s.register(cancel)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		lastRun := ""
		for {
			select {
			case <-jobCtx.Done():
				return
			case <-ticker.C:
				now := s.now().UTC()
				today := now.Format("2006-01-02")
				if now.Hour() == hour && now.Minute() == minute && lastRun != today {
					lastRun = today
					s.runSafely(jobCtx, name, fn)
				}
			}
		}
	}()
}

func (s *Scheduler) register(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels = append(s.cancels, cancel)
}

// runSafely invokes fn, recovering a panic at the task boundary per
// spec §7: "Unhandled exceptions in any task must be caught at the task
// boundary; the task logs and ... a scheduled task will restart at the
// next tick."
func (s *Scheduler) runSafely(ctx context.Context, name string, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("job", name).Interface("panic", r).Msg("scheduled job panicked, will retry next tick")
		}
	}()
	fn(ctx)
}

// Shutdown cancels every registered job and waits up to 10s before
// returning (spec §4.11 "waits up to 10 s, then forces termination").
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	cancels := s.cancels
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		s.log.Warn().Msg("scheduler shutdown timed out after 10s, forcing exit")
	}
}
