package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

var errStopped = errors.New("scheduler stopped")

// Scheduler manages the poll and liveness jobs
type Scheduler struct {
	cron *gocron.Scheduler
	log  zerolog.Logger

	mu       sync.Mutex
	poll     *gocron.Job
	stopped  bool
	inflight sync.WaitGroup
	stopOnce sync.Once
}

// NewScheduler creates a scheduler evaluating times in loc
func NewScheduler(loc *time.Location, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: gocron.NewScheduler(loc),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// SchedulePoll registers the poll cycle: first run at first, then every period
func (s *Scheduler) SchedulePoll(first time.Time, period time.Duration, cycle func()) error {
	if period <= 0 {
		return fmt.Errorf("poll period must be positive, got %s", period)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errStopped
	}

	job, err := s.cron.Every(period).
		StartAt(first).
		SingletonMode().
		Tag("poll").
		Do(s.guard("poll", cycle))
	if err != nil {
		return fmt.Errorf("schedule poll job: %w", err)
	}
	s.poll = job
	return nil
}

// ScheduleLiveness registers the heartbeat, first beat one interval from start
func (s *Scheduler) ScheduleLiveness(interval time.Duration, beat func()) error {
	if interval <= 0 {
		return fmt.Errorf("liveness interval must be positive, got %s", interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errStopped
	}

	_, err := s.cron.Every(interval).
		WaitForSchedule().
		SingletonMode().
		Tag("liveness").
		Do(s.guard("liveness", beat))
	if err != nil {
		return fmt.Errorf("schedule liveness job: %w", err)
	}
	return nil
}

// guard skips runs after Stop, tracks the run for Stop to wait on and
// keeps a panic from reaching gocron.
func (s *Scheduler) guard(name string, fn func()) func() {
	return func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		s.inflight.Add(1)
		s.mu.Unlock()
		defer s.inflight.Done()

		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Str("job", name).Interface("panic", r).Msg("Scheduled job panicked")
			}
		}()
		fn()
	}
}

// Start starts all scheduled jobs
func (s *Scheduler) Start() {
	s.cron.StartAsync()
	s.log.Info().Time("next_poll", s.NextPoll()).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for a running job to return. It is
// safe to call more than once but must not be called from inside a job.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		s.cron.Stop()
		s.inflight.Wait()
		s.log.Info().Msg("Scheduler stopped")
	})
}

// NextPoll returns the next poll run, zero when nothing is scheduled
func (s *Scheduler) NextPoll() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.poll == nil || s.stopped {
		return time.Time{}
	}
	return s.poll.NextRun()
}

// TradingDay reports whether t falls on a weekday in its own location
func TradingDay(t time.Time) bool {
	return t.Weekday() != time.Saturday && t.Weekday() != time.Sunday
}
