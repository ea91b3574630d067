package health

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
)

// CronSchedule drives CheckTypeDeepHealth checks on a standard five-field
// cron expression instead of Monitor's fixed ticker: a deep check (e.g. a
// full GPU backend round-trip) is too expensive to run every tick, but
// still needs to run on some regular cadence independent of request
// traffic. Wraps robfig/cron/v3 behind Start/Stop and a name->EntryID map
// so individual jobs can be re-scheduled or removed by name.
type CronSchedule struct {
	mu         sync.Mutex
	cron       *cron.Cron
	aggregator *Aggregator
	entries    map[string]cron.EntryID
	onResult   func(name string, result *CheckResult)
}

// NewCronSchedule creates a schedule that runs checks already registered
// with aggregator. It does not start the underlying cron scheduler until
// Start is called.
func NewCronSchedule(aggregator *Aggregator) *CronSchedule {
	return &CronSchedule{
		cron:       cron.New(),
		aggregator: aggregator,
		entries:    make(map[string]cron.EntryID),
	}
}

// SetResultCallback sets a function invoked with the result of every
// cron-triggered check, e.g. to feed a dashboard or emit a lifecycle
// event. Passing nil disables the callback.
func (s *CronSchedule) SetResultCallback(cb func(name string, result *CheckResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = cb
}

// AddJob schedules checkName to run on expr — a standard five-field cron
// expression (e.g. "*/5 * * * *" for every five minutes) or one of
// robfig/cron's "@every 1h30m" / "@daily" descriptors. Re-adding a name
// already scheduled replaces its prior entry.
func (s *CronSchedule) AddJob(name, expr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[name]; ok {
		s.cron.Remove(existing)
		delete(s.entries, name)
	}

	id, err := s.cron.AddFunc(expr, func() { s.runJob(name) })
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidCronExpression, expr, err)
	}
	s.entries[name] = id
	return nil
}

// RemoveJob unschedules name, if present. It is a no-op if name was never
// scheduled.
func (s *CronSchedule) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
}

func (s *CronSchedule) runJob(name string) {
	result, err := s.aggregator.CheckOne(context.Background(), name)
	if err != nil {
		return
	}
	s.mu.Lock()
	cb := s.onResult
	s.mu.Unlock()
	if cb != nil {
		cb(name, result)
	}
}

// Start begins running scheduled jobs. Safe to call once; a second call
// is a no-op because robfig/cron/v3's own Start is idempotent.
func (s *CronSchedule) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for any in-flight job to finish,
// per cron.Cron.Stop's contract.
func (s *CronSchedule) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
