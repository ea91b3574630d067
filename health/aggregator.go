// Package health provides health monitoring and aggregation services
package health

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Static errors for health package
var (
	ErrMonitoringAlreadyRunning = errors.New("monitoring is already running")
	ErrHealthCheckNotFound      = errors.New("health check not found")
	ErrInvalidCronExpression    = errors.New("invalid cron expression")
)

// Aggregator implements the HealthAggregator interface, combining every
// registered checker's result with worst-state-wins logic: readiness
// excludes liveness-only checks so a slow but alive dependency doesn't
// flip liveness, while overall status reflects every checker.
type Aggregator struct {
	mu          sync.RWMutex
	checkers    map[string]HealthChecker
	lastResults map[string]*CheckResult
	config      *AggregatorConfig
	callbacks   []StatusChangeCallback
	lastStatus  *AggregatedStatus
}

// AggregatorConfig represents configuration for the health aggregator.
type AggregatorConfig struct {
	CheckInterval    time.Duration `json:"check_interval"`
	Timeout          time.Duration `json:"timeout"`
	EnableHistory    bool          `json:"enable_history"`
	HistorySize      int           `json:"history_size"`
	ParallelChecks   bool          `json:"parallel_checks"`
	FailureThreshold int           `json:"failure_threshold"`
}

// NewAggregator creates a new health aggregator.
func NewAggregator(config *AggregatorConfig) *Aggregator {
	if config == nil {
		config = &AggregatorConfig{
			CheckInterval:    30 * time.Second,
			Timeout:          10 * time.Second,
			EnableHistory:    true,
			HistorySize:      100,
			ParallelChecks:   true,
			FailureThreshold: 3,
		}
	}

	return &Aggregator{
		checkers:    make(map[string]HealthChecker),
		lastResults: make(map[string]*CheckResult),
		config:      config,
		callbacks:   make([]StatusChangeCallback, 0),
	}
}

// RegisterCheck registers a health check with the aggregator.
func (a *Aggregator) RegisterCheck(ctx context.Context, checker HealthChecker) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkers[checker.Name()] = checker
	return nil
}

// UnregisterCheck removes a health check from the aggregator.
func (a *Aggregator) UnregisterCheck(ctx context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.checkers[name]; !exists {
		return ErrHealthCheckNotFound
	}
	delete(a.checkers, name)
	delete(a.lastResults, name)
	return nil
}

// CheckAll runs every registered health check (in parallel when configured)
// and returns the aggregated status, applying worst-state logic.
func (a *Aggregator) CheckAll(ctx context.Context) (*AggregatedStatus, error) {
	a.mu.RLock()
	checkers := make(map[string]HealthChecker, len(a.checkers))
	for name, c := range a.checkers {
		checkers[name] = c
	}
	parallel := a.config.ParallelChecks
	timeout := a.config.Timeout
	a.mu.RUnlock()

	results := make(map[string]*CheckResult, len(checkers))
	if parallel {
		var wg sync.WaitGroup
		var mu sync.Mutex
		for name, checker := range checkers {
			wg.Add(1)
			go func(name string, checker HealthChecker) {
				defer wg.Done()
				result := a.runOne(ctx, name, checker, timeout)
				mu.Lock()
				results[name] = result
				mu.Unlock()
			}(name, checker)
		}
		wg.Wait()
	} else {
		for name, checker := range checkers {
			results[name] = a.runOne(ctx, name, checker, timeout)
		}
	}

	a.mu.Lock()
	for name, result := range results {
		a.applyTrend(name, result)
		a.lastResults[name] = result
	}
	status := a.aggregate(results, checkers)
	previous := a.lastStatus
	a.lastStatus = status
	callbacks := append([]StatusChangeCallback(nil), a.callbacks...)
	a.mu.Unlock()

	if previous != nil && previous.OverallStatus != status.OverallStatus {
		for _, cb := range callbacks {
			_ = cb(ctx, previous, status)
		}
	}

	return status, nil
}

func (a *Aggregator) runOne(ctx context.Context, name string, checker HealthChecker, timeout time.Duration) *CheckResult {
	checkCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		checkCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	result, err := checker.Check(checkCtx)
	if err != nil || result == nil {
		result = &CheckResult{Name: name, Status: StatusCritical, Timestamp: time.Now()}
		if err != nil {
			result.Error = err.Error()
		}
	}
	return result
}

// applyTrend updates the consecutive-failure/success counters on result
// using the previous result for name; callers must hold a.mu.
func (a *Aggregator) applyTrend(name string, result *CheckResult) {
	prev, ok := a.lastResults[name]
	if !ok {
		if result.Status == StatusHealthy {
			result.ConsecutiveSuccesses = 1
		} else {
			result.ConsecutiveFailures = 1
		}
		return
	}
	if result.Status == StatusHealthy {
		result.ConsecutiveSuccesses = prev.ConsecutiveSuccesses + 1
		result.ConsecutiveFailures = 0
	} else {
		result.ConsecutiveFailures = prev.ConsecutiveFailures + 1
		result.ConsecutiveSuccesses = 0
	}
}

func (a *Aggregator) aggregate(results map[string]*CheckResult, checkers map[string]HealthChecker) *AggregatedStatus {
	summary := &StatusSummary{TotalChecks: len(results)}
	overall := StatusHealthy
	readiness := StatusHealthy
	liveness := StatusHealthy
	haveLivenessCheck := false

	for name, result := range results {
		switch result.Status {
		case StatusHealthy:
			summary.PassingChecks++
		case StatusWarning:
			summary.WarningChecks++
		case StatusCritical:
			summary.CriticalChecks++
		case StatusUnknown:
			summary.UnknownChecks++
		default:
			summary.FailingChecks++
		}

		overall = worst(overall, result.Status)

		checkType := CheckTypeGeneral
		if checker, ok := checkers[name]; ok {
			checkType = checker.Type()
		}
		if checkType != CheckTypeLiveness {
			readiness = worst(readiness, result.Status)
		}
		if checkType == CheckTypeLiveness || checkType == CheckTypeGeneral {
			haveLivenessCheck = haveLivenessCheck || checkType == CheckTypeLiveness
			liveness = worst(liveness, result.Status)
		}
	}
	if !haveLivenessCheck {
		liveness = overall
	}

	return &AggregatedStatus{
		OverallStatus:   overall,
		ReadinessStatus: readiness,
		LivenessStatus:  liveness,
		Timestamp:       time.Now(),
		CheckResults:    results,
		Summary:         summary,
	}
}

// worst returns whichever of a, b ranks lower on the healthy > warning >
// unknown > critical scale; an unrecognised status ranks with unknown.
func worst(a, b HealthStatus) HealthStatus {
	rank := func(s HealthStatus) int {
		switch s {
		case StatusHealthy:
			return 0
		case StatusWarning:
			return 1
		case StatusUnknown:
			return 2
		case StatusCritical:
			return 3
		default:
			return 2
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}

// CheckOne runs a specific health check by name.
func (a *Aggregator) CheckOne(ctx context.Context, name string) (*CheckResult, error) {
	a.mu.RLock()
	checker, exists := a.checkers[name]
	timeout := a.config.Timeout
	a.mu.RUnlock()

	if !exists {
		return nil, ErrHealthCheckNotFound
	}

	result := a.runOne(ctx, name, checker, timeout)

	a.mu.Lock()
	a.applyTrend(name, result)
	a.lastResults[name] = result
	a.mu.Unlock()

	return result, nil
}

// GetStatus returns the status computed by the last CheckAll without
// running any checks; CheckOne does not change it. Before any CheckAll it
// reports StatusUnknown for every view, carrying whatever results CheckOne
// has recorded.
func (a *Aggregator) GetStatus(ctx context.Context) (*AggregatedStatus, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.lastStatus != nil {
		return a.lastStatus, nil
	}

	results := make(map[string]*CheckResult, len(a.lastResults))
	for name, result := range a.lastResults {
		results[name] = result
	}
	return &AggregatedStatus{
		OverallStatus:   StatusUnknown,
		ReadinessStatus: StatusUnknown,
		LivenessStatus:  StatusUnknown,
		Timestamp:       time.Now(),
		CheckResults:    results,
		Summary:         &StatusSummary{TotalChecks: len(results)},
	}, nil
}

// IsReady returns true if the system is ready to accept traffic.
func (a *Aggregator) IsReady(ctx context.Context) (bool, error) {
	status, err := a.GetStatus(ctx)
	if err != nil {
		return false, err
	}
	return status.ReadinessStatus == StatusHealthy, nil
}

// IsLive returns true if the system is alive (for liveness probes).
func (a *Aggregator) IsLive(ctx context.Context) (bool, error) {
	status, err := a.GetStatus(ctx)
	if err != nil {
		return false, err
	}
	return status.LivenessStatus != StatusCritical, nil
}

// Monitor implements the HealthMonitor interface, polling an Aggregator on
// a fixed interval and retaining bounded per-check history.
type Monitor struct {
	aggregator *Aggregator
	interval   time.Duration
	running    bool
	mu         sync.Mutex
	history    map[string][]*CheckResult
	stopChan   chan struct{}
	done       chan struct{}
}

// NewMonitor creates a new health monitor.
func NewMonitor(aggregator *Aggregator) *Monitor {
	return &Monitor{
		aggregator: aggregator,
		interval:   30 * time.Second,
		history:    make(map[string][]*CheckResult),
	}
}

// StartMonitoring begins continuous health monitoring with the specified
// interval.
func (m *Monitor) StartMonitoring(ctx context.Context, interval time.Duration) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrMonitoringAlreadyRunning
	}
	m.interval = interval
	m.running = true
	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	go m.monitorLoop(ctx)
	return nil
}

// StopMonitoring stops continuous health monitoring.
func (m *Monitor) StopMonitoring(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.stopChan)
	done := m.done
	m.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// IsMonitoring returns true if monitoring is currently active.
func (m *Monitor) IsMonitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// GetHistory returns health check history for analysis.
func (m *Monitor) GetHistory(ctx context.Context, checkName string, since time.Time) ([]*CheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history, exists := m.history[checkName]
	if !exists {
		return nil, nil
	}

	filtered := make([]*CheckResult, 0)
	for _, result := range history {
		if result.Timestamp.After(since) {
			filtered = append(filtered, result)
		}
	}
	return filtered, nil
}

// SetCallback sets a callback function to be called on status changes.
func (m *Monitor) SetCallback(callback StatusChangeCallback) error {
	m.aggregator.mu.Lock()
	defer m.aggregator.mu.Unlock()
	m.aggregator.callbacks = append(m.aggregator.callbacks, callback)
	return nil
}

func (m *Monitor) monitorLoop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status, err := m.aggregator.CheckAll(ctx)
			if err != nil {
				continue
			}
			m.mu.Lock()
			historySize := m.aggregator.config.HistorySize
			for name, result := range status.CheckResults {
				hist := append(m.history[name], result)
				if len(hist) > historySize {
					hist = hist[len(hist)-historySize:]
				}
				m.history[name] = hist
			}
			m.mu.Unlock()
		case <-m.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// BasicChecker implements a basic HealthChecker from a plain function.
type BasicChecker struct {
	name        string
	description string
	checkType   CheckType
	checkFunc   func(context.Context) error
}

// NewBasicChecker creates a new basic health checker of CheckTypeGeneral.
func NewBasicChecker(name, description string, checkFunc func(context.Context) error) *BasicChecker {
	return &BasicChecker{name: name, description: description, checkType: CheckTypeGeneral, checkFunc: checkFunc}
}

// NewTypedChecker creates a basic health checker tagged with checkType, so
// the aggregator can route it into readiness/liveness appropriately.
func NewTypedChecker(name, description string, checkType CheckType, checkFunc func(context.Context) error) *BasicChecker {
	return &BasicChecker{name: name, description: description, checkType: checkType, checkFunc: checkFunc}
}

// Check performs a health check and returns the current status.
func (c *BasicChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	result := &CheckResult{
		Name:      c.name,
		Timestamp: start,
		Status:    StatusHealthy,
	}

	if c.checkFunc != nil {
		if err := c.checkFunc(ctx); err != nil {
			result.Status = StatusCritical
			result.Error = err.Error()
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// Name returns the unique name of this health check.
func (c *BasicChecker) Name() string { return c.name }

// Description returns a human-readable description of what this check
// validates.
func (c *BasicChecker) Description() string { return c.description }

// Type reports which probe category this check contributes to.
func (c *BasicChecker) Type() CheckType { return c.checkType }
