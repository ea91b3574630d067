// Package lifecycle provides lifecycle event management and dispatching services
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Static errors for lifecycle package
var (
	ErrDispatcherNotRunning     = errors.New("dispatcher is not running")
	ErrEventCannotBeNil         = errors.New("event cannot be nil")
	ErrEventBufferFull          = errors.New("event buffer is full, dropping event")
	ErrDispatcherAlreadyRunning = errors.New("dispatcher is already running")
	ErrEventNotFound            = errors.New("event not found")
)

// Dispatcher implements the EventDispatcher interface, fanning out events
// from an internal buffered channel to registered observers in priority
// order. It is independent of the synchronous in-process dispatcher:
// modules report state transitions here through a kernel.LifecycleSink
// adapter (see SinkAdapter), while that dispatcher continues to carry
// OnModuleAttached/Detached.
type Dispatcher struct {
	mu        sync.RWMutex
	observers map[string]EventObserver
	running   bool
	config    *DispatchConfig
	eventChan chan *Event
	stopChan  chan struct{}
	done      chan struct{}

	metricsMu sync.Mutex
	metrics   EventMetrics
}

// NewDispatcher creates a new lifecycle event dispatcher.
func NewDispatcher(config *DispatchConfig) *Dispatcher {
	if config == nil {
		config = &DispatchConfig{
			BufferSize:      1000,
			MaxRetries:      3,
			RetryDelay:      100 * time.Millisecond,
			ObserverTimeout: 5 * time.Second,
			EnableMetrics:   true,
		}
	}

	return &Dispatcher{
		observers: make(map[string]EventObserver),
		config:    config,
		eventChan: make(chan *Event, config.BufferSize),
		metrics: EventMetrics{
			EventsByType:   make(map[EventType]int64),
			EventsByStatus: make(map[EventStatus]int64),
		},
	}
}

// Dispatch enqueues a lifecycle event for delivery to registered observers.
// Returns ErrEventBufferFull if the buffer is saturated rather than
// blocking the caller, since Dispatch is typically invoked synchronously
// from a module's state transition.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) error {
	if event == nil {
		return ErrEventCannotBeNil
	}
	d.mu.RLock()
	running := d.running
	d.mu.RUnlock()
	if !running {
		return ErrDispatcherNotRunning
	}

	if event.ID == "" {
		event.ID = newEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case d.eventChan <- event:
		return nil
	default:
		if d.config.EnableMetrics {
			d.metricsMu.Lock()
			d.metrics.BackpressureWarnings++
			d.metricsMu.Unlock()
		}
		return ErrEventBufferFull
	}
}

// RegisterObserver registers an observer to receive lifecycle events.
func (d *Dispatcher) RegisterObserver(ctx context.Context, observer EventObserver) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers[observer.ID()] = observer
	return nil
}

// UnregisterObserver removes an observer from receiving events.
func (d *Dispatcher) UnregisterObserver(ctx context.Context, observerID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.observers, observerID)
	return nil
}

// GetObservers returns all currently registered observers.
func (d *Dispatcher) GetObservers(ctx context.Context) ([]EventObserver, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	observers := make([]EventObserver, 0, len(d.observers))
	for _, observer := range d.observers {
		observers = append(observers, observer)
	}
	return observers, nil
}

// Start begins the dispatcher's background fan-out goroutine.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrDispatcherAlreadyRunning
	}
	d.running = true
	d.stopChan = make(chan struct{})
	d.done = make(chan struct{})
	d.mu.Unlock()

	go d.processEvents(ctx)
	return nil
}

// Stop gracefully shuts down the dispatcher, waiting for the fan-out
// goroutine to drain in-flight events.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	close(d.stopChan)
	done := d.done
	d.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// IsRunning returns true if the dispatcher is currently running.
func (d *Dispatcher) IsRunning() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Metrics returns a snapshot of the dispatcher's event-processing metrics.
func (d *Dispatcher) Metrics() EventMetrics {
	d.metricsMu.Lock()
	defer d.metricsMu.Unlock()
	snapshot := d.metrics
	snapshot.EventsByType = make(map[EventType]int64, len(d.metrics.EventsByType))
	for k, v := range d.metrics.EventsByType {
		snapshot.EventsByType[k] = v
	}
	snapshot.EventsByStatus = make(map[EventStatus]int64, len(d.metrics.EventsByStatus))
	for k, v := range d.metrics.EventsByStatus {
		snapshot.EventsByStatus[k] = v
	}
	return snapshot
}

func (d *Dispatcher) processEvents(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case event := <-d.eventChan:
			d.deliver(ctx, event)
		case <-d.stopChan:
			// Drain whatever is already buffered before exiting.
			for {
				select {
				case event := <-d.eventChan:
					d.deliver(ctx, event)
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event *Event) {
	d.mu.RLock()
	observers := make([]EventObserver, 0, len(d.observers))
	for _, o := range d.observers {
		if wantsEvent(o, event.Type) {
			observers = append(observers, o)
		}
	}
	timeout := d.config.ObserverTimeout
	d.mu.RUnlock()

	sort.Slice(observers, func(i, j int) bool { return observers[i].Priority() > observers[j].Priority() })

	if d.config.EnableMetrics {
		d.metricsMu.Lock()
		d.metrics.TotalEvents++
		d.metrics.EventsByType[event.Type]++
		d.metrics.EventsByStatus[event.Status]++
		d.metrics.LastEventTime = event.Timestamp
		d.metricsMu.Unlock()
	}

	for _, observer := range observers {
		d.deliverOne(ctx, observer, event, timeout)
	}
}

func (d *Dispatcher) deliverOne(ctx context.Context, observer EventObserver, event *Event, timeout time.Duration) {
	deliverCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		deliverCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("observer %s panicked: %v", observer.ID(), r)
				if d.config.EnableMetrics {
					d.metricsMu.Lock()
					d.metrics.ObserverPanics++
					d.metricsMu.Unlock()
				}
			}
		}()
		errCh <- observer.OnEvent(deliverCtx, event)
	}()

	select {
	case err := <-errCh:
		if err != nil && d.config.EnableMetrics {
			d.metricsMu.Lock()
			d.metrics.ObserverErrors++
			d.metricsMu.Unlock()
		}
	case <-deliverCtx.Done():
		if d.config.EnableMetrics {
			d.metricsMu.Lock()
			d.metrics.ObserverErrors++
			d.metricsMu.Unlock()
		}
	}
}

// newEventID mints a time-ordered UUIDv7 so stored events sort by creation
// order without a separate sequence counter. Falls back to v4 if the host
// clock can't produce a v7 UUID.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

func wantsEvent(o EventObserver, t EventType) bool {
	types := o.EventTypes()
	if len(types) == 0 {
		return true
	}
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}

// Store implements the EventStore interface over an in-memory index,
// suitable for tests and for a health aggregator's recent-history queries.
type Store struct {
	mu     sync.RWMutex
	events map[string]*Event
	index  map[string][]*Event // indexed by source
}

// NewStore creates a new event store.
func NewStore() *Store {
	return &Store{
		events: make(map[string]*Event),
		index:  make(map[string][]*Event),
	}
}

// Store persists a lifecycle event.
func (s *Store) Store(ctx context.Context, event *Event) error {
	if event == nil {
		return ErrEventCannotBeNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[event.ID] = event
	s.index[event.Source] = append(s.index[event.Source], event)
	return nil
}

// Get retrieves a specific event by ID.
func (s *Store) Get(ctx context.Context, eventID string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, exists := s.events[eventID]
	if !exists {
		return nil, ErrEventNotFound
	}
	return event, nil
}

// Query retrieves events matching criteria's EventTypes, Sources, Statuses,
// Since and Until, ordered by Timestamp (newest first if OrderDesc) and cut
// to Limit. Phases, CorrelationID, TraceID, Offset and OrderBy are not
// applied.
func (s *Store) Query(ctx context.Context, criteria *QueryCriteria) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]*Event, 0)
	for _, event := range s.events {
		if matchesCriteria(event, criteria) {
			matches = append(matches, event)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if criteria.OrderDesc {
			return matches[i].Timestamp.After(matches[j].Timestamp)
		}
		return matches[i].Timestamp.Before(matches[j].Timestamp)
	})
	if criteria.Limit > 0 && len(matches) > criteria.Limit {
		matches = matches[:criteria.Limit]
	}
	return matches, nil
}

func matchesCriteria(event *Event, criteria *QueryCriteria) bool {
	if criteria == nil {
		return true
	}
	if len(criteria.EventTypes) > 0 && !containsType(criteria.EventTypes, event.Type) {
		return false
	}
	if len(criteria.Sources) > 0 && !containsString(criteria.Sources, event.Source) {
		return false
	}
	if len(criteria.Statuses) > 0 && !containsStatus(criteria.Statuses, event.Status) {
		return false
	}
	if criteria.Since != nil && event.Timestamp.Before(*criteria.Since) {
		return false
	}
	if criteria.Until != nil && event.Timestamp.After(*criteria.Until) {
		return false
	}
	return true
}

func containsType(types []EventType, t EventType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func containsString(strs []string, s string) bool {
	for _, x := range strs {
		if x == s {
			return true
		}
	}
	return false
}

func containsStatus(statuses []EventStatus, s EventStatus) bool {
	for _, x := range statuses {
		if x == s {
			return true
		}
	}
	return false
}

// Delete removes events matching the given criteria, applying the same
// criteria fields as Query.
func (s *Store) Delete(ctx context.Context, criteria *QueryCriteria) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, event := range s.events {
		if matchesCriteria(event, criteria) {
			delete(s.events, id)
		}
	}
	for source, events := range s.index {
		kept := events[:0]
		for _, event := range events {
			if _, exists := s.events[event.ID]; exists {
				kept = append(kept, event)
			}
		}
		s.index[source] = kept
	}
	return nil
}

// GetEventHistory returns event history for a specific source, since the
// given time.
func (s *Store) GetEventHistory(ctx context.Context, source string, since time.Time) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events, exists := s.index[source]
	if !exists {
		return nil, nil
	}

	filtered := make([]*Event, 0)
	for _, event := range events {
		if event.Timestamp.After(since) {
			filtered = append(filtered, event)
		}
	}
	return filtered, nil
}

// BasicObserver implements EventObserver with a plain callback function,
// used by tests to subscribe to module state transitions.
type BasicObserver struct {
	id         string
	eventTypes []EventType
	priority   int
	callback   func(context.Context, *Event) error
}

// NewBasicObserver creates a new basic observer.
func NewBasicObserver(id string, eventTypes []EventType, priority int, callback func(context.Context, *Event) error) *BasicObserver {
	return &BasicObserver{
		id:         id,
		eventTypes: eventTypes,
		priority:   priority,
		callback:   callback,
	}
}

// OnEvent is called when a lifecycle event is dispatched.
func (o *BasicObserver) OnEvent(ctx context.Context, event *Event) error {
	if o.callback != nil {
		return o.callback(ctx, event)
	}
	return nil
}

// ID returns the unique identifier for this observer.
func (o *BasicObserver) ID() string { return o.id }

// EventTypes returns the types of events this observer wants to receive.
func (o *BasicObserver) EventTypes() []EventType { return o.eventTypes }

// Priority returns the priority of this observer (higher = called first).
func (o *BasicObserver) Priority() int { return o.priority }
