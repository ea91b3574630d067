package lifecycle

import "context"

// SinkAdapter wraps an EventDispatcher so it satisfies kernel.LifecycleSink
// (Dispatch(ctx, source, phase, status, message string)) without package
// kernel ever importing package lifecycle, keeping the synchronous
// in-process dispatcher and this asynchronous event stream decoupled.
type SinkAdapter struct {
	dispatcher EventDispatcher
}

// NewSinkAdapter wraps dispatcher for use as a kernel.LifecycleSink.
func NewSinkAdapter(dispatcher EventDispatcher) *SinkAdapter {
	return &SinkAdapter{dispatcher: dispatcher}
}

// Dispatch translates a module's raw (phase, status, message) transition
// into a structured Event and forwards it to the wrapped dispatcher. Errors
// from the underlying dispatcher (e.g. a full buffer) are swallowed, since
// a transition report must never block or fail a module's own lifecycle
// call.
func (a *SinkAdapter) Dispatch(ctx context.Context, source, phase, status, message string) {
	event := &Event{
		Type:    eventTypeFor(phase, status),
		Source:  source,
		Phase:   LifecyclePhase(phase),
		Status:  eventStatusFor(status),
		Message: message,
		Version: "1",
	}
	_ = a.dispatcher.Dispatch(ctx, event)
}

func eventTypeFor(phase, status string) EventType {
	return EventType("module." + phase + "." + status)
}

func eventStatusFor(status string) EventStatus {
	switch status {
	case "completed":
		return EventStatusCompleted
	case "failed":
		return EventStatusFailed
	case "skipped":
		return EventStatusSkipped
	default:
		return EventStatusStarted
	}
}
