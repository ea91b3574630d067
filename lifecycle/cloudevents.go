package lifecycle

import (
	"context"
	"fmt"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

const cloudEventSource = "com.forgekernel.lifecycle"

// ToCloudEvent converts a lifecycle Event into a CloudEvents 1.0 envelope,
// suitable for forwarding to an external bus or log. The event's own ID,
// type and timestamp become the envelope's id/type/time; everything else
// rides along as the JSON-encoded payload.
func ToCloudEvent(event *Event) (cloudevents.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(event.ID)
	ce.SetSource(cloudEventSource)
	ce.SetType(string(event.Type))
	ce.SetTime(event.Timestamp)
	ce.SetSpecVersion(cloudevents.VersionV1)
	ce.SetExtension("phase", string(event.Phase))
	ce.SetExtension("status", string(event.Status))
	if event.CorrelationID != "" {
		ce.SetExtension("correlationid", event.CorrelationID)
	}

	if err := ce.SetData(cloudevents.ApplicationJSON, event); err != nil {
		return cloudevents.Event{}, fmt.Errorf("encoding lifecycle event %s as cloudevent: %w", event.ID, err)
	}
	return ce, nil
}

// CloudEventSender forwards a CloudEvent to an external transport (an HTTP
// sink, a message broker, a log). Implementations own retry/backoff.
type CloudEventSender func(ctx context.Context, event cloudevents.Event) error

// CloudEventsObserver is an EventObserver that re-emits every lifecycle
// event it receives as a CloudEvent through a CloudEventSender, giving
// external systems a standards-based view of module lifecycle transitions
// without coupling them to the internal Event shape.
type CloudEventsObserver struct {
	id         string
	eventTypes []EventType
	priority   int
	send       CloudEventSender
}

// NewCloudEventsObserver creates an observer forwarding matching events
// (all events, if eventTypes is empty) through send.
func NewCloudEventsObserver(id string, eventTypes []EventType, priority int, send CloudEventSender) *CloudEventsObserver {
	return &CloudEventsObserver{id: id, eventTypes: eventTypes, priority: priority, send: send}
}

// OnEvent converts event to a CloudEvent and forwards it.
func (o *CloudEventsObserver) OnEvent(ctx context.Context, event *Event) error {
	ce, err := ToCloudEvent(event)
	if err != nil {
		return err
	}
	return o.send(ctx, ce)
}

// ID returns the observer's unique identifier.
func (o *CloudEventsObserver) ID() string { return o.id }

// EventTypes returns the event types this observer wants to receive.
func (o *CloudEventsObserver) EventTypes() []EventType { return o.eventTypes }

// Priority returns the observer's delivery priority.
func (o *CloudEventsObserver) Priority() int { return o.priority }
