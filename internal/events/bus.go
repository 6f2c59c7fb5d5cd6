package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(RecordingStartedEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case RecordingStartedEvent:
		event.Publish(b.dispatcher, e)
	case RecordingStoppedEvent:
		event.Publish(b.dispatcher, e)
	case FaceDetectedEvent:
		event.Publish(b.dispatcher, e)
	case PreviewFrameEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type determines which events it receives.
// Returns an unsubscribe function; unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e RecordingStoppedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(RecordingStartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingStoppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FaceDetectedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PreviewFrameEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
