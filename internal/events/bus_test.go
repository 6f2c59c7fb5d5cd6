package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		var zero T
		t.Fatal("timeout waiting for event")
		return zero
	}
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan RecordingStartedEvent, 1)

	unsub := bus.Subscribe(func(e RecordingStartedEvent) {
		received <- e
	})
	defer unsub()

	event := RecordingStartedEvent{
		SessionID: "s1",
		Path:      "recordings/recording_1.avi",
		Width:     640,
		Height:    480,
		Timestamp: "2025-01-27T10:30:00Z",
	}
	bus.Publish(event)

	got := receive(t, received)
	if got != event {
		t.Errorf("got %+v, want %+v", got, event)
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := New()
	received1 := make(chan RecordingStoppedEvent, 1)
	received2 := make(chan RecordingStoppedEvent, 1)

	defer bus.Subscribe(func(e RecordingStoppedEvent) { received1 <- e })()
	defer bus.Subscribe(func(e RecordingStoppedEvent) { received2 <- e })()

	bus.Publish(RecordingStoppedEvent{SessionID: "s1", Reason: "requested"})

	if got := receive(t, received1); got.Reason != "requested" {
		t.Errorf("subscriber 1 got reason %q", got.Reason)
	}
	if got := receive(t, received2); got.Reason != "requested" {
		t.Errorf("subscriber 2 got reason %q", got.Reason)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan FaceDetectedEvent, 2)

	unsub := bus.Subscribe(func(e FaceDetectedEvent) { received <- e })
	bus.Publish(FaceDetectedEvent{Count: 1})
	receive(t, received)

	unsub()
	bus.Publish(FaceDetectedEvent{Count: 2})

	select {
	case e := <-received:
		t.Errorf("received event after unsubscribe: %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()
	started := make(chan RecordingStartedEvent, 1)
	stopped := make(chan RecordingStoppedEvent, 1)

	defer bus.Subscribe(func(e RecordingStartedEvent) { started <- e })()
	defer bus.Subscribe(func(e RecordingStoppedEvent) { stopped <- e })()

	bus.Publish(RecordingStoppedEvent{SessionID: "only-stop"})

	receive(t, stopped)
	select {
	case e := <-started:
		t.Errorf("started subscriber received %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_UnknownHandlerIsNoop(_ *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestBus_ThreadSafety(t *testing.T) {
	bus := New()
	var mu sync.Mutex
	count := 0
	all := make(chan struct{})

	const publishers, perPublisher = 10, 20
	defer bus.Subscribe(func(PreviewFrameEvent) {
		mu.Lock()
		count++
		if count == publishers*perPublisher {
			close(all)
		}
		mu.Unlock()
	})()

	var wg sync.WaitGroup
	for range publishers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perPublisher {
				bus.Publish(PreviewFrameEvent{Faces: 1})
			}
		}()
	}
	wg.Wait()
	receive(t, all)
}

func TestEventTypesAreDistinct(t *testing.T) {
	evs := []Event{
		RecordingStartedEvent{},
		RecordingStoppedEvent{},
		FaceDetectedEvent{},
		PreviewFrameEvent{},
	}
	seen := make(map[uint32]bool)
	for _, e := range evs {
		if seen[e.Type()] {
			t.Errorf("duplicate type id %d for %T", e.Type(), e)
		}
		seen[e.Type()] = true
	}
}

func TestRecordingStateEvents(t *testing.T) {
	if !(RecordingStartedEvent{}).IsRecording() {
		t.Error("RecordingStartedEvent should report recording")
	}
	if (RecordingStoppedEvent{}).IsRecording() {
		t.Error("RecordingStoppedEvent should report idle")
	}
}

func TestRecordingStoppedEventJSON(t *testing.T) {
	data, err := json.Marshal(RecordingStoppedEvent{
		SessionID:     "s1",
		Reason:        "source_failed",
		FramesWritten: 12,
	})
	if err != nil {
		t.Fatal(err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["reason"] != "source_failed" || m["frames_written"] != float64(12) {
		t.Errorf("unexpected json: %s", data)
	}
	if _, ok := m["error"]; ok {
		t.Errorf("empty error should be omitted: %s", data)
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[PreviewFrameEvent](bus, ch)
	defer unsub()

	bus.Publish(PreviewFrameEvent{SessionID: "s1", ImageData: "abc"})

	got, ok := receive(t, ch).(PreviewFrameEvent)
	if !ok {
		t.Fatal("expected PreviewFrameEvent")
	}
	if got.ImageData != "abc" {
		t.Errorf("ImageData = %q", got.ImageData)
	}
}

func TestSubscribeToChannel_NonBlocking(t *testing.T) {
	bus := New()
	ch := make(chan any) // No buffer

	unsub := SubscribeToChannel[RecordingStartedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(RecordingStartedEvent{SessionID: "s1"})
		done <- true
	}()

	receive(t, done)
}

func TestSubscribeToChannelUntil_KeepsEveryEvent(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)
	done := make(chan struct{})
	defer close(done)

	unsub := SubscribeToChannelUntil[RecordingStoppedEvent](bus, ch, done)
	defer unsub()

	for _, id := range []string{"s1", "s2", "s3", "s4"} {
		bus.Publish(RecordingStoppedEvent{SessionID: id})
	}
	time.Sleep(20 * time.Millisecond)

	for _, want := range []string{"s1", "s2", "s3", "s4"} {
		got, ok := receive(t, ch).(RecordingStoppedEvent)
		if !ok || got.SessionID != want {
			t.Fatalf("got %+v, want session %s", got, want)
		}
	}
}

func TestSubscribeToChannelUntil_PublishNeverWaits(t *testing.T) {
	bus := New()
	ch := make(chan any) // never read
	done := make(chan struct{})
	defer close(done)

	unsub := SubscribeToChannelUntil[RecordingStartedEvent](bus, ch, done)
	defer unsub()

	published := make(chan struct{})
	go func() {
		for range 3 {
			bus.Publish(RecordingStartedEvent{SessionID: "s1"})
		}
		close(published)
	}()
	receive(t, published)
}
