package events

import "github.com/kelindar/event"

// SubscribeToChannel bridges kelindar/event callback-based subscriptions to channels.
// Huma's SSE handler drains the channel in a select loop; events are dropped
// when the channel is full so a slow client never stalls the publisher.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}

// SubscribeToChannelUntil delivers every event to ch, waiting while ch is
// full, until done is closed. It suits low-rate state events a client must
// not miss; a waiting send holds up only this subscription's queue.
func SubscribeToChannelUntil[T Event](bus *Bus, ch chan<- any, done <-chan struct{}) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		case <-done:
		}
	})
}
