package events

import "github.com/kelindar/event"

// SubscribeToChannel forwards events of type T to ch for a streaming
// client. Events are dropped while ch is full so a slow client never
// blocks the publisher. Returns an unsubscribe function.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
