package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan SessionStateChangedEvent, 1)

	unsub := bus.Subscribe(func(e SessionStateChangedEvent) {
		received <- e
	})
	defer unsub()

	ev := SessionStateChangedEvent{
		DevicePath: "/dev/video0",
		From:       "negotiated",
		To:         "streaming",
		Timestamp:  "2025-01-27T10:30:00Z",
	}
	bus.Publish(ev)

	if got := <-received; got != ev {
		t.Errorf("got %+v, want %+v", got, ev)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan DeviceRemovedEvent, 1)
	received2 := make(chan DeviceRemovedEvent, 1)

	unsub1 := bus.Subscribe(func(e DeviceRemovedEvent) { received1 <- e })
	defer unsub1()
	unsub2 := bus.Subscribe(func(e DeviceRemovedEvent) { received2 <- e })
	defer unsub2()

	bus.Publish(DeviceRemovedEvent{DevicePath: "/dev/video0"})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan CaptureErrorEvent, 1)

	unsub := bus.Subscribe(func(e CaptureErrorEvent) {
		received <- e
	})

	bus.Publish(CaptureErrorEvent{DevicePath: "/dev/video0"})
	<-received

	unsub()

	bus.Publish(CaptureErrorEvent{DevicePath: "/dev/video1"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	added := make(chan bool, 1)
	removed := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(DeviceAddedEvent) { added <- true })
	defer unsub1()
	unsub2 := bus.Subscribe(func(DeviceRemovedEvent) { removed <- true })
	defer unsub2()

	bus.Publish(DeviceAddedEvent{DevicePath: "/dev/video0"})
	<-added

	select {
	case <-removed:
		t.Fatal("removal subscriber should NOT have received DeviceAddedEvent")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_UnknownHandler(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	if unsub == nil {
		t.Fatal("expected no-op unsubscribe")
	}
	unsub()
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)
	unsub := bus.Subscribe(func(CaptureErrorEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(CaptureErrorEvent{
					Kind:      "runtime_io",
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
		}()
	}

	wg.Wait()
	for range expected {
		<-receivedCh
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)
	unsub := SubscribeToChannel[DeviceRemovedEvent](bus, ch)

	bus.Publish(DeviceRemovedEvent{DevicePath: "/dev/video0"})
	select {
	case got := <-ch:
		if e, ok := got.(DeviceRemovedEvent); !ok || e.DevicePath != "/dev/video0" {
			t.Errorf("received %#v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("event not forwarded")
	}

	// A full channel drops instead of blocking the publisher.
	ch <- "busy"
	bus.Publish(DeviceRemovedEvent{DevicePath: "/dev/video1"})
	bus.Publish(DeviceRemovedEvent{DevicePath: "/dev/video2"})
	time.Sleep(50 * time.Millisecond)
	if got := <-ch; got != "busy" {
		t.Errorf("channel holds %#v, want the original item", got)
	}

	unsub()
	bus.Publish(DeviceRemovedEvent{DevicePath: "/dev/video3"})
	select {
	case got := <-ch:
		t.Errorf("received %#v after unsubscribe", got)
	case <-time.After(20 * time.Millisecond):
	}
}
