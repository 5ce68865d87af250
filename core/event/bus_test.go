package event

import (
	"testing"
)

func TestBusDeliveryOrder(t *testing.T) {
	bus := NewBus(nil)

	var got []int
	bus.Subscribe(TopicLogin, func(Event) { got = append(got, 1) })
	bus.Subscribe(TopicLogin, func(Event) { got = append(got, 2) })
	bus.SubscribeAll(func(Event) { got = append(got, 3) })

	bus.Publish(Login{UserID: "u1"})

	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("deliveries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("deliveries = %v, want %v", got, want)
		}
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(nil)

	var calls int
	unsub := bus.Subscribe(TopicLogout, func(Event) { calls++ })

	bus.Publish(Logout{})
	unsub()
	bus.Publish(Logout{})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if bus.HasSubscribers(TopicLogout) {
		t.Error("HasSubscribers() = true after unsubscribe")
	}
}

func TestBusOnce(t *testing.T) {
	bus := NewBus(nil)

	var calls int
	bus.Once(TopicOnline, func(Event) { calls++ })

	bus.Publish(Online{})
	bus.Publish(Online{})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBusHandlerPanicDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(nil)

	var calls int
	bus.Subscribe(TopicOffline, func(Event) { panic("boom") })
	bus.Subscribe(TopicOffline, func(Event) { calls++ })

	bus.Publish(Offline{})

	if calls != 1 {
		t.Errorf("second handler calls = %d, want 1", calls)
	}
}

func TestBusTopicIsolation(t *testing.T) {
	bus := NewBus(nil)

	var calls int
	bus.Subscribe(TopicLogin, func(Event) { calls++ })

	bus.Publish(Logout{})

	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}
