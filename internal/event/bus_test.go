package event

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBus_PublishDelivers(t *testing.T) {
	bus := NewBus[string]()
	a := bus.Subscribe(4)
	b := bus.Subscribe(4)

	if a.ID == b.ID {
		t.Fatal("Subscription ids must be unique")
	}

	bus.Publish(EvStatusChanged, "Loading…")
	bus.Publish(EvCoinsUpdated, "coins")

	for _, s := range []*Subscription[string]{a, b} {
		ev := <-s.C()
		if ev.Type != EvStatusChanged || ev.State != "Loading…" || ev.Seq != 1 {
			t.Errorf("Unexpected first event: %+v", ev)
		}
		ev = <-s.C()
		if ev.Type != EvCoinsUpdated || ev.Seq != 2 {
			t.Errorf("Unexpected second event: %+v", ev)
		}
	}
}

func TestBus_SlowSubscriberDropsOldest(t *testing.T) {
	bus := NewBus[int]()
	s := bus.Subscribe(2)

	for i := 1; i <= 5; i++ {
		bus.Publish(EvCoinsUpdated, i)
	}

	if got := s.Dropped(); got != 3 {
		t.Errorf("Expected 3 dropped, got %d", got)
	}
	first := <-s.C()
	second := <-s.C()
	if first.State != 4 || second.State != 5 {
		t.Errorf("Expected latest events 4,5, got %d,%d", first.State, second.State)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus[int]()
	s := bus.Subscribe(1)
	s.Unsubscribe()
	s.Unsubscribe()

	if bus.Len() != 0 {
		t.Errorf("Expected no subscribers, got %d", bus.Len())
	}
	if _, ok := <-s.C(); ok {
		t.Error("Expected closed channel")
	}

	// Publishing after unsubscribe must not panic.
	bus.Publish(EvRatesUpdated, 1)
}

func TestEvent_JSONType(t *testing.T) {
	data, err := json.Marshal(Event[int]{Type: EvFavoritesChanged, State: 1})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"type":"favorites_changed"`) {
		t.Errorf("Expected type name in JSON, got %s", data)
	}
}
