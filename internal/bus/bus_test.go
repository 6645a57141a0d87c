package bus

import (
	"strings"
	"sync"
	"testing"
)

func TestHubBroadcastDeliversToAllSubscribers(t *testing.T) {
	hub := NewHub()
	var mu sync.Mutex
	received := map[string]Event{}

	hub.Subscribe("a", func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		received["a"] = e
	})
	hub.Subscribe("b", func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		received["b"] = e
	})

	hub.Broadcast(Event{Name: EventThinking})

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 subscribers to receive event, got %d", len(received))
	}
	if received["a"].Name != EventThinking || received["b"].Name != EventThinking {
		t.Error("subscribers did not receive the broadcast event")
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	count := 0
	hub.Subscribe("a", func(e Event) { count++ })
	hub.Broadcast(Event{Name: EventMessage})
	hub.Unsubscribe("a")
	hub.Broadcast(Event{Name: EventMessage})

	if count != 1 {
		t.Errorf("count = %d, want 1 (second broadcast after unsubscribe should not deliver)", count)
	}
}

func TestHubSubscribeReplacesExistingHandler(t *testing.T) {
	hub := NewHub()
	var last string
	hub.Subscribe("a", func(e Event) { last = "first" })
	hub.Subscribe("a", func(e Event) { last = "second" })
	hub.Broadcast(Event{Name: EventMessage})
	if last != "second" {
		t.Errorf("last = %q, want %q", last, "second")
	}
}

func TestTruncateResultUnderLimit(t *testing.T) {
	s := "short result"
	if got := TruncateResult(s); got != s {
		t.Errorf("TruncateResult modified a short string: %q", got)
	}
}

func TestTruncateResultOverLimit(t *testing.T) {
	s := strings.Repeat("x", 2500)
	got := TruncateResult(s)
	if !strings.HasSuffix(got, "... (truncated)") {
		t.Error("expected truncation suffix")
	}
	if len(got) != 2000+len("... (truncated)") {
		t.Errorf("unexpected truncated length: %d", len(got))
	}
}
