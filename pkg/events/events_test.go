package events

import (
	"testing"
	"time"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&Event{
		Type:     EventPoolReady,
		Message:  "pool pool-a: preparing -> ready",
		Metadata: map[string]string{"pool_id": "pool-a"},
	})

	select {
	case event := <-sub:
		if event.Type != EventPoolReady {
			t.Errorf("Type = %q, want %q", event.Type, EventPoolReady)
		}
		if event.Timestamp.IsZero() {
			t.Error("Publish should stamp a zero Timestamp")
		}
		if event.Metadata["pool_id"] != "pool-a" {
			t.Errorf("Metadata[pool_id] = %q, want pool-a", event.Metadata["pool_id"])
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestBrokerFanOut(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub1 := broker.Subscribe()
	sub2 := broker.Subscribe()
	defer broker.Unsubscribe(sub1)
	defer broker.Unsubscribe(sub2)

	if got := broker.SubscriberCount(); got != 2 {
		t.Fatalf("SubscriberCount() = %d, want 2", got)
	}

	broker.Publish(&Event{Type: EventNodeUnusable})

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case <-sub:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-out delivery")
		}
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	broker.Unsubscribe(sub)

	if got := broker.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() = %d after Unsubscribe, want 0", got)
	}

	if _, ok := <-sub; ok {
		t.Error("channel should be closed after Unsubscribe")
	}
}
