package events

import (
	"testing"
	"time"
)

func TestNewBus(t *testing.T) {
	bus := NewBus()
	if bus == nil {
		t.Fatal("expected non-nil bus")
	}
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}
}

func TestBusSubscribe(t *testing.T) {
	bus := NewBus()

	ch1 := bus.Subscribe()
	if bus.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}

	ch2 := bus.Subscribe()
	if bus.SubscriberCount() != 2 {
		t.Errorf("expected 2 subscribers, got %d", bus.SubscriberCount())
	}

	if ch1 == nil || ch2 == nil {
		t.Error("expected non-nil channels")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()

	ch := bus.Subscribe()
	if bus.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", bus.SubscriberCount())
	}

	bus.Unsubscribe(ch)
	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}
}

func TestBusPublish(t *testing.T) {
	bus := NewBus()

	ch := bus.Subscribe()

	event := NewChaosDeliveredEvent("chaos-0", "node-2", "SIGKILL")
	bus.Publish(event)

	select {
	case received := <-ch:
		if received.Type != EventChaosDelivered {
			t.Errorf("expected event type %s, got %s", EventChaosDelivered, received.Type)
		}
		if received.Target != "node-2" {
			t.Errorf("expected target node-2, got %s", received.Target)
		}
		if received.Data.Signal != "SIGKILL" {
			t.Errorf("expected signal SIGKILL, got %s", received.Data.Signal)
		}
	case <-time.After(time.Second):
		t.Error("timeout waiting for event")
	}
}

func TestBusPublishToAll(t *testing.T) {
	bus := NewBus()

	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()

	bus.Publish(NewScenarioStartedEvent("seed-42"))

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Scenario != "seed-42" {
				t.Errorf("subscriber %d: expected scenario seed-42, got %s", i, e.Scenario)
			}
		case <-time.After(time.Second):
			t.Errorf("subscriber %d: timeout waiting for event", i)
		}
	}
}

func TestBusSubscribeBuffered(t *testing.T) {
	bus := NewBus()

	ch := bus.SubscribeBuffered(2)
	for i := 0; i < 2; i++ {
		bus.Publish(NewScenarioStartedEvent("seed-1"))
	}
	if len(ch) != 2 {
		t.Errorf("expected buffer of 2 events, got %d", len(ch))
	}
	if bus.Dropped() != 0 {
		t.Errorf("expected no drops within buffer, got %d", bus.Dropped())
	}

	// Overflow must not block the publisher
	bus.Publish(NewScenarioStartedEvent("seed-1"))
	if bus.Dropped() != 1 {
		t.Errorf("expected 1 dropped event, got %d", bus.Dropped())
	}
}

func TestBusClose(t *testing.T) {
	bus := NewBus()

	ch := bus.Subscribe()
	bus.Close()

	if bus.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", bus.SubscriberCount())
	}

	_, ok := <-ch
	if ok {
		t.Error("expected channel to be closed")
	}
}

func TestEventConstructors(t *testing.T) {
	e := NewOperationCompletedEvent("op-1", "FAILED", nil)
	if e.Data.Error != "" {
		t.Errorf("expected empty error, got %s", e.Data.Error)
	}
	if e.Data.Status != "FAILED" {
		t.Errorf("expected status FAILED, got %s", e.Data.Status)
	}

	v := NewValidationCompletedEvent("seed-7", false)
	if v.Data.Passed {
		t.Error("expected passed=false")
	}
	if v.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}
