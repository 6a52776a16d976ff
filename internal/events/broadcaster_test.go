package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestBroadcasterSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	ch1 := b.Subscribe()
	ch2 := b.Subscribe()

	if b.Count() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", b.Count())
	}

	b.Unsubscribe(ch1)
	if b.Count() != 1 {
		t.Fatalf("expected 1 subscriber after unsubscribe, got %d", b.Count())
	}

	// A second unsubscribe must not panic on the closed channel.
	b.Unsubscribe(ch1)

	b.Unsubscribe(ch2)
	if b.Count() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.Count())
	}
}

func TestBroadcasterPublish(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{
		Type:   EventMove,
		Tenant: "acme/app",
		Path:   "Src",
		Dst:    "Dest/Src",
	})

	select {
	case received := <-ch:
		if received.Type != EventMove {
			t.Errorf("expected type %s, got %s", EventMove, received.Type)
		}
		if received.Dst != "Dest/Src" {
			t.Errorf("expected dst Dest/Src, got %s", received.Dst)
		}
		if received.Timestamp == 0 {
			t.Error("expected non-zero timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroadcasterDropsForSlowConsumer(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.Publish(Event{Type: EventModify, Path: "A.schemio.json"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	if len(ch) != cap(ch) {
		t.Errorf("expected a full buffer of %d, got %d", cap(ch), len(ch))
	}
}

func TestMarshalEvent(t *testing.T) {
	data, err := MarshalEvent(Event{Type: EventDelete, Tenant: "acme/app", Path: "A", Timestamp: 42})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["dst"]; ok {
		t.Error("empty dst should be omitted")
	}
	if m["tenant"] != "acme/app" {
		t.Errorf("unexpected tenant %v", m["tenant"])
	}
}
