package hub

import (
	"testing"
	"time"
)

func TestSubscribePublishDeliver(t *testing.T) {
	h := New()
	sub := h.Subscribe("conv-1")
	defer sub.Cancel()

	h.Publish(Event{Type: "message", ConversationID: "conv-1", MessageID: "m1"})

	select {
	case event := <-sub.Events():
		if event.MessageID != "m1" {
			t.Errorf("expected message id m1, got %s", event.MessageID)
		}
		if event.Type != "message" {
			t.Errorf("expected event type message, got %s", event.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("expected event delivery, got none")
	}
}

func TestPublishIsScopedToConversation(t *testing.T) {
	h := New()
	sub := h.Subscribe("conv-1")
	defer sub.Cancel()

	other := h.Subscribe("conv-2")
	defer other.Cancel()

	h.Publish(Event{Type: "message", ConversationID: "conv-2", MessageID: "m1"})

	select {
	case event := <-sub.Events():
		t.Fatalf("unexpected event on conv-1 subscription: %+v", event)
	default:
	}

	select {
	case event := <-other.Events():
		if event.ConversationID != "conv-2" {
			t.Errorf("expected conversation conv-2, got %s", event.ConversationID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected event on conv-2 subscription, got none")
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	h := New()
	first := h.Subscribe("conv-1")
	defer first.Cancel()
	second := h.Subscribe("conv-1")
	defer second.Cancel()

	if got := h.Subscribers("conv-1"); got != 2 {
		t.Fatalf("expected 2 subscribers, got %d", got)
	}

	h.Publish(Event{Type: "message", ConversationID: "conv-1", MessageID: "m1"})

	for i, sub := range []*Subscription{first, second} {
		select {
		case event := <-sub.Events():
			if event.MessageID != "m1" {
				t.Errorf("subscriber %d: expected message id m1, got %s", i, event.MessageID)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: expected event, got none", i)
		}
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	h := New()
	sub := h.Subscribe("conv-1")

	sub.Cancel()
	sub.Cancel() // second teardown path, must not panic or double-close

	if got := h.Subscribers("conv-1"); got != 0 {
		t.Errorf("expected 0 subscribers after cancel, got %d", got)
	}

	if _, ok := <-sub.Events(); ok {
		t.Error("expected events channel to be closed after cancel")
	}

	// Publishing after cancel must not reach the closed channel.
	h.Publish(Event{Type: "message", ConversationID: "conv-1", MessageID: "m1"})
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	h := New()
	sub := h.Subscribe("conv-1")
	defer sub.Cancel()

	// Fill the buffer and then some; the overflow must be dropped without
	// blocking the publisher.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriptionBuffer*2; i++ {
			h.Publish(Event{Type: "message", ConversationID: "conv-1", MessageID: "m"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}

	delivered := 0
	for {
		select {
		case <-sub.Events():
			delivered++
			continue
		default:
		}
		break
	}
	if delivered != subscriptionBuffer {
		t.Errorf("expected %d buffered events, got %d", subscriptionBuffer, delivered)
	}
}
