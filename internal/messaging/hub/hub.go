// Package hub is the in-process delivery registry: conversation id mapped to
// the set of live stream subscriptions. Delivery is best-effort; a
// disconnected subscriber misses events and reconciles by re-fetching the
// message list on reconnect.
package hub

import "sync"

const subscriptionBuffer = 8

// Event is a wake-up signal, not an authoritative payload. Clients re-fetch
// on receipt; the same message may arrive via the change feed too.
type Event struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func New() *Hub {
	return &Hub{
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscription is one stream endpoint's registration. Cancel is idempotent.
type Subscription struct {
	hub            *Hub
	conversationID string
	events         chan Event
	once           sync.Once
}

func (h *Hub) Subscribe(conversationID string) *Subscription {
	sub := &Subscription{
		hub:            h,
		conversationID: conversationID,
		events:         make(chan Event, subscriptionBuffer),
	}

	h.mu.Lock()
	if h.subs[conversationID] == nil {
		h.subs[conversationID] = make(map[*Subscription]struct{})
	}
	h.subs[conversationID][sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Cancel deregisters the subscription and closes its channel. Safe to call
// from multiple teardown paths; only the first call has effect.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		if subs := h.subs[s.conversationID]; subs != nil {
			delete(subs, s)
			if len(subs) == 0 {
				delete(h.subs, s.conversationID)
			}
		}
		h.mu.Unlock()
		close(s.events)
	})
}

// Publish fans the event out to every subscription on its conversation. A
// subscriber whose buffer is full drops the event rather than blocking the
// sender.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[event.ConversationID] {
		select {
		case sub.events <- event:
		default:
		}
	}
}

// Subscribers reports the live subscription count for one conversation.
func (h *Hub) Subscribers(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[conversationID])
}
