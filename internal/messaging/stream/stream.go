// Package stream serves the long-lived message event stream: one SSE
// connection per viewing session, fed by the in-process hub and, when the
// topology supports it, the message collection's change feed.
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"

	"hirewheel/internal/messaging/hub"
	"hirewheel/internal/messaging/repository"
	"hirewheel/internal/messaging/service"
	mongodb "hirewheel/pkg/db/mongo"
	apperrors "hirewheel/pkg/errors"
	httputil "hirewheel/pkg/http"
	"hirewheel/pkg/logger"
	"hirewheel/pkg/middleware"
)

type StreamHandler struct {
	service     service.MessagingService
	hub         *hub.Hub
	messages    repository.MessageRepository
	keepAlive   time.Duration
	feedEnabled bool
	log         *logger.Logger
}

func NewStreamHandler(
	svc service.MessagingService,
	deliveryHub *hub.Hub,
	messages repository.MessageRepository,
	keepAlive time.Duration,
	feedEnabled bool,
	log *logger.Logger,
) *StreamHandler {
	return &StreamHandler{
		service:     svc,
		hub:         deliveryHub,
		messages:    messages,
		keepAlive:   keepAlive,
		feedEnabled: feedEnabled,
		log:         log,
	}
}

// TimeoutExempt reports whether the request targets the stream endpoint,
// which must outlive the per-request timeout budget.
func TimeoutExempt(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/stream")
}

func (h *StreamHandler) Open(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		h.writeError(w, apperrors.Unauthorized("Missing caller identity"))
		return
	}

	conversationID := ps.ByName("id")
	conversation, err := h.service.AuthorizeParticipant(r.Context(), caller, conversationID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, apperrors.Internal("Streaming unsupported by connection", nil))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := h.hub.Subscribe(conversation.ID)

	// Secondary delivery path: messages written by other instances arrive
	// through the change feed. Watch failure degrades to hub-only delivery.
	var feedEvents <-chan mongodb.InsertEvent
	feedStop := func() {}
	if h.feedEnabled {
		events, stop, err := h.messages.WatchConversationInserts(r.Context(), conversation.ID)
		if err != nil {
			h.log.Warn("Change feed unavailable, stream degrades to in-process delivery",
				"conversation_id", conversation.ID,
				"error", err,
			)
		} else {
			feedEvents = events
			feedStop = stop
		}
	}

	// Teardown must run exactly once no matter which path closes the
	// stream: client disconnect, server shutdown, or an internal error.
	var teardownOnce sync.Once
	teardown := func() {
		teardownOnce.Do(func() {
			sub.Cancel()
			feedStop()
			h.log.Debug("Stream closed", "conversation_id", conversation.ID)
		})
	}
	defer teardown()

	h.writeFrame(w, flusher, "handshake", map[string]string{
		"conversation_id": conversation.ID,
	})

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	h.log.Info("Stream opened",
		"conversation_id", conversation.ID,
		"user_id", caller.UserID,
		"change_feed", feedEvents != nil,
	)

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			h.writeFrame(w, flusher, event.Type, event)

		case insert, ok := <-feedEvents:
			if !ok {
				// Feed broke mid-stream; keep serving hub events.
				feedEvents = nil
				continue
			}
			h.writeFrame(w, flusher, service.EventTypeMessage, hub.Event{
				Type:           service.EventTypeMessage,
				ConversationID: conversation.ID,
				MessageID:      insert.DocumentID,
			})

		case <-ticker.C:
			h.writeFrame(w, flusher, "ping", map[string]string{})

		case <-r.Context().Done():
			return
		}
	}
}

func (h *StreamHandler) writeFrame(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("Failed to marshal stream frame", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

func (h *StreamHandler) writeError(w http.ResponseWriter, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", "Open", "operation", "WriteError", "error", writeErr)
	}
}

func (h *StreamHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/conversations/id/:id/stream", h.Open)
}
