package handler

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"hirewheel/internal/messaging/service"
	apperrors "hirewheel/pkg/errors"
	httputil "hirewheel/pkg/http"
	"hirewheel/pkg/logger"
	"hirewheel/pkg/middleware"
)

type MessagingHandler struct {
	service service.MessagingService
	log     *logger.Logger
}

func NewMessagingHandler(service service.MessagingService, log *logger.Logger) *MessagingHandler {
	return &MessagingHandler{
		service: service,
		log:     log,
	}
}

type openConversationRequest struct {
	OtherUserID string `json:"other_user_id"`
}

type sendMessageRequest struct {
	Body string `json:"body"`
}

func (h *MessagingHandler) OpenConversation(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		h.writeError(w, "OpenConversation", apperrors.Unauthorized("Missing caller identity"))
		return
	}

	var req openConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "OpenConversation", apperrors.InvalidInput("Invalid request body"))
		return
	}

	conversation, err := h.service.CreateOrGetConversation(r.Context(), caller, req.OtherUserID)
	if err != nil {
		h.writeError(w, "OpenConversation", err)
		return
	}

	if err := httputil.WriteSuccess(w, conversation); err != nil {
		h.log.Error("failed to write success response", "handler", "OpenConversation", "operation", "WriteSuccess", "error", err)
	}
}

func (h *MessagingHandler) ListConversations(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		h.writeError(w, "ListConversations", apperrors.Unauthorized("Missing caller identity"))
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "ListConversations", err)
		return
	}

	conversations, total, err := h.service.ListConversations(r.Context(), caller, limit, offset)
	if err != nil {
		h.writeError(w, "ListConversations", err)
		return
	}

	if err := httputil.WritePaginated(w, conversations, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListConversations", "operation", "WritePaginated", "error", err)
	}
}

func (h *MessagingHandler) SendMessage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		h.writeError(w, "SendMessage", apperrors.Unauthorized("Missing caller identity"))
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "SendMessage", apperrors.InvalidInput("Invalid request body"))
		return
	}

	message, err := h.service.SendMessage(r.Context(), caller, ps.ByName("id"), req.Body)
	if err != nil {
		h.writeError(w, "SendMessage", err)
		return
	}

	if err := httputil.WriteCreated(w, message); err != nil {
		h.log.Error("failed to write created response", "handler", "SendMessage", "operation", "WriteCreated", "error", err)
	}
}

func (h *MessagingHandler) ListMessages(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		h.writeError(w, "ListMessages", apperrors.Unauthorized("Missing caller identity"))
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "ListMessages", err)
		return
	}

	messages, err := h.service.ListMessages(r.Context(), caller, ps.ByName("id"), limit, offset)
	if err != nil {
		h.writeError(w, "ListMessages", err)
		return
	}

	if err := httputil.WriteSuccess(w, messages); err != nil {
		h.log.Error("failed to write success response", "handler", "ListMessages", "operation", "WriteSuccess", "error", err)
	}
}

func (h *MessagingHandler) writeError(w http.ResponseWriter, handlerName string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handlerName, "operation", "WriteError", "error", writeErr)
	}
}

func (h *MessagingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/conversations", h.OpenConversation)
	router.GET("/api/v1/conversations", h.ListConversations)
	router.GET("/api/v1/conversations/id/:id/messages", h.ListMessages)
	router.POST("/api/v1/conversations/id/:id/messages", h.SendMessage)
}
