package handler

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"hirewheel/internal/bookings/service"
	apperrors "hirewheel/pkg/errors"
	httputil "hirewheel/pkg/http"
	"hirewheel/pkg/logger"
	"hirewheel/pkg/middleware"
	"hirewheel/pkg/model"
)

type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

func NewBookingHandler(service service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		h.writeError(w, "Create", apperrors.Unauthorized("Missing caller identity"))
		return
	}

	var booking model.Booking
	if err := json.NewDecoder(r.Body).Decode(&booking); err != nil {
		h.writeError(w, "Create", apperrors.InvalidInput("Invalid request body"))
		return
	}

	if err := h.service.Create(r.Context(), caller, &booking); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, booking); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		h.writeError(w, "GetByID", apperrors.Unauthorized("Missing caller identity"))
		return
	}

	booking, err := h.service.GetByID(r.Context(), caller, ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		h.writeError(w, "List", apperrors.Unauthorized("Missing caller identity"))
		return
	}

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	bookings, total, err := h.service.List(r.Context(), caller, r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		h.writeError(w, "List", err)
		return
	}

	if err := httputil.WritePaginated(w, bookings, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "List", "operation", "WritePaginated", "error", err)
	}
}

func (h *BookingHandler) Decide(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		h.writeError(w, "Decide", apperrors.Unauthorized("Missing caller identity"))
		return
	}

	var decision model.BookingDecision
	if err := json.NewDecoder(r.Body).Decode(&decision); err != nil {
		h.writeError(w, "Decide", apperrors.InvalidInput("Invalid request body"))
		return
	}

	booking, err := h.service.Decide(r.Context(), caller, ps.ByName("id"), &decision)
	if err != nil {
		h.writeError(w, "Decide", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "Decide", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Close(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		h.writeError(w, "Close", apperrors.Unauthorized("Missing caller identity"))
		return
	}

	var closure model.BookingClosure
	if err := json.NewDecoder(r.Body).Decode(&closure); err != nil {
		h.writeError(w, "Close", apperrors.InvalidInput("Invalid request body"))
		return
	}

	booking, err := h.service.Close(r.Context(), caller, ps.ByName("id"), &closure)
	if err != nil {
		h.writeError(w, "Close", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "Close", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) AttachReview(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		h.writeError(w, "AttachReview", apperrors.Unauthorized("Missing caller identity"))
		return
	}

	var review model.Review
	if err := json.NewDecoder(r.Body).Decode(&review); err != nil {
		h.writeError(w, "AttachReview", apperrors.InvalidInput("Invalid request body"))
		return
	}

	booking, err := h.service.AttachReview(r.Context(), caller, ps.ByName("id"), &review)
	if err != nil {
		h.writeError(w, "AttachReview", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "AttachReview", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handlerName string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handlerName, "operation", "WriteError", "error", writeErr)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings", h.Create)
	router.GET("/api/v1/bookings", h.List)
	router.GET("/api/v1/bookings/id/:id", h.GetByID)
	router.POST("/api/v1/bookings/id/:id/decision", h.Decide)
	router.POST("/api/v1/bookings/id/:id/closure", h.Close)
	router.POST("/api/v1/bookings/id/:id/review", h.AttachReview)
}
