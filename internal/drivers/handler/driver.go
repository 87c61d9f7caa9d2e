package handler

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"hirewheel/internal/drivers/service"
	apperrors "hirewheel/pkg/errors"
	httputil "hirewheel/pkg/http"
	"hirewheel/pkg/logger"
	"hirewheel/pkg/middleware"
	"hirewheel/pkg/model"
)

type DriverHandler struct {
	service service.DriverService
	log     *logger.Logger
}

func NewDriverHandler(service service.DriverService, log *logger.Logger) *DriverHandler {
	return &DriverHandler{
		service: service,
		log:     log,
	}
}

func (h *DriverHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		h.writeError(w, "Create", apperrors.Unauthorized("Missing caller identity"))
		return
	}

	var driver model.Driver
	if err := json.NewDecoder(r.Body).Decode(&driver); err != nil {
		h.writeError(w, "Create", apperrors.InvalidInput("Invalid request body"))
		return
	}

	if err := h.service.Create(r.Context(), caller, &driver); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, driver); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *DriverHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	driver, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, driver); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *DriverHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	drivers, total, err := h.service.GetAll(r.Context(), r.URL.Query().Get("city"), limit, offset)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	if err := httputil.WritePaginated(w, drivers, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "operation", "WritePaginated", "error", err)
	}
}

func (h *DriverHandler) GetAvailability(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	availability, err := h.service.GetAvailability(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetAvailability", err)
		return
	}

	if err := httputil.WriteSuccess(w, availability); err != nil {
		h.log.Error("failed to write success response", "handler", "GetAvailability", "operation", "WriteSuccess", "error", err)
	}
}

func (h *DriverHandler) ReplaceUnavailableDates(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		h.writeError(w, "ReplaceUnavailableDates", apperrors.Unauthorized("Missing caller identity"))
		return
	}

	var update model.AvailabilityUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.writeError(w, "ReplaceUnavailableDates", apperrors.InvalidInput("Invalid request body"))
		return
	}

	availability, err := h.service.ReplaceUnavailableDates(r.Context(), caller, ps.ByName("id"), &update)
	if err != nil {
		h.writeError(w, "ReplaceUnavailableDates", err)
		return
	}

	if err := httputil.WriteSuccess(w, availability); err != nil {
		h.log.Error("failed to write success response", "handler", "ReplaceUnavailableDates", "operation", "WriteSuccess", "error", err)
	}
}

func (h *DriverHandler) writeError(w http.ResponseWriter, handlerName string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handlerName, "operation", "WriteError", "error", writeErr)
	}
}

func (h *DriverHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/drivers", h.Create)
	router.GET("/api/v1/drivers", h.GetAll)
	router.GET("/api/v1/drivers/id/:id", h.GetByID)
	router.GET("/api/v1/drivers/id/:id/availability", h.GetAvailability)
	router.PUT("/api/v1/drivers/id/:id/availability", h.ReplaceUnavailableDates)
}
