package handler

import (
	"net/http"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/scheduler"
)

func (h *Handler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StartTime time.Time               `json:"startTime" validate:"required"`
		EndTime   time.Time               `json:"endTime" validate:"required"`
		Type      domain.AvailabilityType `json:"type" validate:"required,oneof=unavailable preferred"`
		Reason    string                  `json:"reason" validate:"max=200"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	availability, err := h.schedules.SetAvailability(r.Context(), &scheduler.SetAvailabilityRequest{
		WorkerID:  subFromContext(r.Context()),
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Type:      req.Type,
		Reason:    req.Reason,
	})
	observeOperation("availability", err)
	if err != nil {
		h.engineError(w, r, err)
		return
	}

	h.successResponse(w, r, "时间段声明成功", availability)
}
