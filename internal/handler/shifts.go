package handler

import (
	"net/http"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/scheduler"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/timesheet"
)

func (h *Handler) AssignWorkers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WorkerIDs []int64 `json:"workerIDs" validate:"required,min=1,max=50,dive,min=1"`
		Force     bool    `json:"force"`
	}

	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	result, err := h.schedules.AssignWorkers(r.Context(), &scheduler.AssignRequest{
		TenantID:  tenantFromContext(r.Context()),
		ShiftID:   shiftIDFromContext(r.Context()),
		ActorID:   subFromContext(r.Context()),
		WorkerIDs: req.WorkerIDs,
		Force:     req.Force,
	})
	observeOperation("assign", err)
	if err != nil {
		h.engineError(w, r, err)
		return
	}

	if result.NeedsConfirmation {
		h.successResponse(w, r, "部分工人在同一时间段已有其它班次，请确认后强制派工", result)
		return
	}
	h.successResponse(w, r, "派工成功", result)
}

type punchRequest struct {
	Latitude        *float64   `json:"latitude" validate:"required"`
	Longitude       *float64   `json:"longitude" validate:"required"`
	DeviceTimestamp *time.Time `json:"deviceTimestamp"`
}

func (h *Handler) readPunch(w http.ResponseWriter, r *http.Request) (*timesheet.PunchRequest, bool) {
	var req punchRequest
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return nil, false
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return nil, false
	}

	return &timesheet.PunchRequest{
		ShiftID:         shiftIDFromContext(r.Context()),
		WorkerID:        subFromContext(r.Context()),
		Latitude:        *req.Latitude,
		Longitude:       *req.Longitude,
		DeviceTimestamp: req.DeviceTimestamp,
	}, true
}

func (h *Handler) ClockIn(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readPunch(w, r)
	if !ok {
		return
	}

	result, err := h.punches.ClockIn(r.Context(), req)
	observeOperation("clock_in", err)
	if err != nil {
		h.engineError(w, r, err)
		return
	}

	h.successResponse(w, r, "上班打卡成功", result)
}

func (h *Handler) ClockOut(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readPunch(w, r)
	if !ok {
		return
	}

	result, err := h.punches.ClockOut(r.Context(), req)
	observeOperation("clock_out", err)
	if err != nil {
		h.engineError(w, r, err)
		return
	}

	h.successResponse(w, r, "下班打卡成功", result)
}

func (h *Handler) ApproveShift(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BreakMinutes map[int64]int32 `json:"breakMinutes" validate:"omitempty,dive,min=0,max=1440"`
	}

	// 请求体可以为空
	if r.ContentLength != 0 {
		if err := h.readJSON(r, &req); err != nil {
			h.badRequest(w, r, err)
			return
		}
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	result, err := h.approvals.Approve(r.Context(), &timesheet.ApproveRequest{
		TenantID:     tenantFromContext(r.Context()),
		ShiftID:      shiftIDFromContext(r.Context()),
		ActorID:      subFromContext(r.Context()),
		BreakMinutes: req.BreakMinutes,
	})
	observeOperation("approve", err)
	if err != nil {
		h.engineError(w, r, err)
		return
	}

	h.successResponse(w, r, "审批成功", result)
}
