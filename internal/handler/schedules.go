package handler

import (
	"net/http"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

func (h *Handler) PublishSchedule(w http.ResponseWriter, r *http.Request) {
	var req domain.PublishRequest
	if err := h.readJSON(r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	// 租户、操作人和幂等键只信任令牌和请求头，不信任请求体
	req.TenantID = tenantFromContext(r.Context())
	req.ActorID = subFromContext(r.Context())
	req.IdempotencyKey, _ = r.Context().Value(IdempotencyCtxKey).(string)

	result, err := h.schedules.Publish(r.Context(), &req)
	observeOperation("publish", err)
	if err != nil {
		h.engineError(w, r, err)
		return
	}

	if !result.Replayed {
		shiftsCreated.Add(float64(result.CreatedShiftCount))
	}

	msg := "排班发布成功"
	if result.Replayed {
		msg = "该请求已处理过，返回原结果"
	}
	h.successResponse(w, r, msg, result)
}
