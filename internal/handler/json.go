package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

func (h *Handler) logInternalServerError(r *http.Request, err error) {
	slog.Error("服务器内部错误", "method", r.Method, "path", r.URL.Path, "error", err)
}

func (h *Handler) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logInternalServerError(r, err)
		http.Error(w, "服务器内部错误", http.StatusInternalServerError)
	}
}

type Response struct {
	Success bool             `json:"success"`
	Code    domain.ErrorCode `json:"code,omitempty"`
	Message string           `json:"message"`
	Data    any              `json:"data"`
}

var statusByCode = map[domain.ErrorCode]int{
	domain.CodeValidation:             http.StatusBadRequest,
	domain.CodePastDate:               http.StatusUnprocessableEntity,
	domain.CodeDirtyTimesheet:         http.StatusUnprocessableEntity,
	domain.CodeInvalidTransition:      http.StatusUnprocessableEntity,
	domain.CodeRateLimited:            http.StatusTooManyRequests,
	domain.CodeIdempotencyKeyConflict: http.StatusConflict,
	domain.CodeOverlapConflict:        http.StatusConflict,
	domain.CodeAvailabilityConflict:   http.StatusConflict,
	domain.CodeRaceCondition:          http.StatusConflict,
	domain.CodeNotFound:               http.StatusNotFound,
	domain.CodeForbidden:              http.StatusForbidden,
}

func (h *Handler) errorResponse(w http.ResponseWriter, r *http.Request, status int, code domain.ErrorCode, msg string) {
	h.writeJSON(w, r, status, Response{
		Success: false,
		Code:    code,
		Message: msg,
		Data:    nil,
	})
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	h.errorResponse(w, r, http.StatusBadRequest, domain.CodeValidation, h.translate(err))
}

// translate 返回校验错误中第一条的中文描述
func (h *Handler) translate(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}

	return validationErrors[0].Translate(h.translator)
}

// engineError 把引擎返回的错误映射成 HTTP 响应，非 domain.Error 的错误视为服务器内部错误
func (h *Handler) engineError(w http.ResponseWriter, r *http.Request, err error) {
	var e *domain.Error
	if !errors.As(err, &e) {
		h.internalServerError(w, r, err)
		return
	}

	status, ok := statusByCode[e.Code]
	if !ok {
		h.internalServerError(w, r, err)
		return
	}

	msg := e.Message
	if e.Code == domain.CodeValidation && e.Err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(e.Err, &validationErrors) {
			msg = validationErrors[0].Translate(h.translator)
		}
	}

	if e.Code == domain.CodeRateLimited && e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(e.RetryAfter.Seconds()))))
	}

	h.writeJSON(w, r, status, Response{
		Success: false,
		Code:    e.Code,
		Message: msg,
		Data:    e.Details,
	})
}

func (h *Handler) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	h.logInternalServerError(r, err)
	h.writeJSON(w, r, http.StatusInternalServerError, Response{
		Success: false,
		Message: "服务器内部错误",
		Data:    nil,
	})
}

func (h *Handler) successResponse(w http.ResponseWriter, r *http.Request, msg string, data any) {
	h.writeJSON(w, r, http.StatusOK, Response{
		Success: true,
		Message: msg,
		Data:    data,
	})
}
