package handler

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/scheduler"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/timesheet"
)

type ScheduleService interface {
	Publish(ctx context.Context, req *domain.PublishRequest) (*domain.PublishResult, error)
	AssignWorkers(ctx context.Context, req *scheduler.AssignRequest) (*scheduler.AssignResult, error)
	SetAvailability(ctx context.Context, req *scheduler.SetAvailabilityRequest) (*domain.Availability, error)
}

type PunchService interface {
	ClockIn(ctx context.Context, req *timesheet.PunchRequest) (*timesheet.PunchResult, error)
	ClockOut(ctx context.Context, req *timesheet.PunchRequest) (*timesheet.PunchResult, error)
}

type ApprovalService interface {
	Approve(ctx context.Context, req *timesheet.ApproveRequest) (*timesheet.ApproveResult, error)
}

type Handler struct {
	validate   *validator.Validate
	config     *config.Config
	translator ut.Translator

	schedules ScheduleService
	punches   PunchService
	approvals ApprovalService

	punchLimiter *RateLimiter

	Mux *chi.Mux
}

// NewValidator 创建带中文翻译的校验器，引擎和 handler 共用同一个实例
func NewValidator() (*validator.Validate, ut.Translator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, nil, err
	}

	return validate, trans, nil
}

func NewHandler(cfg *config.Config, validate *validator.Validate, trans ut.Translator, schedules ScheduleService, punches PunchService, approvals ApprovalService) *Handler {
	return &Handler{
		validate:   validate,
		config:     cfg,
		translator: trans,

		schedules: schedules,
		punches:   punches,
		approvals: approvals,

		punchLimiter: NewRateLimiter(cfg.Punch.RequestsPerSecond, cfg.Punch.Burst),

		Mux: chi.NewRouter(),
	}
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)
	h.Mux.Use(h.metrics)

	h.Mux.Handle("/metrics", promhttp.Handler())

	// 以下 API 必须要带有效令牌才允许调用
	h.Mux.Group(func(r chi.Router) {
		r.Use(h.auth)

		r.Route("/schedules", func(r chi.Router) {
			r.Use(h.RequiredRole([]domain.Role{domain.RoleManager}))
			r.With(h.idempotencyKey).Post("/publish", h.PublishSchedule)
		})

		r.Route("/shifts/{id}", func(r chi.Router) {
			r.Use(h.shiftID)
			r.With(h.RequiredRole([]domain.Role{domain.RoleManager})).Post("/assignments", h.AssignWorkers)
			r.With(h.RequiredRole([]domain.Role{domain.RoleManager})).Post("/approve", h.ApproveShift)
			r.Group(func(r chi.Router) {
				r.Use(h.RequiredRole([]domain.Role{domain.RoleWorker}))
				r.Use(h.punchLimiter.Handler(h))
				r.Post("/clock-in", h.ClockIn)
				r.Post("/clock-out", h.ClockOut)
			})
		})

		r.With(h.RequiredRole([]domain.Role{domain.RoleWorker})).Post("/availabilities", h.SetAvailability)
	})
}
