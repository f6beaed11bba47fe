package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

const (
	tokenCookieName      = "__shift_manager_token"
	idempotencyHeader    = "Idempotency-Key"
	maxIdempotencyKeyLen = 200
)

type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
}

func (rw *ResponseWriter) WriteHeader(statusCode int) {
	rw.StatusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (h *Handler) logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		duration := time.Since(start)
		slog.Info("已处理请求", "status", rw.StatusCode, "ip", r.RemoteAddr, "method", r.Method, "path", r.URL.Path, "duration", duration)
	})
}

func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.internalServerError(w, r, fmt.Errorf("panic: %v", err))
				stackTrace := string(debug.Stack())
				fmt.Print(stackTrace) // 这里如果用 slog 的话会很乱
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// bearerToken 优先读取 Authorization 头，其次读取 cookie
func bearerToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return "", errors.New("无效的 Authorization 头")
		}
		return token, nil
	}

	cookie, err := r.Cookie(tokenCookieName)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

func (h *Handler) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := bearerToken(r)
		if err != nil {
			h.errorResponse(w, r, http.StatusUnauthorized, "", "用户未登录")
			return
		}

		// 验证 token
		claims := &AuthClaims{}
		_, err = jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(h.config.JWT.Secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			h.errorResponse(w, r, http.StatusUnauthorized, "", "无效的令牌")
			return
		}

		sub, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || sub <= 0 {
			h.errorResponse(w, r, http.StatusUnauthorized, "", "无效的令牌")
			return
		}

		// 管理员的所有操作都限定在令牌中的租户内
		if domain.Role(claims.Role) == domain.RoleManager && claims.TenantID <= 0 {
			h.errorResponse(w, r, http.StatusForbidden, domain.CodeForbidden, "令牌中缺少租户信息")
			return
		}

		// 将 claims 中的 role、sub 和 tenant 附在 context 中
		ctx := r.Context()
		ctx = context.WithValue(ctx, RoleCtxKey, claims.Role)
		ctx = context.WithValue(ctx, SubCtxKey, sub)
		ctx = context.WithValue(ctx, TenantCtxKey, claims.TenantID)

		// 执行下一个 handler
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) RequiredRole(roles []domain.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			roleCtx := r.Context().Value(RoleCtxKey).(string)
			role := domain.Role(roleCtx)
			if !slices.Contains(roles, role) {
				h.errorResponse(w, r, http.StatusForbidden, domain.CodeForbidden, "权限不足")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *Handler) shiftID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		shiftID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || shiftID <= 0 {
			h.errorResponse(w, r, http.StatusBadRequest, domain.CodeValidation, "班次ID无效")
			return
		}

		ctx := context.WithValue(r.Context(), ShiftIDCtxKey, shiftID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// idempotencyKey 校验可选的 Idempotency-Key 头，没有这个头时每次请求都是独立的
func (h *Handler) idempotencyKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
		if len(key) > maxIdempotencyKeyLen {
			h.errorResponse(w, r, http.StatusBadRequest, domain.CodeValidation, "Idempotency-Key 过长")
			return
		}

		ctx := context.WithValue(r.Context(), IdempotencyCtxKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func subFromContext(ctx context.Context) int64 {
	return ctx.Value(SubCtxKey).(int64)
}

func tenantFromContext(ctx context.Context) int64 {
	return ctx.Value(TenantCtxKey).(int64)
}

func shiftIDFromContext(ctx context.Context) int64 {
	return ctx.Value(ShiftIDCtxKey).(int64)
}
