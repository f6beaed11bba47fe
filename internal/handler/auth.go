package handler

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

// AuthClaims 中 Subject 是管理员或工人的 ID，TenantID 只对管理员有意义
type AuthClaims struct {
	Role     string `json:"role"`
	TenantID int64  `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// SignToken 签发令牌，登录流程不在本服务中，seed 用它为演示账号生成令牌
func SignToken(secret string, role domain.Role, subject, tenantID int64, ttl time.Duration) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AuthClaims{
		Role:     string(role),
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   strconv.FormatInt(subject, 10),
		},
	})

	return token.SignedString([]byte(secret))
}
