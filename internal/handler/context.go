package handler

type ContextKey string

var (
	RoleCtxKey        ContextKey = "role"
	SubCtxKey         ContextKey = "sub"
	TenantCtxKey      ContextKey = "tenant"
	ShiftIDCtxKey     ContextKey = "shiftID"
	IdempotencyCtxKey ContextKey = "idempotencyKey"
)
