package domain

import (
	"time"
)

type Role string

const (
	RoleWorker  Role = "worker"
	RoleManager Role = "manager"
)

// Worker 属于跨租户共享的人员池，不挂在任何租户下
type Worker struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	Version   int32     `json:"-"`
}
