package domain

import "time"

type Location struct {
	ID           int64     `json:"id"`
	TenantID     int64     `json:"tenantID"`
	Name         string    `json:"name"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	RadiusMeters float64   `json:"radiusMeters"` // 为 0 时使用配置中的默认半径
	CreatedAt    time.Time `json:"createdAt"`
}
