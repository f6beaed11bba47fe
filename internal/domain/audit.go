package domain

import "time"

type AuditEvent struct {
	ID             int64          `json:"id"`
	TenantID       int64          `json:"tenantID"`
	ActorID        int64          `json:"actorID"`
	EntityType     string         `json:"entityType"`
	EntityID       int64          `json:"entityID"`
	Action         string         `json:"action"`
	PreviousStatus string         `json:"previousStatus"`
	NewStatus      string         `json:"newStatus"`
	Details        map[string]any `json:"details"`
	CreatedAt      time.Time      `json:"createdAt"`
}
