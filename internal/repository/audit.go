package repository

import (
	"context"
	"encoding/json"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

func insertAuditEvent(ctx context.Context, q querier, event *domain.AuditEvent) error {
	query := `
		INSERT INTO audit_events (
			tenant_id,
			actor_id,
			entity_type,
			entity_id,
			action,
			previous_status,
			new_status,
			details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	details, err := json.Marshal(event.Details)
	if err != nil {
		return err
	}

	params := []any{
		event.TenantID,
		event.ActorID,
		event.EntityType,
		event.EntityID,
		event.Action,
		event.PreviousStatus,
		event.NewStatus,
		details,
	}
	if err := q.QueryRowContext(ctx, query, params...).Scan(&event.ID, &event.CreatedAt); err != nil {
		return err
	}

	return nil
}
