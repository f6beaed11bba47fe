package repository

import (
	"context"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

func (r *Repository) CreateTenant(ctx context.Context, name string) (int64, error) {
	query := `
		INSERT INTO tenants (name) VALUES ($1)
		RETURNING id
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	var id int64
	if err := r.dbpool.QueryRowContext(ctx, query, name).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) CreateWorker(ctx context.Context, worker *domain.Worker) error {
	query := `
		INSERT INTO workers (username, full_name, email)
		VALUES ($1, $2, $3)
		RETURNING id, is_active, created_at, version
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	args := []any{worker.Username, worker.FullName, worker.Email}
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(&worker.ID, &worker.IsActive, &worker.CreatedAt, &worker.Version); err != nil {
		return err
	}

	return nil
}

// GetWorkersByIDs 返回存在的工人，不存在的 ID 被忽略
func (r *Repository) GetWorkersByIDs(ctx context.Context, ids []int64) ([]*domain.Worker, error) {
	query := `
		SELECT id, username, full_name, email, is_active, created_at, version
		FROM workers WHERE id = ANY($1)
		ORDER BY id
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	workers := make([]*domain.Worker, 0, len(ids))
	for rows.Next() {
		worker := &domain.Worker{}
		dst := []any{&worker.ID, &worker.Username, &worker.FullName, &worker.Email, &worker.IsActive, &worker.CreatedAt, &worker.Version}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}
		workers = append(workers, worker)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return workers, nil
}
