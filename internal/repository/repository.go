package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

type Repository struct {
	cfg    *config.Config
	dbpool *sql.DB
	rdb    *redis.Client
}

// NewRepository 创建 repository，rdb 为 nil 时不使用地点缓存
func NewRepository(cfg *config.Config, dbpool *sql.DB, rdb *redis.Client) *Repository {
	return &Repository{
		cfg:    cfg,
		dbpool: dbpool,
		rdb:    rdb,
	}
}

// querier 同时被 *sql.DB 和 *sql.Tx 满足，使同一段 SQL 既能在事务内也能在事务外执行
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repository) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
}

func (r *Repository) txContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(r.cfg.Database.TransactionTimeout)*time.Second)
}

// inTx 在一个事务中执行 fn，fn 返回错误时回滚
func (r *Repository) inTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx, cancel := r.txContext(ctx)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	return nil
}

// translateConstraint 把违反约束的数据库错误转换成引擎的错误，其它错误原样返回
func translateConstraint(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.ConstraintName {
	case "assignments_worker_id_fkey":
		return &domain.Error{Code: domain.CodeValidation, Message: "工人不存在", Err: err}
	case "assignments_shift_worker_active_key":
		return &domain.Error{Code: domain.CodeOverlapConflict, Message: "工人已经在该班次中", Err: err}
	case "shifts_location_id_fkey":
		return &domain.Error{Code: domain.CodeNotFound, Message: "地点不存在", Err: err}
	case "shifts_time_range_check", "availabilities_time_range_check":
		return &domain.Error{Code: domain.CodeValidation, Message: "结束时间必须晚于开始时间", Err: err}
	case "availabilities_worker_id_fkey":
		return &domain.Error{Code: domain.CodeValidation, Message: "工人不存在", Err: err}
	default:
		return err
	}
}
