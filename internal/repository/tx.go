package repository

import (
	"context"
	"database/sql"
	"slices"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/scheduler"
)

// WithWorkerLocks 开启事务并按工人 ID 升序获取事务级 advisory lock
//
// 发布、派工、声明不可用都经过这里。锁在事务结束时自动释放。
func (r *Repository) WithWorkerLocks(ctx context.Context, workerIDs []int64, fn func(tx scheduler.Tx) error) error {
	ids := slices.Clone(workerIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	return r.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, id); err != nil {
				return err
			}
		}

		return fn(&workerTx{tx: tx})
	})
}

type workerTx struct {
	tx *sql.Tx
}

func (t *workerTx) GetIdempotencyRecord(ctx context.Context, tenantID int64, key string, now time.Time) (*domain.IdempotencyRecord, error) {
	return getIdempotencyRecord(ctx, t.tx, tenantID, key, now)
}

func (t *workerTx) InsertIdempotencyRecord(ctx context.Context, rec *domain.IdempotencyRecord) (bool, error) {
	return insertIdempotencyRecord(ctx, t.tx, rec)
}

func (t *workerTx) ListCommitments(ctx context.Context, workerIDs []int64, from, to time.Time) ([]domain.Commitment, error) {
	return listCommitments(ctx, t.tx, workerIDs, from, to)
}

func (t *workerTx) ListUnavailability(ctx context.Context, workerIDs []int64, from, to time.Time) ([]domain.Availability, error) {
	return listUnavailability(ctx, t.tx, workerIDs, from, to)
}

func (t *workerTx) ListAssignmentsByShift(ctx context.Context, shiftID int64) ([]*domain.Assignment, error) {
	return listAssignmentsByShift(ctx, t.tx, shiftID)
}

func (t *workerTx) InsertShifts(ctx context.Context, shifts []*domain.Shift) error {
	return insertShifts(ctx, t.tx, shifts)
}

func (t *workerTx) InsertAssignments(ctx context.Context, assignments []*domain.Assignment) error {
	return insertAssignments(ctx, t.tx, assignments)
}

func (t *workerTx) InsertAvailability(ctx context.Context, availability *domain.Availability) error {
	return insertAvailability(ctx, t.tx, availability)
}

func (t *workerTx) InsertAuditEvent(ctx context.Context, event *domain.AuditEvent) error {
	return insertAuditEvent(ctx, t.tx, event)
}

func (t *workerTx) AdvanceShiftStatus(ctx context.Context, shiftID int64, from, to domain.ShiftStatus) (bool, error) {
	return advanceShiftStatus(ctx, t.tx, shiftID, from, to)
}
