package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

// memStore 是 Store 的内存实现，WithWorkerLocks 在一把全局锁下对数据的副本执行 fn，成功后整体替换
type memStore struct {
	mu sync.Mutex

	data       memData
	rateLimits map[string]*domain.RateLimitState
	nextID     int64
	commits    int

	// 在 fn 执行前调用，用于模拟并发提交
	beforeTx func(s *memStore)
}

type memData struct {
	locations      map[int64]*domain.Location
	shifts         []domain.Shift
	assignments    []domain.Assignment
	availabilities []domain.Availability
	idempotency    map[string]domain.IdempotencyRecord
	audit          []domain.AuditEvent
}

func (d memData) clone() memData {
	idem := make(map[string]domain.IdempotencyRecord, len(d.idempotency))
	for k, v := range d.idempotency {
		idem[k] = v
	}
	return memData{
		locations:      d.locations,
		shifts:         slices.Clone(d.shifts),
		assignments:    slices.Clone(d.assignments),
		availabilities: slices.Clone(d.availabilities),
		idempotency:    idem,
		audit:          slices.Clone(d.audit),
	}
}

func newMemStore() *memStore {
	return &memStore{
		data: memData{
			locations:   make(map[int64]*domain.Location),
			idempotency: make(map[string]domain.IdempotencyRecord),
		},
		rateLimits: make(map[string]*domain.RateLimitState),
	}
}

func idemKey(tenantID int64, key string) string {
	return fmt.Sprintf("%d:%s", tenantID, key)
}

func (s *memStore) addLocation(l *domain.Location) {
	s.data.locations[l.ID] = l
}

func (s *memStore) addShift(shift domain.Shift) int64 {
	s.nextID++
	shift.ID = s.nextID
	s.data.shifts = append(s.data.shifts, shift)
	return shift.ID
}

func (s *memStore) addAssignment(a domain.Assignment) int64 {
	s.nextID++
	a.ID = s.nextID
	s.data.assignments = append(s.data.assignments, a)
	return a.ID
}

func (s *memStore) shiftCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.shifts)
}

func (s *memStore) assignmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.assignments)
}

func (s *memStore) HitRateLimit(ctx context.Context, tenantKey string, now time.Time, window time.Duration) (*domain.RateLimitState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.rateLimits[tenantKey]
	if !ok || !state.WindowStart.Add(window).After(now) {
		state = &domain.RateLimitState{TenantKey: tenantKey, WindowStart: now}
		s.rateLimits[tenantKey] = state
	}
	state.RequestCount++

	cp := *state
	return &cp, nil
}

func (s *memStore) GetIdempotencyRecord(ctx context.Context, tenantID int64, key string, now time.Time) (*domain.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getIdempotency(s.data, tenantID, key, now)
}

func getIdempotency(d memData, tenantID int64, key string, now time.Time) (*domain.IdempotencyRecord, error) {
	rec, ok := d.idempotency[idemKey(tenantID, key)]
	if !ok || !rec.ExpiresAt.After(now) {
		return nil, sql.ErrNoRows
	}
	return &rec, nil
}

func (s *memStore) GetLocation(ctx context.Context, id int64) (*domain.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.data.locations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *l
	return &cp, nil
}

func (s *memStore) GetShift(ctx context.Context, id int64) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, shift := range s.data.shifts {
		if shift.ID == id {
			cp := shift
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memStore) WithWorkerLocks(ctx context.Context, workerIDs []int64, fn func(tx Tx) error) error {
	if s.beforeTx != nil {
		hook := s.beforeTx
		s.beforeTx = nil
		hook(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s, data: s.data.clone(), nextID: s.nextID}
	if err := fn(tx); err != nil {
		return err
	}

	s.data = tx.data
	s.nextID = tx.nextID
	s.commits++
	return nil
}

type memTx struct {
	s      *memStore
	data   memData
	nextID int64
}

func (tx *memTx) GetIdempotencyRecord(ctx context.Context, tenantID int64, key string, now time.Time) (*domain.IdempotencyRecord, error) {
	return getIdempotency(tx.data, tenantID, key, now)
}

func (tx *memTx) InsertIdempotencyRecord(ctx context.Context, rec *domain.IdempotencyRecord) (bool, error) {
	k := idemKey(rec.TenantID, rec.Key)
	if existing, ok := tx.data.idempotency[k]; ok && existing.ExpiresAt.After(rec.CreatedAt) {
		return false, nil
	}
	tx.data.idempotency[k] = *rec
	return true, nil
}

func (tx *memTx) ListCommitments(ctx context.Context, workerIDs []int64, from, to time.Time) ([]domain.Commitment, error) {
	var out []domain.Commitment
	for _, a := range tx.data.assignments {
		if a.Status == domain.AssignmentStatusCancelled || !slices.Contains(workerIDs, a.WorkerID) {
			continue
		}
		for _, shift := range tx.data.shifts {
			if shift.ID != a.ShiftID || shift.Status == domain.ShiftStatusCancelled {
				continue
			}
			if !domain.Overlaps(shift.StartTime, shift.EndTime, from, to) {
				continue
			}
			out = append(out, domain.Commitment{
				WorkerID:     a.WorkerID,
				AssignmentID: a.ID,
				ShiftID:      shift.ID,
				TenantID:     shift.TenantID,
				Title:        shift.Title,
				StartTime:    shift.StartTime,
				EndTime:      shift.EndTime,
			})
		}
	}
	return out, nil
}

func (tx *memTx) ListUnavailability(ctx context.Context, workerIDs []int64, from, to time.Time) ([]domain.Availability, error) {
	var out []domain.Availability
	for _, a := range tx.data.availabilities {
		if a.Type != domain.AvailabilityUnavailable || !slices.Contains(workerIDs, a.WorkerID) {
			continue
		}
		if domain.Overlaps(a.StartTime, a.EndTime, from, to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (tx *memTx) ListAssignmentsByShift(ctx context.Context, shiftID int64) ([]*domain.Assignment, error) {
	var out []*domain.Assignment
	for _, a := range tx.data.assignments {
		if a.ShiftID == shiftID {
			cp := a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (tx *memTx) InsertShifts(ctx context.Context, shifts []*domain.Shift) error {
	for _, shift := range shifts {
		tx.nextID++
		shift.ID = tx.nextID
		tx.data.shifts = append(tx.data.shifts, *shift)
	}
	return nil
}

func (tx *memTx) InsertAssignments(ctx context.Context, assignments []*domain.Assignment) error {
	for _, a := range assignments {
		for _, existing := range tx.data.assignments {
			if existing.ShiftID == a.ShiftID && existing.WorkerID == a.WorkerID && existing.Status != domain.AssignmentStatusCancelled {
				return domain.NewError(domain.CodeOverlapConflict, "duplicate assignment")
			}
		}
		tx.nextID++
		a.ID = tx.nextID
		tx.data.assignments = append(tx.data.assignments, *a)
	}
	return nil
}

func (tx *memTx) InsertAvailability(ctx context.Context, availability *domain.Availability) error {
	tx.nextID++
	availability.ID = tx.nextID
	tx.data.availabilities = append(tx.data.availabilities, *availability)
	return nil
}

func (tx *memTx) InsertAuditEvent(ctx context.Context, event *domain.AuditEvent) error {
	tx.data.audit = append(tx.data.audit, *event)
	return nil
}

func (tx *memTx) AdvanceShiftStatus(ctx context.Context, shiftID int64, from, to domain.ShiftStatus) (bool, error) {
	for i := range tx.data.shifts {
		if tx.data.shifts[i].ID == shiftID && tx.data.shifts[i].Status == from {
			tx.data.shifts[i].Status = to
			return true, nil
		}
	}
	return false, nil
}

// recordingNotifier 记录收到的通知，err 不为空时模拟投递失败
type recordingNotifier struct {
	mu    sync.Mutex
	calls [][]domain.ShiftNotification
	err   error
}

func (n *recordingNotifier) NotifyShiftsPublished(ctx context.Context, locationID int64, notifications []domain.ShiftNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifications)
	return n.err
}
