package timesheet

import (
	"cmp"
	"context"
	"database/sql"
	"slices"
	"sync"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

// memStore 是 Store 的内存实现，条件更新的语义与 repository 一致
type memStore struct {
	mu          sync.Mutex
	shifts      map[int64]*domain.Shift
	locations   map[int64]*domain.Location
	assignments map[int64]*domain.Assignment
	punches     []domain.Punch
	approvals   []domain.Approval

	// 在 FinalizeApproval 加锁之前调用
	beforeFinalize func(s *memStore)
}

func newMemStore() *memStore {
	return &memStore{
		shifts:      make(map[int64]*domain.Shift),
		locations:   make(map[int64]*domain.Location),
		assignments: make(map[int64]*domain.Assignment),
	}
}

func (s *memStore) shift(id int64) domain.Shift {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.shifts[id]
}

func (s *memStore) assignment(id int64) domain.Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.assignments[id]
}

func (s *memStore) GetShift(ctx context.Context, id int64) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, ok := s.shifts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *shift
	return &cp, nil
}

func (s *memStore) GetLocation(ctx context.Context, id int64) (*domain.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *l
	return &cp, nil
}

func (s *memStore) GetAssignmentByShiftAndWorker(ctx context.Context, shiftID, workerID int64) (*domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.assignments {
		if a.ShiftID == shiftID && a.WorkerID == workerID && a.Status != domain.AssignmentStatusCancelled {
			cp := *a
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memStore) ListAssignmentsByShift(ctx context.Context, shiftID int64) ([]*domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Assignment
	for _, a := range s.assignments {
		if a.ShiftID == shiftID {
			cp := *a
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *domain.Assignment) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *memStore) RecordPunch(ctx context.Context, punch *domain.Punch) (domain.ShiftStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.assignments[punch.AssignmentID]
	if a == nil || a.Status != punch.PreviousStatus {
		return "", domain.ErrPunchConflict
	}

	actual := punch.Actual
	effective := punch.Effective
	lat, lng := punch.Latitude, punch.Longitude
	verified := punch.Verified

	shift := s.shifts[punch.ShiftID]
	switch punch.Kind {
	case domain.PunchClockIn:
		if a.ActualClockIn != nil {
			return "", domain.ErrPunchConflict
		}
		a.ActualClockIn, a.EffectiveClockIn = &actual, &effective
		a.ClockInLatitude, a.ClockInLongitude, a.ClockInVerified = &lat, &lng, &verified
		if shift.Status.CanAdvanceTo(domain.ShiftStatusInProgress) && shift.Status != domain.ShiftStatusDraft {
			shift.Status = domain.ShiftStatusInProgress
		}
	case domain.PunchClockOut:
		if a.ActualClockOut != nil {
			return "", domain.ErrPunchConflict
		}
		a.ActualClockOut, a.EffectiveClockOut = &actual, &effective
		a.ClockOutLatitude, a.ClockOutLongitude, a.ClockOutVerified = &lat, &lng, &verified
	}
	a.Status = punch.NewStatus
	a.Version++
	if punch.ReviewReason != "" {
		a.NeedsReview = true
		a.ReviewReason = punch.ReviewReason
	}

	if punch.Kind == domain.PunchClockOut {
		remaining := 0
		for _, other := range s.assignments {
			if other.ShiftID == shift.ID && (other.Status == domain.AssignmentStatusActive || other.Status == domain.AssignmentStatusInProgress) {
				remaining++
			}
		}
		if remaining == 0 && shift.Status == domain.ShiftStatusInProgress {
			shift.Status = domain.ShiftStatusCompleted
		}
	}

	s.punches = append(s.punches, *punch)
	return shift.Status, nil
}

func (s *memStore) FinalizeApproval(ctx context.Context, approval *domain.Approval) error {
	if s.beforeFinalize != nil {
		hook := s.beforeFinalize
		s.beforeFinalize = nil
		hook(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	shift := s.shifts[approval.ShiftID]
	if shift.Status != approval.ExpectedStatus {
		return domain.ErrShiftStatusChanged
	}

	for _, st := range approval.Settlements {
		if a := s.assignments[st.AssignmentID]; a == nil || a.Version != st.Version {
			return domain.ErrShiftStatusChanged
		}
	}

	for _, st := range approval.Settlements {
		a := s.assignments[st.AssignmentID]
		a.Status = st.Status
		a.Version++
		a.BreakMinutes = st.BreakMinutes
		payable := st.PayableMinutes
		a.PayableMinutes = &payable
		a.Notes = st.Notes
	}
	shift.Status = domain.ShiftStatusApproved
	s.approvals = append(s.approvals, *approval)
	return nil
}
