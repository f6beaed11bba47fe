package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/scheduler"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/timesheet"
)

const testSecret = "test-secret"

type fakeSchedules struct {
	publishReq *domain.PublishRequest
	publishRes *domain.PublishResult
	assignReq  *scheduler.AssignRequest
	availReq   *scheduler.SetAvailabilityRequest
	err        error
}

func (f *fakeSchedules) Publish(ctx context.Context, req *domain.PublishRequest) (*domain.PublishResult, error) {
	f.publishReq = req
	if f.err != nil {
		return nil, f.err
	}
	if f.publishRes != nil {
		return f.publishRes, nil
	}
	return &domain.PublishResult{CreatedShiftCount: 1}, nil
}

func (f *fakeSchedules) AssignWorkers(ctx context.Context, req *scheduler.AssignRequest) (*scheduler.AssignResult, error) {
	f.assignReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &scheduler.AssignResult{}, nil
}

func (f *fakeSchedules) SetAvailability(ctx context.Context, req *scheduler.SetAvailabilityRequest) (*domain.Availability, error) {
	f.availReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Availability{ID: 1, WorkerID: req.WorkerID}, nil
}

type fakePunches struct {
	req *timesheet.PunchRequest
	err error
}

func (f *fakePunches) ClockIn(ctx context.Context, req *timesheet.PunchRequest) (*timesheet.PunchResult, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &timesheet.PunchResult{Kind: domain.PunchClockIn, Verified: true}, nil
}

func (f *fakePunches) ClockOut(ctx context.Context, req *timesheet.PunchRequest) (*timesheet.PunchResult, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &timesheet.PunchResult{Kind: domain.PunchClockOut, Verified: true}, nil
}

type fakeApprovals struct {
	req *timesheet.ApproveRequest
	err error
}

func (f *fakeApprovals) Approve(ctx context.Context, req *timesheet.ApproveRequest) (*timesheet.ApproveResult, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &timesheet.ApproveResult{ShiftID: req.ShiftID, Status: domain.ShiftStatusApproved, TotalPay: decimal.NewFromInt(8000)}, nil
}

type testEnv struct {
	h         *Handler
	schedules *fakeSchedules
	punches   *fakePunches
	approvals *fakeApprovals
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.JWT.Secret = testSecret
	cfg.Punch.RequestsPerSecond = 0.001
	cfg.Punch.Burst = 2

	validate, trans, err := NewValidator()
	require.NoError(t, err)

	env := &testEnv{
		schedules: &fakeSchedules{},
		punches:   &fakePunches{},
		approvals: &fakeApprovals{},
	}
	env.h = NewHandler(cfg, validate, trans, env.schedules, env.punches, env.approvals)
	env.h.RegisterRoutes()
	return env
}

func token(t *testing.T, role domain.Role, sub, tenantID int64) string {
	t.Helper()
	tok, err := SignToken(testSecret, role, sub, tenantID, time.Hour)
	require.NoError(t, err)
	return tok
}

func (env *testEnv) do(t *testing.T, method, path, tok, body string, headers ...string) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	env.h.Mux.ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

const publishBody = `{
	"tenantID": 99,
	"locationID": 10,
	"timezone": "Asia/Shanghai",
	"status": "published",
	"blocks": [{"dates": ["2026-03-03"], "startTime": "09:00", "endTime": "17:00", "positions": [{"title": "收银", "price": "30", "workerIDs": [7, null]}]}]
}`

func TestAuth(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/schedules/publish", "", publishBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/schedules/publish", "garbage", publishBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := SignToken("other-secret", domain.RoleManager, 1, 1, time.Hour)
	require.NoError(t, err)
	rec, _ = env.do(t, http.MethodPost, "/schedules/publish", other, publishBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := SignToken(testSecret, domain.RoleManager, 1, 1, -time.Minute)
	require.NoError(t, err)
	rec, _ = env.do(t, http.MethodPost, "/schedules/publish", expired, publishBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, resp := env.do(t, http.MethodPost, "/schedules/publish", token(t, domain.RoleManager, 1, 0), publishBody)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, domain.CodeForbidden, resp.Code)

	rec, resp = env.do(t, http.MethodPost, "/schedules/publish", token(t, domain.RoleWorker, 7, 0), publishBody)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, domain.CodeForbidden, resp.Code)
	assert.Nil(t, env.schedules.publishReq)
}

func TestAuth_Cookie(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/schedules/publish", strings.NewReader(publishBody))
	req.AddCookie(&http.Cookie{Name: tokenCookieName, Value: token(t, domain.RoleManager, 1, 3)})
	rec := httptest.NewRecorder()
	env.h.Mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.schedules.publishReq)
	assert.Equal(t, int64(3), env.schedules.publishReq.TenantID)
}

func TestPublishSchedule(t *testing.T) {
	env := newTestEnv(t)
	env.schedules.publishRes = &domain.PublishResult{CreatedShiftCount: 2}

	rec, resp := env.do(t, http.MethodPost, "/schedules/publish", token(t, domain.RoleManager, 5, 3), publishBody,
		"Idempotency-Key", "  batch-1  ")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "排班发布成功", resp.Message)

	req := env.schedules.publishReq
	require.NotNil(t, req)
	assert.Equal(t, int64(3), req.TenantID)
	assert.Equal(t, int64(5), req.ActorID)
	assert.Equal(t, "batch-1", req.IdempotencyKey)
	assert.Equal(t, "Asia/Shanghai", req.Timezone)
	require.Len(t, req.Blocks, 1)
	require.Len(t, req.Blocks[0].Positions[0].WorkerIDs, 2)
	assert.Equal(t, int64(7), *req.Blocks[0].Positions[0].WorkerIDs[0])
	assert.Nil(t, req.Blocks[0].Positions[0].WorkerIDs[1])
	assert.True(t, decimal.NewFromInt(30).Equal(req.Blocks[0].Positions[0].Price))
}

func TestPublishSchedule_Replayed(t *testing.T) {
	env := newTestEnv(t)
	env.schedules.publishRes = &domain.PublishResult{CreatedShiftCount: 2, Replayed: true}

	rec, resp := env.do(t, http.MethodPost, "/schedules/publish", token(t, domain.RoleManager, 5, 3), publishBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "该请求已处理过，返回原结果", resp.Message)
	assert.Empty(t, env.schedules.publishReq.IdempotencyKey)
}

func TestPublishSchedule_BadRequests(t *testing.T) {
	env := newTestEnv(t)
	manager := token(t, domain.RoleManager, 5, 3)

	rec, resp := env.do(t, http.MethodPost, "/schedules/publish", manager, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.CodeValidation, resp.Code)

	rec, resp = env.do(t, http.MethodPost, "/schedules/publish", manager, publishBody,
		"Idempotency-Key", strings.Repeat("k", maxIdempotencyKeyLen+1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.CodeValidation, resp.Code)
}

func TestEngineErrorStatusMapping(t *testing.T) {
	tests := []struct {
		code   domain.ErrorCode
		status int
	}{
		{code: domain.CodeValidation, status: http.StatusBadRequest},
		{code: domain.CodePastDate, status: http.StatusUnprocessableEntity},
		{code: domain.CodeDirtyTimesheet, status: http.StatusUnprocessableEntity},
		{code: domain.CodeInvalidTransition, status: http.StatusUnprocessableEntity},
		{code: domain.CodeRateLimited, status: http.StatusTooManyRequests},
		{code: domain.CodeIdempotencyKeyConflict, status: http.StatusConflict},
		{code: domain.CodeOverlapConflict, status: http.StatusConflict},
		{code: domain.CodeAvailabilityConflict, status: http.StatusConflict},
		{code: domain.CodeRaceCondition, status: http.StatusConflict},
		{code: domain.CodeNotFound, status: http.StatusNotFound},
		{code: domain.CodeForbidden, status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			env := newTestEnv(t)
			env.schedules.err = domain.NewError(tt.code, "出错了")

			rec, resp := env.do(t, http.MethodPost, "/schedules/publish", token(t, domain.RoleManager, 5, 3), publishBody)
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, "出错了", resp.Message)
		})
	}
}

func TestEngineError_RetryAfterAndDetails(t *testing.T) {
	env := newTestEnv(t)
	env.schedules.err = &domain.Error{
		Code:       domain.CodeRateLimited,
		Message:    "发布过于频繁",
		Details:    map[string]any{"retryAfterSeconds": 40},
		RetryAfter: 39500 * time.Millisecond,
	}

	rec, resp := env.do(t, http.MethodPost, "/schedules/publish", token(t, domain.RoleManager, 5, 3), publishBody)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "40", rec.Header().Get("Retry-After"))
	assert.Equal(t, map[string]any{"retryAfterSeconds": float64(40)}, resp.Data)
}

func TestEngineError_Internal(t *testing.T) {
	env := newTestEnv(t)
	env.schedules.err = errors.New("connection refused")

	rec, resp := env.do(t, http.MethodPost, "/schedules/publish", token(t, domain.RoleManager, 5, 3), publishBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, resp.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestAssignWorkers(t *testing.T) {
	env := newTestEnv(t)
	manager := token(t, domain.RoleManager, 5, 3)

	rec, _ := env.do(t, http.MethodPost, "/shifts/42/assignments", manager, `{"workerIDs": [7, 8], "force": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	req := env.schedules.assignReq
	require.NotNil(t, req)
	assert.Equal(t, int64(42), req.ShiftID)
	assert.Equal(t, int64(3), req.TenantID)
	assert.Equal(t, []int64{7, 8}, req.WorkerIDs)
	assert.True(t, req.Force)

	rec, resp := env.do(t, http.MethodPost, "/shifts/42/assignments", manager, `{"workerIDs": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.CodeValidation, resp.Code)

	rec, resp = env.do(t, http.MethodPost, "/shifts/abc/assignments", manager, `{"workerIDs": [7]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.CodeValidation, resp.Code)
}

func TestClockIn(t *testing.T) {
	env := newTestEnv(t)
	worker := token(t, domain.RoleWorker, 7, 0)

	rec, resp := env.do(t, http.MethodPost, "/shifts/42/clock-in", worker, `{"latitude": 23.1, "longitude": 113.3, "deviceTimestamp": "2026-03-05T09:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "上班打卡成功", resp.Message)

	req := env.punches.req
	require.NotNil(t, req)
	assert.Equal(t, int64(42), req.ShiftID)
	assert.Equal(t, int64(7), req.WorkerID)
	assert.Equal(t, 23.1, req.Latitude)
	require.NotNil(t, req.DeviceTimestamp)
	assert.Equal(t, time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC), req.DeviceTimestamp.UTC())
}

func TestClockIn_Rejections(t *testing.T) {
	env := newTestEnv(t)

	// 经纬度为 0 是合法坐标，缺失才是错误
	rec, resp := env.do(t, http.MethodPost, "/shifts/42/clock-out", token(t, domain.RoleWorker, 7, 0), `{"latitude": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.CodeValidation, resp.Code)

	rec, _ = env.do(t, http.MethodPost, "/shifts/42/clock-in", token(t, domain.RoleManager, 5, 3), `{"latitude": 0, "longitude": 0}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	env.punches.err = domain.NewError(domain.CodeRaceCondition, "打卡状态已被其它请求修改")
	rec, resp = env.do(t, http.MethodPost, "/shifts/42/clock-in", token(t, domain.RoleWorker, 8, 0), `{"latitude": 0, "longitude": 0}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.CodeRaceCondition, resp.Code)
}

func TestPunchRateLimit(t *testing.T) {
	env := newTestEnv(t)
	worker := token(t, domain.RoleWorker, 7, 0)
	body := `{"latitude": 0, "longitude": 0}`

	for i := 0; i < 2; i++ {
		rec, _ := env.do(t, http.MethodPost, "/shifts/42/clock-in", worker, body)
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec, resp := env.do(t, http.MethodPost, "/shifts/42/clock-out", worker, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, domain.CodeRateLimited, resp.Code)

	// 其它工人有自己的桶
	rec, _ = env.do(t, http.MethodPost, "/shifts/42/clock-in", token(t, domain.RoleWorker, 8, 0), body)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestApproveShift(t *testing.T) {
	env := newTestEnv(t)
	manager := token(t, domain.RoleManager, 5, 3)

	rec, resp := env.do(t, http.MethodPost, "/shifts/42/approve", manager, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "审批成功", resp.Message)
	require.NotNil(t, env.approvals.req)
	assert.Equal(t, int64(42), env.approvals.req.ShiftID)
	assert.Equal(t, int64(3), env.approvals.req.TenantID)
	assert.Nil(t, env.approvals.req.BreakMinutes)

	rec, _ = env.do(t, http.MethodPost, "/shifts/42/approve", manager, `{"breakMinutes": {"100": 30}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[int64]int32{100: 30}, env.approvals.req.BreakMinutes)

	rec, resp = env.do(t, http.MethodPost, "/shifts/42/approve", manager, `{"breakMinutes": {"100": -1}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.CodeValidation, resp.Code)
}

func TestApproveShift_DirtyTimesheet(t *testing.T) {
	env := newTestEnv(t)
	env.approvals.err = &domain.Error{
		Code:    domain.CodeDirtyTimesheet,
		Message: "以下工人的打卡数据需要处理后才能审批",
		Details: []domain.DirtyWorker{{AssignmentID: 100, WorkerID: 7, Reason: "缺少下班打卡"}},
	}

	rec, resp := env.do(t, http.MethodPost, "/shifts/42/approve", token(t, domain.RoleManager, 5, 3), "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, domain.CodeDirtyTimesheet, resp.Code)

	details, ok := resp.Data.([]any)
	require.True(t, ok)
	require.Len(t, details, 1)
	assert.Equal(t, "缺少下班打卡", details[0].(map[string]any)["reason"])
}

func TestSetAvailability(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/availabilities", token(t, domain.RoleWorker, 7, 0),
		`{"startTime": "2026-03-05T00:00:00Z", "endTime": "2026-03-06T00:00:00Z", "type": "unavailable", "reason": "考试"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.schedules.availReq)
	assert.Equal(t, int64(7), env.schedules.availReq.WorkerID)
	assert.Equal(t, domain.AvailabilityUnavailable, env.schedules.availReq.Type)

	rec, resp := env.do(t, http.MethodPost, "/availabilities", token(t, domain.RoleWorker, 7, 0),
		`{"startTime": "2026-03-05T00:00:00Z", "endTime": "2026-03-06T00:00:00Z", "type": "busy"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.CodeValidation, resp.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	_, _ = env.do(t, http.MethodPost, "/schedules/publish", token(t, domain.RoleManager, 5, 3), publishBody)

	rec := httptest.NewRecorder()
	env.h.Mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shift_operation_results_total")
	assert.Contains(t, rec.Body.String(), `path="/schedules/publish"`)
}
