package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/handler"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/utils"
)

// Store 是 seed 用到的 repository 方法
type Store interface {
	CreateTenant(ctx context.Context, name string) (int64, error)
	CreateLocation(ctx context.Context, location *domain.Location) error
	CreateWorker(ctx context.Context, worker *domain.Worker) error
}

// Demo 是演示数据的创建结果，令牌可以直接用于调用 API
type Demo struct {
	TenantID     int64
	Location     *domain.Location
	Workers      []*domain.Worker
	ManagerToken string
	WorkerTokens map[int64]string
}

const demoTokenTTL = 30 * 24 * time.Hour

// SeedDemo 创建一个演示租户、一个地点和 n 个随机工人，并为它们签发令牌
func SeedDemo(ctx context.Context, s Store, cfg *config.Config, n int) (*Demo, error) {
	tenantID, err := s.CreateTenant(ctx, cfg.Seed.TenantName)
	if err != nil {
		return nil, fmt.Errorf("创建租户失败: %w", err)
	}

	location := &domain.Location{
		TenantID:     tenantID,
		Name:         cfg.Seed.TenantName + "总店",
		Latitude:     23.0965,
		Longitude:    113.2988,
		RadiusMeters: cfg.Schedule.DefaultGeofenceRadius,
	}
	if err := s.CreateLocation(ctx, location); err != nil {
		return nil, fmt.Errorf("创建地点失败: %w", err)
	}

	workers, err := SeedRandomWorkers(ctx, s, cfg.Email.UserDomain, n)
	if err != nil {
		return nil, err
	}

	// 管理员账号不在本服务中，演示令牌的 sub 固定为 1
	managerToken, err := handler.SignToken(cfg.JWT.Secret, domain.RoleManager, 1, tenantID, demoTokenTTL)
	if err != nil {
		return nil, err
	}

	demo := &Demo{
		TenantID:     tenantID,
		Location:     location,
		Workers:      workers,
		ManagerToken: managerToken,
		WorkerTokens: make(map[int64]string, len(workers)),
	}
	for _, w := range workers {
		token, err := handler.SignToken(cfg.JWT.Secret, domain.RoleWorker, w.ID, 0, demoTokenTTL)
		if err != nil {
			return nil, err
		}
		demo.WorkerTokens[w.ID] = token
	}

	return demo, nil
}

// SeedRandomWorkers 插入 n 个随机工人，用户名冲突时跳过
func SeedRandomWorkers(ctx context.Context, s Store, emailDomain string, n int) ([]*domain.Worker, error) {
	workers := make([]*domain.Worker, 0, n)
	for i := 0; i < n; i++ {
		worker := utils.GenerateRandomWorker(emailDomain)
		if err := s.CreateWorker(ctx, worker); err != nil {
			if isUniqueViolation(err) {
				slog.Warn("随机工人重名，已跳过", "username", worker.Username)
				continue
			}
			return workers, fmt.Errorf("插入工人失败: %w", err)
		}
		workers = append(workers, worker)
	}

	return workers, nil
}

// SeedWorkersFromCSV 从 CSV 导入工人，表头需要包含 NetID、姓名、邮箱
func SeedWorkersFromCSV(ctx context.Context, s Store, path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// 读取表头
	headers, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("读取表头失败: %w", err)
	}

	index := make(map[string]int, len(headers))
	for i, header := range headers {
		index[header] = i
	}
	for _, required := range []string{"NetID", "姓名", "邮箱"} {
		if _, ok := index[required]; !ok {
			return 0, fmt.Errorf("没有找到 %s 列", required)
		}
	}

	cnt := 0
	for {
		row, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return cnt, fmt.Errorf("读取文件失败: %w", err)
		}

		worker := &domain.Worker{
			Username: row[index["NetID"]],
			FullName: row[index["姓名"]],
			Email:    row[index["邮箱"]],
		}
		if worker.Username == "" {
			slog.Error("没有找到NetID", "row", row)
			continue
		}

		if err := s.CreateWorker(ctx, worker); err != nil {
			if isUniqueViolation(err) {
				// 已经导入过的工人
				continue
			}
			slog.Error("插入工人失败", "username", worker.Username, "error", err)
			continue
		}
		cnt++
	}

	return cnt, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.ConstraintName {
	case "workers_username_key", "workers_email_key":
		return true
	default:
		return false
	}
}
