package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/repository"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/seed"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	var op int
	var n int
	var csvPath string

	flag.IntVar(&op, "op", 0, "要执行的操作 (1: 插入随机工人, 2: 创建演示租户并签发令牌, 3: 从 CSV 导入工人)")
	flag.IntVar(&n, "n", 0, "要插入的工人数量，为 0 时使用配置中的 SEED_WORKERS")
	flag.StringVar(&csvPath, "csv", "./internal/seed/data/workers.csv", "导入工人的 CSV 文件")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 读取配置文件
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if n <= 0 {
		n = cfg.Seed.Workers
	}

	// 创建数据库连接池
	dbpool, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		logger.Error("无法创建数据库连接池", "error", err)
		return
	}
	defer dbpool.Close()

	dbpool.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbpool.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	dbpool.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()

	// sql.Open 只是创建数据库连接池对象，并不会立即连接到数据库，因此需要显式地 ping 一下
	if err := dbpool.PingContext(ctx); err != nil {
		logger.Error("无法连接到数据库", "error", err)
		return
	}

	// seed 不需要地点缓存
	repo := repository.NewRepository(cfg, dbpool, nil)

	// 执行操作
	switch op {
	case 0:
		slog.Error("未指定操作")
	case 1:
		workers, err := seed.SeedRandomWorkers(context.Background(), repo, cfg.Email.UserDomain, n)
		if err != nil {
			slog.Error("插入工人失败", slog.String("error", err.Error()))
		}
		slog.Info("插入工人成功", slog.Int("count", len(workers)))
	case 2:
		demo, err := seed.SeedDemo(context.Background(), repo, cfg, n)
		if err != nil {
			slog.Error("创建演示数据失败", slog.String("error", err.Error()))
			return
		}
		slog.Info("创建演示数据成功",
			slog.Int64("tenantID", demo.TenantID),
			slog.Int64("locationID", demo.Location.ID),
			slog.Int("workers", len(demo.Workers)),
		)
		fmt.Printf("manager token: %s\n", demo.ManagerToken)
		for _, w := range demo.Workers {
			fmt.Printf("worker %d (%s) token: %s\n", w.ID, w.FullName, demo.WorkerTokens[w.ID])
		}
	case 3:
		cnt, err := seed.SeedWorkersFromCSV(context.Background(), repo, csvPath)
		if err != nil {
			slog.Error("导入工人失败", slog.String("error", err.Error()))
		}
		slog.Info("导入工人完成", slog.Int("count", cnt))
	default:
		slog.Error("指定的操作非法")
	}
}
