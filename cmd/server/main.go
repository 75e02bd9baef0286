package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/seanyjeong/pacapro-sub001/config"
	"github.com/seanyjeong/pacapro-sub001/internal/api/handler"
	"github.com/seanyjeong/pacapro-sub001/internal/api/router"
	"github.com/seanyjeong/pacapro-sub001/internal/repository"
	"github.com/seanyjeong/pacapro-sub001/internal/scheduler"
	"github.com/seanyjeong/pacapro-sub001/internal/service"
	"github.com/seanyjeong/pacapro-sub001/pkg/database"
	"github.com/seanyjeong/pacapro-sub001/pkg/jwt"
	applogger "github.com/seanyjeong/pacapro-sub001/pkg/logger"
	"github.com/seanyjeong/pacapro-sub001/pkg/redis"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load(os.Getenv("PACA_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. 连接数据库并执行迁移
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：失败时任务锁退化为进程内锁）
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，定时任务仅在本实例内互斥", zap.Error(err))
		rdb = nil
	}

	// 5. 依赖注入: Repository → Service → Handler
	jwtMgr := jwt.NewManager(&cfg.Auth)
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, logger)
	h := handler.NewHandler(svc, logger)

	// 6. 定时任务
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		var locker scheduler.Locker
		if rdb != nil {
			locker = rdb
		}
		sched, err = scheduler.New(cfg.Scheduler, svc.Job, locker, logger)
		if err != nil {
			logger.Fatal("初始化定时任务失败", zap.Error(err))
		}
		sched.Start()
	}

	// 7. 启动 HTTP 服务器（优雅关闭）
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.Setup(h, jwtMgr, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 8. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	// 等待运行中的定时任务结束
	if sched != nil {
		select {
		case <-sched.Stop().Done():
		case <-ctx.Done():
			logger.Warn("等待定时任务结束超时")
		}
	}

	sqlDB.Close()
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}
