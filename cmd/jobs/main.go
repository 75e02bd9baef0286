package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/seanyjeong/pacapro-sub001/config"
	"github.com/seanyjeong/pacapro-sub001/internal/dto"
	"github.com/seanyjeong/pacapro-sub001/internal/repository"
	"github.com/seanyjeong/pacapro-sub001/internal/service"
	"github.com/seanyjeong/pacapro-sub001/pkg/database"
	applogger "github.com/seanyjeong/pacapro-sub001/pkg/logger"
	"github.com/seanyjeong/pacapro-sub001/pkg/redis"
)

// 单次执行批处理任务，供运维补跑或外部调度使用
//
//	jobs -date 2026-04-08 trial_expire
//	jobs -year-month 2026-03 -dry-run excused_credit
//	jobs -students id1,id2 graduate
func main() {
	var (
		configPath string
		date       string
		yearMonth  string
		students   string
		dryRun     bool
	)

	flag.StringVar(&configPath, "config", "", "配置文件路径")
	flag.StringVar(&date, "date", "", "基准日期 YYYY-MM-DD，默认今天")
	flag.StringVar(&yearMonth, "year-month", "", "账期 YYYY-MM，默认本月")
	flag.StringVar(&students, "students", "", "graduate 任务的学生 ID，逗号分隔")
	flag.BoolVar(&dryRun, "dry-run", false, "只统计不提交")
	flag.Parse()

	if flag.NArg() != 1 {
		printUsage()
		os.Exit(1)
	}
	os.Exit(run(flag.Arg(0), configPath, date, yearMonth, students, dryRun))
}

// run 返回进程退出码：0 成功，1 错误，2 锁被占用，3 存在失败项
func run(name, configPath, date, yearMonth, students string, dryRun bool) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		return 1
	}
	defer logger.Sync()

	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Error("数据库连接失败", zap.Error(err))
		return 1
	}
	sqlDB, _ := db.DB()
	defer sqlDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.LockTTL)
	defer cancel()

	// 与常驻进程的定时任务共用同一把锁
	if rdb, err := redis.NewClient(&cfg.Redis, logger); err == nil {
		defer rdb.Close()
		unlock, ok, err := rdb.TryLock(ctx, name, cfg.Scheduler.LockTTL)
		if err != nil {
			logger.Error("获取任务锁失败", zap.Error(err))
			return 1
		}
		if !ok {
			logger.Warn("任务正在其它实例执行", zap.String("job", name))
			return 2
		}
		defer unlock()
	} else {
		logger.Warn("Redis 不可用，跳过任务锁", zap.Error(err))
	}

	svc := service.NewService(cfg, repository.NewRepository(db), logger)

	req := &dto.RunJobRequest{
		DryRun:    dryRun,
		Date:      date,
		YearMonth: yearMonth,
	}
	if students != "" {
		req.StudentIDs = strings.Split(students, ",")
	}

	started := time.Now()
	summary, err := svc.Job.Run(ctx, name, req)
	if err != nil {
		logger.Error("任务执行失败", zap.String("job", name), zap.Error(err))
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(summary)

	logger.Info("任务结束", zap.String("job", name), zap.Duration("elapsed", time.Since(started)))
	if summary.Failed > 0 {
		return 3
	}
	return 0
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "用法: jobs [flags] <job>")
	fmt.Fprintf(os.Stderr, "可用任务: %s\n", strings.Join([]string{
		service.JobGradePromotion,
		service.JobGraduate,
		service.JobClassDays,
		service.JobTrialExpire,
		service.JobExcusedCredit,
		service.JobMonthlyAssign,
	}, ", "))
	flag.PrintDefaults()
}
