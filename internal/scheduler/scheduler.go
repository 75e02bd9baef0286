package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/seanyjeong/pacapro-sub001/config"
	"github.com/seanyjeong/pacapro-sub001/internal/billing"
	"github.com/seanyjeong/pacapro-sub001/internal/dto"
	"github.com/seanyjeong/pacapro-sub001/internal/service"
)

// Locker 任务锁；多实例部署时同一任务同一时刻只允许一个实例执行
// *redis.Client 实现了该接口
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// Scheduler 定时批处理任务
type Scheduler struct {
	cron   *cron.Cron
	jobs   service.JobService
	locker Locker
	cfg    config.SchedulerConfig
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

// New 创建定时任务调度器并注册全部任务
func New(cfg config.SchedulerConfig, jobs service.JobService, locker Locker, logger *zap.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil || cfg.Timezone == "" {
		loc = time.UTC
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}

	cronLogger := cronLogger{logger: logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		jobs:   jobs,
		locker: locker,
		cfg:    cfg,
		loc:    loc,
		now:    time.Now,
		logger: logger,
	}
	if err := s.register(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) register() error {
	entries := []struct {
		spec string
		name string
		fn   func()
	}{
		{s.cfg.ClassDaysSpec, service.JobClassDays, s.runClassDays},
		{s.cfg.TrialExpireSpec, service.JobTrialExpire, s.runTrialExpire},
		{s.cfg.MonthlyAssignSpec, service.JobMonthlyAssign, s.runMonthlyAssign},
		{s.cfg.ExcusedCreditSpec, service.JobExcusedCredit, s.runExcusedCredit},
		{s.cfg.GradePromotionSpec, service.JobGradePromotion, s.runGradePromotion},
	}
	for _, e := range entries {
		if e.spec == "" {
			s.logger.Info("定时任务未配置，跳过", zap.String("job", e.name))
			continue
		}
		if _, err := s.cron.AddFunc(e.spec, e.fn); err != nil {
			return fmt.Errorf("注册定时任务 %s 失败: %w", e.name, err)
		}
		s.logger.Info("定时任务已注册", zap.String("job", e.name), zap.String("spec", e.spec))
	}
	return nil
}

// Start 启动调度（非阻塞）
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("定时任务调度器已启动", zap.String("timezone", s.loc.String()))
}

// Stop 停止调度，返回的 ctx 在运行中的任务结束后关闭
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// today 调度时区的今天（UTC 零点表示）
func (s *Scheduler) today() time.Time {
	return billing.DateOf(s.now().In(s.loc))
}

// ── 任务入口 ──

func (s *Scheduler) runClassDays() {
	today := s.today()
	s.run(service.JobClassDays, func(ctx context.Context) (*dto.JobSummary, error) {
		return s.jobs.ApplyScheduledClassDays(ctx, today, false)
	})
}

func (s *Scheduler) runTrialExpire() {
	today := s.today()
	s.run(service.JobTrialExpire, func(ctx context.Context) (*dto.JobSummary, error) {
		return s.jobs.ExpireTrials(ctx, today, false)
	})
}

func (s *Scheduler) runMonthlyAssign() {
	month := billing.MonthStart(s.today())
	s.run(service.JobMonthlyAssign, func(ctx context.Context) (*dto.JobSummary, error) {
		return s.jobs.AssignMonthlySchedules(ctx, month, false)
	})
}

// runExcusedCredit 每天触发，只在月末最后一天结算当月
func (s *Scheduler) runExcusedCredit() {
	today := s.today()
	if !billing.MonthEnd(today).Equal(today) {
		return
	}
	s.run(service.JobExcusedCredit, func(ctx context.Context) (*dto.JobSummary, error) {
		return s.jobs.SettleExcusedCredits(ctx, billing.MonthStart(today), false)
	})
}

func (s *Scheduler) runGradePromotion() {
	s.run(service.JobGradePromotion, func(ctx context.Context) (*dto.JobSummary, error) {
		return s.jobs.PromoteGrades(ctx, false)
	})
}

// run 获取任务锁后执行，超时与锁 TTL 一致
func (s *Scheduler) run(name string, fn func(ctx context.Context) (*dto.JobSummary, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.LockTTL)
	defer cancel()

	unlock, ok, err := s.locker.TryLock(ctx, name, s.cfg.LockTTL)
	if err != nil {
		s.logger.Error("获取任务锁失败", zap.String("job", name), zap.Error(err))
		return
	}
	if !ok {
		s.logger.Info("任务正在其它实例执行，跳过", zap.String("job", name))
		return
	}
	defer unlock()

	summary, err := fn(ctx)
	if err != nil {
		s.logger.Error("定时任务执行失败", zap.String("job", name), zap.Error(err))
		return
	}
	s.logger.Info("定时任务完成",
		zap.String("job", name),
		zap.String("run_id", summary.RunID),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)
}

// ── 进程内锁 ──

// LocalLocker 未配置 Redis 时的单实例锁
type LocalLocker struct {
	mu     sync.Mutex
	held   map[string]time.Time
	nowFun func() time.Time
}

// NewLocalLocker 创建进程内任务锁
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), nowFun: time.Now}
}

// TryLock 实现 Locker；过期的锁视为已释放
func (l *LocalLocker) TryLock(_ context.Context, name string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFun()
	if exp, ok := l.held[name]; ok && now.Before(exp) {
		return nil, false, nil
	}
	exp := now.Add(ttl)
	l.held[name] = exp

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[name].Equal(exp) {
			delete(l.held, name)
		}
	}, true, nil
}

// ── cron 日志适配 ──

type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
