package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/seanyjeong/pacapro-sub001/config"
	"github.com/seanyjeong/pacapro-sub001/internal/billing"
	"github.com/seanyjeong/pacapro-sub001/internal/repository"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Student StudentService
	Credit  CreditService
	Job     JobService
	Export  ExportService
}

// NewService 创建 Service 聚合
func NewService(cfg *config.Config, repo *repository.Repository, logger *zap.Logger) *Service {
	return newService(newEnv(cfg, time.Now), repo, logger)
}

func newService(env *env, repo *repository.Repository, logger *zap.Logger) *Service {
	guard := NewTenantGuard(logger)
	assigner := newScheduleAssigner(env, guard, logger)
	ledger := newCreditLedger(env)
	coord := newCoordinator(env, assigner, ledger, NewSeasonEnroller(), logger)

	return &Service{
		Student: newStudentService(repo, coord, logger),
		Credit:  newCreditService(repo, env, ledger, logger),
		Job:     newJobService(repo, coord, logger),
		Export:  NewExportService(repo, env.loc, logger),
	}
}

// env 各 Service 共用的配置、计算器与时钟
type env struct {
	cfg  *config.Config
	calc *billing.Calculator
	loc  *time.Location
	now  func() time.Time
}

func newEnv(cfg *config.Config, now func() time.Time) *env {
	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil || cfg.Scheduler.Timezone == "" {
		loc = time.UTC
	}
	return &env{
		cfg:  cfg,
		calc: billing.NewCalculator(cfg.Billing.RoundingUnit),
		loc:  loc,
		now:  now,
	}
}

// today 学院所在时区的今天（UTC 零点表示）
func (e *env) today() time.Time {
	return billing.DateOf(e.now().In(e.loc))
}

// closedSlots 读取区间内的休课时段；未开启 exclude_closed_slots 时返回 nil
func (e *env) closedSlots(ctx context.Context, repo *repository.Repository, academyID string, from, to time.Time) (billing.ClosedSlots, error) {
	if !e.cfg.Billing.ExcludeClosedSlots {
		return nil, nil
	}
	slots, err := repo.Slot.ListClosed(ctx, academyID, from, to)
	if err != nil {
		return nil, err
	}
	closed := make(billing.ClosedSlots, len(slots))
	for _, slot := range slots {
		closed[billing.ClosedKey(billing.DateOf(slot.ScheduleDate), slot.TimeSlot)] = true
	}
	return closed, nil
}
