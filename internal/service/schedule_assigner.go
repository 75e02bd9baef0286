package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/seanyjeong/pacapro-sub001/internal/billing"
	"github.com/seanyjeong/pacapro-sub001/internal/model"
	"github.com/seanyjeong/pacapro-sub001/internal/repository"
	pkgerrors "github.com/seanyjeong/pacapro-sub001/pkg/errors"
)

// ── 排课模块业务错误 ──

var ErrTrialDateInvalid = pkgerrors.NewValidation(20010, "体验课日期格式错误")

// ScheduleAssigner 生成与调整学生的课时占位记录
//
// 所有方法都接收事务内的 Repository；出勤写入前一律经过 TenantGuard。
// 已点名的记录不会被删除或重建。
type ScheduleAssigner interface {
	// Assign 从 from 起到分配窗口末尾，为模式中的每个（日期, 时段）建立占位，返回新建条数
	Assign(ctx context.Context, repo *repository.Repository, studentID, academyID string, pattern model.ClassDays, from time.Time) (int, error)
	// Reassign 按新旧模式的差集调整 effective（含）之后的占位
	Reassign(ctx context.Context, repo *repository.Repository, studentID, academyID string, oldPattern, newPattern model.ClassDays, effective time.Time) (int, int64, error)
	// AssignTrial 逐个体验课日期建立占位，已出席的日期跳过
	AssignTrial(ctx context.Context, repo *repository.Repository, studentID, academyID string, dates []model.TrialDate, defaultSlot string) (int, error)
	// ReassignTrial 删除 previous 日期上的未点名占位后按新日期重建
	ReassignTrial(ctx context.Context, repo *repository.Repository, studentID, academyID string, previous, dates []model.TrialDate, defaultSlot string) (int, int64, error)
	// ClearFrom 删除 from（含）之后的占位，以及状态属于 statuses 的记录
	ClearFrom(ctx context.Context, repo *repository.Repository, studentID string, from time.Time, statuses ...string) (int64, error)
}

type scheduleAssigner struct {
	env    *env
	guard  TenantGuard
	logger *zap.Logger
}

// newScheduleAssigner 创建 ScheduleAssigner 实例
func newScheduleAssigner(env *env, guard TenantGuard, logger *zap.Logger) ScheduleAssigner {
	return &scheduleAssigner{env: env, guard: guard, logger: logger}
}

// ────────────────────── Assign ──────────────────────

func (a *scheduleAssigner) Assign(ctx context.Context, repo *repository.Repository, studentID, academyID string, pattern model.ClassDays, from time.Time) (int, error) {
	pattern = pattern.Normalize(a.env.cfg.Schedule.DefaultTimeSlot)
	if len(pattern) == 0 {
		return 0, nil
	}

	from = billing.DateOf(from)
	to := billing.MonthEnd(billing.MonthStart(from).AddDate(0, a.env.cfg.Schedule.AssignWindowMonths-1, 0))

	added := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		for _, slot := range pattern.SlotsOn(d.Weekday()) {
			ok, err := a.link(ctx, repo, studentID, academyID, d, slot)
			if err != nil {
				return added, err
			}
			if ok {
				added++
			}
		}
	}

	a.logger.Debug("课时占位已分配",
		zap.String("student_id", studentID),
		zap.String("from", from.Format(model.DateLayout)),
		zap.String("to", to.Format(model.DateLayout)),
		zap.Int("added", added),
	)
	return added, nil
}

// link 查找或创建课时，再幂等地插入占位；开启 exclude_closed_slots 时休课课时不排
func (a *scheduleAssigner) link(ctx context.Context, repo *repository.Repository, studentID, academyID string, date time.Time, timeSlot string) (bool, error) {
	slot, err := repo.Slot.FindOrCreate(ctx, academyID, date, timeSlot)
	if err != nil {
		return false, err
	}
	if slot.IsClosed && a.env.cfg.Billing.ExcludeClosedSlots {
		return false, nil
	}
	if err := a.guard.ValidateSameTenant(ctx, repo, studentID, slot.SlotID); err != nil {
		return false, err
	}
	return repo.Attendance.CreateIfAbsent(ctx, &model.AttendanceRecord{
		SlotID:    slot.SlotID,
		StudentID: studentID,
	})
}

// ────────────────────── Reassign ──────────────────────

func (a *scheduleAssigner) Reassign(ctx context.Context, repo *repository.Repository, studentID, academyID string, oldPattern, newPattern model.ClassDays, effective time.Time) (int, int64, error) {
	defaultSlot := a.env.cfg.Schedule.DefaultTimeSlot
	added, removed := billing.DiffPatterns(oldPattern.Normalize(defaultSlot), newPattern.Normalize(defaultSlot))
	effective = billing.DateOf(effective)

	var removedCount int64
	if len(removed) > 0 {
		drop := make(map[model.ClassDay]bool, len(removed))
		for _, cd := range removed {
			drop[cd] = true
		}

		records, err := repo.Attendance.ListPlaceholdersFrom(ctx, studentID, effective)
		if err != nil {
			return 0, 0, err
		}
		var ids []string
		for _, rec := range records {
			if rec.Slot == nil {
				continue
			}
			key := model.ClassDay{Day: int(rec.Slot.ScheduleDate.Weekday()), TimeSlot: rec.Slot.TimeSlot}
			if drop[key] {
				ids = append(ids, rec.AttendanceID)
			}
		}
		if removedCount, err = repo.Attendance.DeletePlaceholdersByIDs(ctx, ids); err != nil {
			return 0, 0, err
		}
	}

	addedCount, err := a.Assign(ctx, repo, studentID, academyID, added, effective)
	return addedCount, removedCount, err
}

// ────────────────────── 体验课 ──────────────────────

func (a *scheduleAssigner) AssignTrial(ctx context.Context, repo *repository.Repository, studentID, academyID string, dates []model.TrialDate, defaultSlot string) (int, error) {
	if defaultSlot == "" {
		defaultSlot = a.env.cfg.Schedule.DefaultTimeSlot
	}

	added := 0
	for _, td := range dates {
		if td.Attended {
			continue
		}
		date, err := billing.ParseDate(td.Date)
		if err != nil {
			return added, ErrTrialDateInvalid
		}
		slot := td.TimeSlot
		if slot == "" {
			slot = defaultSlot
		}
		ok, err := a.link(ctx, repo, studentID, academyID, date, slot)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

func (a *scheduleAssigner) ReassignTrial(ctx context.Context, repo *repository.Repository, studentID, academyID string, previous, dates []model.TrialDate, defaultSlot string) (int, int64, error) {
	// 只清理被替换的旧体验日期上的占位，按日期匹配
	drop := make(map[string]bool, len(previous))
	var earliest time.Time
	for _, td := range previous {
		date, err := billing.ParseDate(td.Date)
		if err != nil {
			continue
		}
		drop[date.Format(model.DateLayout)] = true
		if earliest.IsZero() || date.Before(earliest) {
			earliest = date
		}
	}

	var removed int64
	if len(drop) > 0 {
		records, err := repo.Attendance.ListPlaceholdersFrom(ctx, studentID, earliest)
		if err != nil {
			return 0, 0, err
		}
		var ids []string
		for _, rec := range records {
			if rec.Slot != nil && drop[rec.Slot.ScheduleDate.Format(model.DateLayout)] {
				ids = append(ids, rec.AttendanceID)
			}
		}
		if removed, err = repo.Attendance.DeletePlaceholdersByIDs(ctx, ids); err != nil {
			return 0, 0, err
		}
	}

	added, err := a.AssignTrial(ctx, repo, studentID, academyID, dates, defaultSlot)
	return added, removed, err
}

// ────────────────────── ClearFrom ──────────────────────

func (a *scheduleAssigner) ClearFrom(ctx context.Context, repo *repository.Repository, studentID string, from time.Time, statuses ...string) (int64, error) {
	return repo.Attendance.DeleteFrom(ctx, studentID, billing.DateOf(from), statuses...)
}
