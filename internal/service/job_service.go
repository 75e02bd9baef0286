package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/seanyjeong/pacapro-sub001/internal/billing"
	"github.com/seanyjeong/pacapro-sub001/internal/dto"
	"github.com/seanyjeong/pacapro-sub001/internal/model"
	"github.com/seanyjeong/pacapro-sub001/internal/repository"
	pkgerrors "github.com/seanyjeong/pacapro-sub001/pkg/errors"
)

// 批处理任务名称
const (
	JobGradePromotion = "grade_promotion"
	JobGraduate       = "graduate"
	JobClassDays      = "class_days"
	JobTrialExpire    = "trial_expire"
	JobExcusedCredit  = "excused_credit"
	JobMonthlyAssign  = "monthly_assign"
)

// ── 任务模块业务错误 ──

var (
	ErrUnknownJob            = pkgerrors.NewNotFound(22001, "任务不存在")
	ErrJobYearMonthInvalid   = pkgerrors.NewValidation(22002, "year_month 格式应为 YYYY-MM")
	ErrJobDateInvalid        = pkgerrors.NewValidation(22003, "date 格式应为 YYYY-MM-DD")
	ErrJobStudentIDsRequired = pkgerrors.NewValidation(22004, "请指定要处理的学生")
	errDryRun                = errors.New("dry run")
)

// gradeNext 学年升级映射，N수 保持不变
var gradeNext = map[string]string{
	"중1": "중2",
	"중2": "중3",
	"중3": "고1",
	"고1": "고2",
	"고2": "고3",
	"고3": "N수",
}

// JobService 批处理任务
//
// 每个学生在独立事务中处理，单个失败只记入汇总，不影响其余学生；
// 所有任务都可重复执行。dry_run 时逐个执行后回滚。
type JobService interface {
	Run(ctx context.Context, name string, req *dto.RunJobRequest) (*dto.JobSummary, error)
	PromoteGrades(ctx context.Context, dryRun bool) (*dto.JobSummary, error)
	GraduateStudents(ctx context.Context, ids []string, dryRun bool) (*dto.JobSummary, error)
	ApplyScheduledClassDays(ctx context.Context, today time.Time, dryRun bool) (*dto.JobSummary, error)
	ExpireTrials(ctx context.Context, today time.Time, dryRun bool) (*dto.JobSummary, error)
	SettleExcusedCredits(ctx context.Context, month time.Time, dryRun bool) (*dto.JobSummary, error)
	AssignMonthlySchedules(ctx context.Context, month time.Time, dryRun bool) (*dto.JobSummary, error)
}

type jobService struct {
	repo   *repository.Repository
	coord  *coordinator
	logger *zap.Logger
}

// newJobService 创建 JobService 实例
func newJobService(repo *repository.Repository, coord *coordinator, logger *zap.Logger) JobService {
	return &jobService{repo: repo, coord: coord, logger: logger}
}

// ────────────────────── Run ──────────────────────

// Run 按名称手动触发任务
func (s *jobService) Run(ctx context.Context, name string, req *dto.RunJobRequest) (*dto.JobSummary, error) {
	today := s.coord.env.today()

	date := today
	if req.Date != "" {
		d, err := billing.ParseDate(req.Date)
		if err != nil {
			return nil, ErrJobDateInvalid
		}
		date = d
	}
	month := billing.MonthStart(today)
	if req.YearMonth != "" {
		m, err := billing.ParseYearMonth(req.YearMonth)
		if err != nil {
			return nil, ErrJobYearMonthInvalid
		}
		month = m
	}

	switch name {
	case JobGradePromotion:
		return s.PromoteGrades(ctx, req.DryRun)
	case JobGraduate:
		return s.GraduateStudents(ctx, req.StudentIDs, req.DryRun)
	case JobClassDays:
		return s.ApplyScheduledClassDays(ctx, date, req.DryRun)
	case JobTrialExpire:
		return s.ExpireTrials(ctx, date, req.DryRun)
	case JobExcusedCredit:
		return s.SettleExcusedCredits(ctx, month, req.DryRun)
	case JobMonthlyAssign:
		return s.AssignMonthlySchedules(ctx, month, req.DryRun)
	}
	return nil, ErrUnknownJob
}

// ── 公共执行框架 ──

// itemFunc 处理单个学生；返回 true 表示跳过
type itemFunc func(ctx context.Context, tx *repository.Repository, st *model.Student) (bool, error)

func (s *jobService) execute(ctx context.Context, name string, dryRun bool, students []model.Student, fn itemFunc) *dto.JobSummary {
	started := s.coord.env.now()
	summary := &dto.JobSummary{
		Job:       name,
		RunID:     uuid.NewString(),
		DryRun:    dryRun,
		Total:     len(students),
		Failures:  []dto.JobFailure{},
		StartedAt: started.Format(time.RFC3339),
	}

	for i := range students {
		target := &students[i]
		skipped := false
		err := s.repo.Transaction(ctx, func(tx *repository.Repository) (err error) {
			// 单个学生 panic 时转为失败项并回滚，批次继续
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("处理异常: %v", r)
				}
			}()

			st, err := lockStudent(ctx, tx, target.AcademyID, target.StudentID)
			if err != nil {
				return err
			}
			if skipped, err = fn(ctx, tx, st); err != nil {
				return err
			}
			if dryRun && !skipped {
				return errDryRun
			}
			return nil
		})

		switch {
		case err != nil && !errors.Is(err, errDryRun):
			s.logger.Warn("批处理单项失败",
				zap.String("job", name),
				zap.String("run_id", summary.RunID),
				zap.String("student_id", target.StudentID),
				zap.Error(err),
			)
			summary.Fail(target.StudentID, err)
		case skipped:
			summary.Skipped++
		default:
			summary.Succeeded++
		}
	}

	summary.Duration = s.coord.env.now().Sub(started).String()
	s.logger.Info("批处理完成",
		zap.String("job", name),
		zap.String("run_id", summary.RunID),
		zap.Bool("dry_run", dryRun),
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary
}

func (s *jobService) listFailed(name string, err error) error {
	s.logger.Error("批处理读取对象失败", zap.String("job", name), zap.Error(err))
	return err
}

// ────────────────────── 学年升级 ──────────────────────

// PromoteGrades 每年执行一次；grade_promoted_year 保证同一年内重复执行不会连升两级
func (s *jobService) PromoteGrades(ctx context.Context, dryRun bool) (*dto.JobSummary, error) {
	grades := make([]string, 0, len(gradeNext))
	for g := range gradeNext {
		grades = append(grades, g)
	}
	students, err := s.repo.Student.ListByGrades(ctx, grades)
	if err != nil {
		return nil, s.listFailed(JobGradePromotion, err)
	}

	year := s.coord.env.today().Year()
	return s.execute(ctx, JobGradePromotion, dryRun, students, func(ctx context.Context, tx *repository.Repository, st *model.Student) (bool, error) {
		if st.GradePromotedYear != nil && *st.GradePromotedYear == year {
			return true, nil
		}
		next, ok := gradeNext[st.Grade]
		if !ok {
			return true, nil
		}
		st.Grade = next
		st.GradePromotedYear = &year
		return false, tx.Student.Update(ctx, st)
	}), nil
}

// ────────────────────── 毕业 ──────────────────────

// GraduateStudents 指定的 고3 在读学生走毕业流程
func (s *jobService) GraduateStudents(ctx context.Context, ids []string, dryRun bool) (*dto.JobSummary, error) {
	if len(ids) == 0 {
		return nil, ErrJobStudentIDsRequired
	}
	students, err := s.repo.Student.ListByIDs(ctx, ids)
	if err != nil {
		return nil, s.listFailed(JobGraduate, err)
	}

	today := s.coord.env.today()
	return s.execute(ctx, JobGraduate, dryRun, students, func(ctx context.Context, tx *repository.Repository, st *model.Student) (bool, error) {
		if st.Status != model.StudentStatusActive || st.Grade != "고3" {
			return true, nil
		}
		if err := s.coord.retire(ctx, tx, st, model.StudentStatusGraduated, "毕业", today, newResult()); err != nil {
			return false, err
		}
		return false, tx.Student.Update(ctx, st)
	}), nil
}

// ────────────────────── 预约上课模式 ──────────────────────

// ApplyScheduledClassDays 到达生效日的上课模式变更：切换模式、按学院学费表更新学费、调整占位
func (s *jobService) ApplyScheduledClassDays(ctx context.Context, today time.Time, dryRun bool) (*dto.JobSummary, error) {
	students, err := s.repo.Student.ListDueClassDaysChange(ctx, today)
	if err != nil {
		return nil, s.listFailed(JobClassDays, err)
	}

	return s.execute(ctx, JobClassDays, dryRun, students, func(ctx context.Context, tx *repository.Repository, st *model.Student) (bool, error) {
		if st.ClassDaysNext == nil || st.ClassDaysEffectiveFrom == nil || st.ClassDaysEffectiveFrom.After(today) {
			return true, nil
		}

		oldPattern := patternOf(st)
		effective := billing.DateOf(*st.ClassDaysEffectiveFrom)
		next := st.ClassDaysNext.Normalize(st.TimeSlot)

		st.ClassDays = next
		st.WeeklyCount = len(next)
		st.ClassDaysNext = nil
		st.ClassDaysEffectiveFrom = nil

		setting, err := tx.Academy.GetByAcademyID(ctx, st.AcademyID)
		switch {
		case err == nil:
			if tuition, ok := setting.TuitionFor(st.StudentType, len(next.Weekdays())); ok {
				st.MonthlyTuition = tuition
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return false, err
		}

		if err := tx.Student.Update(ctx, st); err != nil {
			return false, err
		}
		if st.Status != model.StudentStatusActive {
			return false, nil
		}
		_, _, err = s.coord.assigner.Reassign(ctx, tx, st.StudentID, st.AcademyID, oldPattern, patternOf(st), effective)
		return false, err
	}), nil
}

// ────────────────────── 体验课到期 ──────────────────────

// ExpireTrials 最后一个体验课日期的次日起转为 pending
func (s *jobService) ExpireTrials(ctx context.Context, today time.Time, dryRun bool) (*dto.JobSummary, error) {
	students, err := s.repo.Student.ListTrials(ctx)
	if err != nil {
		return nil, s.listFailed(JobTrialExpire, err)
	}

	return s.execute(ctx, JobTrialExpire, dryRun, students, func(ctx context.Context, tx *repository.Repository, st *model.Student) (bool, error) {
		if st.Status != model.StudentStatusTrial {
			return true, nil
		}
		var last time.Time
		for _, td := range st.TrialDates.Data() {
			d, err := billing.ParseDate(td.Date)
			if err != nil {
				continue
			}
			if d.After(last) {
				last = d
			}
		}
		if last.IsZero() || last.AddDate(0, 0, 1).After(today) {
			return true, nil
		}

		st.Status = model.StudentStatusPending
		st.IsTrial = false
		st.TrialRemaining = 0
		line := fmt.Sprintf("[体验课结束] %s 自动转为待定", today.Format(model.DateLayout))
		if st.Memo == "" {
			st.Memo = line
		} else {
			st.Memo += "\n" + line
		}
		return false, tx.Student.Update(ctx, st)
	}), nil
}

// ────────────────────── 公假积分 ──────────────────────

// SettleExcusedCredits 月末结算公假缺课积分
// 可补偿次数 = 公假次数 − 第五周赠课 − 补课出席；同一学生同一月份只生成一次
func (s *jobService) SettleExcusedCredits(ctx context.Context, month time.Time, dryRun bool) (*dto.JobSummary, error) {
	monthStart := billing.MonthStart(month)
	monthEnd := billing.MonthEnd(month)

	students, err := s.repo.Student.ListExcusedCandidates(ctx, monthStart)
	if err != nil {
		return nil, s.listFailed(JobExcusedCredit, err)
	}

	env := s.coord.env
	return s.execute(ctx, JobExcusedCredit, dryRun, students, func(ctx context.Context, tx *repository.Repository, st *model.Student) (bool, error) {
		exists, err := tx.Credit.ExistsForPeriod(ctx, st.StudentID, model.CreditTypeExcused, monthStart)
		if err != nil || exists {
			return true, err
		}

		excused, err := tx.Attendance.CountByStatus(ctx, st.StudentID, monthStart, monthEnd, model.AttendanceExcused)
		if err != nil || excused == 0 {
			return true, err
		}
		makeup, err := tx.Attendance.CountMakeup(ctx, st.StudentID, monthStart, monthEnd)
		if err != nil {
			return false, err
		}
		pattern := patternOf(st)
		bonus := billing.FifthWeekClassCount(monthStart.Year(), monthStart.Month(), pattern)

		count := int(excused) - bonus - int(makeup)
		if count <= 0 {
			return true, nil
		}
		amount := env.calc.ExcusedCredit(st.MonthlyTuition, pattern, count)
		if amount <= 0 {
			return true, nil
		}

		credit := s.coord.ledger.create(creditDraft{
			AcademyID:  st.AcademyID,
			StudentID:  st.StudentID,
			CreditType: model.CreditTypeExcused,
			Amount:     amount,
			Start:      &monthStart,
			End:        &monthEnd,
			RestDays:   count,
			Notes:      fmt.Sprintf("%s 公假 %d 次（第五周 %d、补课 %d 已抵扣）", billing.YearMonth(monthStart), excused, bonus, makeup),
		})
		return false, tx.Credit.Create(ctx, credit)
	}), nil
}

// ────────────────────── 月度排课 ──────────────────────

// AssignMonthlySchedules 为在读学生补齐当月占位，已存在的不重复创建
func (s *jobService) AssignMonthlySchedules(ctx context.Context, month time.Time, dryRun bool) (*dto.JobSummary, error) {
	students, err := s.repo.Student.ListByStatus(ctx, model.StudentStatusActive)
	if err != nil {
		return nil, s.listFailed(JobMonthlyAssign, err)
	}

	from := billing.MonthStart(month)
	return s.execute(ctx, JobMonthlyAssign, dryRun, students, func(ctx context.Context, tx *repository.Repository, st *model.Student) (bool, error) {
		added, err := s.coord.assigner.Assign(ctx, tx, st.StudentID, st.AcademyID, patternOf(st), from)
		if err != nil {
			return false, err
		}
		return added == 0, nil
	}), nil
}
