package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/seanyjeong/pacapro-sub001/internal/billing"
	"github.com/seanyjeong/pacapro-sub001/internal/dto"
	"github.com/seanyjeong/pacapro-sub001/internal/model"
	"github.com/seanyjeong/pacapro-sub001/internal/repository"
	pkgerrors "github.com/seanyjeong/pacapro-sub001/pkg/errors"
)

// coordinator 学生状态流转的副作用编排
//
// 主要写入（状态、账单调整、积分、占位清理）直接在调用方的事务内完成，失败即整体回滚；
// 次要步骤以 followUp 形式返回，学生记录落库后在各自的保存点中执行，
// 失败只记入 warnings。租户校验失败例外，仍然终止整个事务。
type coordinator struct {
	env      *env
	assigner ScheduleAssigner
	ledger   *creditLedger
	seasons  SeasonEnroller
	logger   *zap.Logger
}

func newCoordinator(env *env, assigner ScheduleAssigner, ledger *creditLedger, seasons SeasonEnroller, logger *zap.Logger) *coordinator {
	return &coordinator{
		env:      env,
		assigner: assigner,
		ledger:   ledger,
		seasons:  seasons,
		logger:   logger,
	}
}

// followUp 次要步骤
type followUp struct {
	step string
	run  func(ctx context.Context, tx *repository.Repository, res *dto.StudentResult) error
}

// runFollowUps 逐个在保存点中执行次要步骤
func (c *coordinator) runFollowUps(ctx context.Context, tx *repository.Repository, student *model.Student, res *dto.StudentResult, steps []followUp) error {
	for _, f := range steps {
		err := tx.Transaction(ctx, func(sp *repository.Repository) error {
			return f.run(ctx, sp, res)
		})
		if err == nil {
			continue
		}
		if pkgerrors.KindOf(err) == pkgerrors.KindSecurity {
			return err
		}
		c.logger.Warn("次要步骤失败",
			zap.String("step", f.step),
			zap.String("student_id", student.StudentID),
			zap.Error(err),
		)
		res.AddWarning(f.step, err)
	}
	return nil
}

// patternOf 学生的上课模式，未指定时段的条目取学生默认时段
func patternOf(s *model.Student) model.ClassDays {
	return s.ClassDays.Normalize(s.TimeSlot)
}

// ────────────────────── 入学 ──────────────────────

// activate pending/trial → active；需在 Create/Update 学生记录之前调用
func (c *coordinator) activate(ctx context.Context, tx *repository.Repository, s *model.Student, date time.Time) ([]followUp, error) {
	if s.StudentNumber == nil || *s.StudentNumber == "" {
		year := date.Year()
		last, err := tx.Student.LastStudentNumber(ctx, s.AcademyID, strconv.Itoa(year))
		if err != nil {
			return nil, err
		}
		number := billing.NextStudentNumber(year, last)
		s.StudentNumber = &number
	}

	s.Status = model.StudentStatusActive
	s.IsTrial = false
	s.TrialRemaining = 0
	if s.EnrollmentDate == nil {
		s.EnrollmentDate = &date
	}

	return []followUp{
		c.assignFollowUp(s, date),
		{step: dto.StepEnrollmentBill, run: func(ctx context.Context, tx *repository.Repository, res *dto.StudentResult) error {
			payment, err := c.enrollmentPayment(ctx, tx, s, date)
			if err != nil {
				return err
			}
			res.Payment = toPaymentResponse(payment)
			return nil
		}},
	}, nil
}

func (c *coordinator) assignFollowUp(s *model.Student, from time.Time) followUp {
	return followUp{step: dto.StepAssignSchedule, run: func(ctx context.Context, tx *repository.Repository, res *dto.StudentResult) error {
		added, err := c.assigner.Assign(ctx, tx, s.StudentID, s.AcademyID, patternOf(s), from)
		res.AttendanceAdded += added
		return err
	}}
}

// enrollmentPayment 入学当月的按比例账单；已有当月账单或无学费时不生成
func (c *coordinator) enrollmentPayment(ctx context.Context, tx *repository.Repository, s *model.Student, date time.Time) (*model.PaymentRecord, error) {
	if s.MonthlyTuition <= 0 {
		return nil, nil
	}
	yearMonth := billing.YearMonth(date)
	if exists, err := c.monthlyExists(ctx, tx, s.StudentID, yearMonth); err != nil || exists {
		return nil, err
	}

	pattern := patternOf(s)
	closed, err := c.env.closedSlots(ctx, tx, s.AcademyID, billing.MonthStart(date), billing.MonthEnd(date))
	if err != nil {
		return nil, err
	}
	amount := c.env.calc.Enrollment(billing.EnrollmentInput{
		MonthlyTuition: s.MonthlyTuition,
		Pattern:        pattern,
		StartDate:      date,
		DiscountRate:   s.DiscountRate,
		Closed:         closed,
	})
	if amount.Base <= 0 {
		return nil, nil
	}

	dueDay, err := c.dueDay(ctx, tx, s)
	if err != nil {
		return nil, err
	}
	due := billing.ResolveDueDate(date.Year(), date.Month(), dueDay, pattern, date, c.env.cfg.Billing.DueDateSearchDays)

	payment := c.newMonthlyPayment(s, yearMonth, amount, due, fmt.Sprintf("%s 学费（入学）", yearMonth))
	if err := tx.Payment.Create(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func (c *coordinator) newMonthlyPayment(s *model.Student, yearMonth string, amount billing.Amount, due time.Time, description string) *model.PaymentRecord {
	return &model.PaymentRecord{
		StudentID:      s.StudentID,
		AcademyID:      s.AcademyID,
		YearMonth:      yearMonth,
		PaymentType:    model.PaymentTypeMonthly,
		BaseAmount:     amount.Base,
		DiscountAmount: amount.Discount,
		FinalAmount:    amount.Final,
		DueDate:        due,
		Status:         model.PaymentStatusPending,
		IsProrated:     amount.Prorated,
		Description:    description,
	}
}

func (c *coordinator) monthlyExists(ctx context.Context, tx *repository.Repository, studentID, yearMonth string) (bool, error) {
	_, err := tx.Payment.GetMonthlyForUpdate(ctx, studentID, yearMonth)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

// dueDay 学生设置 > 学院设置 > 全局默认
func (c *coordinator) dueDay(ctx context.Context, tx *repository.Repository, s *model.Student) (int, error) {
	if s.PaymentDueDay != nil && *s.PaymentDueDay > 0 {
		return *s.PaymentDueDay, nil
	}
	setting, err := tx.Academy.GetByAcademyID(ctx, s.AcademyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.env.cfg.Billing.DefaultDueDay, nil
		}
		return 0, err
	}
	if setting.PaymentDueDay > 0 {
		return setting.PaymentDueDay, nil
	}
	return c.env.cfg.Billing.DefaultDueDay, nil
}

// ────────────────────── 休学 ──────────────────────

// pause active → paused，按休学日调整当月账单
// 已缴清且 creditType 为 carryover/refund 时为未上课部分生成积分
func (c *coordinator) pause(ctx context.Context, tx *repository.Repository, s *model.Student, start time.Time, end *time.Time, reason, creditType string, res *dto.StudentResult) error {
	s.Status = model.StudentStatusPaused
	s.RestStartDate = &start
	s.RestEndDate = end
	s.RestReason = reason

	yearMonth := billing.YearMonth(start)
	payment, err := tx.Payment.GetMonthlyForUpdate(ctx, s.StudentID, yearMonth)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		payment = nil
	case err != nil:
		return err
	}

	if payment != nil {
		if err := c.settlePausedPayment(ctx, tx, s, payment, start, end, creditType, res); err != nil {
			return err
		}
	}

	removed, err := c.assigner.ClearFrom(ctx, tx, s.StudentID, start)
	if err != nil {
		return err
	}
	res.AttendanceRemoved += removed
	return nil
}

func (c *coordinator) settlePausedPayment(ctx context.Context, tx *repository.Repository, s *model.Student, payment *model.PaymentRecord, start time.Time, end *time.Time, creditType string, res *dto.StudentResult) error {
	closed, err := c.env.closedSlots(ctx, tx, s.AcademyID, billing.MonthStart(start), billing.MonthEnd(start))
	if err != nil {
		return err
	}
	out := c.env.calc.Pause(billing.PauseInput{
		OriginalFinal: payment.FinalAmount,
		PaidAmount:    payment.PaidAmount,
		Pattern:       patternOf(s),
		PauseDate:     start,
		Closed:        closed,
	})

	switch {
	case payment.IsPaid():
		if (creditType != model.CreditTypeCarryover && creditType != model.CreditTypeRefund) || out.Unattended <= 0 {
			return nil
		}
		restEnd := billing.MonthEnd(start)
		if end != nil && end.Before(restEnd) {
			restEnd = *end
		}
		credit := c.ledger.create(creditDraft{
			AcademyID:       s.AcademyID,
			StudentID:       s.StudentID,
			CreditType:      creditType,
			Amount:          out.Unattended,
			Start:           &start,
			End:             &restEnd,
			RestDays:        billing.InclusiveDays(start, restEnd),
			SourcePaymentID: &payment.PaymentID,
			Notes:           fmt.Sprintf("%s 休学未上课部分（已上 %d/%d 天）", payment.YearMonth, out.AttendedDays, out.DaysInMonth),
		})
		if err := tx.Credit.Create(ctx, credit); err != nil {
			return err
		}
		res.Credit = toCreditResponse(credit)
		return nil

	case out.DeletePayment:
		if err := tx.Payment.Delete(ctx, payment.PaymentID); err != nil {
			return err
		}
		res.DeletedPaymentID = payment.PaymentID
		return nil

	default:
		original := payment.FinalAmount
		payment.FinalAmount = out.Adjusted
		payment.AppendNote(fmt.Sprintf("[休学调整] %s 起休学，%d → %d", start.Format(model.DateLayout), original, out.Adjusted))
		payment.RefreshStatus()
		if err := tx.Payment.Update(ctx, payment); err != nil {
			return err
		}
		res.AdjustedPayment = toPaymentResponse(payment)
		return nil
	}
}

// ────────────────────── 复学 ──────────────────────

// resume paused → active
func (c *coordinator) resume(s *model.Student, date time.Time) ([]followUp, error) {
	if s.Status != model.StudentStatusPaused {
		return nil, ErrStudentNotPaused
	}
	s.Status = model.StudentStatusActive
	s.RestStartDate = nil
	s.RestEndDate = nil
	s.RestReason = ""

	return []followUp{
		c.assignFollowUp(s, date),
		{step: dto.StepResumeBill, run: func(ctx context.Context, tx *repository.Repository, res *dto.StudentResult) error {
			payment, err := c.resumePayment(ctx, tx, s, date)
			if err != nil {
				return err
			}
			res.Payment = toPaymentResponse(payment)
			return nil
		}},
	}, nil
}

// resumePayment 复学当月账单，缴费期限为复学日后 7 天
func (c *coordinator) resumePayment(ctx context.Context, tx *repository.Repository, s *model.Student, date time.Time) (*model.PaymentRecord, error) {
	if s.MonthlyTuition <= 0 {
		return nil, nil
	}
	yearMonth := billing.YearMonth(date)
	if exists, err := c.monthlyExists(ctx, tx, s.StudentID, yearMonth); err != nil || exists {
		return nil, err
	}

	closed, err := c.env.closedSlots(ctx, tx, s.AcademyID, date, billing.MonthEnd(date))
	if err != nil {
		return nil, err
	}
	amount := c.env.calc.Resume(billing.ResumeInput{
		MonthlyTuition: s.MonthlyTuition,
		Pattern:        patternOf(s),
		WeeklyCount:    s.WeeklyCount,
		ResumeDate:     date,
		DiscountRate:   s.DiscountRate,
		Closed:         closed,
	})
	if amount.Base <= 0 {
		return nil, nil
	}

	payment := c.newMonthlyPayment(s, yearMonth, amount, date.AddDate(0, 0, 7), fmt.Sprintf("%s 学费（复学）", yearMonth))
	if err := tx.Payment.Create(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// ────────────────────── 退学 / 毕业 ──────────────────────

// retire any → withdrawn/graduated：删除未缴账单、取消季节课、清理今天起的占位与缺勤
func (c *coordinator) retire(ctx context.Context, tx *repository.Repository, s *model.Student, status, reason string, date time.Time, res *dto.StudentResult) error {
	if s.IsTerminal() {
		return ErrStudentRetired
	}
	s.Status = status
	s.WithdrawalDate = &date
	s.WithdrawalReason = reason
	s.ClassDaysNext = nil
	s.ClassDaysEffectiveFrom = nil

	unpaid, err := tx.Payment.ListUnpaid(ctx, s.StudentID)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(unpaid))
	var total int64
	for _, p := range unpaid {
		ids = append(ids, p.PaymentID)
		total += p.FinalAmount
	}
	if _, err := tx.Payment.DeleteByIDs(ctx, ids); err != nil {
		return err
	}
	res.DeletedPaymentCount = len(ids)
	res.DeletedPaymentTotal = total

	cancelled, err := c.seasons.CancelActiveEnrollments(ctx, tx, s.StudentID, c.env.now())
	if err != nil {
		return err
	}
	res.CancelledSeasons = cancelled

	removed, err := c.assigner.ClearFrom(ctx, tx, s.StudentID, c.env.today(), model.AttendanceAbsent)
	if err != nil {
		return err
	}
	res.AttendanceRemoved += removed
	return nil
}

// ────────────────────── 编辑 ──────────────────────

func (c *coordinator) reassignFollowUp(s *model.Student, oldPattern model.ClassDays, effective time.Time) followUp {
	return followUp{step: dto.StepReassign, run: func(ctx context.Context, tx *repository.Repository, res *dto.StudentResult) error {
		added, removed, err := c.assigner.Reassign(ctx, tx, s.StudentID, s.AcademyID, oldPattern, patternOf(s), effective)
		res.AttendanceAdded += added
		res.AttendanceRemoved += removed
		return err
	}}
}

func (c *coordinator) trialFollowUp(s *model.Student, previous []model.TrialDate) followUp {
	return followUp{step: dto.StepTrialSchedule, run: func(ctx context.Context, tx *repository.Repository, res *dto.StudentResult) error {
		if len(previous) > 0 {
			added, removed, err := c.assigner.ReassignTrial(ctx, tx, s.StudentID, s.AcademyID, previous, s.TrialDates.Data(), s.TimeSlot)
			res.AttendanceAdded += added
			res.AttendanceRemoved += removed
			return err
		}
		added, err := c.assigner.AssignTrial(ctx, tx, s.StudentID, s.AcademyID, s.TrialDates.Data(), s.TimeSlot)
		res.AttendanceAdded += added
		return err
	}}
}

// repriceFollowUp 学费或折扣变更后，重算当月起尚未缴费的整月账单
func (c *coordinator) repriceFollowUp(s *model.Student) followUp {
	return followUp{step: dto.StepRepricePayments, run: func(ctx context.Context, tx *repository.Repository, res *dto.StudentResult) error {
		payments, err := tx.Payment.ListRepriceable(ctx, s.StudentID, billing.YearMonth(c.env.today()))
		if err != nil {
			return err
		}
		for i := range payments {
			p := &payments[i]
			if p.IsProrated {
				continue
			}
			discount, final := c.env.calc.Discount(s.MonthlyTuition, s.DiscountRate)
			final -= p.CarryoverAmount
			if final < 0 {
				final = 0
			}
			if p.BaseAmount == s.MonthlyTuition && p.DiscountAmount == discount && p.FinalAmount == final {
				continue
			}
			p.AppendNote(fmt.Sprintf("[学费变更] %d → %d", p.FinalAmount, final))
			p.BaseAmount, p.DiscountAmount, p.FinalAmount = s.MonthlyTuition, discount, final
			p.RefreshStatus()
			if err := tx.Payment.Update(ctx, p); err != nil {
				return err
			}
			res.RepricedPayments++
		}
		return nil
	}}
}
