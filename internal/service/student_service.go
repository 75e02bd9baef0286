package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/seanyjeong/pacapro-sub001/internal/billing"
	"github.com/seanyjeong/pacapro-sub001/internal/dto"
	"github.com/seanyjeong/pacapro-sub001/internal/model"
	"github.com/seanyjeong/pacapro-sub001/internal/repository"
	pkgerrors "github.com/seanyjeong/pacapro-sub001/pkg/errors"
)

// ── 学生模块业务错误 ──

var (
	ErrStudentNotFound          = pkgerrors.NewNotFound(20001, "学生不存在")
	ErrStudentNameRequired      = pkgerrors.NewValidation(20002, "学生姓名不能为空")
	ErrStudentNumberDuplicate   = pkgerrors.NewConflict(20003, "学号已存在")
	ErrStudentRetired           = pkgerrors.NewConflict(20004, "学生已退学或毕业")
	ErrStudentInvalidTransition = pkgerrors.NewValidation(20005, "不支持的状态变更")
	ErrStudentNotPaused         = pkgerrors.NewValidation(20006, "学生不在休学状态")
	ErrStudentDateInvalid       = pkgerrors.NewValidation(20007, "日期格式应为 YYYY-MM-DD")
	ErrStudentTimeSlotInvalid   = pkgerrors.NewValidation(20008, "上课时段无效")
	ErrStudentNotActive         = pkgerrors.NewValidation(20009, "只有在读学生可以休学")
	ErrStudentRestRangeInvalid  = pkgerrors.NewValidation(20011, "休学结束日期不能早于开始日期")
	ErrStudentStatusInvalid     = pkgerrors.NewValidation(20012, "登记时状态只能是 pending、trial 或 active")
	ErrStudentBulkEmpty         = pkgerrors.NewValidation(20013, "请至少指定一名学生")
)

// StudentService 学生生命周期业务接口
// 所有变更在一个事务内完成，并对学生行加锁，同一学生的操作串行执行
type StudentService interface {
	Create(ctx context.Context, academyID string, req *dto.CreateStudentRequest) (*dto.StudentResult, error)
	Get(ctx context.Context, academyID, id string) (*dto.StudentResponse, error)
	Update(ctx context.Context, academyID, id string, req *dto.UpdateStudentRequest) (*dto.StudentResult, error)
	ProcessRest(ctx context.Context, academyID, id string, req *dto.RestRequest) (*dto.StudentResult, error)
	Resume(ctx context.Context, academyID, id string, req *dto.ResumeRequest) (*dto.StudentResult, error)
	Withdraw(ctx context.Context, academyID, id string, req *dto.WithdrawRequest) (*dto.StudentResult, error)

	ListRestEnded(ctx context.Context, academyID string) ([]dto.RestEndedStudent, error)
	BulkUpdateClassDays(ctx context.Context, academyID string, req *dto.BulkClassDaysRequest) (*dto.BulkClassDaysResult, error)
	CancelScheduledClassDays(ctx context.Context, academyID, id string) (*dto.StudentResponse, error)
	ListSeasons(ctx context.Context, academyID, id string) ([]dto.SeasonEnrollmentResponse, error)
}

type studentService struct {
	repo   *repository.Repository
	coord  *coordinator
	logger *zap.Logger
}

// newStudentService 创建 StudentService 实例
func newStudentService(repo *repository.Repository, coord *coordinator, logger *zap.Logger) StudentService {
	return &studentService{repo: repo, coord: coord, logger: logger}
}

func newResult() *dto.StudentResult {
	return &dto.StudentResult{Warnings: []dto.Warning{}}
}

// optionalDate 空串返回 fallback
func optionalDate(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := billing.ParseDate(s)
	if err != nil {
		return time.Time{}, ErrStudentDateInvalid
	}
	return d, nil
}

func validateTrialDates(dates []model.TrialDate) error {
	for _, td := range dates {
		if _, err := billing.ParseDate(td.Date); err != nil {
			return ErrTrialDateInvalid
		}
		if td.TimeSlot != "" && !model.ValidTimeSlot(td.TimeSlot) {
			return ErrStudentTimeSlotInvalid
		}
	}
	return nil
}

// lockStudent 加锁读取学生，记录不存在时返回 ErrStudentNotFound
func lockStudent(ctx context.Context, tx *repository.Repository, academyID, id string) (*model.Student, error) {
	student, err := tx.Student.GetByIDForUpdate(ctx, academyID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return student, nil
}

// finish 统一的错误日志；内部错误不向调用方透出细节
func (s *studentService) finish(op, id string, err error) error {
	if err == nil {
		return nil
	}
	switch pkgerrors.KindOf(err) {
	case pkgerrors.KindInternal:
		s.logger.Error(op+"失败", zap.String("student_id", id), zap.Error(err))
	case pkgerrors.KindSecurity:
		s.logger.Error(op+"被拒绝", zap.String("student_id", id), zap.Bool("security", true), zap.Error(err))
	}
	return err
}

// ────────────────────── Create ──────────────────────

func (s *studentService) Create(ctx context.Context, academyID string, req *dto.CreateStudentRequest) (*dto.StudentResult, error) {
	cfg := s.coord.env.cfg

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrStudentNameRequired
	}
	status := req.Status
	if status == "" {
		status = model.StudentStatusPending
	}
	switch status {
	case model.StudentStatusPending, model.StudentStatusTrial, model.StudentStatusActive:
	default:
		return nil, ErrStudentStatusInvalid
	}
	timeSlot := req.TimeSlot
	if timeSlot == "" {
		timeSlot = cfg.Schedule.DefaultTimeSlot
	}
	if !model.ValidTimeSlot(timeSlot) {
		return nil, ErrStudentTimeSlotInvalid
	}
	studentType := req.StudentType
	if studentType == "" {
		studentType = model.StudentTypeExam
	}
	enrollDate, err := optionalDate(req.EnrollmentDate, s.coord.env.today())
	if err != nil {
		return nil, err
	}
	if err := validateTrialDates(req.TrialDates); err != nil {
		return nil, err
	}

	pattern := req.ClassDays.Normalize(timeSlot)
	student := &model.Student{
		AcademyID:      academyID,
		StudentNumber:  req.StudentNumber,
		Name:           name,
		Grade:          req.Grade,
		StudentType:    studentType,
		Status:         status,
		ClassDays:      pattern,
		TimeSlot:       timeSlot,
		WeeklyCount:    len(pattern),
		MonthlyTuition: req.MonthlyTuition,
		DiscountRate:   req.DiscountRate,
		PaymentDueDay:  req.PaymentDueDay,
		Memo:           req.Memo,
	}
	if student.StudentNumber != nil && *student.StudentNumber == "" {
		student.StudentNumber = nil
	}

	if status == model.StudentStatusTrial {
		student.IsTrial = true
		student.MonthlyTuition = 0
		student.TrialRemaining = cfg.Billing.TrialDefaultCount
		if req.TrialRemaining != nil {
			student.TrialRemaining = *req.TrialRemaining
		}
		student.TrialDates = datatypes.NewJSONType(req.TrialDates)
	}

	res := newResult()
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var steps []followUp
		var err error
		if student.StudentNumber != nil {
			exists, err := tx.Student.ExistsStudentNumber(ctx, academyID, *student.StudentNumber, "")
			if err != nil {
				return err
			}
			if exists {
				return ErrStudentNumberDuplicate
			}
		}

		if status == model.StudentStatusActive {
			student.EnrollmentDate = &enrollDate
			if steps, err = s.coord.activate(ctx, tx, student, enrollDate); err != nil {
				return err
			}
		}

		if err := tx.Student.Create(ctx, student); err != nil {
			return err
		}
		if student.IsTrial && len(req.TrialDates) > 0 {
			steps = append(steps, s.coord.trialFollowUp(student, nil))
		}
		return s.coord.runFollowUps(ctx, tx, student, res, steps)
	})
	if err := s.finish("登记学生", student.StudentID, err); err != nil {
		return nil, err
	}

	s.logger.Info("学生已登记",
		zap.String("student_id", student.StudentID),
		zap.String("academy_id", academyID),
		zap.String("status", student.Status),
		zap.Int("warnings", len(res.Warnings)),
	)
	res.Student = toStudentResponse(student)
	return res, nil
}

// ────────────────────── Get ──────────────────────

func (s *studentService) Get(ctx context.Context, academyID, id string) (*dto.StudentResponse, error) {
	student, err := s.repo.Student.GetByID(ctx, academyID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		s.logger.Error("查询学生失败", zap.String("student_id", id), zap.Error(err))
		return nil, err
	}
	return toStudentResponse(student), nil
}

// ────────────────────── Update ──────────────────────

// Update 普通字段、上课模式、学费与状态的统一编辑入口
// 状态变更在字段修改之后处理，入学计费使用新的上课模式与学费
func (s *studentService) Update(ctx context.Context, academyID, id string, req *dto.UpdateStudentRequest) (*dto.StudentResult, error) {
	today := s.coord.env.today()

	if req.TimeSlot != nil && !model.ValidTimeSlot(*req.TimeSlot) {
		return nil, ErrStudentTimeSlotInvalid
	}
	effective := today
	if req.ClassDaysEffectiveFrom != nil {
		var err error
		if effective, err = optionalDate(*req.ClassDaysEffectiveFrom, today); err != nil {
			return nil, err
		}
	}
	if req.TrialDates != nil {
		if err := validateTrialDates(*req.TrialDates); err != nil {
			return nil, err
		}
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, ErrStudentNameRequired
	}

	res := newResult()
	var student *model.Student
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		if student, err = lockStudent(ctx, tx, academyID, id); err != nil {
			return err
		}
		wasActive := student.Status == model.StudentStatusActive
		oldPattern := patternOf(student)
		var steps []followUp

		// ── 普通字段 ──
		if req.Name != nil {
			student.Name = strings.TrimSpace(*req.Name)
		}
		if req.Grade != nil {
			student.Grade = *req.Grade
		}
		if req.StudentType != nil {
			student.StudentType = *req.StudentType
		}
		if req.PaymentDueDay != nil {
			student.PaymentDueDay = req.PaymentDueDay
		}
		if req.TrialRemaining != nil {
			student.TrialRemaining = *req.TrialRemaining
		}
		if req.Memo != nil {
			student.Memo = *req.Memo
		}
		if req.StudentNumber != nil && *req.StudentNumber != derefString(student.StudentNumber) {
			if *req.StudentNumber == "" {
				student.StudentNumber = nil
			} else {
				exists, err := tx.Student.ExistsStudentNumber(ctx, academyID, *req.StudentNumber, student.StudentID)
				if err != nil {
					return err
				}
				if exists {
					return ErrStudentNumberDuplicate
				}
				number := *req.StudentNumber
				student.StudentNumber = &number
			}
		}

		// ── 上课模式 ──
		if req.TimeSlot != nil && *req.TimeSlot != student.TimeSlot {
			if req.ClassDays == nil {
				// 仅改时段：沿用原时段的条目一起迁移
				moved := make(model.ClassDays, 0, len(student.ClassDays))
				for _, cd := range student.ClassDays {
					if cd.TimeSlot == student.TimeSlot || cd.TimeSlot == "" {
						cd.TimeSlot = *req.TimeSlot
					}
					moved = append(moved, cd)
				}
				student.ClassDays = moved.Normalize(*req.TimeSlot)
			}
			student.TimeSlot = *req.TimeSlot
		}
		if req.ClassDays != nil {
			next := req.ClassDays.Normalize(student.TimeSlot)
			if effective.After(today) {
				student.ClassDaysNext = &next
				student.ClassDaysEffectiveFrom = &effective
			} else {
				student.ClassDays = next
				student.WeeklyCount = len(next)
				student.ClassDaysNext = nil
				student.ClassDaysEffectiveFrom = nil
			}
		}

		// ── 学费 ──
		repriced := false
		if req.MonthlyTuition != nil && *req.MonthlyTuition != student.MonthlyTuition {
			student.MonthlyTuition = *req.MonthlyTuition
			repriced = true
		}
		if req.DiscountRate != nil && !req.DiscountRate.Equal(student.DiscountRate) {
			student.DiscountRate = *req.DiscountRate
			repriced = true
		}

		// ── 体验课日期 ──
		if req.TrialDates != nil {
			previous := student.TrialDates.Data()
			student.TrialDates = datatypes.NewJSONType(*req.TrialDates)
			if student.IsTrial {
				steps = append(steps, s.coord.trialFollowUp(student, previous))
			}
		}

		// ── 状态 ──
		if req.Status != nil && *req.Status != student.Status {
			more, err := s.transition(ctx, tx, student, *req.Status, today, res)
			if err != nil {
				return err
			}
			steps = append(steps, more...)
		}

		if wasActive && student.Status == model.StudentStatusActive && !oldPattern.Equal(patternOf(student)) {
			steps = append(steps, s.coord.reassignFollowUp(student, oldPattern, today))
		}
		if repriced && !student.IsTerminal() {
			steps = append(steps, s.coord.repriceFollowUp(student))
		}

		if err := tx.Student.Update(ctx, student); err != nil {
			return err
		}
		return s.coord.runFollowUps(ctx, tx, student, res, steps)
	})
	if err := s.finish("更新学生", id, err); err != nil {
		return nil, err
	}

	res.Student = toStudentResponse(student)
	return res, nil
}

// transition 编辑接口中的状态变更
func (s *studentService) transition(ctx context.Context, tx *repository.Repository, student *model.Student, to string, today time.Time, res *dto.StudentResult) ([]followUp, error) {
	from := student.Status
	if student.IsTerminal() {
		return nil, ErrStudentRetired
	}

	switch {
	case to == model.StudentStatusWithdrawn || to == model.StudentStatusGraduated:
		return nil, s.coord.retire(ctx, tx, student, to, "", today, res)

	case to == model.StudentStatusActive && (from == model.StudentStatusPending || from == model.StudentStatusTrial):
		student.EnrollmentDate = &today
		return s.coord.activate(ctx, tx, student, today)

	case to == model.StudentStatusActive && from == model.StudentStatusPaused:
		return s.coord.resume(student, today)

	case to == model.StudentStatusPaused && from == model.StudentStatusActive:
		return nil, s.coord.pause(ctx, tx, student, today, nil, "", "", res)

	case to == model.StudentStatusTrial && from == model.StudentStatusPending:
		student.Status = model.StudentStatusTrial
		student.IsTrial = true
		if student.TrialRemaining <= 0 {
			student.TrialRemaining = s.coord.env.cfg.Billing.TrialDefaultCount
		}
		return nil, nil

	case to == model.StudentStatusPending && from == model.StudentStatusTrial:
		student.Status = model.StudentStatusPending
		student.IsTrial = false
		return nil, nil
	}
	return nil, ErrStudentInvalidTransition
}

// ────────────────────── ProcessRest ──────────────────────

func (s *studentService) ProcessRest(ctx context.Context, academyID, id string, req *dto.RestRequest) (*dto.StudentResult, error) {
	start, err := billing.ParseDate(req.RestStartDate)
	if err != nil {
		return nil, ErrStudentDateInvalid
	}
	var end *time.Time
	if req.RestEndDate != "" {
		e, err := billing.ParseDate(req.RestEndDate)
		if err != nil {
			return nil, ErrStudentDateInvalid
		}
		if e.Before(start) {
			return nil, ErrStudentRestRangeInvalid
		}
		end = &e
	}
	creditType := req.CreditType
	switch creditType {
	case "":
		creditType = model.CreditTypeCarryover
	case "none":
		creditType = ""
	}

	res := newResult()
	var student *model.Student
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		if student, err = lockStudent(ctx, tx, academyID, id); err != nil {
			return err
		}
		if student.IsTerminal() {
			return ErrStudentRetired
		}
		if student.Status != model.StudentStatusActive {
			return ErrStudentNotActive
		}
		if err := s.coord.pause(ctx, tx, student, start, end, strings.TrimSpace(req.Reason), creditType, res); err != nil {
			return err
		}
		return tx.Student.Update(ctx, student)
	})
	if err := s.finish("休学", id, err); err != nil {
		return nil, err
	}

	s.logger.Info("学生已休学",
		zap.String("student_id", id),
		zap.String("rest_start_date", req.RestStartDate),
		zap.Bool("credit_created", res.Credit != nil),
	)
	res.Student = toStudentResponse(student)
	return res, nil
}

// ────────────────────── Resume ──────────────────────

func (s *studentService) Resume(ctx context.Context, academyID, id string, req *dto.ResumeRequest) (*dto.StudentResult, error) {
	date, err := optionalDate(req.ResumeDate, s.coord.env.today())
	if err != nil {
		return nil, err
	}

	res := newResult()
	var student *model.Student
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		if student, err = lockStudent(ctx, tx, academyID, id); err != nil {
			return err
		}
		if student.IsTerminal() {
			return ErrStudentRetired
		}
		steps, err := s.coord.resume(student, date)
		if err != nil {
			return err
		}
		if err := tx.Student.Update(ctx, student); err != nil {
			return err
		}
		return s.coord.runFollowUps(ctx, tx, student, res, steps)
	})
	if err := s.finish("复学", id, err); err != nil {
		return nil, err
	}

	res.Student = toStudentResponse(student)
	return res, nil
}

// ────────────────────── Withdraw ──────────────────────

func (s *studentService) Withdraw(ctx context.Context, academyID, id string, req *dto.WithdrawRequest) (*dto.StudentResult, error) {
	status := req.Status
	if status == "" {
		status = model.StudentStatusWithdrawn
	}
	if status != model.StudentStatusWithdrawn && status != model.StudentStatusGraduated {
		return nil, ErrStudentInvalidTransition
	}
	date, err := optionalDate(req.Date, s.coord.env.today())
	if err != nil {
		return nil, err
	}

	res := newResult()
	var student *model.Student
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		if student, err = lockStudent(ctx, tx, academyID, id); err != nil {
			return err
		}
		if err := s.coord.retire(ctx, tx, student, status, strings.TrimSpace(req.Reason), date, res); err != nil {
			return err
		}
		return tx.Student.Update(ctx, student)
	})
	if err := s.finish("退学", id, err); err != nil {
		return nil, err
	}

	s.logger.Info("学生已离校",
		zap.String("student_id", id),
		zap.String("status", status),
		zap.Int("deleted_payments", res.DeletedPaymentCount),
		zap.Int64("deleted_total", res.DeletedPaymentTotal),
	)
	res.Student = toStudentResponse(student)
	return res, nil
}

// ────────────────────── 休学期满 ──────────────────────

// ListRestEnded 休学结束日已过仍未复学的学生，供前台提醒复学或退学
func (s *studentService) ListRestEnded(ctx context.Context, academyID string) ([]dto.RestEndedStudent, error) {
	today := s.coord.env.today()
	students, err := s.repo.Student.ListRestEnded(ctx, academyID, today)
	if err != nil {
		s.logger.Error("查询休学期满学生失败", zap.String("academy_id", academyID), zap.Error(err))
		return nil, err
	}

	out := make([]dto.RestEndedStudent, 0, len(students))
	for i := range students {
		st := &students[i]
		out = append(out, dto.RestEndedStudent{
			StudentResponse: *toStudentResponse(st),
			DaysOverdue:     billing.InclusiveDays(*st.RestEndDate, today) - 1,
		})
	}
	return out, nil
}

// ────────────────────── 上课模式批量修改 ──────────────────────

const (
	classDaysModeImmediate = "immediate"
	classDaysModeScheduled = "scheduled"
)

// BulkUpdateClassDays 批量修改上课模式
// 每个学生独立走 Update 的事务，单个失败不影响其他学生
func (s *studentService) BulkUpdateClassDays(ctx context.Context, academyID string, req *dto.BulkClassDaysRequest) (*dto.BulkClassDaysResult, error) {
	if len(req.Students) == 0 {
		return nil, ErrStudentBulkEmpty
	}
	today := s.coord.env.today()
	effective, err := optionalDate(req.EffectiveFrom, today)
	if err != nil {
		return nil, err
	}
	mode := classDaysModeImmediate
	if effective.After(today) {
		mode = classDaysModeScheduled
	}
	effectiveStr := effective.Format(model.DateLayout)

	out := &dto.BulkClassDaysResult{
		EffectiveFrom: effectiveStr,
		Results:       make([]dto.BulkClassDaysItemResult, 0, len(req.Students)),
	}
	for _, item := range req.Students {
		classDays := item.ClassDays
		res, err := s.Update(ctx, academyID, item.ID, &dto.UpdateStudentRequest{
			ClassDays:              &classDays,
			ClassDaysEffectiveFrom: &effectiveStr,
		})
		if err != nil {
			out.Failed++
			out.Results = append(out.Results, dto.BulkClassDaysItemResult{ID: item.ID, Error: publicMessage(err)})
			continue
		}
		out.Succeeded++
		itemRes := dto.BulkClassDaysItemResult{ID: item.ID, Mode: mode, Success: true}
		if len(res.Warnings) > 0 {
			itemRes.Warnings = res.Warnings
		}
		out.Results = append(out.Results, itemRes)
	}

	s.logger.Info("批量修改上课模式完成",
		zap.String("academy_id", academyID),
		zap.String("mode", mode),
		zap.String("effective_from", effectiveStr),
		zap.Int("succeeded", out.Succeeded),
		zap.Int("failed", out.Failed),
	)
	return out, nil
}

// publicMessage 业务错误返回原文，其余统一为内部错误
func publicMessage(err error) string {
	if appErr, ok := pkgerrors.As(err); ok {
		return appErr.Message
	}
	if errors.Is(err, pkgerrors.ErrOptimisticLock) {
		return err.Error()
	}
	return "服务器内部错误"
}

// CancelScheduledClassDays 取消尚未生效的上课模式预约变更，没有预约时原样返回
func (s *studentService) CancelScheduledClassDays(ctx context.Context, academyID, id string) (*dto.StudentResponse, error) {
	var student *model.Student
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		if student, err = lockStudent(ctx, tx, academyID, id); err != nil {
			return err
		}
		if student.ClassDaysNext == nil && student.ClassDaysEffectiveFrom == nil {
			return nil
		}
		student.ClassDaysNext = nil
		student.ClassDaysEffectiveFrom = nil
		return tx.Student.Update(ctx, student)
	})
	if err := s.finish("取消预约上课模式", id, err); err != nil {
		return nil, err
	}
	return toStudentResponse(student), nil
}

// ────────────────────── 季节课 ──────────────────────

func (s *studentService) ListSeasons(ctx context.Context, academyID, id string) ([]dto.SeasonEnrollmentResponse, error) {
	if _, err := s.Get(ctx, academyID, id); err != nil {
		return nil, err
	}
	enrollments, err := s.repo.Season.ListByStudent(ctx, id)
	if err != nil {
		s.logger.Error("查询季节课报名失败", zap.String("student_id", id), zap.Error(err))
		return nil, err
	}

	out := make([]dto.SeasonEnrollmentResponse, 0, len(enrollments))
	for i := range enrollments {
		out = append(out, toSeasonEnrollmentResponse(&enrollments[i]))
	}
	return out, nil
}
