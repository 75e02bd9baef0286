package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/seanyjeong/pacapro-sub001/internal/billing"
	"github.com/seanyjeong/pacapro-sub001/internal/dto"
	"github.com/seanyjeong/pacapro-sub001/internal/model"
	"github.com/seanyjeong/pacapro-sub001/internal/repository"
	pkgerrors "github.com/seanyjeong/pacapro-sub001/pkg/errors"
)

// ── 积分模块业务错误 ──

var (
	ErrCreditNotFound           = pkgerrors.NewNotFound(21001, "积分不存在")
	ErrCreditReasonRequired     = pkgerrors.NewValidation(21002, "请填写补偿原因")
	ErrCreditModeMissing        = pkgerrors.NewValidation(21003, "请提供金额、次数或日期区间之一")
	ErrCreditAmountOutOfRange   = pkgerrors.NewValidation(21004, "积分金额超出允许范围")
	ErrCreditClassCountInvalid  = pkgerrors.NewValidation(21005, "补偿次数超出允许范围")
	ErrCreditDateRangeInvalid   = pkgerrors.NewValidation(21006, "补偿日期区间无效")
	ErrCreditTuitionMissing     = pkgerrors.NewValidation(21007, "学生未设置月学费，无法按次数计算")
	ErrCreditPatternMissing     = pkgerrors.NewValidation(21008, "学生未设置上课模式，无法按日期计算")
	ErrCreditNoClassDays        = pkgerrors.NewValidation(21009, "所选区间内没有上课日")
	ErrCreditYearMonthInvalid   = pkgerrors.NewValidation(21010, "账期格式应为 YYYY-MM")
	ErrCreditStatusApplied      = pkgerrors.NewValidation(21011, "applied 状态只能通过抵扣产生")
	ErrCreditStatusInvalid      = pkgerrors.NewValidation(21012, "积分状态与剩余金额不符")
	ErrCreditLocked             = pkgerrors.NewConflict(21013, "积分已使用，不能修改或删除")
	ErrCreditExhausted          = pkgerrors.NewConflict(21014, "积分余额为零或已取消")
	ErrCreditAmountFrozen       = pkgerrors.NewConflict(21015, "积分已部分抵扣，不能修改金额")
	ErrCreditPaymentNotFound    = pkgerrors.NewNotFound(21016, "该账期没有月学费记录")
	ErrCreditPaymentPaid        = pkgerrors.NewConflict(21017, "该账期学费已缴清")
	ErrCreditPaymentNothingOwed = pkgerrors.NewConflict(21018, "该账期没有可抵扣的金额")
)

// ────────────────────── creditLedger ──────────────────────

// creditLedger 积分的创建与抵扣，供 CreditService 与状态流转共用
// 只修改内存中的记录，持久化由调用方在同一事务内完成
type creditLedger struct {
	env *env
}

func newCreditLedger(env *env) *creditLedger {
	return &creditLedger{env: env}
}

// creditDraft 新积分的参数
type creditDraft struct {
	AcademyID       string
	StudentID       string
	CreditType      string
	Amount          int64
	Start, End      *time.Time
	RestDays        int
	SourcePaymentID *string
	Notes           string
}

// create remaining = amount，状态 pending
func (l *creditLedger) create(d creditDraft) *model.RestCredit {
	return &model.RestCredit{
		AcademyID:       d.AcademyID,
		StudentID:       d.StudentID,
		SourcePaymentID: d.SourcePaymentID,
		RestStartDate:   d.Start,
		RestEndDate:     d.End,
		RestDays:        d.RestDays,
		CreditAmount:    d.Amount,
		RemainingAmount: d.Amount,
		CreditType:      d.CreditType,
		Status:          model.CreditStatusPending,
		Notes:           d.Notes,
	}
}

// apply 抵扣额 = min(积分余额, 账单当前应缴金额)，已缴部分不参与计算
func (l *creditLedger) apply(credit *model.RestCredit, payment *model.PaymentRecord) (int64, error) {
	if !credit.IsOpen() {
		return 0, ErrCreditExhausted
	}
	if payment.IsPaid() {
		return 0, ErrCreditPaymentPaid
	}

	amount := payment.FinalAmount
	if credit.RemainingAmount < amount {
		amount = credit.RemainingAmount
	}
	if amount <= 0 {
		return 0, ErrCreditPaymentNothingOwed
	}

	payment.FinalAmount -= amount
	payment.CarryoverAmount += amount
	payment.RestCreditID = &credit.CreditID
	payment.RefreshStatus()

	now := l.env.now()
	credit.RemainingAmount -= amount
	credit.AppliedToPaymentID = &payment.PaymentID
	credit.ProcessedAt = &now
	if credit.RemainingAmount <= 0 {
		credit.RemainingAmount = 0
		credit.Status = model.CreditStatusApplied
	} else {
		credit.Status = model.CreditStatusPartial
	}
	return amount, nil
}

// ────────────────────── CreditService ──────────────────────

// CreditService 积分业务接口
type CreditService interface {
	CreateManual(ctx context.Context, academyID, studentID string, req *dto.CreateManualCreditRequest) (*dto.CreditResponse, error)
	Apply(ctx context.Context, academyID, creditID string, req *dto.ApplyCreditRequest) (*dto.ApplyCreditResponse, error)
	List(ctx context.Context, academyID, studentID string) (*dto.CreditListResponse, error)
	Update(ctx context.Context, academyID, creditID string, req *dto.UpdateCreditRequest) (*dto.CreditResponse, error)
	Delete(ctx context.Context, academyID, creditID string) error
}

type creditService struct {
	repo     *repository.Repository
	env      *env
	ledger   *creditLedger
	validate *validator.Validate
	logger   *zap.Logger
}

func newCreditService(repo *repository.Repository, env *env, ledger *creditLedger, logger *zap.Logger) CreditService {
	return &creditService{
		repo:     repo,
		env:      env,
		ledger:   ledger,
		validate: validator.New(),
		logger:   logger,
	}
}

// ────────────────────── CreateManual ──────────────────────

// CreateManual 手动补偿积分，优先级：direct_amount > class_count > 日期区间
func (s *creditService) CreateManual(ctx context.Context, academyID, studentID string, req *dto.CreateManualCreditRequest) (*dto.CreditResponse, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, ErrCreditReasonRequired
	}

	student, err := s.repo.Student.GetByID(ctx, academyID, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		s.logger.Error("查询学生失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	draft := creditDraft{
		AcademyID:  academyID,
		StudentID:  studentID,
		CreditType: model.CreditTypeManual,
	}
	cfg := s.env.cfg.Billing

	switch {
	case req.DirectAmount != nil:
		draft.Amount = *req.DirectAmount
		draft.Notes = fmt.Sprintf("[手动积分] %s（直接金额）", reason)

	case req.ClassCount != nil:
		rule := fmt.Sprintf("min=1,max=%d", cfg.ManualCreditMaxClass)
		if err := s.validate.Var(*req.ClassCount, rule); err != nil {
			return nil, ErrCreditClassCountInvalid
		}
		if student.MonthlyTuition <= 0 {
			return nil, ErrCreditTuitionMissing
		}
		fee := s.env.calc.PerClassFee(student.MonthlyTuition, student.EffectiveWeeklyCount())
		draft.Amount = s.env.calc.ClassCountCredit(fee, *req.ClassCount)
		draft.RestDays = *req.ClassCount
		draft.Notes = fmt.Sprintf("[手动积分] %s（%d 次 × %d）", reason, *req.ClassCount, fee)

	case req.StartDate != "" && req.EndDate != "":
		start, err := billing.ParseDate(req.StartDate)
		if err != nil {
			return nil, ErrCreditDateRangeInvalid
		}
		end, err := billing.ParseDate(req.EndDate)
		if err != nil || end.Before(start) {
			return nil, ErrCreditDateRangeInvalid
		}
		if len(student.ClassDays) == 0 {
			return nil, ErrCreditPatternMissing
		}
		if student.MonthlyTuition <= 0 {
			return nil, ErrCreditTuitionMissing
		}
		closed, err := s.env.closedSlots(ctx, s.repo, academyID, start, end)
		if err != nil {
			s.logger.Error("查询休课时段失败", zap.String("academy_id", academyID), zap.Error(err))
			return nil, err
		}
		count := billing.CountClassDays(student.ClassDays, start, end, closed)
		if count == 0 {
			return nil, ErrCreditNoClassDays
		}
		fee := s.env.calc.PerClassFee(student.MonthlyTuition, student.EffectiveWeeklyCount())
		draft.Amount = s.env.calc.ClassCountCredit(fee, count)
		draft.Start, draft.End, draft.RestDays = &start, &end, count
		draft.Notes = fmt.Sprintf("[手动积分] %s（%s ~ %s，%d 次）", reason, req.StartDate, req.EndDate, count)

	default:
		return nil, ErrCreditModeMissing
	}

	rule := fmt.Sprintf("min=%d,max=%d", cfg.ManualCreditMinAmount, cfg.ManualCreditMaxAmount)
	if err := s.validate.Var(draft.Amount, rule); err != nil {
		return nil, ErrCreditAmountOutOfRange
	}

	credit := s.ledger.create(draft)
	if err := s.repo.Credit.Create(ctx, credit); err != nil {
		s.logger.Error("创建手动积分失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("手动积分已创建",
		zap.String("credit_id", credit.CreditID),
		zap.String("student_id", studentID),
		zap.Int64("amount", credit.CreditAmount),
	)
	return toCreditResponse(credit), nil
}

// ────────────────────── Apply ──────────────────────

func (s *creditService) Apply(ctx context.Context, academyID, creditID string, req *dto.ApplyCreditRequest) (*dto.ApplyCreditResponse, error) {
	month, err := billing.ParseYearMonth(req.YearMonth)
	if err != nil {
		return nil, ErrCreditYearMonthInvalid
	}
	yearMonth := billing.YearMonth(month)

	var resp *dto.ApplyCreditResponse
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		credit, err := tx.Credit.GetByIDForUpdate(ctx, academyID, creditID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCreditNotFound
			}
			return err
		}
		if !credit.IsOpen() {
			return ErrCreditExhausted
		}

		payment, err := tx.Payment.GetMonthlyForUpdate(ctx, credit.StudentID, yearMonth)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCreditPaymentNotFound
			}
			return err
		}
		if payment.AcademyID != academyID {
			return ErrCreditPaymentNotFound
		}

		applied, err := s.ledger.apply(credit, payment)
		if err != nil {
			return err
		}
		if err := tx.Payment.Update(ctx, payment); err != nil {
			return err
		}
		if err := tx.Credit.Update(ctx, credit); err != nil {
			return err
		}

		resp = &dto.ApplyCreditResponse{
			AppliedAmount: applied,
			Credit:        toCreditResponse(credit),
			Payment:       toPaymentResponse(payment),
		}
		return nil
	})
	if err != nil {
		if pkgerrors.KindOf(err) == pkgerrors.KindInternal {
			s.logger.Error("积分抵扣失败", zap.String("credit_id", creditID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("积分已抵扣",
		zap.String("credit_id", creditID),
		zap.String("year_month", yearMonth),
		zap.Int64("applied", resp.AppliedAmount),
	)
	return resp, nil
}

// ────────────────────── List ──────────────────────

func (s *creditService) List(ctx context.Context, academyID, studentID string) (*dto.CreditListResponse, error) {
	if _, err := s.repo.Student.GetByID(ctx, academyID, studentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		s.logger.Error("查询学生失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	credits, err := s.repo.Credit.ListByStudent(ctx, studentID)
	if err != nil {
		s.logger.Error("列出积分失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	resp := &dto.CreditListResponse{Credits: make([]dto.CreditResponse, 0, len(credits))}
	for i := range credits {
		resp.Credits = append(resp.Credits, *toCreditResponse(&credits[i]))
		if credits[i].IsOpen() {
			resp.PendingTotal += credits[i].RemainingAmount
		}
	}
	return resp, nil
}

// ────────────────────── Update ──────────────────────

func (s *creditService) Update(ctx context.Context, academyID, creditID string, req *dto.UpdateCreditRequest) (*dto.CreditResponse, error) {
	if req.Status != nil && *req.Status == model.CreditStatusApplied {
		return nil, ErrCreditStatusApplied
	}

	var credit *model.RestCredit
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		credit, err = tx.Credit.GetByIDForUpdate(ctx, academyID, creditID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCreditNotFound
			}
			return err
		}
		if credit.IsLocked() && (req.CreditAmount != nil || req.Status != nil) {
			return ErrCreditLocked
		}

		if req.CreditAmount != nil {
			// 从未抵扣过的积分才能改金额，余额随之重置
			if credit.Status != model.CreditStatusPending || credit.RemainingAmount != credit.CreditAmount {
				return ErrCreditAmountFrozen
			}
			if *req.CreditAmount <= 0 {
				return ErrCreditAmountOutOfRange
			}
			credit.CreditAmount = *req.CreditAmount
			credit.RemainingAmount = *req.CreditAmount
		}

		if req.Status != nil {
			switch *req.Status {
			case model.CreditStatusCancelled:
			case model.CreditStatusPending:
				if credit.RemainingAmount != credit.CreditAmount {
					return ErrCreditStatusInvalid
				}
			case model.CreditStatusPartial:
				if credit.RemainingAmount <= 0 || credit.RemainingAmount >= credit.CreditAmount {
					return ErrCreditStatusInvalid
				}
			default:
				return ErrCreditStatusInvalid
			}
			credit.Status = *req.Status
		}

		if req.Notes != nil {
			credit.Notes = *req.Notes
		}
		return tx.Credit.Update(ctx, credit)
	})
	if err != nil {
		if pkgerrors.KindOf(err) == pkgerrors.KindInternal {
			s.logger.Error("更新积分失败", zap.String("credit_id", creditID), zap.Error(err))
		}
		return nil, err
	}
	return toCreditResponse(credit), nil
}

// ────────────────────── Delete ──────────────────────

func (s *creditService) Delete(ctx context.Context, academyID, creditID string) error {
	credit, err := s.repo.Credit.GetByID(ctx, academyID, creditID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCreditNotFound
		}
		s.logger.Error("查询积分失败", zap.String("credit_id", creditID), zap.Error(err))
		return err
	}
	if credit.IsLocked() || credit.RemainingAmount < credit.CreditAmount {
		return ErrCreditLocked
	}

	if err := s.repo.Credit.Delete(ctx, creditID); err != nil {
		s.logger.Error("删除积分失败", zap.String("credit_id", creditID), zap.Error(err))
		return err
	}
	return nil
}
