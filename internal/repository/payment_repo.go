package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/seanyjeong/pacapro-sub001/internal/model"
)

// PaymentRepository 缴费记录数据访问接口
type PaymentRepository interface {
	Create(ctx context.Context, payment *model.PaymentRecord) error
	GetByID(ctx context.Context, academyID, id string) (*model.PaymentRecord, error)
	// GetMonthlyForUpdate 加行锁读取学生某账期的月学费记录
	GetMonthlyForUpdate(ctx context.Context, studentID, yearMonth string) (*model.PaymentRecord, error)
	Update(ctx context.Context, payment *model.PaymentRecord) error
	Delete(ctx context.Context, id string) error
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
	// ListUnpaid 未缴清（状态不是 paid）的全部记录
	ListUnpaid(ctx context.Context, studentID string) ([]model.PaymentRecord, error)
	// ListRepriceable 账期 >= fromYearMonth 且尚未缴费的月学费记录
	ListRepriceable(ctx context.Context, studentID, fromYearMonth string) ([]model.PaymentRecord, error)
}

type paymentRepo struct {
	db *gorm.DB
}

func NewPaymentRepo(db *gorm.DB) PaymentRepository {
	return &paymentRepo{db: db}
}

func (r *paymentRepo) Create(ctx context.Context, payment *model.PaymentRecord) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *paymentRepo) GetByID(ctx context.Context, academyID, id string) (*model.PaymentRecord, error) {
	var payment model.PaymentRecord
	err := r.db.WithContext(ctx).
		Where("payment_id = ? AND academy_id = ?", id, academyID).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepo) GetMonthlyForUpdate(ctx context.Context, studentID, yearMonth string) (*model.PaymentRecord, error) {
	var payment model.PaymentRecord
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("student_id = ? AND year_month = ? AND payment_type = ?", studentID, yearMonth, model.PaymentTypeMonthly).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *paymentRepo) Update(ctx context.Context, payment *model.PaymentRecord) error {
	return r.db.WithContext(ctx).Save(payment).Error
}

func (r *paymentRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("payment_id = ?", id).
		Delete(&model.PaymentRecord{}).Error
}

func (r *paymentRepo) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Where("payment_id IN ?", ids).
		Delete(&model.PaymentRecord{})
	return result.RowsAffected, result.Error
}

func (r *paymentRepo) ListUnpaid(ctx context.Context, studentID string) ([]model.PaymentRecord, error) {
	var payments []model.PaymentRecord
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("student_id = ? AND status <> ?", studentID, model.PaymentStatusPaid).
		Order("year_month ASC").
		Find(&payments).Error
	return payments, err
}

func (r *paymentRepo) ListRepriceable(ctx context.Context, studentID, fromYearMonth string) ([]model.PaymentRecord, error) {
	var payments []model.PaymentRecord
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("student_id = ? AND payment_type = ? AND year_month >= ?", studentID, model.PaymentTypeMonthly, fromYearMonth).
		Where("status IN ? AND paid_amount = 0", []string{model.PaymentStatusPending, model.PaymentStatusOverdue}).
		Order("year_month ASC").
		Find(&payments).Error
	return payments, err
}
