package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/seanyjeong/pacapro-sub001/internal/model"
)

// RestCreditRepository 积分数据访问接口
type RestCreditRepository interface {
	Create(ctx context.Context, credit *model.RestCredit) error
	GetByID(ctx context.Context, academyID, id string) (*model.RestCredit, error)
	GetByIDForUpdate(ctx context.Context, academyID, id string) (*model.RestCredit, error)
	Update(ctx context.Context, credit *model.RestCredit) error
	Delete(ctx context.Context, id string) error
	ListByStudent(ctx context.Context, studentID string) ([]model.RestCredit, error)
	ListByAcademy(ctx context.Context, academyID string) ([]model.RestCredit, error)
	// ExistsForPeriod 某类型积分在该起始日是否已生成（批处理去重）
	ExistsForPeriod(ctx context.Context, studentID, creditType string, periodStart time.Time) (bool, error)
}

type restCreditRepo struct {
	db *gorm.DB
}

func NewRestCreditRepo(db *gorm.DB) RestCreditRepository {
	return &restCreditRepo{db: db}
}

func (r *restCreditRepo) Create(ctx context.Context, credit *model.RestCredit) error {
	return r.db.WithContext(ctx).Create(credit).Error
}

func (r *restCreditRepo) GetByID(ctx context.Context, academyID, id string) (*model.RestCredit, error) {
	var credit model.RestCredit
	err := r.db.WithContext(ctx).
		Where("credit_id = ? AND academy_id = ?", id, academyID).
		First(&credit).Error
	if err != nil {
		return nil, err
	}
	return &credit, nil
}

func (r *restCreditRepo) GetByIDForUpdate(ctx context.Context, academyID, id string) (*model.RestCredit, error) {
	var credit model.RestCredit
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("credit_id = ? AND academy_id = ?", id, academyID).
		First(&credit).Error
	if err != nil {
		return nil, err
	}
	return &credit, nil
}

func (r *restCreditRepo) Update(ctx context.Context, credit *model.RestCredit) error {
	return r.db.WithContext(ctx).Save(credit).Error
}

func (r *restCreditRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("credit_id = ?", id).
		Delete(&model.RestCredit{}).Error
}

func (r *restCreditRepo) ListByStudent(ctx context.Context, studentID string) ([]model.RestCredit, error) {
	var credits []model.RestCredit
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		Find(&credits).Error
	return credits, err
}

func (r *restCreditRepo) ListByAcademy(ctx context.Context, academyID string) ([]model.RestCredit, error) {
	var credits []model.RestCredit
	err := r.db.WithContext(ctx).
		Where("academy_id = ?", academyID).
		Order("student_id ASC, created_at ASC").
		Find(&credits).Error
	return credits, err
}

func (r *restCreditRepo) ExistsForPeriod(ctx context.Context, studentID, creditType string, periodStart time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.RestCredit{}).
		Where("student_id = ? AND credit_type = ? AND rest_start_date = ?", studentID, creditType, periodStart).
		Count(&count).Error
	return count > 0, err
}
