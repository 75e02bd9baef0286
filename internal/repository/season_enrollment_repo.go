package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/seanyjeong/pacapro-sub001/internal/model"
)

// SeasonEnrollmentRepository 季节课报名数据访问接口（退学/毕业时取消进行中的报名）
type SeasonEnrollmentRepository interface {
	CancelActive(ctx context.Context, studentID string, at time.Time) (int64, error)
	ListByStudent(ctx context.Context, studentID string) ([]model.SeasonEnrollment, error)
}

type seasonEnrollmentRepo struct {
	db *gorm.DB
}

func NewSeasonEnrollmentRepo(db *gorm.DB) SeasonEnrollmentRepository {
	return &seasonEnrollmentRepo{db: db}
}

func (r *seasonEnrollmentRepo) CancelActive(ctx context.Context, studentID string, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.SeasonEnrollment{}).
		Where("student_id = ? AND status IN ?", studentID, []string{model.SeasonStatusRegistered, model.SeasonStatusActive}).
		Updates(map[string]interface{}{
			"status":       model.SeasonStatusCancelled,
			"cancelled_at": at,
		})
	return result.RowsAffected, result.Error
}

// ListByStudent 学生的全部季节课报名，新报名在前
func (r *seasonEnrollmentRepo) ListByStudent(ctx context.Context, studentID string) ([]model.SeasonEnrollment, error) {
	var enrollments []model.SeasonEnrollment
	err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		Find(&enrollments).Error
	return enrollments, err
}
