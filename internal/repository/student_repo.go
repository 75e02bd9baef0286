package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/seanyjeong/pacapro-sub001/internal/model"
	pkgerrors "github.com/seanyjeong/pacapro-sub001/pkg/errors"
)

// StudentRepository 学生数据访问接口
type StudentRepository interface {
	Create(ctx context.Context, student *model.Student) error
	GetByID(ctx context.Context, academyID, id string) (*model.Student, error)
	// GetByIDForUpdate 加行锁读取，同一学生的状态变更串行执行
	GetByIDForUpdate(ctx context.Context, academyID, id string) (*model.Student, error)
	// AcademyOf 不做学院过滤，仅供租户校验使用
	AcademyOf(ctx context.Context, id string) (string, error)
	Update(ctx context.Context, student *model.Student) error
	LastStudentNumber(ctx context.Context, academyID, prefix string) (string, error)
	ExistsStudentNumber(ctx context.Context, academyID, number, excludeID string) (bool, error)

	// ── 批处理任务 ──
	ListByIDs(ctx context.Context, ids []string) ([]model.Student, error)
	ListByGrades(ctx context.Context, grades []string) ([]model.Student, error)
	ListByStatus(ctx context.Context, status string) ([]model.Student, error)
	ListDueClassDaysChange(ctx context.Context, today time.Time) ([]model.Student, error)
	ListTrials(ctx context.Context) ([]model.Student, error)
	ListRestEnded(ctx context.Context, academyID string, today time.Time) ([]model.Student, error)
	ListExcusedCandidates(ctx context.Context, monthStart time.Time) ([]model.Student, error)
}

type studentRepo struct {
	db *gorm.DB
}

// NewStudentRepo 创建 StudentRepository 实例
func NewStudentRepo(db *gorm.DB) StudentRepository {
	return &studentRepo{db: db}
}

func (r *studentRepo) Create(ctx context.Context, student *model.Student) error {
	return r.db.WithContext(ctx).Create(student).Error
}

func (r *studentRepo) GetByID(ctx context.Context, academyID, id string) (*model.Student, error) {
	var student model.Student
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND academy_id = ?", id, academyID).
		First(&student).Error
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *studentRepo) GetByIDForUpdate(ctx context.Context, academyID, id string) (*model.Student, error) {
	var student model.Student
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("student_id = ? AND academy_id = ?", id, academyID).
		First(&student).Error
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *studentRepo) AcademyOf(ctx context.Context, id string) (string, error) {
	var student model.Student
	err := r.db.WithContext(ctx).
		Select("student_id", "academy_id").
		Where("student_id = ?", id).
		First(&student).Error
	if err != nil {
		return "", err
	}
	return student.AcademyID, nil
}

// Update 全字段更新，version 不一致时返回 ErrOptimisticLock
func (r *studentRepo) Update(ctx context.Context, student *model.Student) error {
	oldVersion := student.Version
	student.Version = oldVersion + 1
	result := r.db.WithContext(ctx).
		Model(student).
		Where("version = ?", oldVersion).
		Select("*").
		Omit("student_id", "academy_id", "created_at", "deleted_at").
		Updates(student)
	if result.Error != nil {
		student.Version = oldVersion
		return result.Error
	}
	if result.RowsAffected == 0 {
		student.Version = oldVersion
		return pkgerrors.ErrOptimisticLock
	}
	return nil
}

// LastStudentNumber 返回学院内以 prefix 开头的最大学号，没有时返回空串
// 已软删除的学生同样占用学号
func (r *studentRepo) LastStudentNumber(ctx context.Context, academyID, prefix string) (string, error) {
	var numbers []string
	err := r.db.WithContext(ctx).Unscoped().
		Model(&model.Student{}).
		Where("academy_id = ? AND student_number LIKE ?", academyID, prefix+"%").
		Order("student_number DESC").
		Limit(1).
		Pluck("student_number", &numbers).Error
	if err != nil || len(numbers) == 0 {
		return "", err
	}
	return numbers[0], nil
}

func (r *studentRepo) ExistsStudentNumber(ctx context.Context, academyID, number, excludeID string) (bool, error) {
	var count int64
	db := r.db.WithContext(ctx).
		Model(&model.Student{}).
		Where("academy_id = ? AND student_number = ?", academyID, number)
	if excludeID != "" {
		db = db.Where("student_id <> ?", excludeID)
	}
	if err := db.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ── 批处理任务 ──

func (r *studentRepo) ListByIDs(ctx context.Context, ids []string) ([]model.Student, error) {
	var students []model.Student
	if len(ids) == 0 {
		return students, nil
	}
	err := r.db.WithContext(ctx).
		Where("student_id IN ?", ids).
		Order("created_at ASC").
		Find(&students).Error
	return students, err
}

func (r *studentRepo) ListByGrades(ctx context.Context, grades []string) ([]model.Student, error) {
	var students []model.Student
	err := r.db.WithContext(ctx).
		Where("grade IN ?", grades).
		Order("created_at ASC").
		Find(&students).Error
	return students, err
}

func (r *studentRepo) ListByStatus(ctx context.Context, status string) ([]model.Student, error) {
	var students []model.Student
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("academy_id ASC, created_at ASC").
		Find(&students).Error
	return students, err
}

// ListDueClassDaysChange 预约变更的上课模式已到生效日的学生
func (r *studentRepo) ListDueClassDaysChange(ctx context.Context, today time.Time) ([]model.Student, error) {
	var students []model.Student
	err := r.db.WithContext(ctx).
		Where("class_days_next IS NOT NULL AND class_days_effective_from IS NOT NULL AND class_days_effective_from <= ?", today).
		Order("created_at ASC").
		Find(&students).Error
	return students, err
}

// ListRestEnded 休学结束日已过但仍处于休学状态的学生，结束日早的在前
func (r *studentRepo) ListRestEnded(ctx context.Context, academyID string, today time.Time) ([]model.Student, error) {
	var students []model.Student
	err := r.db.WithContext(ctx).
		Where("academy_id = ? AND status = ? AND rest_end_date IS NOT NULL AND rest_end_date < ?",
			academyID, model.StudentStatusPaused, today).
		Order("rest_end_date ASC").
		Find(&students).Error
	return students, err
}

func (r *studentRepo) ListTrials(ctx context.Context) ([]model.Student, error) {
	var students []model.Student
	err := r.db.WithContext(ctx).
		Where("status = ? AND is_trial = ? AND trial_dates IS NOT NULL", model.StudentStatusTrial, true).
		Find(&students).Error
	return students, err
}

// ListExcusedCandidates 公假积分结算对象：在读、有学费与上课模式、当月之前已注册
func (r *studentRepo) ListExcusedCandidates(ctx context.Context, monthStart time.Time) ([]model.Student, error) {
	var students []model.Student
	err := r.db.WithContext(ctx).
		Where("status = ? AND monthly_tuition > 0", model.StudentStatusActive).
		Where("class_days IS NOT NULL AND class_days <> '[]'::jsonb").
		Where("created_at < ?", monthStart).
		Order("academy_id ASC, created_at ASC").
		Find(&students).Error
	return students, err
}
