package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/seanyjeong/pacapro-sub001/internal/model"
)

// AcademySettingRepository 学院计费设置（只读）
type AcademySettingRepository interface {
	GetByAcademyID(ctx context.Context, academyID string) (*model.AcademySetting, error)
}

type academySettingRepo struct {
	db *gorm.DB
}

func NewAcademySettingRepo(db *gorm.DB) AcademySettingRepository {
	return &academySettingRepo{db: db}
}

func (r *academySettingRepo) GetByAcademyID(ctx context.Context, academyID string) (*model.AcademySetting, error) {
	var setting model.AcademySetting
	err := r.db.WithContext(ctx).
		Where("academy_id = ?", academyID).
		First(&setting).Error
	if err != nil {
		return nil, err
	}
	return &setting, nil
}
