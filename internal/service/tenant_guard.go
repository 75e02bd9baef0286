package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/seanyjeong/pacapro-sub001/internal/repository"
	pkgerrors "github.com/seanyjeong/pacapro-sub001/pkg/errors"
)

// ErrTenantMismatch 学生与课时不属于同一学院，属于安全类错误，整个事务回滚
var ErrTenantMismatch = pkgerrors.NewSecurity(23001, "学生与课时不属于同一学院")

// TenantGuard 写入出勤记录前的跨学院校验
type TenantGuard interface {
	ValidateSameTenant(ctx context.Context, repo *repository.Repository, studentID, slotID string) error
}

type tenantGuard struct {
	logger *zap.Logger
}

// NewTenantGuard 创建基于数据库的 TenantGuard
func NewTenantGuard(logger *zap.Logger) TenantGuard {
	return &tenantGuard{logger: logger}
}

func (g *tenantGuard) ValidateSameTenant(ctx context.Context, repo *repository.Repository, studentID, slotID string) error {
	studentAcademy, err := repo.Student.AcademyOf(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return g.reject(studentID, slotID, "", "", "学生不存在")
		}
		return err
	}

	slot, err := repo.Slot.GetByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return g.reject(studentID, slotID, studentAcademy, "", "课时不存在")
		}
		return err
	}

	if slot.AcademyID != studentAcademy {
		return g.reject(studentID, slotID, studentAcademy, slot.AcademyID, "学院不一致")
	}
	return nil
}

func (g *tenantGuard) reject(studentID, slotID, studentAcademy, slotAcademy, reason string) error {
	g.logger.Error("跨学院出勤写入被拒绝",
		zap.Bool("security", true),
		zap.String("reason", reason),
		zap.String("student_id", studentID),
		zap.String("slot_id", slotID),
		zap.String("student_academy_id", studentAcademy),
		zap.String("slot_academy_id", slotAcademy),
	)
	return ErrTenantMismatch
}
