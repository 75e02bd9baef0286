package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口，同时充当事务单元
// 事务内通过 WithTx 得到的 Repository 共享同一个 *gorm.DB
type Repository struct {
	db *gorm.DB

	Student    StudentRepository
	Academy    AcademySettingRepository
	Slot       ScheduleSlotRepository
	Attendance AttendanceRepository
	Payment    PaymentRepository
	Credit     RestCreditRepository
	Season     SeasonEnrollmentRepository
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db:         db,
		Student:    NewStudentRepo(db),
		Academy:    NewAcademySettingRepo(db),
		Slot:       NewScheduleSlotRepo(db),
		Attendance: NewAttendanceRepo(db),
		Payment:    NewPaymentRepo(db),
		Credit:     NewRestCreditRepo(db),
		Season:     NewSeasonEnrollmentRepo(db),
	}
}

// WithTx 返回绑定到事务的 Repository
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return NewRepository(tx)
}

// Transaction 在一个事务内执行 fn
// 已处于事务中时 gorm 自动使用 SAVEPOINT，fn 出错只回滚到该保存点；
// db 为 nil（单元测试注入的 mock 聚合）时直接执行 fn
func (r *Repository) Transaction(ctx context.Context, fn func(txRepo *Repository) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}
