package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/seanyjeong/pacapro-sub001/internal/model"
)

// ScheduleSlotRepository 学院课时数据访问接口
type ScheduleSlotRepository interface {
	// FindOrCreate 按 (academy_id, schedule_date, time_slot) 查找课时，不存在则创建
	FindOrCreate(ctx context.Context, academyID string, date time.Time, timeSlot string) (*model.ScheduleSlot, error)
	GetByID(ctx context.Context, id string) (*model.ScheduleSlot, error)
	ListClosed(ctx context.Context, academyID string, from, to time.Time) ([]model.ScheduleSlot, error)
}

// AttendanceRepository 出勤记录数据访问接口
// 已点名（attendance_status 非空）的记录为历史，删除方法一律只作用于占位记录
type AttendanceRepository interface {
	// CreateIfAbsent 按 (slot_id, student_id) 幂等插入，返回是否新建
	CreateIfAbsent(ctx context.Context, record *model.AttendanceRecord) (bool, error)
	// ListPlaceholdersFrom 列出 from（含）之后的占位记录，附带课时
	ListPlaceholdersFrom(ctx context.Context, studentID string, from time.Time) ([]model.AttendanceRecord, error)
	DeletePlaceholdersByIDs(ctx context.Context, ids []string) (int64, error)
	// DeleteFrom 删除 from（含）之后状态为空或属于 statuses 的记录
	DeleteFrom(ctx context.Context, studentID string, from time.Time, statuses ...string) (int64, error)
	CountByStatus(ctx context.Context, studentID string, from, to time.Time, statuses ...string) (int64, error)
	// CountMakeup 统计区间内出席/迟到的补课次数
	CountMakeup(ctx context.Context, studentID string, from, to time.Time) (int64, error)
	// ListByStudent [from, to] 内学生的全部出勤记录，附带课时，按日期与时段排序
	ListByStudent(ctx context.Context, studentID string, from, to time.Time) ([]model.AttendanceRecord, error)
}

// ── ScheduleSlot Repository 实现 ──

type scheduleSlotRepo struct {
	db *gorm.DB
}

func NewScheduleSlotRepo(db *gorm.DB) ScheduleSlotRepository {
	return &scheduleSlotRepo{db: db}
}

func (r *scheduleSlotRepo) FindOrCreate(ctx context.Context, academyID string, date time.Time, timeSlot string) (*model.ScheduleSlot, error) {
	slot := model.ScheduleSlot{
		AcademyID:    academyID,
		ScheduleDate: date,
		TimeSlot:     timeSlot,
	}
	// 并发创建同一课时时依赖唯一约束，冲突方再读一次
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "academy_id"}, {Name: "schedule_date"}, {Name: "time_slot"}},
			DoNothing: true,
		}).
		Create(&slot)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected > 0 && slot.SlotID != "" {
		return &slot, nil
	}

	var existing model.ScheduleSlot
	err := r.db.WithContext(ctx).
		Where("academy_id = ? AND schedule_date = ? AND time_slot = ?", academyID, date, timeSlot).
		First(&existing).Error
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

func (r *scheduleSlotRepo) GetByID(ctx context.Context, id string) (*model.ScheduleSlot, error) {
	var slot model.ScheduleSlot
	err := r.db.WithContext(ctx).
		Where("slot_id = ?", id).
		First(&slot).Error
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *scheduleSlotRepo) ListClosed(ctx context.Context, academyID string, from, to time.Time) ([]model.ScheduleSlot, error) {
	var slots []model.ScheduleSlot
	err := r.db.WithContext(ctx).
		Where("academy_id = ? AND is_closed = ? AND schedule_date BETWEEN ? AND ?", academyID, true, from, to).
		Find(&slots).Error
	return slots, err
}

// ── Attendance Repository 实现 ──

type attendanceRepo struct {
	db *gorm.DB
}

func NewAttendanceRepo(db *gorm.DB) AttendanceRepository {
	return &attendanceRepo{db: db}
}

func (r *attendanceRepo) CreateIfAbsent(ctx context.Context, record *model.AttendanceRecord) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slot_id"}, {Name: "student_id"}},
			DoNothing: true,
		}).
		Create(record)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *attendanceRepo) ListPlaceholdersFrom(ctx context.Context, studentID string, from time.Time) ([]model.AttendanceRecord, error) {
	var records []model.AttendanceRecord
	err := r.db.WithContext(ctx).
		Preload("Slot").
		Where("student_id = ? AND attendance_status IS NULL", studentID).
		Where("slot_id IN (?)", r.slotsFrom(from)).
		Find(&records).Error
	return records, err
}

func (r *attendanceRepo) DeletePlaceholdersByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Where("attendance_id IN ? AND attendance_status IS NULL", ids).
		Delete(&model.AttendanceRecord{})
	return result.RowsAffected, result.Error
}

func (r *attendanceRepo) DeleteFrom(ctx context.Context, studentID string, from time.Time, statuses ...string) (int64, error) {
	db := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Where("slot_id IN (?)", r.slotsFrom(from))
	if len(statuses) > 0 {
		db = db.Where("(attendance_status IS NULL OR attendance_status IN ?)", statuses)
	} else {
		db = db.Where("attendance_status IS NULL")
	}
	result := db.Delete(&model.AttendanceRecord{})
	return result.RowsAffected, result.Error
}

func (r *attendanceRepo) CountByStatus(ctx context.Context, studentID string, from, to time.Time, statuses ...string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.AttendanceRecord{}).
		Joins("JOIN class_schedules cs ON cs.slot_id = attendance.slot_id").
		Where("attendance.student_id = ? AND attendance.attendance_status IN ?", studentID, statuses).
		Where("cs.schedule_date BETWEEN ? AND ?", from, to).
		Count(&count).Error
	return count, err
}

func (r *attendanceRepo) CountMakeup(ctx context.Context, studentID string, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.AttendanceRecord{}).
		Joins("JOIN class_schedules cs ON cs.slot_id = attendance.slot_id").
		Where("attendance.student_id = ? AND attendance.is_makeup = ?", studentID, true).
		Where("attendance.attendance_status IN ?", []string{model.AttendancePresent, model.AttendanceLate}).
		Where("cs.schedule_date BETWEEN ? AND ?", from, to).
		Count(&count).Error
	return count, err
}

func (r *attendanceRepo) ListByStudent(ctx context.Context, studentID string, from, to time.Time) ([]model.AttendanceRecord, error) {
	var records []model.AttendanceRecord
	err := r.db.WithContext(ctx).
		Preload("Slot").
		Joins("JOIN class_schedules cs ON cs.slot_id = attendance.slot_id").
		Where("attendance.student_id = ?", studentID).
		Where("cs.schedule_date BETWEEN ? AND ?", from, to).
		Order("cs.schedule_date ASC, cs.time_slot ASC").
		Find(&records).Error
	return records, err
}

// slotsFrom from（含）之后的课时子查询
func (r *attendanceRepo) slotsFrom(from time.Time) *gorm.DB {
	return r.db.Model(&model.ScheduleSlot{}).
		Select("slot_id").
		Where("schedule_date >= ?", from)
}
