package model

import "time"

// 出勤状态；nil 表示尚未点名的占位记录
const (
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
	AttendanceLate    = "late"
	AttendanceExcused = "excused"
)

// ScheduleSlot 学院课时表，对应 class_schedules
// (academy_id, schedule_date, time_slot) 唯一；is_closed 由节假日模块维护，此处只读
type ScheduleSlot struct {
	SlotID       string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"slot_id"`
	AcademyID    string    `gorm:"type:uuid;not null"                             json:"academy_id"`
	ScheduleDate time.Time `gorm:"type:date;not null"                             json:"schedule_date"`
	TimeSlot     string    `gorm:"type:varchar(10);not null"                      json:"time_slot"`
	IsClosed     bool      `gorm:"not null;default:false"                         json:"is_closed"`
	CloseReason  string    `gorm:"type:varchar(255)"                              json:"close_reason,omitempty"`
	BaseModel
}

func (ScheduleSlot) TableName() string { return "class_schedules" }

// AttendanceRecord 出勤记录，对应 attendance
// (slot_id, student_id) 唯一；attendance_status 非空的记录为历史，不可删除或重建
type AttendanceRecord struct {
	AttendanceID     string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"attendance_id"`
	SlotID           string  `gorm:"type:uuid;not null"                             json:"slot_id"`
	StudentID        string  `gorm:"type:uuid;not null;index"                       json:"student_id"`
	AttendanceStatus *string `gorm:"type:varchar(10)"                               json:"attendance_status"`
	IsMakeup         bool    `gorm:"not null;default:false"                         json:"is_makeup"`
	Notes            string  `gorm:"type:varchar(255)"                              json:"notes,omitempty"`
	BaseModel

	// 关联
	Slot *ScheduleSlot `gorm:"foreignKey:SlotID;references:SlotID" json:"slot,omitempty"`
}

func (AttendanceRecord) TableName() string { return "attendance" }

// IsPlaceholder 是否为未点名的占位记录
func (a *AttendanceRecord) IsPlaceholder() bool {
	return a.AttendanceStatus == nil
}
