package model

import "time"

// 季节课报名状态
const (
	SeasonStatusRegistered = "registered"
	SeasonStatusActive     = "active"
	SeasonStatusCompleted  = "completed"
	SeasonStatusCancelled  = "cancelled"
)

// SeasonEnrollment 季节课报名，对应 student_seasons（由季节课模块维护，本服务只负责退学时取消）
type SeasonEnrollment struct {
	EnrollmentID string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"enrollment_id"`
	StudentID    string     `gorm:"type:uuid;not null;index"                       json:"student_id"`
	AcademyID    string     `gorm:"type:uuid;not null"                             json:"academy_id"`
	SeasonID     string     `gorm:"type:uuid;not null"                             json:"season_id"`
	Status       string     `gorm:"type:varchar(20);not null;default:'registered'" json:"status"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	BaseModel
}

func (SeasonEnrollment) TableName() string { return "student_seasons" }
