package model

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// 学生状态
const (
	StudentStatusPending   = "pending"
	StudentStatusTrial     = "trial"
	StudentStatusActive    = "active"
	StudentStatusPaused    = "paused"
	StudentStatusWithdrawn = "withdrawn"
	StudentStatusGraduated = "graduated"
)

// 学生类型，决定学费表
const (
	StudentTypeExam  = "exam"
	StudentTypeAdult = "adult"
)

// Student 学生表，对应 students
type Student struct {
	StudentID     string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"student_id"`
	AcademyID     string  `gorm:"type:uuid;not null;index"                       json:"academy_id"`
	StudentNumber *string `gorm:"type:varchar(20)"                               json:"student_number,omitempty"`
	Name          string  `gorm:"type:varchar(100);not null"                     json:"name"`
	Grade         string  `gorm:"type:varchar(10)"                               json:"grade,omitempty"` // 중1..고3 | N수
	StudentType   string  `gorm:"type:varchar(10);not null;default:'exam'"       json:"student_type"`
	Status        string  `gorm:"type:varchar(20);not null;default:'pending'"    json:"status"`

	ClassDays              ClassDays  `gorm:"type:jsonb;not null;default:'[]'" json:"class_days"`
	ClassDaysNext          *ClassDays `gorm:"type:jsonb"                      json:"class_days_next,omitempty"`
	ClassDaysEffectiveFrom *time.Time `gorm:"type:date"                       json:"class_days_effective_from,omitempty"`
	TimeSlot               string     `gorm:"type:varchar(10);not null;default:'evening'" json:"time_slot"`
	WeeklyCount            int        `gorm:"not null;default:0"              json:"weekly_count"`

	MonthlyTuition int64           `gorm:"not null;default:0"                    json:"monthly_tuition"`
	DiscountRate   decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0"  json:"discount_rate"`
	PaymentDueDay  *int            `gorm:"type:smallint"                         json:"payment_due_day,omitempty"`
	EnrollmentDate *time.Time      `gorm:"type:date"                             json:"enrollment_date,omitempty"`

	RestStartDate *time.Time `gorm:"type:date"         json:"rest_start_date,omitempty"`
	RestEndDate   *time.Time `gorm:"type:date"         json:"rest_end_date,omitempty"`
	RestReason    string     `gorm:"type:varchar(255)" json:"rest_reason,omitempty"`

	IsTrial        bool                             `gorm:"not null;default:false" json:"is_trial"`
	TrialRemaining int                              `gorm:"not null;default:0"     json:"trial_remaining"`
	TrialDates     datatypes.JSONType[[]TrialDate] `gorm:"type:jsonb"             json:"trial_dates"`

	WithdrawalDate   *time.Time `gorm:"type:date"         json:"withdrawal_date,omitempty"`
	WithdrawalReason string     `gorm:"type:varchar(255)" json:"withdrawal_reason,omitempty"`
	Memo             string     `gorm:"type:text"         json:"memo,omitempty"`

	// 最近一次自动升级的年份，同一年内不重复升级
	GradePromotedYear *int `gorm:"type:smallint" json:"grade_promoted_year,omitempty"`
	VersionedModel
}

func (Student) TableName() string { return "students" }

// IsTerminal 退学/毕业后不再参与排课与计费
func (s *Student) IsTerminal() bool {
	return s.Status == StudentStatusWithdrawn || s.Status == StudentStatusGraduated
}

// EffectiveWeeklyCount 每周上课次数：优先取上课模式长度，其次取存档值，缺省 2
func (s *Student) EffectiveWeeklyCount() int {
	if n := len(s.ClassDays); n > 0 {
		return n
	}
	if s.WeeklyCount > 0 {
		return s.WeeklyCount
	}
	return 2
}

// AcademySetting 学院级计费设置，对应 academy_settings
type AcademySetting struct {
	AcademyID     string                            `gorm:"type:uuid;primaryKey"        json:"academy_id"`
	PaymentDueDay int                               `gorm:"not null;default:5"          json:"payment_due_day"`
	ExamTuition   datatypes.JSONType[TuitionTable] `gorm:"type:jsonb"                  json:"exam_tuition"`
	AdultTuition  datatypes.JSONType[TuitionTable] `gorm:"type:jsonb"                  json:"adult_tuition"`
	BaseModel
}

func (AcademySetting) TableName() string { return "academy_settings" }

// TuitionTable 周上课次数 → 月学费，键形如 weekly_3
type TuitionTable map[string]int64

// For 查询每周 n 次对应的月学费
func (t TuitionTable) For(weeklyCount int) (int64, bool) {
	if t == nil {
		return 0, false
	}
	v, ok := t["weekly_"+strconv.Itoa(weeklyCount)]
	return v, ok && v > 0
}

// TuitionFor 按学生类型选择学费表
func (a *AcademySetting) TuitionFor(studentType string, weeklyCount int) (int64, bool) {
	if a == nil {
		return 0, false
	}
	if studentType == StudentTypeAdult {
		return a.AdultTuition.Data().For(weeklyCount)
	}
	return a.ExamTuition.Data().For(weeklyCount)
}
