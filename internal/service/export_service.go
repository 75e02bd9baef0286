package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/seanyjeong/pacapro-sub001/internal/billing"

	"github.com/seanyjeong/pacapro-sub001/internal/model"
	"github.com/seanyjeong/pacapro-sub001/internal/repository"
	pkgerrors "github.com/seanyjeong/pacapro-sub001/pkg/errors"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoCredits    = pkgerrors.NewNotFound(24001, "该学院暂无积分记录")
	ErrExportYearMonth    = pkgerrors.NewValidation(24002, "year_month 格式应为 YYYY-MM")
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// creditTypeNames 积分类型显示名
var creditTypeNames = map[string]string{
	model.CreditTypeCarryover: "休学结转",
	model.CreditTypeRefund:    "休学退费",
	model.CreditTypeManual:    "手动补偿",
	model.CreditTypeExcused:   "公假",
}

// ExportService 导出业务接口
//
// 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
type ExportService interface {
	// ExportCredits 导出学院积分台账，每条积分一行
	ExportCredits(ctx context.Context, academyID string) (*bytes.Buffer, string, error)
	// ExportSchedule 导出学生某月课表为 iCalendar，每条出勤记录一个 VEVENT
	ExportSchedule(ctx context.Context, academyID, studentID, yearMonth string) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	loc    *time.Location
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例，loc 为课表事件所在时区
func NewExportService(repo *repository.Repository, loc *time.Location, logger *zap.Logger) ExportService {
	if loc == nil {
		loc = time.UTC
	}
	return &exportService{repo: repo, loc: loc, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// ExportCredits 导出积分台账
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - Sheet "积分台账"，第 1 行标题，第 2 行表头
//   - 每条积分一行，按学生、创建时间排序
//   - 最后一行汇总可抵扣余额

func (s *exportService) ExportCredits(ctx context.Context, academyID string) (*bytes.Buffer, string, error) {
	// 1. 查询积分
	credits, err := s.repo.Credit.ListByAcademy(ctx, academyID)
	if err != nil {
		s.logger.Error("查询积分失败", zap.String("academy_id", academyID), zap.Error(err))
		return nil, "", err
	}
	if len(credits) == 0 {
		return nil, "", ErrExportNoCredits
	}

	// 2. 学生姓名与学号
	seen := make(map[string]bool)
	var ids []string
	for _, c := range credits {
		if !seen[c.StudentID] {
			seen[c.StudentID] = true
			ids = append(ids, c.StudentID)
		}
	}
	students, err := s.repo.Student.ListByIDs(ctx, ids)
	if err != nil {
		s.logger.Error("查询学生失败", zap.String("academy_id", academyID), zap.Error(err))
		return nil, "", err
	}
	byID := make(map[string]*model.Student, len(students))
	for i := range students {
		byID[students[i].StudentID] = &students[i]
	}

	// 3. 生成 Excel
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "积分台账"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	headers := []string{"学生", "学号", "类型", "状态", "积分金额", "剩余金额", "开始日期", "结束日期", "天数", "来源账单", "抵扣账单", "处理时间", "备注"}
	widths := []float64{12, 12, 10, 10, 12, 12, 12, 12, 6, 38, 38, 20, 40}
	for i, w := range widths {
		col := colName(i)
		f.SetColWidth(sheetName, col, col, w)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	amountStyle, _ := f.NewStyle(&excelize.Style{NumFmt: 3})

	// 标题行
	f.SetCellValue(sheetName, "A1", "积分台账")
	f.MergeCell(sheetName, "A1", cell(colName(len(headers)-1), 1))
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	// 表头
	row := 2
	for i, h := range headers {
		f.SetCellValue(sheetName, cell(colName(i), row), h)
	}
	f.SetCellStyle(sheetName, cell("A", row), cell(colName(len(headers)-1), row), headerStyle)

	// 数据行
	var openTotal int64
	row = 3
	for i := range credits {
		c := &credits[i]
		name, number := c.StudentID, ""
		if st, ok := byID[c.StudentID]; ok {
			name, number = st.Name, derefString(st.StudentNumber)
		}
		typeName := creditTypeNames[c.CreditType]
		if typeName == "" {
			typeName = c.CreditType
		}
		processed := ""
		if c.ProcessedAt != nil {
			processed = c.ProcessedAt.Format("2006-01-02 15:04")
		}

		values := []interface{}{
			name, number, typeName, c.Status, c.CreditAmount, c.RemainingAmount,
			formatDate(c.RestStartDate), formatDate(c.RestEndDate), c.RestDays,
			derefString(c.SourcePaymentID), derefString(c.AppliedToPaymentID), processed, c.Notes,
		}
		for j, v := range values {
			f.SetCellValue(sheetName, cell(colName(j), row), v)
		}
		if c.IsOpen() {
			openTotal += c.RemainingAmount
		}
		row++
	}
	f.SetCellStyle(sheetName, cell("E", 3), cell("F", row), amountStyle)

	// 汇总行
	f.SetCellValue(sheetName, cell("A", row), "可抵扣余额合计")
	f.SetCellValue(sheetName, cell("F", row), openTotal)

	// 写入 buffer
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("积分台账_%s.xlsx", academyID)
	return buf, filename, nil
}

// ═══════════════════════════════════════════════════════════
// ExportSchedule 导出学生课表
// ═══════════════════════════════════════════════════════════

// slotHours 时段的默认起止时间（时）
var slotHours = map[string][2]int{
	model.TimeSlotMorning:   {9, 12},
	model.TimeSlotAfternoon: {13, 17},
	model.TimeSlotEvening:   {18, 21},
}

var slotNames = map[string]string{
	model.TimeSlotMorning:   "上午",
	model.TimeSlotAfternoon: "下午",
	model.TimeSlotEvening:   "晚上",
}

var attendanceNames = map[string]string{
	model.AttendancePresent: "出席",
	model.AttendanceAbsent:  "缺勤",
	model.AttendanceLate:    "迟到",
	model.AttendanceExcused: "公假",
}

func (s *exportService) ExportSchedule(ctx context.Context, academyID, studentID, yearMonth string) (*bytes.Buffer, string, error) {
	monthStart, err := billing.ParseYearMonth(yearMonth)
	if err != nil {
		return nil, "", ErrExportYearMonth
	}

	student, err := s.repo.Student.GetByID(ctx, academyID, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrStudentNotFound
		}
		s.logger.Error("查询学生失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, "", err
	}

	records, err := s.repo.Attendance.ListByStudent(ctx, studentID, monthStart, billing.MonthEnd(monthStart))
	if err != nil {
		s.logger.Error("查询出勤记录失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, "", err
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//pacapro//schedule//ZH")
	cal.SetXWRCalName(fmt.Sprintf("%s %s 课表", student.Name, yearMonth))
	cal.SetXWRTimezone(s.loc.String())

	stamp := time.Now().UTC()
	for i := range records {
		rec := &records[i]
		if rec.Slot == nil {
			continue
		}
		hours, ok := slotHours[rec.Slot.TimeSlot]
		if !ok {
			continue
		}
		d := rec.Slot.ScheduleDate
		start := time.Date(d.Year(), d.Month(), d.Day(), hours[0], 0, 0, 0, s.loc)
		end := time.Date(d.Year(), d.Month(), d.Day(), hours[1], 0, 0, 0, s.loc)

		event := cal.AddEvent(rec.AttendanceID + "@pacapro")
		event.SetDtStampTime(stamp)
		if !rec.CreatedAt.IsZero() {
			event.SetCreatedTime(rec.CreatedAt)
		}
		event.SetStartAt(start)
		event.SetEndAt(end)

		summary := fmt.Sprintf("%s %s课", student.Name, slotNames[rec.Slot.TimeSlot])
		if rec.IsMakeup {
			summary += "（补课）"
		}
		event.SetSummary(summary)

		switch {
		case rec.Slot.IsClosed:
			event.SetStatus(ics.ObjectStatusCancelled)
			event.SetDescription("休课：" + rec.Slot.CloseReason)
		case rec.AttendanceStatus != nil:
			event.SetStatus(ics.ObjectStatusConfirmed)
			event.SetDescription("出勤：" + attendanceNames[*rec.AttendanceStatus])
		default:
			event.SetStatus(ics.ObjectStatusConfirmed)
		}
	}

	buf := bytes.NewBufferString(cal.Serialize())

	label := derefString(student.StudentNumber)
	if label == "" {
		label = student.StudentID
	}
	filename := fmt.Sprintf("课表_%s_%s.ics", label, yearMonth)
	return buf, filename, nil
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
