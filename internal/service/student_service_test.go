package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanyjeong/pacapro-sub001/internal/billing"
	"github.com/seanyjeong/pacapro-sub001/internal/dto"
	"github.com/seanyjeong/pacapro-sub001/internal/model"
)

func (f *testFixture) createActive(t *testing.T, tuition int64, pattern model.ClassDays, enrollDate string) *dto.StudentResult {
	t.Helper()
	res, err := f.svc.Student.Create(context.Background(), testAcademy, &dto.CreateStudentRequest{
		Name:           "이서연",
		Grade:          "고2",
		Status:         model.StudentStatusActive,
		ClassDays:      pattern,
		MonthlyTuition: tuition,
		EnrollmentDate: enrollDate,
	})
	require.NoError(t, err)
	return res
}

// ── Create 测试 ──

func TestStudentService_Create_ActiveEnrollment(t *testing.T) {
	f := setupTestService(t)

	res := f.createActive(t, 300000, model.ClassDays{{Day: 1}, {Day: 3}, {Day: 5}}, "2026-04-08")

	st := res.Student
	assert.Equal(t, model.StudentStatusActive, st.Status)
	assert.Equal(t, "2026001", st.StudentNumber)
	assert.Equal(t, "2026-04-08", st.EnrollmentDate)
	assert.Equal(t, 3, st.WeeklyCount)
	assert.Equal(t, mwf(model.TimeSlotEvening), st.ClassDays)
	assert.Empty(t, res.Warnings)

	// 4 月周一三五共 13 天，4/8 起剩 10 天：300000 * 10 / 13 截断到千位
	require.NotNil(t, res.Payment)
	assert.Equal(t, int64(230000), res.Payment.BaseAmount)
	assert.Equal(t, int64(230000), res.Payment.FinalAmount)
	assert.Equal(t, "2026-04", res.Payment.YearMonth)
	assert.True(t, res.Payment.IsProrated)
	// 4/5 顺延到 4/6 早于入学日，改为 5 月：5/5 周二顺延到 5/6 周三
	assert.Equal(t, "2026-05-06", res.Payment.DueDate)
	assert.Equal(t, "2026-04 学费（入学）", res.Payment.Description)

	assert.Equal(t, 10, res.AttendanceAdded)
	assert.Len(t, f.store.attendance, 10)
}

func TestStudentService_Create_StudentNumberSequence(t *testing.T) {
	f := setupTestService(t)
	f.seedStudent(t, func(s *model.Student) { s.StudentNumber = strPtr("2026007") })
	f.seedStudent(t, func(s *model.Student) { s.StudentNumber = strPtr("2025099") })

	res := f.createActive(t, 0, mwf(""), "2026-04-08")
	assert.Equal(t, "2026008", res.Student.StudentNumber)
	assert.Nil(t, res.Payment, "无学费不生成账单")
}

func TestStudentService_Create_DuplicateNumber(t *testing.T) {
	f := setupTestService(t)
	f.seedStudent(t, func(s *model.Student) { s.StudentNumber = strPtr("2026001") })

	_, err := f.svc.Student.Create(context.Background(), testAcademy, &dto.CreateStudentRequest{
		Name:          "박지훈",
		StudentNumber: strPtr("2026001"),
	})
	assert.True(t, errors.Is(err, ErrStudentNumberDuplicate))
}

func TestStudentService_Create_Validation(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()

	_, err := f.svc.Student.Create(ctx, testAcademy, &dto.CreateStudentRequest{Name: " "})
	assert.True(t, errors.Is(err, ErrStudentNameRequired))

	_, err = f.svc.Student.Create(ctx, testAcademy, &dto.CreateStudentRequest{Name: "a", Status: model.StudentStatusPaused})
	assert.True(t, errors.Is(err, ErrStudentStatusInvalid))

	_, err = f.svc.Student.Create(ctx, testAcademy, &dto.CreateStudentRequest{Name: "a", EnrollmentDate: "2026-13-01"})
	assert.True(t, errors.Is(err, ErrStudentDateInvalid))

	_, err = f.svc.Student.Create(ctx, testAcademy, &dto.CreateStudentRequest{
		Name:       "a",
		Status:     model.StudentStatusTrial,
		TrialDates: []model.TrialDate{{Date: "2026-04-10", TimeSlot: "night"}},
	})
	assert.True(t, errors.Is(err, ErrStudentTimeSlotInvalid))

	assert.Empty(t, f.store.students)
}

func TestStudentService_Create_Pending(t *testing.T) {
	f := setupTestService(t)

	res, err := f.svc.Student.Create(context.Background(), testAcademy, &dto.CreateStudentRequest{
		Name:           "최유나",
		ClassDays:      model.ClassDays{{Day: 2}, {Day: 4}},
		MonthlyTuition: 200000,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StudentStatusPending, res.Student.Status)
	assert.Empty(t, res.Student.StudentNumber)
	assert.Nil(t, res.Payment)
	assert.Empty(t, f.store.attendance)
	assert.NotNil(t, res.Warnings)
}

func TestStudentService_Create_Trial(t *testing.T) {
	f := setupTestService(t)

	res, err := f.svc.Student.Create(context.Background(), testAcademy, &dto.CreateStudentRequest{
		Name:           "정하늘",
		Status:         model.StudentStatusTrial,
		MonthlyTuition: 300000,
		TrialDates: []model.TrialDate{
			{Date: "2026-04-10"},
			{Date: "2026-04-13", TimeSlot: model.TimeSlotAfternoon},
			{Date: "2026-04-06", Attended: true},
		},
	})
	require.NoError(t, err)
	assert.True(t, res.Student.IsTrial)
	assert.Equal(t, int64(0), res.Student.MonthlyTuition)
	assert.Equal(t, 2, res.Student.TrialRemaining)
	assert.Len(t, res.Student.TrialDates, 3)
	assert.Equal(t, 2, res.AttendanceAdded)
	assert.Empty(t, f.store.payments)
}

func TestStudentService_Create_FollowUpFailureIsWarning(t *testing.T) {
	f := setupTestService(t)
	f.store.failOn["Payment.Create"] = errors.New("pq: deadlock detected")

	res := f.createActive(t, 300000, mwf(""), "2026-04-08")

	assert.Equal(t, model.StudentStatusActive, res.Student.Status)
	assert.Nil(t, res.Payment)
	assert.Equal(t, 10, res.AttendanceAdded, "排课不受账单失败影响")
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, dto.StepEnrollmentBill, res.Warnings[0].Step)
	assert.Equal(t, "处理失败，请稍后重试", res.Warnings[0].Message)
	assert.Len(t, f.store.students, 1)
}

// ── Get 测试 ──

func TestStudentService_Get(t *testing.T) {
	f := setupTestService(t)
	st := f.seedStudent(t, nil)

	resp, err := f.svc.Student.Get(context.Background(), testAcademy, st.StudentID)
	require.NoError(t, err)
	assert.Equal(t, st.StudentID, resp.ID)

	_, err = f.svc.Student.Get(context.Background(), "academy-2", st.StudentID)
	assert.True(t, errors.Is(err, ErrStudentNotFound))
}

// ── Update 测试 ──

func TestStudentService_Update_ClassDaysReassigns(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	res := f.createActive(t, 300000, mwf(""), "2026-04-08")
	id := res.Student.ID
	f.markAttendance(t, id, day(2026, 4, 10), model.TimeSlotEvening, model.AttendancePresent)

	next := model.ClassDays{{Day: 1}, {Day: 3, TimeSlot: model.TimeSlotAfternoon}}
	upd, err := f.svc.Student.Update(ctx, testAcademy, id, &dto.UpdateStudentRequest{ClassDays: &next})
	require.NoError(t, err)

	assert.Equal(t, model.ClassDays{{Day: 1, TimeSlot: model.TimeSlotEvening}, {Day: 3, TimeSlot: model.TimeSlotAfternoon}}, upd.Student.ClassDays)
	assert.Equal(t, 2, upd.Student.WeeklyCount)
	assert.Equal(t, int64(6), upd.AttendanceRemoved)
	assert.Equal(t, 4, upd.AttendanceAdded)
	assert.Len(t, f.attendanceDates(id), 8)
	assert.Empty(t, upd.Warnings)
}

func TestStudentService_Update_DeferredClassDays(t *testing.T) {
	f := setupTestService(t)
	res := f.createActive(t, 300000, mwf(""), "2026-04-08")

	next := model.ClassDays{{Day: 2}, {Day: 4}}
	upd, err := f.svc.Student.Update(context.Background(), testAcademy, res.Student.ID, &dto.UpdateStudentRequest{
		ClassDays:              &next,
		ClassDaysEffectiveFrom: strPtr("2026-05-01"),
	})
	require.NoError(t, err)
	assert.Equal(t, mwf(model.TimeSlotEvening), upd.Student.ClassDays)
	assert.Equal(t, model.ClassDays{{Day: 2, TimeSlot: model.TimeSlotEvening}, {Day: 4, TimeSlot: model.TimeSlotEvening}}, upd.Student.ClassDaysNext)
	assert.Equal(t, "2026-05-01", upd.Student.ClassDaysEffectiveFrom)
	assert.Zero(t, upd.AttendanceAdded)
	assert.Zero(t, upd.AttendanceRemoved)
}

func TestStudentService_Update_TimeSlotOnlyMigratesEntries(t *testing.T) {
	f := setupTestService(t)
	st := f.seedStudent(t, func(s *model.Student) {
		s.ClassDays = model.ClassDays{{Day: 1, TimeSlot: model.TimeSlotEvening}, {Day: 3, TimeSlot: model.TimeSlotMorning}}
	})

	upd, err := f.svc.Student.Update(context.Background(), testAcademy, st.StudentID, &dto.UpdateStudentRequest{
		TimeSlot: strPtr(model.TimeSlotAfternoon),
	})
	require.NoError(t, err)
	assert.Equal(t, model.TimeSlotAfternoon, upd.Student.TimeSlot)
	assert.Equal(t, model.ClassDays{{Day: 1, TimeSlot: model.TimeSlotAfternoon}, {Day: 3, TimeSlot: model.TimeSlotMorning}}, upd.Student.ClassDays)
	// 周一晚上 → 周一下午：4/13,20,27 三次
	assert.Equal(t, 3, upd.AttendanceAdded)
}

func TestStudentService_Update_RepricesUnpaidMonths(t *testing.T) {
	f := setupTestService(t)
	st := f.seedStudent(t, nil)
	prorated := f.seedPayment(t, &model.PaymentRecord{
		StudentID: st.StudentID, YearMonth: "2026-04", BaseAmount: 230000, FinalAmount: 230000, IsProrated: true,
	})
	may := f.seedPayment(t, &model.PaymentRecord{
		StudentID: st.StudentID, YearMonth: "2026-05", BaseAmount: 300000, FinalAmount: 280000, CarryoverAmount: 20000,
	})
	paid := f.seedPayment(t, &model.PaymentRecord{
		StudentID: st.StudentID, YearMonth: "2026-06", BaseAmount: 300000, FinalAmount: 300000, PaidAmount: 300000,
		Status: model.PaymentStatusPaid,
	})

	rate := decimal.NewFromInt(10)
	upd, err := f.svc.Student.Update(context.Background(), testAcademy, st.StudentID, &dto.UpdateStudentRequest{
		MonthlyTuition: int64Ptr(240000),
		DiscountRate:   &rate,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, upd.RepricedPayments)

	// 240000 - 24000 折扣 - 20000 已抵扣
	got := f.store.payments[may.PaymentID]
	assert.Equal(t, int64(240000), got.BaseAmount)
	assert.Equal(t, int64(24000), got.DiscountAmount)
	assert.Equal(t, int64(196000), got.FinalAmount)
	assert.Contains(t, got.Notes, "[学费变更] 280000 → 196000")

	assert.Equal(t, int64(230000), f.store.payments[prorated.PaymentID].FinalAmount)
	assert.Equal(t, int64(300000), f.store.payments[paid.PaymentID].FinalAmount)
}

func TestStudentService_Update_StatusTransitions(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()

	pending := f.seedStudent(t, func(s *model.Student) { s.Status = model.StudentStatusPending })
	_, err := f.svc.Student.Update(ctx, testAcademy, pending.StudentID, &dto.UpdateStudentRequest{Status: strPtr(model.StudentStatusPaused)})
	assert.True(t, errors.Is(err, ErrStudentInvalidTransition))

	upd, err := f.svc.Student.Update(ctx, testAcademy, pending.StudentID, &dto.UpdateStudentRequest{Status: strPtr(model.StudentStatusTrial)})
	require.NoError(t, err)
	assert.True(t, upd.Student.IsTrial)
	assert.Equal(t, 2, upd.Student.TrialRemaining)

	upd, err = f.svc.Student.Update(ctx, testAcademy, pending.StudentID, &dto.UpdateStudentRequest{Status: strPtr(model.StudentStatusActive)})
	require.NoError(t, err)
	assert.Equal(t, model.StudentStatusActive, upd.Student.Status)
	assert.False(t, upd.Student.IsTrial)
	assert.Equal(t, "2026001", upd.Student.StudentNumber)
	assert.Equal(t, "2026-04-08", upd.Student.EnrollmentDate)
	require.NotNil(t, upd.Payment)
	assert.Equal(t, int64(230000), upd.Payment.FinalAmount)

	withdrawn := f.seedStudent(t, func(s *model.Student) { s.Status = model.StudentStatusWithdrawn })
	_, err = f.svc.Student.Update(ctx, testAcademy, withdrawn.StudentID, &dto.UpdateStudentRequest{Status: strPtr(model.StudentStatusActive)})
	assert.True(t, errors.Is(err, ErrStudentRetired))
}

func TestStudentService_Update_NotFound(t *testing.T) {
	f := setupTestService(t)
	_, err := f.svc.Student.Update(context.Background(), testAcademy, "missing", &dto.UpdateStudentRequest{Name: strPtr("x")})
	assert.True(t, errors.Is(err, ErrStudentNotFound))
}

// ── ProcessRest / Resume 测试 ──

func TestStudentService_ProcessRest_PaidCreatesCredit(t *testing.T) {
	f := setupTestService(t)
	st := f.seedStudent(t, func(s *model.Student) {
		s.ClassDays = model.ClassDays{{Day: 2, TimeSlot: model.TimeSlotEvening}, {Day: 4, TimeSlot: model.TimeSlotEvening}}
		s.MonthlyTuition = 200000
	})
	sep := f.seedPayment(t, &model.PaymentRecord{
		StudentID: st.StudentID, YearMonth: "2026-09", BaseAmount: 200000, FinalAmount: 200000, PaidAmount: 200000,
		Status: model.PaymentStatusPaid,
	})

	res, err := f.svc.Student.ProcessRest(context.Background(), testAcademy, st.StudentID, &dto.RestRequest{
		RestStartDate: "2026-09-15",
		Reason:        "부상",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StudentStatusPaused, res.Student.Status)
	assert.Equal(t, "2026-09-15", res.Student.RestStartDate)

	// 9 月周二四 1,3,8,10 已上 4 天：200000 * 4 / 30 = 26000，未上 174000
	require.NotNil(t, res.Credit)
	assert.Equal(t, int64(174000), res.Credit.CreditAmount)
	assert.Equal(t, int64(174000), res.Credit.RemainingAmount)
	assert.Equal(t, model.CreditTypeCarryover, res.Credit.CreditType)
	assert.Equal(t, 16, res.Credit.RestDays)
	assert.Equal(t, "2026-09-30", res.Credit.RestEndDate)
	assert.Equal(t, sep.PaymentID, res.Credit.SourcePaymentID)
	assert.Nil(t, res.AdjustedPayment)
	assert.Equal(t, int64(200000), f.store.payments[sep.PaymentID].FinalAmount)
}

func TestStudentService_ProcessRest_CreditNone(t *testing.T) {
	f := setupTestService(t)
	st := f.seedStudent(t, nil)
	f.seedPayment(t, &model.PaymentRecord{
		StudentID: st.StudentID, YearMonth: "2026-04", BaseAmount: 300000, FinalAmount: 300000, PaidAmount: 300000,
		Status: model.PaymentStatusPaid,
	})

	res, err := f.svc.Student.ProcessRest(context.Background(), testAcademy, st.StudentID, &dto.RestRequest{
		RestStartDate: "2026-04-20",
		CreditType:    "none",
	})
	require.NoError(t, err)
	assert.Nil(t, res.Credit)
	assert.Empty(t, f.store.credits)
}

func TestStudentService_ProcessRest_UnpaidFirstDayDeletesPayment(t *testing.T) {
	f := setupTestService(t)
	st := f.seedStudent(t, nil)
	p := f.seedPayment(t, &model.PaymentRecord{
		StudentID: st.StudentID, YearMonth: "2026-05", BaseAmount: 300000, FinalAmount: 300000,
	})

	res, err := f.svc.Student.ProcessRest(context.Background(), testAcademy, st.StudentID, &dto.RestRequest{RestStartDate: "2026-05-01"})
	require.NoError(t, err)
	assert.Equal(t, p.PaymentID, res.DeletedPaymentID)
	assert.Empty(t, f.store.payments)
}

func TestStudentService_PauseThenResume(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	created := f.createActive(t, 300000, mwf(""), "2026-04-08")
	id := created.Student.ID
	paymentID := created.Payment.ID

	// 4/22 休学：4/1~4/21 周一三五共 9 天，230000 * 9 / 30 = 69000
	rest, err := f.svc.Student.ProcessRest(ctx, testAcademy, id, &dto.RestRequest{
		RestStartDate: "2026-04-22",
		RestEndDate:   "2026-05-31",
		CreditType:    "none",
	})
	require.NoError(t, err)
	require.NotNil(t, rest.AdjustedPayment)
	assert.Equal(t, int64(69000), rest.AdjustedPayment.FinalAmount)
	assert.Equal(t, model.PaymentStatusPending, rest.AdjustedPayment.Status)
	assert.Contains(t, f.store.payments[paymentID].Notes, "[休学调整]")
	// 22,24,27,29 的占位被清除
	assert.Equal(t, int64(4), rest.AttendanceRemoved)
	assert.Len(t, f.store.attendance, 6)

	_, err = f.svc.Student.ProcessRest(ctx, testAcademy, id, &dto.RestRequest{RestStartDate: "2026-04-23"})
	assert.True(t, errors.Is(err, ErrStudentNotActive))

	resumed, err := f.svc.Student.Resume(ctx, testAcademy, id, &dto.ResumeRequest{ResumeDate: "2026-04-22"})
	require.NoError(t, err)
	assert.Equal(t, model.StudentStatusActive, resumed.Student.Status)
	assert.Empty(t, resumed.Student.RestStartDate)
	assert.Equal(t, 4, resumed.AttendanceAdded)
	assert.Nil(t, resumed.Payment, "当月已有账单不再生成")
	assert.Len(t, f.store.payments, 1)

	_, err = f.svc.Student.Resume(ctx, testAcademy, id, &dto.ResumeRequest{})
	assert.True(t, errors.Is(err, ErrStudentNotPaused))
}

func TestStudentService_Resume_CreatesPayment(t *testing.T) {
	f := setupTestService(t)
	st := f.seedStudent(t, func(s *model.Student) {
		s.Status = model.StudentStatusPaused
		start := day(2026, 3, 2)
		s.RestStartDate = &start
	})

	// 4/22 起周一三五剩 4 次，总次数按 3*4=12：300000 * 4 / 12 = 100000
	res, err := f.svc.Student.Resume(context.Background(), testAcademy, st.StudentID, &dto.ResumeRequest{ResumeDate: "2026-04-22"})
	require.NoError(t, err)
	require.NotNil(t, res.Payment)
	assert.Equal(t, int64(100000), res.Payment.FinalAmount)
	assert.Equal(t, "2026-04-29", res.Payment.DueDate)
	assert.Equal(t, "2026-04 学费（复学）", res.Payment.Description)
}

func TestStudentService_ProcessRest_Validation(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	st := f.seedStudent(t, nil)

	_, err := f.svc.Student.ProcessRest(ctx, testAcademy, st.StudentID, &dto.RestRequest{RestStartDate: "bad"})
	assert.True(t, errors.Is(err, ErrStudentDateInvalid))

	_, err = f.svc.Student.ProcessRest(ctx, testAcademy, st.StudentID, &dto.RestRequest{
		RestStartDate: "2026-04-20",
		RestEndDate:   "2026-04-10",
	})
	assert.True(t, errors.Is(err, ErrStudentRestRangeInvalid))

	retired := f.seedStudent(t, func(s *model.Student) { s.Status = model.StudentStatusGraduated })
	_, err = f.svc.Student.ProcessRest(ctx, testAcademy, retired.StudentID, &dto.RestRequest{RestStartDate: "2026-04-20"})
	assert.True(t, errors.Is(err, ErrStudentRetired))
}

// ── Withdraw 测试 ──

func TestStudentService_Withdraw(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	st := f.seedStudent(t, func(s *model.Student) {
		next := model.ClassDays{{Day: 2, TimeSlot: model.TimeSlotEvening}}
		eff := day(2026, 5, 1)
		s.ClassDaysNext = &next
		s.ClassDaysEffectiveFrom = &eff
	})
	f.seedPayment(t, &model.PaymentRecord{StudentID: st.StudentID, YearMonth: "2026-03", BaseAmount: 300000, FinalAmount: 300000, PaidAmount: 300000, Status: model.PaymentStatusPaid})
	f.seedPayment(t, &model.PaymentRecord{StudentID: st.StudentID, YearMonth: "2026-04", BaseAmount: 50000, FinalAmount: 50000})
	f.seedPayment(t, &model.PaymentRecord{StudentID: st.StudentID, YearMonth: "2026-05", BaseAmount: 300000, FinalAmount: 30000, PaidAmount: 10000, Status: model.PaymentStatusPartial})
	f.store.seasons["season-1"] = &model.SeasonEnrollment{EnrollmentID: "season-1", StudentID: st.StudentID, Status: model.SeasonStatusRegistered}
	f.store.seasons["season-2"] = &model.SeasonEnrollment{EnrollmentID: "season-2", StudentID: st.StudentID, Status: model.SeasonStatusCompleted}

	f.seedAttendance(t, st.StudentID, day(2026, 4, 6), model.TimeSlotEvening, model.AttendanceAbsent, false)
	f.seedAttendance(t, st.StudentID, day(2026, 4, 8), model.TimeSlotEvening, model.AttendanceAbsent, false)
	f.seedAttendance(t, st.StudentID, day(2026, 4, 10), model.TimeSlotEvening, "", false)

	res, err := f.svc.Student.Withdraw(ctx, testAcademy, st.StudentID, &dto.WithdrawRequest{Reason: "이사"})
	require.NoError(t, err)
	assert.Equal(t, model.StudentStatusWithdrawn, res.Student.Status)
	assert.Equal(t, "2026-04-08", res.Student.WithdrawalDate)
	assert.Equal(t, "이사", res.Student.WithdrawalReason)
	assert.Empty(t, res.Student.ClassDaysNext)
	assert.Empty(t, res.Student.ClassDaysEffectiveFrom)

	assert.Equal(t, 2, res.DeletedPaymentCount)
	assert.Equal(t, int64(80000), res.DeletedPaymentTotal)
	assert.Len(t, f.store.payments, 1)
	assert.Equal(t, int64(1), res.CancelledSeasons)
	assert.Equal(t, model.SeasonStatusCancelled, f.store.seasons["season-1"].Status)
	assert.Equal(t, model.SeasonStatusCompleted, f.store.seasons["season-2"].Status)

	// 今天起的缺勤与占位删除，之前的缺勤保留
	assert.Equal(t, int64(2), res.AttendanceRemoved)
	assert.True(t, f.attendanceDates(st.StudentID)[billing.ClosedKey(day(2026, 4, 6), model.TimeSlotEvening)])

	_, err = f.svc.Student.Withdraw(ctx, testAcademy, st.StudentID, &dto.WithdrawRequest{})
	assert.True(t, errors.Is(err, ErrStudentRetired))
}

func TestStudentService_Withdraw_Graduated(t *testing.T) {
	f := setupTestService(t)
	st := f.seedStudent(t, nil)

	res, err := f.svc.Student.Withdraw(context.Background(), testAcademy, st.StudentID, &dto.WithdrawRequest{
		Status: model.StudentStatusGraduated,
		Date:   "2026-02-28",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StudentStatusGraduated, res.Student.Status)
	assert.Equal(t, "2026-02-28", res.Student.WithdrawalDate)
}

// ── 休学期满 / 批量上课模式 / 季节课 测试 ──

func TestStudentService_ListRestEnded(t *testing.T) {
	f := setupTestService(t)
	paused := func(end time.Time) func(s *model.Student) {
		return func(s *model.Student) {
			start := day(2026, 3, 1)
			s.Status = model.StudentStatusPaused
			s.RestStartDate = &start
			s.RestEndDate = &end
		}
	}
	late := f.seedStudent(t, paused(day(2026, 4, 5)))
	later := f.seedStudent(t, paused(day(2026, 4, 1)))
	f.seedStudent(t, paused(day(2026, 4, 8)))
	f.seedStudent(t, nil)
	f.seedStudent(t, func(s *model.Student) {
		paused(day(2026, 3, 1))(s)
		s.AcademyID = "academy-2"
	})

	list, err := f.svc.Student.ListRestEnded(context.Background(), testAcademy)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, later.StudentID, list[0].ID)
	assert.Equal(t, 7, list[0].DaysOverdue)
	assert.Equal(t, late.StudentID, list[1].ID)
	assert.Equal(t, 3, list[1].DaysOverdue)
	assert.Equal(t, "2026-04-05", list[1].RestEndDate)
}

func TestStudentService_BulkUpdateClassDays_Immediate(t *testing.T) {
	f := setupTestService(t)
	a := f.seedStudent(t, nil)
	b := f.seedStudent(t, nil)

	res, err := f.svc.Student.BulkUpdateClassDays(context.Background(), testAcademy, &dto.BulkClassDaysRequest{
		Students: []dto.BulkClassDaysItem{
			{ID: a.StudentID, ClassDays: model.ClassDays{{Day: 2}, {Day: 4}}},
			{ID: "missing", ClassDays: model.ClassDays{{Day: 1}}},
			{ID: b.StudentID, ClassDays: model.ClassDays{{Day: 6, TimeSlot: model.TimeSlotMorning}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-04-08", res.EffectiveFrom)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Results, 3)
	assert.Equal(t, dto.BulkClassDaysItemResult{ID: "missing", Error: ErrStudentNotFound.Message}, res.Results[1])
	assert.True(t, res.Results[0].Success)
	assert.Equal(t, "immediate", res.Results[0].Mode)

	assert.Equal(t, model.ClassDays{{Day: 2, TimeSlot: model.TimeSlotEvening}, {Day: 4, TimeSlot: model.TimeSlotEvening}}, f.store.students[a.StudentID].ClassDays)
	assert.Equal(t, 2, f.store.students[a.StudentID].WeeklyCount)
	assert.Equal(t, model.ClassDays{{Day: 6, TimeSlot: model.TimeSlotMorning}}, f.store.students[b.StudentID].ClassDays)
}

func TestStudentService_BulkUpdateClassDays_Scheduled(t *testing.T) {
	f := setupTestService(t)
	a := f.seedStudent(t, nil)

	res, err := f.svc.Student.BulkUpdateClassDays(context.Background(), testAcademy, &dto.BulkClassDaysRequest{
		EffectiveFrom: "2026-05-01",
		Students:      []dto.BulkClassDaysItem{{ID: a.StudentID, ClassDays: model.ClassDays{{Day: 2}}}},
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "scheduled", res.Results[0].Mode)

	stored := f.store.students[a.StudentID]
	assert.Equal(t, mwf(model.TimeSlotEvening), stored.ClassDays)
	require.NotNil(t, stored.ClassDaysNext)
	assert.Equal(t, model.ClassDays{{Day: 2, TimeSlot: model.TimeSlotEvening}}, *stored.ClassDaysNext)
	assert.Equal(t, "2026-05-01", stored.ClassDaysEffectiveFrom.Format(model.DateLayout))
}

func TestStudentService_BulkUpdateClassDays_Validation(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()

	_, err := f.svc.Student.BulkUpdateClassDays(ctx, testAcademy, &dto.BulkClassDaysRequest{})
	assert.True(t, errors.Is(err, ErrStudentBulkEmpty))

	_, err = f.svc.Student.BulkUpdateClassDays(ctx, testAcademy, &dto.BulkClassDaysRequest{
		EffectiveFrom: "2026/05/01",
		Students:      []dto.BulkClassDaysItem{{ID: "stu-1", ClassDays: model.ClassDays{{Day: 1}}}},
	})
	assert.True(t, errors.Is(err, ErrStudentDateInvalid))
}

func TestStudentService_CancelScheduledClassDays(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	st := f.seedStudent(t, func(s *model.Student) {
		next := model.ClassDays{{Day: 2, TimeSlot: model.TimeSlotEvening}}
		eff := day(2026, 5, 1)
		s.ClassDaysNext = &next
		s.ClassDaysEffectiveFrom = &eff
	})

	resp, err := f.svc.Student.CancelScheduledClassDays(ctx, testAcademy, st.StudentID)
	require.NoError(t, err)
	assert.Empty(t, resp.ClassDaysNext)
	assert.Empty(t, resp.ClassDaysEffectiveFrom)
	assert.Equal(t, mwf(model.TimeSlotEvening), resp.ClassDays)
	assert.Nil(t, f.store.students[st.StudentID].ClassDaysNext)

	// 没有预约时不写库
	f.store.failOn["Student.Update"] = errors.New("should not write")
	_, err = f.svc.Student.CancelScheduledClassDays(ctx, testAcademy, st.StudentID)
	require.NoError(t, err)

	_, err = f.svc.Student.CancelScheduledClassDays(ctx, testAcademy, "missing")
	assert.True(t, errors.Is(err, ErrStudentNotFound))
}

func TestStudentService_ListSeasons(t *testing.T) {
	f := setupTestService(t)
	st := f.seedStudent(t, nil)
	cancelled := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	older := &model.SeasonEnrollment{EnrollmentID: "season-1", StudentID: st.StudentID, SeasonID: "winter", Status: model.SeasonStatusCancelled, CancelledAt: &cancelled}
	older.CreatedAt = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	newer := &model.SeasonEnrollment{EnrollmentID: "season-2", StudentID: st.StudentID, SeasonID: "summer", Status: model.SeasonStatusRegistered}
	newer.CreatedAt = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	f.store.seasons[older.EnrollmentID] = older
	f.store.seasons[newer.EnrollmentID] = newer
	f.store.seasons["other"] = &model.SeasonEnrollment{EnrollmentID: "other", StudentID: "someone-else", Status: model.SeasonStatusRegistered}

	list, err := f.svc.Student.ListSeasons(context.Background(), testAcademy, st.StudentID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "season-2", list[0].ID)
	assert.Empty(t, list[0].CancelledAt)
	assert.Equal(t, dto.SeasonEnrollmentResponse{
		ID:          "season-1",
		SeasonID:    "winter",
		Status:      model.SeasonStatusCancelled,
		CancelledAt: "2026-03-02T09:00:00Z",
		CreatedAt:   "2026-01-05T09:00:00Z",
	}, list[1])

	_, err = f.svc.Student.ListSeasons(context.Background(), testAcademy, "missing")
	assert.True(t, errors.Is(err, ErrStudentNotFound))
}
