package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/seanyjeong/pacapro-sub001/internal/model"
	"github.com/seanyjeong/pacapro-sub001/internal/repository"
	pkgerrors "github.com/seanyjeong/pacapro-sub001/pkg/errors"
)

// ── 共享内存存储 ──
// 各 mock 读取时返回副本，未调用 Update 的修改不会落库

type mockStore struct {
	students   map[string]*model.Student
	settings   map[string]*model.AcademySetting
	slots      map[string]*model.ScheduleSlot
	attendance map[string]*model.AttendanceRecord
	payments   map[string]*model.PaymentRecord
	credits    map[string]*model.RestCredit
	seasons    map[string]*model.SeasonEnrollment
	seq        int

	// failOn 按 "Repo.Method" 或 "Repo.Method:id" 注入错误
	failOn map[string]error
}

func newMockStore() *mockStore {
	return &mockStore{
		students:   make(map[string]*model.Student),
		settings:   make(map[string]*model.AcademySetting),
		slots:      make(map[string]*model.ScheduleSlot),
		attendance: make(map[string]*model.AttendanceRecord),
		payments:   make(map[string]*model.PaymentRecord),
		credits:    make(map[string]*model.RestCredit),
		seasons:    make(map[string]*model.SeasonEnrollment),
		failOn:     make(map[string]error),
	}
}

func (m *mockStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%03d", prefix, m.seq)
}

func (m *mockStore) fail(keys ...string) error {
	for _, k := range keys {
		if err, ok := m.failOn[k]; ok {
			return err
		}
	}
	return nil
}

func newMockRepository() (*repository.Repository, *mockStore) {
	store := newMockStore()
	repo := &repository.Repository{
		Student:    &mockStudentRepo{store},
		Academy:    &mockAcademyRepo{store},
		Slot:       &mockSlotRepo{store},
		Attendance: &mockAttendanceRepo{store},
		Payment:    &mockPaymentRepo{store},
		Credit:     &mockCreditRepo{store},
		Season:     &mockSeasonRepo{store},
	}
	return repo, store
}

func inRange(d, from, to time.Time) bool {
	return !d.Before(from) && !d.After(to)
}

// ── Mock StudentRepository ──

type mockStudentRepo struct{ s *mockStore }

func (m *mockStudentRepo) Create(_ context.Context, student *model.Student) error {
	if err := m.s.fail("Student.Create"); err != nil {
		return err
	}
	if student.StudentID == "" {
		student.StudentID = m.s.nextID("stu")
	}
	if student.Version == 0 {
		student.Version = 1
	}
	cp := *student
	m.s.students[student.StudentID] = &cp
	return nil
}

func (m *mockStudentRepo) GetByID(_ context.Context, academyID, id string) (*model.Student, error) {
	st, ok := m.s.students[id]
	if !ok || st.AcademyID != academyID {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *st
	return &cp, nil
}

func (m *mockStudentRepo) GetByIDForUpdate(ctx context.Context, academyID, id string) (*model.Student, error) {
	return m.GetByID(ctx, academyID, id)
}

func (m *mockStudentRepo) AcademyOf(_ context.Context, id string) (string, error) {
	st, ok := m.s.students[id]
	if !ok {
		return "", gorm.ErrRecordNotFound
	}
	return st.AcademyID, nil
}

func (m *mockStudentRepo) Update(_ context.Context, student *model.Student) error {
	if err := m.s.fail("Student.Update", "Student.Update:"+student.StudentID); err != nil {
		return err
	}
	stored, ok := m.s.students[student.StudentID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if stored.Version != student.Version {
		return pkgerrors.ErrOptimisticLock
	}
	student.Version++
	cp := *student
	m.s.students[student.StudentID] = &cp
	return nil
}

func (m *mockStudentRepo) LastStudentNumber(_ context.Context, academyID, prefix string) (string, error) {
	last := ""
	for _, st := range m.s.students {
		if st.AcademyID != academyID || st.StudentNumber == nil {
			continue
		}
		if n := *st.StudentNumber; strings.HasPrefix(n, prefix) && n > last {
			last = n
		}
	}
	return last, nil
}

func (m *mockStudentRepo) ExistsStudentNumber(_ context.Context, academyID, number, excludeID string) (bool, error) {
	for _, st := range m.s.students {
		if st.AcademyID == academyID && st.StudentID != excludeID && st.StudentNumber != nil && *st.StudentNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStudentRepo) list(match func(*model.Student) bool) []model.Student {
	var out []model.Student
	for _, st := range m.s.students {
		if match(st) {
			out = append(out, *st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}

func (m *mockStudentRepo) ListByIDs(_ context.Context, ids []string) ([]model.Student, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return m.list(func(st *model.Student) bool { return want[st.StudentID] }), nil
}

func (m *mockStudentRepo) ListByGrades(_ context.Context, grades []string) ([]model.Student, error) {
	if err := m.s.fail("Student.ListByGrades"); err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(grades))
	for _, g := range grades {
		want[g] = true
	}
	return m.list(func(st *model.Student) bool { return want[st.Grade] }), nil
}

func (m *mockStudentRepo) ListByStatus(_ context.Context, status string) ([]model.Student, error) {
	return m.list(func(st *model.Student) bool { return st.Status == status }), nil
}

func (m *mockStudentRepo) ListDueClassDaysChange(_ context.Context, today time.Time) ([]model.Student, error) {
	return m.list(func(st *model.Student) bool {
		return st.ClassDaysNext != nil && st.ClassDaysEffectiveFrom != nil && !st.ClassDaysEffectiveFrom.After(today)
	}), nil
}

func (m *mockStudentRepo) ListTrials(_ context.Context) ([]model.Student, error) {
	return m.list(func(st *model.Student) bool {
		return st.Status == model.StudentStatusTrial && st.IsTrial
	}), nil
}

func (m *mockStudentRepo) ListRestEnded(_ context.Context, academyID string, today time.Time) ([]model.Student, error) {
	if err := m.s.fail("Student.ListRestEnded"); err != nil {
		return nil, err
	}
	out := m.list(func(st *model.Student) bool {
		return st.AcademyID == academyID && st.Status == model.StudentStatusPaused &&
			st.RestEndDate != nil && st.RestEndDate.Before(today)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].RestEndDate.Before(*out[j].RestEndDate) })
	return out, nil
}

func (m *mockStudentRepo) ListExcusedCandidates(_ context.Context, monthStart time.Time) ([]model.Student, error) {
	return m.list(func(st *model.Student) bool {
		return st.Status == model.StudentStatusActive && st.MonthlyTuition > 0 &&
			len(st.ClassDays) > 0 && st.CreatedAt.Before(monthStart)
	}), nil
}

// ── Mock AcademySettingRepository ──

type mockAcademyRepo struct{ s *mockStore }

func (m *mockAcademyRepo) GetByAcademyID(_ context.Context, academyID string) (*model.AcademySetting, error) {
	if setting, ok := m.s.settings[academyID]; ok {
		return setting, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// ── Mock ScheduleSlotRepository ──

type mockSlotRepo struct{ s *mockStore }

func (m *mockSlotRepo) FindOrCreate(_ context.Context, academyID string, date time.Time, timeSlot string) (*model.ScheduleSlot, error) {
	for _, slot := range m.s.slots {
		if slot.AcademyID == academyID && slot.ScheduleDate.Equal(date) && slot.TimeSlot == timeSlot {
			return slot, nil
		}
	}
	slot := &model.ScheduleSlot{
		SlotID:       m.s.nextID("slot"),
		AcademyID:    academyID,
		ScheduleDate: date,
		TimeSlot:     timeSlot,
	}
	m.s.slots[slot.SlotID] = slot
	return slot, nil
}

func (m *mockSlotRepo) GetByID(_ context.Context, id string) (*model.ScheduleSlot, error) {
	if slot, ok := m.s.slots[id]; ok {
		return slot, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSlotRepo) ListClosed(_ context.Context, academyID string, from, to time.Time) ([]model.ScheduleSlot, error) {
	var out []model.ScheduleSlot
	for _, slot := range m.s.slots {
		if slot.AcademyID == academyID && slot.IsClosed && inRange(slot.ScheduleDate, from, to) {
			out = append(out, *slot)
		}
	}
	return out, nil
}

// ── Mock AttendanceRepository ──

type mockAttendanceRepo struct{ s *mockStore }

func (m *mockAttendanceRepo) dateOf(rec *model.AttendanceRecord) time.Time {
	if slot, ok := m.s.slots[rec.SlotID]; ok {
		return slot.ScheduleDate
	}
	return time.Time{}
}

func (m *mockAttendanceRepo) CreateIfAbsent(_ context.Context, record *model.AttendanceRecord) (bool, error) {
	if err := m.s.fail("Attendance.CreateIfAbsent"); err != nil {
		return false, err
	}
	for _, rec := range m.s.attendance {
		if rec.SlotID == record.SlotID && rec.StudentID == record.StudentID {
			return false, nil
		}
	}
	record.AttendanceID = m.s.nextID("att")
	cp := *record
	m.s.attendance[record.AttendanceID] = &cp
	return true, nil
}

func (m *mockAttendanceRepo) ListPlaceholdersFrom(_ context.Context, studentID string, from time.Time) ([]model.AttendanceRecord, error) {
	var out []model.AttendanceRecord
	for _, rec := range m.s.attendance {
		if rec.StudentID == studentID && rec.AttendanceStatus == nil && !m.dateOf(rec).Before(from) {
			cp := *rec
			cp.Slot = m.s.slots[rec.SlotID]
			out = append(out, cp)
		}
	}
	return out, nil
}

func (m *mockAttendanceRepo) ListByStudent(_ context.Context, studentID string, from, to time.Time) ([]model.AttendanceRecord, error) {
	if err := m.s.fail("Attendance.ListByStudent"); err != nil {
		return nil, err
	}
	var out []model.AttendanceRecord
	for _, rec := range m.s.attendance {
		d := m.dateOf(rec)
		if rec.StudentID == studentID && !d.Before(from) && !d.After(to) {
			cp := *rec
			cp.Slot = m.s.slots[rec.SlotID]
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Slot, out[j].Slot
		if !a.ScheduleDate.Equal(b.ScheduleDate) {
			return a.ScheduleDate.Before(b.ScheduleDate)
		}
		return a.TimeSlot < b.TimeSlot
	})
	return out, nil
}

func (m *mockAttendanceRepo) DeletePlaceholdersByIDs(_ context.Context, ids []string) (int64, error) {
	var n int64
	for _, id := range ids {
		if rec, ok := m.s.attendance[id]; ok && rec.AttendanceStatus == nil {
			delete(m.s.attendance, id)
			n++
		}
	}
	return n, nil
}

func (m *mockAttendanceRepo) DeleteFrom(_ context.Context, studentID string, from time.Time, statuses ...string) (int64, error) {
	allowed := make(map[string]bool, len(statuses))
	for _, st := range statuses {
		allowed[st] = true
	}
	var n int64
	for id, rec := range m.s.attendance {
		if rec.StudentID != studentID || m.dateOf(rec).Before(from) {
			continue
		}
		if rec.AttendanceStatus == nil || allowed[*rec.AttendanceStatus] {
			delete(m.s.attendance, id)
			n++
		}
	}
	return n, nil
}

func (m *mockAttendanceRepo) CountByStatus(_ context.Context, studentID string, from, to time.Time, statuses ...string) (int64, error) {
	allowed := make(map[string]bool, len(statuses))
	for _, st := range statuses {
		allowed[st] = true
	}
	var n int64
	for _, rec := range m.s.attendance {
		if rec.StudentID == studentID && rec.AttendanceStatus != nil && allowed[*rec.AttendanceStatus] && inRange(m.dateOf(rec), from, to) {
			n++
		}
	}
	return n, nil
}

func (m *mockAttendanceRepo) CountMakeup(_ context.Context, studentID string, from, to time.Time) (int64, error) {
	var n int64
	for _, rec := range m.s.attendance {
		if rec.StudentID != studentID || !rec.IsMakeup || rec.AttendanceStatus == nil {
			continue
		}
		status := *rec.AttendanceStatus
		if (status == model.AttendancePresent || status == model.AttendanceLate) && inRange(m.dateOf(rec), from, to) {
			n++
		}
	}
	return n, nil
}

// ── Mock PaymentRepository ──

type mockPaymentRepo struct{ s *mockStore }

func (m *mockPaymentRepo) Create(_ context.Context, payment *model.PaymentRecord) error {
	if err := m.s.fail("Payment.Create"); err != nil {
		return err
	}
	for _, p := range m.s.payments {
		if p.PaymentType == model.PaymentTypeMonthly && payment.PaymentType == model.PaymentTypeMonthly &&
			p.StudentID == payment.StudentID && p.YearMonth == payment.YearMonth {
			return errors.New("duplicate key value violates unique constraint")
		}
	}
	if payment.PaymentID == "" {
		payment.PaymentID = m.s.nextID("pay")
	}
	cp := *payment
	m.s.payments[payment.PaymentID] = &cp
	return nil
}

func (m *mockPaymentRepo) GetByID(_ context.Context, academyID, id string) (*model.PaymentRecord, error) {
	if p, ok := m.s.payments[id]; ok && p.AcademyID == academyID {
		cp := *p
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockPaymentRepo) GetMonthlyForUpdate(_ context.Context, studentID, yearMonth string) (*model.PaymentRecord, error) {
	for _, p := range m.s.payments {
		if p.StudentID == studentID && p.YearMonth == yearMonth && p.PaymentType == model.PaymentTypeMonthly {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockPaymentRepo) Update(_ context.Context, payment *model.PaymentRecord) error {
	cp := *payment
	m.s.payments[payment.PaymentID] = &cp
	return nil
}

func (m *mockPaymentRepo) Delete(_ context.Context, id string) error {
	delete(m.s.payments, id)
	return nil
}

func (m *mockPaymentRepo) DeleteByIDs(_ context.Context, ids []string) (int64, error) {
	var n int64
	for _, id := range ids {
		if _, ok := m.s.payments[id]; ok {
			delete(m.s.payments, id)
			n++
		}
	}
	return n, nil
}

func (m *mockPaymentRepo) ListUnpaid(_ context.Context, studentID string) ([]model.PaymentRecord, error) {
	var out []model.PaymentRecord
	for _, p := range m.s.payments {
		if p.StudentID == studentID && p.Status != model.PaymentStatusPaid {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].YearMonth < out[j].YearMonth })
	return out, nil
}

func (m *mockPaymentRepo) ListRepriceable(_ context.Context, studentID, fromYearMonth string) ([]model.PaymentRecord, error) {
	var out []model.PaymentRecord
	for _, p := range m.s.payments {
		if p.StudentID != studentID || p.PaymentType != model.PaymentTypeMonthly || p.YearMonth < fromYearMonth {
			continue
		}
		if (p.Status == model.PaymentStatusPending || p.Status == model.PaymentStatusOverdue) && p.PaidAmount == 0 {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].YearMonth < out[j].YearMonth })
	return out, nil
}

// ── Mock RestCreditRepository ──

type mockCreditRepo struct{ s *mockStore }

func (m *mockCreditRepo) Create(_ context.Context, credit *model.RestCredit) error {
	if err := m.s.fail("Credit.Create"); err != nil {
		return err
	}
	if credit.CreditID == "" {
		credit.CreditID = m.s.nextID("cr")
	}
	cp := *credit
	m.s.credits[credit.CreditID] = &cp
	return nil
}

func (m *mockCreditRepo) GetByID(_ context.Context, academyID, id string) (*model.RestCredit, error) {
	if c, ok := m.s.credits[id]; ok && c.AcademyID == academyID {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockCreditRepo) GetByIDForUpdate(ctx context.Context, academyID, id string) (*model.RestCredit, error) {
	return m.GetByID(ctx, academyID, id)
}

func (m *mockCreditRepo) Update(_ context.Context, credit *model.RestCredit) error {
	cp := *credit
	m.s.credits[credit.CreditID] = &cp
	return nil
}

func (m *mockCreditRepo) Delete(_ context.Context, id string) error {
	delete(m.s.credits, id)
	return nil
}

func (m *mockCreditRepo) ListByStudent(_ context.Context, studentID string) ([]model.RestCredit, error) {
	var out []model.RestCredit
	for _, c := range m.s.credits {
		if c.StudentID == studentID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreditID < out[j].CreditID })
	return out, nil
}

func (m *mockCreditRepo) ListByAcademy(_ context.Context, academyID string) ([]model.RestCredit, error) {
	var out []model.RestCredit
	for _, c := range m.s.credits {
		if c.AcademyID == academyID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreditID < out[j].CreditID })
	return out, nil
}

func (m *mockCreditRepo) ExistsForPeriod(_ context.Context, studentID, creditType string, periodStart time.Time) (bool, error) {
	for _, c := range m.s.credits {
		if c.StudentID == studentID && c.CreditType == creditType && c.RestStartDate != nil && c.RestStartDate.Equal(periodStart) {
			return true, nil
		}
	}
	return false, nil
}

// ── Mock SeasonEnrollmentRepository ──

type mockSeasonRepo struct{ s *mockStore }

func (m *mockSeasonRepo) CancelActive(_ context.Context, studentID string, at time.Time) (int64, error) {
	var n int64
	for _, e := range m.s.seasons {
		if e.StudentID == studentID && (e.Status == model.SeasonStatusRegistered || e.Status == model.SeasonStatusActive) {
			e.Status = model.SeasonStatusCancelled
			e.CancelledAt = &at
			n++
		}
	}
	return n, nil
}

func (m *mockSeasonRepo) ListByStudent(_ context.Context, studentID string) ([]model.SeasonEnrollment, error) {
	var out []model.SeasonEnrollment
	for _, e := range m.s.seasons {
		if e.StudentID == studentID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
