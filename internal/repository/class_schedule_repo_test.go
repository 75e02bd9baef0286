package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanyjeong/pacapro-sub001/internal/model"
)

func TestScheduleSlotRepo_FindOrCreate(t *testing.T) {
	date := time.Date(2026, 4, 8, 0, 0, 0, 0, time.UTC)

	t.Run("inserts new slot", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewScheduleSlotRepo(db)

		mock.ExpectQuery(`INSERT INTO "class_schedules" .* ON CONFLICT .*DO NOTHING RETURNING`).
			WillReturnRows(sqlmock.NewRows([]string{"slot_id"}).AddRow("slot-1"))

		slot, err := repo.FindOrCreate(context.Background(), "academy-1", date, model.TimeSlotEvening)
		require.NoError(t, err)
		assert.Equal(t, "slot-1", slot.SlotID)
		assert.Equal(t, model.TimeSlotEvening, slot.TimeSlot)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("conflict rereads existing slot", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewScheduleSlotRepo(db)

		mock.ExpectQuery(`INSERT INTO "class_schedules" .* ON CONFLICT .*DO NOTHING`).
			WillReturnRows(sqlmock.NewRows([]string{"slot_id"}))
		mock.ExpectQuery(`SELECT \* FROM "class_schedules" WHERE academy_id = \$1 AND schedule_date = \$2 AND time_slot = \$3`).
			WithArgs("academy-1", sqlmock.AnyArg(), model.TimeSlotEvening, 1).
			WillReturnRows(sqlmock.NewRows([]string{"slot_id", "academy_id", "time_slot", "is_closed"}).
				AddRow("slot-9", "academy-1", model.TimeSlotEvening, true))

		slot, err := repo.FindOrCreate(context.Background(), "academy-1", date, model.TimeSlotEvening)
		require.NoError(t, err)
		assert.Equal(t, "slot-9", slot.SlotID)
		assert.True(t, slot.IsClosed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAttendanceRepo_CreateIfAbsent(t *testing.T) {
	t.Run("reports created", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewAttendanceRepo(db)

		mock.ExpectQuery(`INSERT INTO "attendance" .* ON CONFLICT .*DO NOTHING RETURNING`).
			WillReturnRows(sqlmock.NewRows([]string{"attendance_id"}).AddRow("att-1"))

		created, err := repo.CreateIfAbsent(context.Background(), &model.AttendanceRecord{SlotID: "slot-1", StudentID: "stu-1"})
		require.NoError(t, err)
		assert.True(t, created)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing pair is skipped", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewAttendanceRepo(db)

		mock.ExpectQuery(`INSERT INTO "attendance" .* ON CONFLICT .*DO NOTHING`).
			WillReturnRows(sqlmock.NewRows([]string{"attendance_id"}))

		created, err := repo.CreateIfAbsent(context.Background(), &model.AttendanceRecord{SlotID: "slot-1", StudentID: "stu-1"})
		require.NoError(t, err)
		assert.False(t, created)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAttendanceRepo_DeletePlaceholdersByIDs(t *testing.T) {
	t.Run("empty ids skip query", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewAttendanceRepo(db)

		n, err := repo.DeletePlaceholdersByIDs(context.Background(), nil)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("only placeholders are deleted", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewAttendanceRepo(db)

		mock.ExpectExec(`DELETE FROM "attendance" WHERE attendance_id IN \(\$1,\$2\) AND attendance_status IS NULL`).
			WithArgs("att-1", "att-2").
			WillReturnResult(sqlmock.NewResult(0, 1))

		n, err := repo.DeletePlaceholdersByIDs(context.Background(), []string{"att-1", "att-2"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAttendanceRepo_DeleteFrom(t *testing.T) {
	from := time.Date(2026, 4, 8, 0, 0, 0, 0, time.UTC)

	t.Run("placeholders only by default", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewAttendanceRepo(db)

		mock.ExpectExec(`DELETE FROM "attendance" WHERE student_id = \$1 AND slot_id IN \(SELECT .*slot_id.* FROM "class_schedules" WHERE schedule_date >= \$2\) AND attendance_status IS NULL`).
			WithArgs("stu-1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 4))

		n, err := repo.DeleteFrom(context.Background(), "stu-1", from)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("extra statuses widen the filter", func(t *testing.T) {
		db, mock, mockDB := newMockDB(t)
		defer mockDB.Close()
		repo := NewAttendanceRepo(db)

		mock.ExpectExec(`DELETE FROM "attendance" WHERE .*\(attendance_status IS NULL OR attendance_status IN \(\$3\)\)`).
			WithArgs("stu-1", sqlmock.AnyArg(), model.AttendanceAbsent).
			WillReturnResult(sqlmock.NewResult(0, 2))

		n, err := repo.DeleteFrom(context.Background(), "stu-1", from, model.AttendanceAbsent)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAttendanceRepo_CountMakeup(t *testing.T) {
	db, mock, mockDB := newMockDB(t)
	defer mockDB.Close()
	repo := NewAttendanceRepo(db)

	from := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "attendance" JOIN class_schedules cs ON cs.slot_id = attendance.slot_id WHERE .*is_makeup = \$2.*attendance_status IN \(\$3,\$4\).*BETWEEN`).
		WithArgs("stu-1", true, model.AttendancePresent, model.AttendanceLate, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := repo.CountMakeup(context.Background(), "stu-1", from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepo_ListByStudent(t *testing.T) {
	db, mock, mockDB := newMockDB(t)
	defer mockDB.Close()
	repo := NewAttendanceRepo(db)

	from := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .* FROM "attendance" JOIN class_schedules cs ON cs.slot_id = attendance.slot_id WHERE attendance.student_id = \$1 AND cs.schedule_date BETWEEN \$2 AND \$3 ORDER BY cs.schedule_date ASC, cs.time_slot ASC`).
		WithArgs("stu-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"attendance_id", "slot_id", "student_id"}).AddRow("att-1", "slot-1", "stu-1"))
	mock.ExpectQuery(`SELECT \* FROM "class_schedules" WHERE "class_schedules"."slot_id" = \$1`).
		WithArgs("slot-1").
		WillReturnRows(sqlmock.NewRows([]string{"slot_id", "time_slot"}).AddRow("slot-1", model.TimeSlotEvening))

	records, err := repo.ListByStudent(context.Background(), "stu-1", from, to)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Slot)
	assert.Equal(t, model.TimeSlotEvening, records[0].Slot.TimeSlot)
	assert.NoError(t, mock.ExpectationsWereMet())
}
