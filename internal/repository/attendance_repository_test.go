package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-credit-api/internal/models"
	appErrors "github.com/noah-isme/activity-credit-api/pkg/errors"
)

func TestAttendanceRepositoryAppendCheckin(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO attendance_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	entry := &models.AttendanceEntry{
		RegistrationID: "reg-1",
		Cycle:          1,
		Phase:          models.PhaseCheckin,
		CapturedAt:     time.Now(),
	}
	require.NoError(t, repo.Append(context.Background(), entry, nil, nil))
	require.NotEmpty(t, entry.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryAppendCheckoutTransitionsRegistration(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO attendance_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE registrations SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	completedAt := time.Now()
	status := models.StatusAttended
	entry := &models.AttendanceEntry{
		RegistrationID: "reg-1",
		Cycle:          1,
		Phase:          models.PhaseCheckout,
		CapturedAt:     completedAt,
	}
	require.NoError(t, repo.Append(context.Background(), entry, &status, &completedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryAppendDuplicatePhase(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO attendance_entries").
		WillReturnError(&pq.Error{Code: pq.ErrorCode(pgUniqueViolation)})
	mock.ExpectRollback()

	entry := &models.AttendanceEntry{RegistrationID: "reg-1", Cycle: 1, Phase: models.PhaseCheckin, CapturedAt: time.Now()}
	err := repo.Append(context.Background(), entry, nil, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, appErrors.ErrDuplicatePhase))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryAppendSerializationConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO attendance_entries").
		WillReturnError(&pq.Error{Code: pq.ErrorCode(pgSerializationFailure)})
	mock.ExpectRollback()

	entry := &models.AttendanceEntry{RegistrationID: "reg-1", Cycle: 1, Phase: models.PhaseCheckin, CapturedAt: time.Now()}
	err := repo.Append(context.Background(), entry, nil, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTxConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListForReviewPaginates(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "registration_id", "cycle", "phase", "captured_at", "note", "evidence_bucket", "evidence_path", "evidence_url", "verdict", "score", "resolved_by", "resolved_at", "created_at", "student_id", "student_name", "activity_id"}).
		AddRow("e-1", "reg-1", 1, models.PhaseCheckin, now, nil, nil, nil, nil, models.VerdictReview, 0.5, nil, nil, now, "stu-1", "An Nguyen", "act-1")
	mock.ExpectQuery(`SELECT .+ FROM attendance_entries e .+ WHERE e\.verdict = \$1 ORDER BY e\.captured_at DESC LIMIT 10 OFFSET 10`).
		WithArgs(models.VerdictReview).
		WillReturnRows(rows)

	entries, err := repo.ListForReview(context.Background(), models.AttendanceEntryFilter{
		Verdict:  models.VerdictReview,
		Page:     2,
		PageSize: 10,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "stu-1", entries[0].StudentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositorySummarize(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	checkin := time.Now().Add(-time.Hour)
	checkout := time.Now()
	rows := sqlmock.NewRows([]string{"id", "registration_id", "cycle", "phase", "captured_at", "note", "evidence_bucket", "evidence_path", "evidence_url", "verdict", "score", "resolved_by", "resolved_at", "created_at"}).
		AddRow("e-1", "reg-1", 1, models.PhaseCheckin, checkin, nil, nil, nil, nil, nil, nil, nil, nil, checkin).
		AddRow("e-2", "reg-1", 1, models.PhaseCheckout, checkout, nil, nil, nil, nil, nil, nil, nil, nil, checkout)
	mock.ExpectQuery("SELECT .+ FROM attendance_entries WHERE registration_id = \\$1 AND cycle = \\$2").
		WithArgs("reg-1", 1).
		WillReturnRows(rows)

	summary, err := repo.Summarize(context.Background(), "reg-1", 1)
	require.NoError(t, err)
	require.True(t, summary.HasCheckin())
	require.True(t, summary.HasCheckout())
	require.WithinDuration(t, checkin, *summary.CheckinAt, time.Second)
	require.NoError(t, mock.ExpectationsWereMet())
}
