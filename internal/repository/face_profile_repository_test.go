package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-credit-api/internal/face"
	"github.com/noah-isme/activity-credit-api/internal/models"
)

func enrolledSet(t *testing.T, count int) face.DescriptorSet {
	t.Helper()
	raw := make([][]float64, count)
	for i := range raw {
		raw[i] = make([]float64, face.DescriptorLength)
		raw[i][0] = float64(i)
	}
	set, err := face.ParseDescriptorSet(raw, count)
	require.NoError(t, err)
	return set
}

func TestFaceProfileRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFaceProfileRepository(db)

	mock.ExpectQuery("SELECT user_id, descriptors, sample_refs").
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	profile, err := repo.Get(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Nil(t, profile)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFaceProfileRepositoryGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFaceProfileRepository(db)

	descriptors, err := json.Marshal(enrolledSet(t, 3))
	require.NoError(t, err)
	refs, err := json.Marshal(models.SampleRefs{{Bucket: "evidence", Path: "a"}})
	require.NoError(t, err)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"user_id", "descriptors", "sample_refs", "created_at", "updated_at"}).
		AddRow("stu-1", descriptors, refs, now, now)
	mock.ExpectQuery("SELECT user_id, descriptors, sample_refs").
		WithArgs("stu-1").
		WillReturnRows(rows)

	profile, err := repo.Get(context.Background(), "stu-1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	require.Len(t, profile.Descriptors, 3)
	require.Len(t, profile.SampleRefs, 1)
	require.True(t, profile.Usable(3))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFaceProfileRepositoryUpsertReturnsPreviousRefs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFaceProfileRepository(db)

	oldRefs, err := json.Marshal(models.SampleRefs{{Bucket: "evidence", Path: "old-1"}, {Bucket: "evidence", Path: "old-2"}})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT sample_refs FROM face_profiles").
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"sample_refs"}).AddRow(oldRefs))
	mock.ExpectExec("INSERT INTO face_profiles").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	previous, err := repo.Upsert(context.Background(), &models.FaceProfile{
		UserID:      "stu-1",
		Descriptors: enrolledSet(t, 3),
		SampleRefs:  models.SampleRefs{{Bucket: "evidence", Path: "new-1"}},
	})
	require.NoError(t, err)
	require.Len(t, previous, 2)
	require.Equal(t, "old-1", previous[0].Path)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFaceProfileRepositoryUpsertFirstEnrollment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFaceProfileRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT sample_refs FROM face_profiles").
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"sample_refs"}))
	mock.ExpectExec("INSERT INTO face_profiles").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	previous, err := repo.Upsert(context.Background(), &models.FaceProfile{
		UserID:      "stu-1",
		Descriptors: enrolledSet(t, 3),
	})
	require.NoError(t, err)
	require.Empty(t, previous)
	require.NoError(t, mock.ExpectationsWereMet())
}
