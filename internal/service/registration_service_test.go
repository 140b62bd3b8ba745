package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-credit-api/internal/lifecycle"
	"github.com/noah-isme/activity-credit-api/internal/models"
	appErrors "github.com/noah-isme/activity-credit-api/pkg/errors"
)

type fakeRegStore struct {
	byPair      map[string]*models.Registration
	active      map[string]int
	created     *models.Registration
	cancelled   []string
	reactivated []string
	rows        []models.RegistrationRow
	sweepIDs    []string
	swept       [][]string
}

func (m *fakeRegStore) FindByStudentAndActivity(ctx context.Context, studentID, activityID string) (*models.Registration, error) {
	return m.byPair[studentID+"|"+activityID], nil
}

func (m *fakeRegStore) CountActive(ctx context.Context, activityID string) (int, error) {
	return m.active[activityID], nil
}

func (m *fakeRegStore) Create(ctx context.Context, reg *models.Registration) error {
	m.created = reg
	return nil
}

func (m *fakeRegStore) Cancel(ctx context.Context, id string, reason *string, at time.Time) error {
	m.cancelled = append(m.cancelled, id)
	return nil
}

func (m *fakeRegStore) Reactivate(ctx context.Context, id string, at time.Time) error {
	m.reactivated = append(m.reactivated, id)
	return nil
}

func (m *fakeRegStore) ListByStudent(ctx context.Context, studentID string, filter models.RegistrationFilter) ([]models.RegistrationRow, error) {
	return m.rows, nil
}

func (m *fakeRegStore) SweepEligibleIDs(ctx context.Context, studentID string, now time.Time) ([]string, error) {
	return m.sweepIDs, nil
}

func (m *fakeRegStore) MarkAbsent(ctx context.Context, ids []string, at time.Time) (int64, error) {
	m.swept = append(m.swept, ids)
	return int64(len(ids)), nil
}

func newRegistrationFixture(store *fakeRegStore, activity *models.Activity, profiles *fakeProfileRepo, now time.Time) (*RegistrationService, *fakeNotifier) {
	notifier := &fakeNotifier{}
	svc := NewRegistrationService(RegistrationServiceDeps{
		Registrations: store,
		Activities:    &fakeActivityRepo{activities: map[string]*models.Activity{activity.ID: activity}},
		Ledger:        &fakeLedgerRepo{summaries: map[string]models.LedgerSummary{}},
		Feedbacks:     &fakeFeedbackRepo{},
		Profiles:      profiles,
		Notifications: notifier,
		MinEnrolled:   5,
		Now:           func() time.Time { return now },
	})
	return svc, notifier
}

func qrActivity() *models.Activity {
	return &models.Activity{
		ID:              "act-1",
		Title:           "Blood donation drive",
		StartTime:       attStart,
		EndTime:         attEnd,
		Method:          models.MethodQR,
		MaxParticipants: 2,
		CreditPoints:    5,
		Published:       true,
	}
}

func TestRegisterCreatesFirstCycle(t *testing.T) {
	store := &fakeRegStore{byPair: map[string]*models.Registration{}}
	svc, notifier := newRegistrationFixture(store, qrActivity(), &fakeProfileRepo{}, attStart.Add(-24*time.Hour))

	reg, err := svc.Register(context.Background(), "student-1", "act-1")
	require.NoError(t, err)

	assert.Equal(t, models.StatusRegistered, reg.Status)
	assert.Equal(t, 1, reg.Cycle)
	require.NotNil(t, store.created)
	assert.NotEmpty(t, store.created.ID)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, NotificationRegistration, notifier.sent[0].Type)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	store := &fakeRegStore{byPair: map[string]*models.Registration{
		"student-1|act-1": {ID: "reg-1", Status: models.StatusRegistered, Cycle: 1},
	}}
	svc, _ := newRegistrationFixture(store, qrActivity(), &fakeProfileRepo{}, attStart.Add(-24*time.Hour))

	_, err := svc.Register(context.Background(), "student-1", "act-1")
	assert.ErrorIs(t, err, appErrors.ErrAlreadyRegistered)
}

func TestRegisterEnforcesCapacity(t *testing.T) {
	store := &fakeRegStore{byPair: map[string]*models.Registration{}, active: map[string]int{"act-1": 2}}
	svc, _ := newRegistrationFixture(store, qrActivity(), &fakeProfileRepo{}, attStart.Add(-24*time.Hour))

	_, err := svc.Register(context.Background(), "student-1", "act-1")
	assert.ErrorIs(t, err, appErrors.ErrActivityFull)
}

func TestRegisterRejectsEndedAndUnpublished(t *testing.T) {
	store := &fakeRegStore{byPair: map[string]*models.Registration{}}
	svc, _ := newRegistrationFixture(store, qrActivity(), &fakeProfileRepo{}, attEnd.Add(time.Hour))
	_, err := svc.Register(context.Background(), "student-1", "act-1")
	assert.ErrorIs(t, err, appErrors.ErrEnded)

	hidden := qrActivity()
	hidden.Published = false
	svc, _ = newRegistrationFixture(store, hidden, &fakeProfileRepo{}, attStart.Add(-time.Hour))
	_, err = svc.Register(context.Background(), "student-1", "act-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestRegisterPhotoActivityRequiresEnrollment(t *testing.T) {
	photo := qrActivity()
	photo.Method = models.MethodPhoto
	store := &fakeRegStore{byPair: map[string]*models.Registration{}}

	svc, _ := newRegistrationFixture(store, photo, &fakeProfileRepo{profiles: map[string]*models.FaceProfile{}}, attStart.Add(-time.Hour))
	_, err := svc.Register(context.Background(), "student-1", "act-1")
	assert.ErrorIs(t, err, appErrors.ErrNotEnrolled)

	profiles := &fakeProfileRepo{profiles: map[string]*models.FaceProfile{"student-1": enrolledProfile(t, 5)}}
	svc, _ = newRegistrationFixture(store, photo, profiles, attStart.Add(-time.Hour))
	_, err = svc.Register(context.Background(), "student-1", "act-1")
	assert.NoError(t, err)
}

func TestRegisterReactivatesCancelledCycle(t *testing.T) {
	cancelled := &models.Registration{
		ID:         "reg-1",
		ActivityID: "act-1",
		StudentID:  "student-1",
		Status:     models.StatusCancelled,
		Cycle:      2,
	}
	store := &fakeRegStore{byPair: map[string]*models.Registration{"student-1|act-1": cancelled}}
	svc, _ := newRegistrationFixture(store, qrActivity(), &fakeProfileRepo{}, attStart.Add(-time.Hour))

	reg, err := svc.Register(context.Background(), "student-1", "act-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"reg-1"}, store.reactivated)
	assert.Equal(t, models.StatusRegistered, reg.Status)
	// The bumped cycle gives the new participation a fresh ledger.
	assert.Equal(t, 3, reg.Cycle)
	assert.Nil(t, reg.CancelReason)
	assert.Nil(t, reg.CompletedAt)
}

func TestCancelRegistration(t *testing.T) {
	store := &fakeRegStore{byPair: map[string]*models.Registration{
		"student-1|act-1": {ID: "reg-1", StudentID: "student-1", Status: models.StatusRegistered},
	}}
	svc, _ := newRegistrationFixture(store, qrActivity(), &fakeProfileRepo{}, attStart.Add(-time.Hour))

	require.NoError(t, svc.Cancel(context.Background(), "student-1", "act-1", nil))
	assert.Equal(t, []string{"reg-1"}, store.cancelled)

	err := svc.Cancel(context.Background(), "student-2", "act-1", nil)
	assert.ErrorIs(t, err, appErrors.ErrNotRegistered)
}

func TestCancelRejectsSettledParticipation(t *testing.T) {
	store := &fakeRegStore{byPair: map[string]*models.Registration{
		"student-1|act-1": {ID: "reg-1", StudentID: "student-1", Status: models.StatusAttended},
	}}
	svc, _ := newRegistrationFixture(store, qrActivity(), &fakeProfileRepo{}, attEnd.Add(time.Hour))

	err := svc.Cancel(context.Background(), "student-1", "act-1", nil)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestSweepAbsencesIsIdempotent(t *testing.T) {
	store := &fakeRegStore{sweepIDs: []string{"reg-1", "reg-2"}}
	svc, _ := newRegistrationFixture(store, qrActivity(), &fakeProfileRepo{}, attEnd.Add(25*time.Hour))

	swept, err := svc.SweepAbsences(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), swept)

	store.sweepIDs = nil
	swept, err = svc.SweepAbsences(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Zero(t, swept)
	assert.Len(t, store.swept, 1)
}

func TestListProjectsDerivedState(t *testing.T) {
	now := attStart.Add(30 * time.Minute)
	row := models.RegistrationRow{
		Registration: models.Registration{
			ID:         "reg-1",
			ActivityID: "act-1",
			StudentID:  "student-1",
			Status:     models.StatusRegistered,
			Cycle:      1,
		},
		ActivityTitle:  "Blood donation drive",
		ActivityStart:  attStart,
		ActivityEnd:    attEnd,
		ActivityMethod: models.MethodQR,
		CreditPoints:   5,
	}
	store := &fakeRegStore{rows: []models.RegistrationRow{row}}
	svc, _ := newRegistrationFixture(store, qrActivity(), &fakeProfileRepo{}, now)

	views, err := svc.List(context.Background(), "student-1", models.RegistrationFilter{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, lifecycle.StateAttendanceOpen, views[0].State)
	assert.Nil(t, views[0].FeedbackAvailableAt)
}

func TestListExposesFeedbackAvailability(t *testing.T) {
	completed := attEnd.Add(-time.Hour)
	row := models.RegistrationRow{
		Registration: models.Registration{
			ID:          "reg-1",
			ActivityID:  "act-1",
			StudentID:   "student-1",
			Status:      models.StatusAttended,
			Cycle:       1,
			CompletedAt: &completed,
		},
		ActivityTitle:  "Blood donation drive",
		ActivityStart:  attStart,
		ActivityEnd:    attEnd,
		ActivityMethod: models.MethodQR,
		CreditPoints:   5,
	}
	store := &fakeRegStore{rows: []models.RegistrationRow{row}}
	svc, _ := newRegistrationFixture(store, qrActivity(), &fakeProfileRepo{}, attEnd.Add(time.Hour))

	views, err := svc.List(context.Background(), "student-1", models.RegistrationFilter{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, lifecycle.StateFeedbackWaiting, views[0].State)
	require.NotNil(t, views[0].FeedbackAvailableAt)
	// No approval or check-in recorded, so the anchor is the activity end.
	assert.Equal(t, attEnd.Add(24*time.Hour), *views[0].FeedbackAvailableAt)
}
