package service

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/activity-credit-api/internal/face"
	"github.com/noah-isme/activity-credit-api/internal/lifecycle"
	"github.com/noah-isme/activity-credit-api/internal/models"
	"github.com/noah-isme/activity-credit-api/internal/repository"
	appErrors "github.com/noah-isme/activity-credit-api/pkg/errors"
	"github.com/noah-isme/activity-credit-api/pkg/storage"
)

var (
	attStart = time.Date(2026, 4, 18, 8, 0, 0, 0, time.UTC)
	attEnd   = attStart.Add(3 * time.Hour)
)

type fakeRegistrationRepo struct {
	byPair map[string]*models.Registration
	byID   map[string]*models.Registration
}

func (m *fakeRegistrationRepo) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	if r, ok := m.byID[id]; ok {
		return r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *fakeRegistrationRepo) FindByStudentAndActivity(ctx context.Context, studentID, activityID string) (*models.Registration, error) {
	return m.byPair[studentID+"|"+activityID], nil
}

type fakeActivityRepo struct {
	activities map[string]*models.Activity
}

func (m *fakeActivityRepo) FindByID(ctx context.Context, id string) (*models.Activity, error) {
	if a, ok := m.activities[id]; a != nil && ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *fakeActivityRepo) List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityView, int, error) {
	views := make([]models.ActivityView, 0, len(m.activities))
	for _, a := range m.activities {
		views = append(views, models.ActivityView{Activity: *a})
	}
	return views, len(views), nil
}

type fakeLedgerRepo struct {
	summaries  map[string]models.LedgerSummary
	entries    []models.AttendanceEntry
	appendErrs []error
	lastStatus *models.RegistrationStatus
	lastDone   *time.Time
	resolved   map[string]models.MatchVerdict
	entryByID  map[string]*models.AttendanceEntry
}

func (m *fakeLedgerRepo) ListByRegistration(ctx context.Context, registrationID string, cycle int) ([]models.AttendanceEntry, error) {
	var out []models.AttendanceEntry
	for _, e := range m.entries {
		if e.RegistrationID == registrationID && e.Cycle == cycle {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *fakeLedgerRepo) Summarize(ctx context.Context, registrationID string, cycle int) (models.LedgerSummary, error) {
	return m.summaries[registrationID], nil
}

func (m *fakeLedgerRepo) Append(ctx context.Context, entry *models.AttendanceEntry, newStatus *models.RegistrationStatus, completedAt *time.Time) error {
	if len(m.appendErrs) > 0 {
		err := m.appendErrs[0]
		m.appendErrs = m.appendErrs[1:]
		if err != nil {
			return err
		}
	}
	m.entries = append(m.entries, *entry)
	m.lastStatus = newStatus
	m.lastDone = completedAt
	return nil
}

func (m *fakeLedgerRepo) ListForReview(ctx context.Context, filter models.AttendanceEntryFilter) ([]models.AttendanceEntryDetail, error) {
	var out []models.AttendanceEntryDetail
	for _, e := range m.entries {
		if e.Verdict != nil && *e.Verdict == filter.Verdict {
			out = append(out, models.AttendanceEntryDetail{AttendanceEntry: e})
		}
	}
	return out, nil
}

func (m *fakeLedgerRepo) FindEntry(ctx context.Context, id string) (*models.AttendanceEntry, error) {
	if e, ok := m.entryByID[id]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *fakeLedgerRepo) Resolve(ctx context.Context, entryID string, verdict models.MatchVerdict, reviewerID string, at time.Time) error {
	if m.resolved == nil {
		m.resolved = make(map[string]models.MatchVerdict)
	}
	m.resolved[entryID] = verdict
	return nil
}

type fakeProfileRepo struct {
	profiles map[string]*models.FaceProfile
	upserted *models.FaceProfile
	previous models.SampleRefs
}

func (m *fakeProfileRepo) Get(ctx context.Context, userID string) (*models.FaceProfile, error) {
	return m.profiles[userID], nil
}

func (m *fakeProfileRepo) Upsert(ctx context.Context, profile *models.FaceProfile) (models.SampleRefs, error) {
	m.upserted = profile
	return m.previous, nil
}

type fakeFeedbackRepo struct {
	byRegistration map[string]*models.Feedback
	byID           map[string]*models.Feedback
	created        *models.Feedback
	updated        map[string]models.FeedbackStatus
}

func (m *fakeFeedbackRepo) FindByRegistration(ctx context.Context, registrationID string) (*models.Feedback, error) {
	return m.byRegistration[registrationID], nil
}

func (m *fakeFeedbackRepo) FindByRegistrations(ctx context.Context, registrationIDs []string) (map[string]*models.Feedback, error) {
	out := make(map[string]*models.Feedback)
	for _, id := range registrationIDs {
		if fb := m.byRegistration[id]; fb != nil {
			out[id] = fb
		}
	}
	return out, nil
}

func (m *fakeFeedbackRepo) FindByID(ctx context.Context, id string) (*models.Feedback, error) {
	if fb, ok := m.byID[id]; ok {
		return fb, nil
	}
	return nil, sql.ErrNoRows
}

func (m *fakeFeedbackRepo) Create(ctx context.Context, fb *models.Feedback) error {
	m.created = fb
	if m.byRegistration == nil {
		m.byRegistration = make(map[string]*models.Feedback)
	}
	m.byRegistration[fb.RegistrationID] = fb
	return nil
}

func (m *fakeFeedbackRepo) UpdateStatus(ctx context.Context, id string, status models.FeedbackStatus, reviewerID string, note *string, at time.Time) error {
	if m.updated == nil {
		m.updated = make(map[string]models.FeedbackStatus)
	}
	m.updated[id] = status
	return nil
}

type fakeStorage struct {
	mu      sync.Mutex
	uploads int
	deleted map[string][]string
	fail    bool
}

func (m *fakeStorage) Upload(ctx context.Context, data []byte, pathHint string) (storage.ObjectRef, error) {
	if m.fail {
		return storage.ObjectRef{}, errors.New("storage down")
	}
	m.mu.Lock()
	m.uploads++
	m.mu.Unlock()
	return storage.ObjectRef{Bucket: "evidence", Path: "2026/04/18/" + pathHint, URL: "file:///evidence/" + pathHint}, nil
}

func (m *fakeStorage) Delete(ctx context.Context, bucket string, paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleted == nil {
		m.deleted = make(map[string][]string)
	}
	m.deleted[bucket] = append(m.deleted[bucket], paths...)
	return nil
}

func (m *fakeStorage) deletedPaths(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted[bucket]...)
}

type fakeNotifier struct {
	sent []Notification
}

func (m *fakeNotifier) Notify(n Notification) {
	m.sent = append(m.sent, n)
}

func rawDescriptor(first float64) []float64 {
	d := make([]float64, face.DescriptorLength)
	d[0] = first
	return d
}

func enrolledProfile(t *testing.T, count int) *models.FaceProfile {
	t.Helper()
	raw := make([][]float64, count)
	for i := range raw {
		raw[i] = rawDescriptor(0)
	}
	set, err := face.ParseDescriptorSet(raw, count)
	require.NoError(t, err)
	return &models.FaceProfile{UserID: "student-1", Descriptors: set}
}

type attendanceFixture struct {
	svc      *AttendanceService
	regs     *fakeRegistrationRepo
	ledger   *fakeLedgerRepo
	profiles *fakeProfileRepo
	notifier *fakeNotifier
	store    *fakeStorage
}

func newAttendanceFixture(t *testing.T, method models.AttendanceMethod, status models.RegistrationStatus, summary models.LedgerSummary, now time.Time) *attendanceFixture {
	t.Helper()
	reg := &models.Registration{
		ID:         "reg-1",
		ActivityID: "act-1",
		StudentID:  "student-1",
		Status:     status,
		Cycle:      1,
	}
	f := &attendanceFixture{
		regs: &fakeRegistrationRepo{
			byPair: map[string]*models.Registration{"student-1|act-1": reg},
			byID:   map[string]*models.Registration{"reg-1": reg},
		},
		ledger:   &fakeLedgerRepo{summaries: map[string]models.LedgerSummary{"reg-1": summary}},
		profiles: &fakeProfileRepo{profiles: map[string]*models.FaceProfile{}},
		notifier: &fakeNotifier{},
		store:    &fakeStorage{},
	}
	activities := &fakeActivityRepo{activities: map[string]*models.Activity{
		"act-1": {
			ID:           "act-1",
			Title:        "Beach cleanup",
			StartTime:    attStart,
			EndTime:      attEnd,
			Method:       method,
			CreditPoints: 10,
			Published:    true,
		},
	}}
	f.svc = NewAttendanceService(AttendanceServiceDeps{
		Registrations: f.regs,
		Activities:    activities,
		Ledger:        f.ledger,
		Profiles:      f.profiles,
		Feedbacks:     &fakeFeedbackRepo{},
		Storage:       f.store,
		Notifications: f.notifier,
		MinEnrolled:   3,
		Now:           func() time.Time { return now },
	})
	return f
}

func TestRecordCheckinForQRActivity(t *testing.T) {
	f := newAttendanceFixture(t, models.MethodQR, models.StatusRegistered, models.LedgerSummary{}, attStart.Add(10*time.Minute))

	res, err := f.svc.Record(context.Background(), "student-1", "act-1", RecordAttendanceRequest{Phase: "checkin"})
	require.NoError(t, err)

	assert.Equal(t, lifecycle.StateConfirmOut, res.State)
	assert.False(t, res.RequiresReview)
	require.Len(t, f.ledger.entries, 1)
	assert.Equal(t, models.PhaseCheckin, f.ledger.entries[0].Phase)
	assert.Nil(t, f.ledger.entries[0].Verdict)
	assert.Nil(t, f.ledger.lastStatus)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, NotificationAttendanceRecorded, f.notifier.sent[0].Type)
}

func TestRecordWindowBoundariesAreInclusive(t *testing.T) {
	for _, now := range []time.Time{attStart, attEnd} {
		f := newAttendanceFixture(t, models.MethodQR, models.StatusRegistered, models.LedgerSummary{}, now)
		_, err := f.svc.Record(context.Background(), "student-1", "act-1", RecordAttendanceRequest{Phase: "CHECKIN"})
		assert.NoError(t, err, "boundary instant %s should be accepted", now)
	}
}

func TestRecordOutsideWindow(t *testing.T) {
	f := newAttendanceFixture(t, models.MethodQR, models.StatusRegistered, models.LedgerSummary{}, attStart.Add(-time.Second))
	_, err := f.svc.Record(context.Background(), "student-1", "act-1", RecordAttendanceRequest{Phase: "CHECKIN"})
	assert.ErrorIs(t, err, appErrors.ErrNotStarted)

	f = newAttendanceFixture(t, models.MethodQR, models.StatusRegistered, models.LedgerSummary{}, attEnd.Add(time.Second))
	_, err = f.svc.Record(context.Background(), "student-1", "act-1", RecordAttendanceRequest{Phase: "CHECKIN"})
	assert.ErrorIs(t, err, appErrors.ErrEnded)
}

func TestRecordRequiresActiveRegistration(t *testing.T) {
	f := newAttendanceFixture(t, models.MethodQR, models.StatusCancelled, models.LedgerSummary{}, attStart.Add(time.Minute))
	_, err := f.svc.Record(context.Background(), "student-1", "act-1", RecordAttendanceRequest{Phase: "CHECKIN"})
	assert.ErrorIs(t, err, appErrors.ErrNotRegistered)

	_, err = f.svc.Record(context.Background(), "student-2", "act-1", RecordAttendanceRequest{Phase: "CHECKIN"})
	assert.ErrorIs(t, err, appErrors.ErrNotRegistered)
}

func TestRecordPhaseOrderGuards(t *testing.T) {
	checkin := attStart.Add(5 * time.Minute)

	f := newAttendanceFixture(t, models.MethodQR, models.StatusRegistered, models.LedgerSummary{CheckinAt: &checkin}, attStart.Add(time.Hour))
	_, err := f.svc.Record(context.Background(), "student-1", "act-1", RecordAttendanceRequest{Phase: "CHECKIN"})
	assert.ErrorIs(t, err, appErrors.ErrDuplicatePhase)

	f = newAttendanceFixture(t, models.MethodQR, models.StatusRegistered, models.LedgerSummary{}, attStart.Add(time.Hour))
	_, err = f.svc.Record(context.Background(), "student-1", "act-1", RecordAttendanceRequest{Phase: "CHECKOUT"})
	assert.ErrorIs(t, err, appErrors.ErrCheckinRequired)

	checkout := attStart.Add(2 * time.Hour)
	f = newAttendanceFixture(t, models.MethodQR, models.StatusRegistered, models.LedgerSummary{CheckinAt: &checkin, CheckoutAt: &checkout}, attStart.Add(150*time.Minute))
	_, err = f.svc.Record(context.Background(), "student-1", "act-1", RecordAttendanceRequest{Phase: "CHECKOUT"})
	assert.ErrorIs(t, err, appErrors.ErrDuplicatePhase)
}

func TestRecordPhotoActivityRequiresEnrollment(t *testing.T) {
	f := newAttendanceFixture(t, models.MethodPhoto, models.StatusRegistered, models.LedgerSummary{}, attStart.Add(time.Minute))
	_, err := f.svc.Record(context.Background(), "student-1", "act-1", RecordAttendanceRequest{Phase: "CHECKIN", Descriptor: rawDescriptor(0)})
	assert.ErrorIs(t, err, appErrors.ErrNotEnrolled)
}

func TestRecordPhotoActivityRequiresDescriptor(t *testing.T) {
	f := newAttendanceFixture(t, models.MethodPhoto, models.StatusRegistered, models.LedgerSummary{}, attStart.Add(time.Minute))
	f.profiles.profiles["student-1"] = enrolledProfile(t, 3)

	_, err := f.svc.Record(context.Background(), "student-1", "act-1", RecordAttendanceRequest{Phase: "CHECKIN"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestRecordApprovedCheckoutCompletesCycle(t *testing.T) {
	checkin := attStart.Add(5 * time.Minute)
	now := attStart.Add(2 * time.Hour)
	f := newAttendanceFixture(t, models.MethodPhoto, models.StatusRegistered, models.LedgerSummary{CheckinAt: &checkin}, now)
	f.profiles.profiles["student-1"] = enrolledProfile(t, 3)

	res, err := f.svc.Record(context.Background(), "student-1", "act-1", RecordAttendanceRequest{Phase: "CHECKOUT", Descriptor: rawDescriptor(0)})
	require.NoError(t, err)

	require.NotNil(t, f.ledger.lastStatus)
	assert.Equal(t, models.StatusAttended, *f.ledger.lastStatus)
	require.NotNil(t, f.ledger.lastDone)
	require.NotNil(t, res.Entry.Verdict)
	assert.Equal(t, models.VerdictApproved, *res.Entry.Verdict)
	assert.False(t, res.RequiresReview)
	// Completed registrations move to the feedback track.
	assert.Equal(t, lifecycle.StateFeedbackWaiting, res.State)
}

func TestRecordAbsentCheckoutSettlesAsAbsent(t *testing.T) {
	checkin := attStart.Add(5 * time.Minute)
	now := attStart.Add(2 * time.Hour)
	f := newAttendanceFixture(t, models.MethodPhoto, models.StatusRegistered, models.LedgerSummary{CheckinAt: &checkin}, now)
	f.profiles.profiles["student-1"] = enrolledProfile(t, 3)

	// Declaring absence skips face verification entirely.
	res, err := f.svc.Record(context.Background(), "student-1", "act-1", RecordAttendanceRequest{Phase: "CHECKOUT", Absent: true})
	require.NoError(t, err)

	require.NotNil(t, f.ledger.lastStatus)
	assert.Equal(t, models.StatusAbsent, *f.ledger.lastStatus)
	require.NotNil(t, f.ledger.lastDone)
	assert.Nil(t, res.Entry.Verdict)
	assert.False(t, res.RequiresReview)
	assert.Equal(t, "absence recorded", res.Message)
	assert.Equal(t, lifecycle.StateAttendanceClosed, res.State)
}

func TestRecordRejectedCheckinKeepsRegistrationOpen(t *testing.T) {
	now := attStart.Add(5 * time.Minute)
	f := newAttendanceFixture(t, models.MethodPhoto, models.StatusRegistered, models.LedgerSummary{}, now)
	f.profiles.profiles["student-1"] = enrolledProfile(t, 3)

	res, err := f.svc.Record(context.Background(), "student-1", "act-1", RecordAttendanceRequest{Phase: "CHECKIN", Descriptor: rawDescriptor(0.9)})
	require.NoError(t, err)

	// The rejected check-in still lands in the ledger, flagged for a
	// reviewer, but the registration does not move: only check-out
	// transitions.
	require.Len(t, f.ledger.entries, 1)
	require.NotNil(t, f.ledger.entries[0].Verdict)
	assert.Equal(t, models.VerdictRejected, *f.ledger.entries[0].Verdict)
	assert.True(t, res.RequiresReview)
	assert.Nil(t, f.ledger.lastStatus)
	assert.Nil(t, f.ledger.lastDone)
	assert.Equal(t, lifecycle.StateConfirmOut, res.State)
}

func TestRecordRejectedMatchIsStillRecorded(t *testing.T) {
	checkin := attStart.Add(5 * time.Minute)
	now := attStart.Add(2 * time.Hour)
	f := newAttendanceFixture(t, models.MethodPhoto, models.StatusRegistered, models.LedgerSummary{CheckinAt: &checkin}, now)
	f.profiles.profiles["student-1"] = enrolledProfile(t, 3)

	res, err := f.svc.Record(context.Background(), "student-1", "act-1", RecordAttendanceRequest{Phase: "CHECKOUT", Descriptor: rawDescriptor(0.9)})
	require.NoError(t, err)

	require.Len(t, f.ledger.entries, 1)
	require.NotNil(t, f.ledger.entries[0].Verdict)
	assert.Equal(t, models.VerdictRejected, *f.ledger.entries[0].Verdict)
	assert.True(t, res.RequiresReview)
	require.NotNil(t, f.ledger.lastStatus)
	assert.Equal(t, models.StatusPendingReview, *f.ledger.lastStatus)
	assert.Nil(t, f.ledger.lastDone)
	assert.Equal(t, lifecycle.StateAttendanceReview, res.State)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, NotificationAttendanceReview, f.notifier.sent[0].Type)
}

func TestRecordReviewVerdictCompletesButFlags(t *testing.T) {
	checkin := attStart.Add(5 * time.Minute)
	f := newAttendanceFixture(t, models.MethodPhoto, models.StatusRegistered, models.LedgerSummary{CheckinAt: &checkin}, attStart.Add(time.Hour))
	f.profiles.profiles["student-1"] = enrolledProfile(t, 3)

	res, err := f.svc.Record(context.Background(), "student-1", "act-1", RecordAttendanceRequest{Phase: "CHECKOUT", Descriptor: rawDescriptor(0.5)})
	require.NoError(t, err)

	require.NotNil(t, res.Entry.Verdict)
	assert.Equal(t, models.VerdictReview, *res.Entry.Verdict)
	assert.True(t, res.RequiresReview)
	require.NotNil(t, f.ledger.lastStatus)
	assert.Equal(t, models.StatusAttended, *f.ledger.lastStatus)
}

func TestRecordStoresEvidence(t *testing.T) {
	f := newAttendanceFixture(t, models.MethodQR, models.StatusRegistered, models.LedgerSummary{}, attStart.Add(time.Minute))
	payload := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))

	res, err := f.svc.Record(context.Background(), "student-1", "act-1", RecordAttendanceRequest{Phase: "CHECKIN", Evidence: payload})
	require.NoError(t, err)

	assert.Equal(t, 1, f.store.uploads)
	require.NotNil(t, res.Entry.EvidencePath)
	assert.Contains(t, *res.Entry.EvidencePath, "checkin-reg-1")
}

func TestRecordRejectsMalformedEvidence(t *testing.T) {
	f := newAttendanceFixture(t, models.MethodQR, models.StatusRegistered, models.LedgerSummary{}, attStart.Add(time.Minute))
	_, err := f.svc.Record(context.Background(), "student-1", "act-1", RecordAttendanceRequest{Phase: "CHECKIN", Evidence: "%%%not-base64%%%"})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Empty(t, f.ledger.entries)
}

func TestRecordRetriesSerializationConflictOnce(t *testing.T) {
	f := newAttendanceFixture(t, models.MethodQR, models.StatusRegistered, models.LedgerSummary{}, attStart.Add(time.Minute))
	f.ledger.appendErrs = []error{repository.ErrTxConflict}

	_, err := f.svc.Record(context.Background(), "student-1", "act-1", RecordAttendanceRequest{Phase: "CHECKIN"})
	assert.NoError(t, err)
	assert.Len(t, f.ledger.entries, 1)
}

func TestRecordGivesUpAfterSecondConflict(t *testing.T) {
	f := newAttendanceFixture(t, models.MethodQR, models.StatusRegistered, models.LedgerSummary{}, attStart.Add(time.Minute))
	f.ledger.appendErrs = []error{repository.ErrTxConflict, repository.ErrTxConflict}

	_, err := f.svc.Record(context.Background(), "student-1", "act-1", RecordAttendanceRequest{Phase: "CHECKIN"})
	require.Error(t, err)
	assert.Empty(t, f.ledger.entries)
}

func TestRecordSurfacesDuplicateFromUniqueIndex(t *testing.T) {
	// Concurrent submissions can both pass the summary guard; the
	// database unique index settles the race.
	f := newAttendanceFixture(t, models.MethodQR, models.StatusRegistered, models.LedgerSummary{}, attStart.Add(time.Minute))
	f.ledger.appendErrs = []error{appErrors.ErrDuplicatePhase}

	_, err := f.svc.Record(context.Background(), "student-1", "act-1", RecordAttendanceRequest{Phase: "CHECKIN"})
	assert.ErrorIs(t, err, appErrors.ErrDuplicatePhase)
}

func TestResolveEntry(t *testing.T) {
	review := models.VerdictReview
	f := newAttendanceFixture(t, models.MethodPhoto, models.StatusRegistered, models.LedgerSummary{}, attStart.Add(time.Minute))
	f.ledger.entryByID = map[string]*models.AttendanceEntry{
		"entry-1": {ID: "entry-1", RegistrationID: "reg-1", Verdict: &review},
	}

	require.NoError(t, f.svc.ResolveEntry(context.Background(), "teacher-1", "entry-1", true))
	assert.Equal(t, models.VerdictApproved, f.ledger.resolved["entry-1"])

	approved := models.VerdictApproved
	f.ledger.entryByID["entry-2"] = &models.AttendanceEntry{ID: "entry-2", Verdict: &approved}
	err := f.svc.ResolveEntry(context.Background(), "teacher-1", "entry-2", false)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestEvidenceLinkOwnership(t *testing.T) {
	path := "2026/04/18/checkin-reg-1.jpg"
	f := newAttendanceFixture(t, models.MethodQR, models.StatusRegistered, models.LedgerSummary{}, attStart.Add(time.Minute))
	f.ledger.entryByID = map[string]*models.AttendanceEntry{
		"entry-1": {ID: "entry-1", RegistrationID: "reg-1", EvidencePath: &path},
	}
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)

	token, _, err := f.svc.EvidenceLink(context.Background(), signer, "student-1", models.RoleStudent, "entry-1")
	require.NoError(t, err)
	entryID, relPath, _, err := signer.Parse(token, false)
	require.NoError(t, err)
	assert.Equal(t, "entry-1", entryID)
	assert.Equal(t, path, relPath)

	_, _, err = f.svc.EvidenceLink(context.Background(), signer, "student-2", models.RoleStudent, "entry-1")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, _, err = f.svc.EvidenceLink(context.Background(), signer, "teacher-1", models.RoleTeacher, "entry-1")
	assert.NoError(t, err)
}
