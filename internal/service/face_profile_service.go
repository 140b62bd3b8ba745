package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/activity-credit-api/internal/face"
	"github.com/noah-isme/activity-credit-api/internal/models"
	appErrors "github.com/noah-isme/activity-credit-api/pkg/errors"
	"github.com/noah-isme/activity-credit-api/pkg/jobs"
	"github.com/noah-isme/activity-credit-api/pkg/storage"
)

type faceProfileRepository interface {
	Get(ctx context.Context, userID string) (*models.FaceProfile, error)
	Upsert(ctx context.Context, profile *models.FaceProfile) (models.SampleRefs, error)
}

// FaceProfileService manages biometric enrollment. Raw descriptors stay
// inside this service and its repository; every outward shape is a
// summary.
type FaceProfileService struct {
	repo      faceProfileRepository
	store     storage.ObjectStorage
	cache     *CacheService
	reclaim   *jobs.Queue
	minCount  int
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewFaceProfileService constructs the face profile service. The
// reclaim queue deletes superseded enrollment samples off the request
// path; wire it with AttachReclaimQueue before Start.
func NewFaceProfileService(repo faceProfileRepository, store storage.ObjectStorage, cache *CacheService, minCount int, validate *validator.Validate, logger *zap.Logger, now func() time.Time) *FaceProfileService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if minCount <= 0 {
		minCount = 3
	}
	if now == nil {
		now = time.Now
	}
	return &FaceProfileService{
		repo:      repo,
		store:     store,
		cache:     cache,
		minCount:  minCount,
		validator: validate,
		logger:    logger,
		now:       now,
	}
}

// AttachReclaimQueue injects the background queue used to delete
// replaced samples.
func (s *FaceProfileService) AttachReclaimQueue(q *jobs.Queue) {
	s.reclaim = q
}

// EnrollRequest replaces the caller's profile wholesale. Samples are
// base64 photos captured alongside each descriptor; they are optional
// and stored for audit only.
type EnrollRequest struct {
	Descriptors [][]float64 `json:"descriptors" validate:"required,min=1"`
	Samples     []string    `json:"samples,omitempty"`
}

// Enroll validates and stores a fresh descriptor collection. Previous
// samples are reclaimed asynchronously after the swap commits.
func (s *FaceProfileService) Enroll(ctx context.Context, userID string, req EnrollRequest) (*models.FaceProfileSummary, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	set, err := face.ParseDescriptorSet(req.Descriptors, s.minCount)
	if err != nil {
		return nil, err
	}

	refs, err := s.storeSamples(ctx, userID, req.Samples)
	if err != nil {
		return nil, err
	}

	profile := &models.FaceProfile{
		UserID:      userID,
		Descriptors: set,
		SampleRefs:  refs,
		UpdatedAt:   s.now().UTC(),
	}
	previous, err := s.repo.Upsert(ctx, profile)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store face profile")
	}

	s.enqueueReclaim(userID, previous)
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, fmt.Sprintf("face-profile:%s", userID)); err != nil {
			s.logger.Warn("failed to invalidate face profile cache", zap.String("user_id", userID), zap.Error(err))
		}
	}

	s.logger.Info("face profile enrolled",
		zap.String("user_id", userID),
		zap.Int("descriptors", len(set)),
		zap.Int("samples", len(refs)),
		zap.Int("reclaimed", len(previous)))
	return summarize(profile), nil
}

// Summary returns the caller's enrollment status without descriptors.
func (s *FaceProfileService) Summary(ctx context.Context, userID string) (*models.FaceProfileSummary, error) {
	key := fmt.Sprintf("face-profile:%s", userID)
	if s.cache != nil {
		var cached models.FaceProfileSummary
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	profile, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load face profile")
	}
	summary := summarize(profile)
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, 0); err != nil {
			s.logger.Warn("failed to cache face profile summary", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return summary, nil
}

// Usable reports whether the user holds at least min enrolled
// descriptors. It serves the catalogue's requires-enrollment flag.
func (s *FaceProfileService) Usable(ctx context.Context, userID string, min int) (bool, error) {
	profile, err := s.repo.Get(ctx, userID)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load face profile")
	}
	return profile.Usable(min), nil
}

func (s *FaceProfileService) storeSamples(ctx context.Context, userID string, encoded []string) (models.SampleRefs, error) {
	if len(encoded) == 0 {
		return models.SampleRefs{}, nil
	}
	refs := make(models.SampleRefs, 0, len(encoded))
	for i, sample := range encoded {
		data, err := base64.StdEncoding.DecodeString(sample)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("sample %d must be base64 encoded", i))
		}
		ref, err := s.store.Upload(ctx, data, fmt.Sprintf("face-%s-%d.jpg", userID, i))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store enrollment sample")
		}
		refs = append(refs, models.SampleRef{Bucket: ref.Bucket, Path: ref.Path, URL: ref.URL})
	}
	return refs, nil
}

// enqueueReclaim schedules deletion of superseded samples. Enqueue
// failures are logged and dropped; orphaned objects are harmless and a
// later re-enrollment retries nothing.
func (s *FaceProfileService) enqueueReclaim(userID string, previous models.SampleRefs) {
	if s.reclaim == nil || len(previous) == 0 {
		return
	}
	err := s.reclaim.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    "face-sample-reclaim",
		Payload: previous,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue sample reclaim", zap.String("user_id", userID), zap.Error(err))
	}
}

// HandleReclaim is the queue handler deleting replaced samples grouped
// by bucket.
func (s *FaceProfileService) HandleReclaim(ctx context.Context, job jobs.Job) error {
	refs, ok := job.Payload.(models.SampleRefs)
	if !ok {
		return fmt.Errorf("unexpected reclaim payload %T", job.Payload)
	}
	byBucket := make(map[string][]string)
	for _, ref := range refs {
		byBucket[ref.Bucket] = append(byBucket[ref.Bucket], ref.Path)
	}
	for bucket, paths := range byBucket {
		if err := s.store.Delete(ctx, bucket, paths); err != nil {
			return fmt.Errorf("reclaim %d samples from %s: %w", len(paths), bucket, err)
		}
	}
	return nil
}

func summarize(profile *models.FaceProfile) *models.FaceProfileSummary {
	if profile == nil {
		return &models.FaceProfileSummary{}
	}
	updated := profile.UpdatedAt
	return &models.FaceProfileSummary{
		Registered:      len(profile.Descriptors) > 0,
		DescriptorCount: len(profile.Descriptors),
		SampleCount:     len(profile.SampleRefs),
		UpdatedAt:       &updated,
	}
}
