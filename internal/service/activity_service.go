package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/activity-credit-api/internal/models"
	appErrors "github.com/noah-isme/activity-credit-api/pkg/errors"
)

type activityRepository interface {
	FindByID(ctx context.Context, id string) (*models.Activity, error)
	List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityView, int, error)
}

type activityProfileReader interface {
	Get(ctx context.Context, userID string) (*models.FaceProfile, error)
}

// ActivityService serves the published activity catalogue.
type ActivityService struct {
	activities  activityRepository
	profiles    activityProfileReader
	cache       *CacheService
	minEnrolled int
	logger      *zap.Logger
}

// NewActivityService constructs the activity service. minEnrolled is
// the sample count photo-method activities require before registration.
func NewActivityService(activities activityRepository, profiles activityProfileReader, cache *CacheService, minEnrolled int, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if minEnrolled <= 0 {
		minEnrolled = 5
	}
	return &ActivityService{
		activities:  activities,
		profiles:    profiles,
		cache:       cache,
		minEnrolled: minEnrolled,
		logger:      logger,
	}
}

// ActivityListResult is a catalogue page.
type ActivityListResult struct {
	Items      []models.ActivityView `json:"items"`
	Total      int                   `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}

type cachedActivityPage struct {
	Items []models.ActivityView `json:"items"`
	Total int                   `json:"total"`
}

// List returns published activities. The page payload is cached per
// filter; the caller-specific requires-enrollment flag is computed
// after retrieval so cached pages stay shareable.
func (s *ActivityService) List(ctx context.Context, callerID string, filter models.ActivityFilter) (*ActivityListResult, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	key := activityListCacheKey(filter)
	var page cachedActivityPage
	hit := false
	if s.cache != nil {
		hit, _ = s.cache.Get(ctx, key, &page)
	}
	if !hit {
		items, total, err := s.activities.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activities")
		}
		page = cachedActivityPage{Items: items, Total: total}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, page, 0); err != nil {
				s.logger.Warn("failed to cache activity page", zap.String("key", key), zap.Error(err))
			}
		}
	}

	if err := s.annotateEnrollment(ctx, callerID, page.Items); err != nil {
		return nil, err
	}

	totalPages := 0
	if filter.PageSize > 0 {
		totalPages = (page.Total + filter.PageSize - 1) / filter.PageSize
	}
	return &ActivityListResult{
		Items:      page.Items,
		Total:      page.Total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: totalPages,
	}, nil
}

// Get returns one published activity with the caller's enrollment flag.
func (s *ActivityService) Get(ctx context.Context, callerID, activityID string) (*models.ActivityView, error) {
	activity, err := s.activities.FindByID(ctx, activityID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}
	if !activity.Published {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
	}

	view := models.ActivityView{Activity: *activity}
	views := []models.ActivityView{view}
	if err := s.annotateEnrollment(ctx, callerID, views); err != nil {
		return nil, err
	}
	return &views[0], nil
}

// InvalidateCatalogue drops cached catalogue pages, called after
// administrative changes to activities.
func (s *ActivityService) InvalidateCatalogue(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, "activities:*"); err != nil {
		s.logger.Warn("failed to invalidate activity cache", zap.Error(err))
	}
}

// annotateEnrollment marks photo-method activities the caller cannot
// yet register for. One profile load covers the whole page.
func (s *ActivityService) annotateEnrollment(ctx context.Context, callerID string, views []models.ActivityView) error {
	needsProfile := false
	for _, v := range views {
		if v.Method.RequiresBiometric() {
			needsProfile = true
			break
		}
	}
	if !needsProfile || callerID == "" {
		return nil
	}

	profile, err := s.profiles.Get(ctx, callerID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load face profile")
	}
	enrolled := profile.Usable(s.minEnrolled)
	for i := range views {
		views[i].RequiresEnrollment = views[i].Method.RequiresBiometric() && !enrolled
	}
	return nil
}

func activityListCacheKey(filter models.ActivityFilter) string {
	from, to := "", ""
	if filter.From != nil {
		from = filter.From.UTC().Format("20060102T1504")
	}
	if filter.To != nil {
		to = filter.To.UTC().Format("20060102T1504")
	}
	return fmt.Sprintf("activities:%s:%s:%s:%s:%s:%s:%d:%d",
		filter.Method, from, to, filter.Search, filter.SortBy, filter.SortOrder, filter.Page, filter.PageSize)
}
