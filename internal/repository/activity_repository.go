package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/activity-credit-api/internal/models"
)

// ActivityRepository reads the published activity catalogue. Activity
// authoring lives in a separate admin system; this service only needs
// the read side plus registration counts.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

const activityColumns = `id, title, description, location, start_time, end_time, method, max_participants, credit_points, published, created_at, updated_at`

// FindByID returns an activity by its ID.
func (r *ActivityRepository) FindByID(ctx context.Context, id string) (*models.Activity, error) {
	query := fmt.Sprintf(`SELECT %s FROM activities WHERE id = $1`, activityColumns)
	var activity models.Activity
	if err := r.db.GetContext(ctx, &activity, query, id); err != nil {
		return nil, err
	}
	return &activity, nil
}

// List returns published activities with registration counts.
func (r *ActivityRepository) List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityView, int, error) {
	base := `FROM activities a
LEFT JOIN LATERAL (
    SELECT COUNT(*) AS registered_count FROM registrations r
    WHERE r.activity_id = a.id AND r.status IN ('DANG_KY', 'DA_THAM_GIA', 'CHO_DUYET')
) rc ON TRUE`
	conditions := []string{"a.published = TRUE"}
	var args []interface{}

	if filter.Method != "" {
		conditions = append(conditions, fmt.Sprintf("a.method = $%d", len(args)+1))
		args = append(args, filter.Method)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("a.start_time >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("a.end_time <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("a.title ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	clause := " WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"start_time": "a.start_time",
		"title":      "a.title",
		"created_at": "a.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "a.start_time"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT a.id, a.title, a.description, a.location, a.start_time, a.end_time,
        a.method, a.max_participants, a.credit_points, a.published, a.created_at, a.updated_at, rc.registered_count
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var activities []models.ActivityView
	if err := r.db.SelectContext(ctx, &activities, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list activities: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count activities: %w", err)
	}
	return activities, total, nil
}
