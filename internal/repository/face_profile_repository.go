package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/activity-credit-api/internal/models"
)

// FaceProfileRepository persists per-user face enrollment profiles.
type FaceProfileRepository struct {
	db *sqlx.DB
}

// NewFaceProfileRepository constructs the repository.
func NewFaceProfileRepository(db *sqlx.DB) *FaceProfileRepository {
	return &FaceProfileRepository{db: db}
}

// Get returns the profile for a user, or nil when none is enrolled.
func (r *FaceProfileRepository) Get(ctx context.Context, userID string) (*models.FaceProfile, error) {
	const query = `SELECT user_id, descriptors, sample_refs, created_at, updated_at FROM face_profiles WHERE user_id = $1`
	var profile models.FaceProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get face profile: %w", err)
	}
	return &profile, nil
}

// Upsert replaces the whole descriptor collection atomically and
// returns the sample references of the replaced record. The old
// samples are only reclaimed after the new record commits; deleting
// before the write could lose the last valid enrollment on a partial
// failure.
func (r *FaceProfileRepository) Upsert(ctx context.Context, profile *models.FaceProfile) (models.SampleRefs, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin face profile tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var previous models.SampleRefs
	const lock = `SELECT sample_refs FROM face_profiles WHERE user_id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &previous, lock, profile.UserID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lock face profile: %w", err)
	}

	const upsert = `INSERT INTO face_profiles (user_id, descriptors, sample_refs, created_at, updated_at)
        VALUES ($1, $2, $3, NOW(), NOW())
        ON CONFLICT (user_id) DO UPDATE SET descriptors = EXCLUDED.descriptors, sample_refs = EXCLUDED.sample_refs, updated_at = NOW()`
	if _, err := tx.ExecContext(ctx, upsert, profile.UserID, profile.Descriptors, profile.SampleRefs); err != nil {
		return nil, fmt.Errorf("upsert face profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit face profile: %w", err)
	}
	return previous, nil
}
