package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"alfredoptarigan/job-agent/internal/models"
)

type PreferencesRepository interface {
	Get(ctx context.Context, userID string) (*models.Preferences, error)
	Replace(ctx context.Context, prefs *models.Preferences) error
}

type preferencesRepository struct {
	db *gorm.DB
}

func NewPreferencesRepository(db *gorm.DB) PreferencesRepository {
	return &preferencesRepository{db: db}
}

func (r *preferencesRepository) Get(ctx context.Context, userID string) (*models.Preferences, error) {
	var prefs models.Preferences
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&prefs).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPreferencesNotFound
		}
		return nil, fmt.Errorf("failed to find preferences: %w", err)
	}
	return &prefs, nil
}

// Replace saves the whole preference set. There is no partial patch.
func (r *preferencesRepository) Replace(ctx context.Context, prefs *models.Preferences) error {
	now := time.Now().UTC()
	if prefs.CreatedAt.IsZero() {
		prefs.CreatedAt = now
	}
	prefs.UpdatedAt = now

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"roles", "locations", "job_types", "experience_levels",
			"min_match_score", "posted_within_days", "updated_at",
		}),
	}).Create(prefs).Error
	if err != nil {
		return fmt.Errorf("failed to replace preferences: %w", err)
	}
	return nil
}
