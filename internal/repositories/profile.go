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

var (
	ErrProfileNotFound     = errors.New("profile not found")
	ErrPreferencesNotFound = errors.New("preferences not found")
	ErrApplicationNotFound = errors.New("application not found")
	ErrRunNotFound         = errors.New("agent run not found")
)

type ProfileRepository interface {
	Get(ctx context.Context, userID string) (*models.Profile, error)
	Replace(ctx context.Context, profile *models.Profile) error
	ListUserIDs(ctx context.Context) ([]string, error)
}

type profileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

// Get implements ProfileRepository.
func (r *profileRepository) Get(ctx context.Context, userID string) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return &profile, nil
}

// Replace implements ProfileRepository. Every column is overwritten; a
// re-upload never merges with the previous résumé.
func (r *profileRepository) Replace(ctx context.Context, profile *models.Profile) error {
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"full_name", "email", "phone", "location", "linkedin_url",
			"portfolio_url", "summary", "skills", "resume_text",
			"resume_filename", "resume_path", "telegram_chat_id", "updated_at",
		}),
	}).Create(profile).Error
	if err != nil {
		return fmt.Errorf("failed to replace profile: %w", err)
	}
	return nil
}

// ListUserIDs implements ProfileRepository.
func (r *profileRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&models.Profile{}).Order("user_id").Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return ids, nil
}
