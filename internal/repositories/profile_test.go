package repositories_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/job-agent/internal/models"
	"alfredoptarigan/job-agent/internal/repositories"
	"alfredoptarigan/job-agent/internal/testutil"
)

func TestProfileReplaceOverwrites(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewProfileRepository(testutil.NewDB(t))

	_, err := repo.Get(ctx, "u1")
	require.ErrorIs(t, err, repositories.ErrProfileNotFound)

	require.NoError(t, repo.Replace(ctx, &models.Profile{
		UserID:      "u1",
		FullName:    "Ada Lovelace",
		Summary:     "analyst",
		Skills:      []string{"go", "sql"},
		LinkedInURL: "https://linkedin.com/in/ada",
	}))

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "https://linkedin.com/in/ada", got.LinkedInURL)

	require.NoError(t, repo.Replace(ctx, &models.Profile{
		UserID:       "u1",
		Skills:       []string{"rust"},
		LinkedInURL:  "https://linkedin.com/in/ada-l",
		PortfolioURL: "https://ada.dev",
	}))

	got, err = repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got.FullName, "replace never merges")
	assert.Empty(t, got.Summary)
	assert.Equal(t, []string{"rust"}, got.Skills)
	assert.Equal(t, "https://linkedin.com/in/ada-l", got.LinkedInURL)
	assert.Equal(t, "https://ada.dev", got.PortfolioURL)

	require.NoError(t, repo.Replace(ctx, &models.Profile{UserID: "u0", Summary: "x"}))
	ids, err := repo.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u0", "u1"}, ids)
}

func TestPreferencesReplace(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewPreferencesRepository(testutil.NewDB(t))

	_, err := repo.Get(ctx, "u1")
	require.ErrorIs(t, err, repositories.ErrPreferencesNotFound)

	require.NoError(t, repo.Replace(ctx, &models.Preferences{
		UserID:           "u1",
		Roles:            []string{"backend"},
		Locations:        []string{"Berlin"},
		MinMatchScore:    70,
		PostedWithinDays: 14,
	}))
	require.NoError(t, repo.Replace(ctx, &models.Preferences{
		UserID:           "u1",
		Roles:            []string{"platform"},
		MinMatchScore:    50,
		PostedWithinDays: 7,
	}))

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"platform"}, got.Roles)
	assert.Empty(t, got.Locations)
	assert.Equal(t, 50, got.MinMatchScore)
}
