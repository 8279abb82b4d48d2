package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreferencesValidate(t *testing.T) {
	valid := func() Preferences {
		return Preferences{Roles: []string{"backend"}, MinMatchScore: 70, PostedWithinDays: 7}
	}

	tests := []struct {
		name    string
		mutate  func(p *Preferences)
		wantErr bool
	}{
		{"valid", func(p *Preferences) {}, false},
		{"zero threshold", func(p *Preferences) { p.MinMatchScore = 0 }, false},
		{"full threshold", func(p *Preferences) { p.MinMatchScore = 100 }, false},
		{"threshold above range", func(p *Preferences) { p.MinMatchScore = 101 }, true},
		{"negative threshold", func(p *Preferences) { p.MinMatchScore = -1 }, true},
		{"no recency window", func(p *Preferences) { p.PostedWithinDays = 0 }, true},
		{"no roles", func(p *Preferences) { p.Roles = nil }, true},
		{"blank roles", func(p *Preferences) { p.Roles = []string{" ", ""} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidPreferences)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPreferencesThresholdAndWindow(t *testing.T) {
	p := Preferences{MinMatchScore: 70, PostedWithinDays: 3}
	assert.InDelta(t, 0.7, p.Threshold(), 1e-12)
	assert.Equal(t, 72*time.Hour, p.PostedWithin())
}

func TestPreferencesNormalize(t *testing.T) {
	p := Preferences{
		Roles:     []string{" Backend ", "backend", "", "Platform"},
		Locations: []string{"Remote", "remote "},
	}
	p.Normalize()
	assert.Equal(t, []string{"Backend", "Platform"}, p.Roles)
	assert.Equal(t, []string{"Remote"}, p.Locations)
	assert.Empty(t, p.JobTypes)
}

func TestProfileIsEmpty(t *testing.T) {
	var nilProfile *Profile
	assert.True(t, nilProfile.IsEmpty())
	assert.True(t, (&Profile{UserID: "u1", FullName: "Ada"}).IsEmpty())
	assert.False(t, (&Profile{Skills: []string{"go"}}).IsEmpty())
	assert.False(t, (&Profile{ResumeText: "experience"}).IsEmpty())
}
