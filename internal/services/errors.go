package services

import "errors"

var (
	ErrProfileMissing       = errors.New("profile missing or empty")
	ErrPreferencesMissing   = errors.New("preferences not set")
	ErrSubmitterUnavailable = errors.New("auto apply requested but no submission channel is configured")
	ErrSourceUnavailable    = errors.New("no job source could be queried")
	ErrScoringUnavailable   = errors.New("scoring provider unavailable")
	ErrScoringRejected      = errors.New("scoring provider rejected the request")
	ErrSubmissionFailed     = errors.New("application submission failed")
	ErrUnsupportedResume    = errors.New("unsupported resume format")
	ErrInvalidJob           = errors.New("invalid job")
)
