package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"alfredoptarigan/job-agent/internal/models"
	"alfredoptarigan/job-agent/internal/repositories"
	"alfredoptarigan/job-agent/internal/services"
)

// UserIDHeader identifies the caller on every user route.
const UserIDHeader = "X-User-ID"

// requireUser reads the caller's user id. When it is missing the 401 has
// already been written and ok is false.
func requireUser(c *fiber.Ctx) (userID string, ok bool, err error) {
	userID = strings.TrimSpace(c.Get(UserIDHeader))
	if userID == "" {
		return "", false, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": UserIDHeader + " header is required",
		})
	}
	return userID, true, nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrProfileMissing),
		errors.Is(err, services.ErrPreferencesMissing),
		errors.Is(err, services.ErrSubmitterUnavailable):
		return fiber.StatusPreconditionFailed
	case errors.Is(err, models.ErrInvalidPreferences),
		errors.Is(err, services.ErrInvalidJob),
		errors.Is(err, services.ErrUnsupportedResume),
		errors.Is(err, services.ErrScoringRejected):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrSourceUnavailable),
		errors.Is(err, services.ErrScoringUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, repositories.ErrProfileNotFound),
		errors.Is(err, repositories.ErrPreferencesNotFound),
		errors.Is(err, repositories.ErrApplicationNotFound),
		errors.Is(err, repositories.ErrRunNotFound):
		return fiber.StatusNotFound
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	message := err.Error()
	if status == fiber.StatusInternalServerError {
		message = "internal server error"
	}
	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}
