package handlers

import (
	"github.com/gofiber/fiber/v2"

	"alfredoptarigan/job-agent/internal/models"
	"alfredoptarigan/job-agent/internal/repositories"
)

type PreferencesHandler struct {
	prefsRepo repositories.PreferencesRepository
}

func NewPreferencesHandler(prefsRepo repositories.PreferencesRepository) *PreferencesHandler {
	return &PreferencesHandler{prefsRepo: prefsRepo}
}

// HandleGetPreferences handles GET /preferences
func (h *PreferencesHandler) HandleGetPreferences(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	prefs, err := h.prefsRepo.Get(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(prefs)
}

// HandlePutPreferences handles PUT /preferences. The stored set is replaced
// wholesale; omitted lists become empty.
func (h *PreferencesHandler) HandlePutPreferences(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	var req models.PreferencesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request payload",
		})
	}

	prefs := &models.Preferences{
		UserID:           userID,
		Roles:            req.Roles,
		Locations:        req.Locations,
		JobTypes:         req.JobTypes,
		ExperienceLevels: req.ExperienceLevels,
		MinMatchScore:    req.MinMatchScore,
		PostedWithinDays: req.PostedWithinDays,
	}
	prefs.Normalize()
	if err := prefs.Validate(); err != nil {
		return respondError(c, err)
	}

	if err := h.prefsRepo.Replace(c.UserContext(), prefs); err != nil {
		return respondError(c, err)
	}
	return c.JSON(prefs)
}
