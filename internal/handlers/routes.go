package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handlers bundles every route handler of the API.
type Handlers struct {
	Profile      *ProfileHandler
	Preferences  *PreferencesHandler
	Agent        *AgentHandler
	Applications *ApplicationHandler
	Search       *SearchHandler
}

// RegisterRoutes mounts the API on router, normally the /api/v1 group.
func RegisterRoutes(router fiber.Router, h *Handlers) {
	router.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now(),
		})
	})

	router.Post("/resume", h.Profile.HandleUploadResume)
	router.Get("/profile", h.Profile.HandleGetProfile)
	router.Put("/profile", h.Profile.HandleUpdateProfile)

	router.Get("/preferences", h.Preferences.HandleGetPreferences)
	router.Put("/preferences", h.Preferences.HandlePutPreferences)

	router.Post("/agent/run", h.Agent.HandleRun)
	router.Get("/agent/runs/:id", h.Agent.HandleGetRun)
	router.Post("/agent/analyze", h.Agent.HandleAnalyze)

	router.Get("/applications", h.Applications.HandleList)
	router.Get("/applications/:id", h.Applications.HandleGet)

	router.Get("/jobs/search", h.Search.HandleSearch)
}

// ErrorHandler renders errors that escape a handler as JSON.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
