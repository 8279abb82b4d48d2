package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"alfredoptarigan/job-agent/internal/models"
	"alfredoptarigan/job-agent/internal/repositories"
)

type ApplicationHandler struct {
	appRepo repositories.ApplicationRepository
}

func NewApplicationHandler(appRepo repositories.ApplicationRepository) *ApplicationHandler {
	return &ApplicationHandler{appRepo: appRepo}
}

// HandleList handles GET /applications?status=
func (h *ApplicationHandler) HandleList(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	var status models.ApplicationStatus
	if raw := c.Query("status"); raw != "" {
		status, err = models.ParseStatus(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}

	apps, err := h.appRepo.ListByUser(c.UserContext(), userID, status)
	if err != nil {
		return respondError(c, err)
	}
	if apps == nil {
		apps = []models.Application{}
	}
	return c.JSON(models.ApplicationListResponse{
		Applications: apps,
		Total:        len(apps),
	})
}

// HandleGet handles GET /applications/:id
func (h *ApplicationHandler) HandleGet(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	appID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid application ID format",
		})
	}

	app, err := h.appRepo.FindByID(c.UserContext(), userID, appID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(app)
}
