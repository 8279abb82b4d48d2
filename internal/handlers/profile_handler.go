package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"alfredoptarigan/job-agent/internal/models"
	"alfredoptarigan/job-agent/internal/repositories"
	"alfredoptarigan/job-agent/internal/services"
)

type ProfileHandler struct {
	profileRepo   repositories.ProfileRepository
	resumeService services.ResumeService
	maxFileSize   int64
	logger        *zap.Logger
}

func NewProfileHandler(
	profileRepo repositories.ProfileRepository,
	resumeService services.ResumeService,
	maxFileSize int64,
	logger *zap.Logger,
) *ProfileHandler {
	return &ProfileHandler{
		profileRepo:   profileRepo,
		resumeService: resumeService,
		maxFileSize:   maxFileSize,
		logger:        logger.Named("profile_handler"),
	}
}

// HandleUploadResume handles POST /resume
func (h *ProfileHandler) HandleUploadResume(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "file is required",
		})
	}

	if h.maxFileSize > 0 && file.Size > h.maxFileSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "resume file too large",
		})
	}

	if !services.IsSupportedResume(file.Filename) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unsupported resume format, use pdf, docx or txt",
		})
	}

	resp, err := h.resumeService.Upload(c.UserContext(), userID, file)
	if err != nil {
		h.logger.Error("resume upload failed", zap.String("user_id", userID), zap.Error(err))
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(resp)
}

// HandleGetProfile handles GET /profile
func (h *ProfileHandler) HandleGetProfile(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	profile, err := h.profileRepo.Get(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}

// HandleUpdateProfile handles PUT /profile
func (h *ProfileHandler) HandleUpdateProfile(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	var req models.ProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request payload",
		})
	}

	profile, err := h.resumeService.UpdateProfile(c.UserContext(), userID, &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}
