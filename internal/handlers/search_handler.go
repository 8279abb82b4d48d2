package handlers

import (
	"github.com/gofiber/fiber/v2"

	"alfredoptarigan/job-agent/internal/models"
	"alfredoptarigan/job-agent/internal/services"
)

type SearchHandler struct {
	aggregator services.Aggregator
}

func NewSearchHandler(aggregator services.Aggregator) *SearchHandler {
	return &SearchHandler{aggregator: aggregator}
}

// HandleSearch handles GET /jobs/search?query=&location=
func (h *SearchHandler) HandleSearch(c *fiber.Ctx) error {
	if _, ok, err := requireUser(c); !ok {
		return err
	}

	query := c.Query("query")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query is required",
		})
	}

	result, err := h.aggregator.SearchManual(c.UserContext(), query, c.Query("location"))
	if err != nil {
		return respondError(c, err)
	}

	jobs := result.Jobs
	if jobs == nil {
		jobs = []models.Job{}
	}
	return c.JSON(models.SearchResponse{
		Jobs:            jobs,
		Total:           len(jobs),
		Degraded:        result.Degraded,
		DegradedSources: result.DegradedSources,
	})
}
