package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/job-agent/internal/models"
	"alfredoptarigan/job-agent/internal/services"
)

type AgentHandler struct {
	orchestrator services.Orchestrator
	worker       services.Worker
	logger       *zap.Logger
}

func NewAgentHandler(orchestrator services.Orchestrator, worker services.Worker, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{
		orchestrator: orchestrator,
		worker:       worker,
		logger:       logger.Named("agent_handler"),
	}
}

// HandleRun handles POST /agent/run?auto_apply=&async=
func (h *AgentHandler) HandleRun(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	autoApply := c.QueryBool("auto_apply", false)

	if c.QueryBool("async", false) {
		run, err := h.orchestrator.QueueRun(c.UserContext(), userID, autoApply)
		if err != nil {
			return respondError(c, err)
		}
		h.worker.EnqueueRun(run.ID)
		return c.Status(fiber.StatusAccepted).JSON(models.RunAcceptedResponse{
			RunID:  run.ID.String(),
			Status: string(models.RunQueued),
		})
	}

	summary, err := h.orchestrator.Run(c.UserContext(), userID, services.RunOptions{AutoApply: autoApply})
	if err != nil {
		if summary != nil {
			// Cancelled part way; what was committed is still reported.
			h.logger.Warn("agent run interrupted", zap.String("user_id", userID), zap.Error(err))
			return c.JSON(summary)
		}
		return respondError(c, err)
	}
	return c.JSON(summary)
}

// HandleGetRun handles GET /agent/runs/:id
func (h *AgentHandler) HandleGetRun(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	runID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid run ID format",
		})
	}

	run, err := h.orchestrator.GetRun(c.UserContext(), userID, runID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(run)
}

// HandleAnalyze handles POST /agent/analyze
func (h *AgentHandler) HandleAnalyze(c *fiber.Ctx) error {
	userID, ok, err := requireUser(c)
	if !ok {
		return err
	}

	var req models.AnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request payload",
		})
	}

	result, err := h.orchestrator.AnalyzeOne(c.UserContext(), userID, req.Job())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}
