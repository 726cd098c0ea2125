package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/teamscope/backend/internal/analytics"
	"github.com/teamscope/backend/pkg/logger"
)

type AnalyticsHandler struct {
	engine *analytics.Engine
}

func NewAnalyticsHandler(engine *analytics.Engine) *AnalyticsHandler {
	return &AnalyticsHandler{engine: engine}
}

func analyticsError(c *fiber.Ctx, err error, action string) error {
	if errors.Is(err, analytics.ErrSurveyNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Survey not found",
		})
	}
	if errors.Is(err, analytics.ErrUnsupportedSurveyType) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	logger.Error(action, zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": action,
	})
}

func (h *AnalyticsHandler) GetMetrics(c *fiber.Ctx) error {
	result, err := h.engine.ComputeMetrics(c.Context(), c.Params("id"))
	if err != nil {
		return analyticsError(c, err, "Failed to compute survey metrics")
	}

	return c.JSON(result)
}

func (h *AnalyticsHandler) GetNetwork(c *fiber.Ctx) error {
	view, err := h.engine.ComputeNetwork(c.Context(), c.Params("id"))
	if err != nil {
		return analyticsError(c, err, "Failed to compute network")
	}

	return c.JSON(view)
}

func (h *AnalyticsHandler) GetTeamDynamics(c *fiber.Ctx) error {
	force := c.QueryBool("force")

	report, err := h.engine.AnalyzeTeamDynamics(c.Context(), c.Params("id"), force)
	if err != nil {
		return analyticsError(c, err, "Failed to analyze team dynamics")
	}

	return c.JSON(report)
}

func (h *AnalyticsHandler) GetInsights(c *fiber.Ctx) error {
	force := c.QueryBool("force")

	report, err := h.engine.GenerateInsightReport(c.Context(), c.Params("id"), force)
	if err != nil {
		return analyticsError(c, err, "Failed to generate insights")
	}

	return c.JSON(report)
}
