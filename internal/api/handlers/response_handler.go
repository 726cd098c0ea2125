package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teamscope/backend/internal/metrics"
	"github.com/teamscope/backend/internal/storage/models"
	"github.com/teamscope/backend/pkg/logger"
)

// Invalidator drops cached analytics for a survey after its data changes.
type Invalidator interface {
	InvalidateSurvey(ctx context.Context, surveyID string) error
}

type ResponseHandler struct {
	store       Store
	invalidator Invalidator
}

// NewResponseHandler wires the response endpoints. invalidator may be nil
// when no snapshot cache is configured.
func NewResponseHandler(store Store, invalidator Invalidator) *ResponseHandler {
	return &ResponseHandler{store: store, invalidator: invalidator}
}

func (h *ResponseHandler) SubmitResponse(c *fiber.Ctx) error {
	// Copied because the id ends up inside the stored response record.
	surveyID := fiberutils.CopyString(c.Params("id"))

	var req struct {
		Token   string                     `json:"token"`
		Answers map[string]json.RawMessage `json:"answers"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Token is required",
		})
	}

	if len(req.Answers) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Answers are required",
		})
	}

	survey, err := h.store.GetSurvey(c.Context(), surveyID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Survey not found",
			})
		}
		logger.Error("Failed to get survey", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to submit response",
		})
	}

	if survey.Status != models.SurveyStatusActive {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Survey is not accepting responses",
		})
	}

	inv, err := h.store.GetInvitationByToken(c.Context(), req.Token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Invalid invitation token",
			})
		}
		logger.Error("Failed to get invitation", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to submit response",
		})
	}

	if inv.SurveyID != surveyID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Invalid invitation token",
		})
	}

	now := time.Now().UTC()
	if now.After(inv.ExpiresAt) {
		return c.Status(fiber.StatusGone).JSON(fiber.Map{
			"error": "Invitation has expired",
		})
	}

	if inv.CompletedAt != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Response already submitted",
		})
	}

	answersJSON, err := json.Marshal(req.Answers)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid answers payload",
		})
	}

	response := &models.RawResponse{
		ID:           uuid.NewString(),
		SurveyID:     surveyID,
		RespondentID: inv.RespondentID,
		InvitationID: inv.ID,
		AnswersJSON:  string(answersJSON),
		SubmittedAt:  now,
	}

	if err := h.store.InsertResponse(c.Context(), response); err != nil {
		logger.Error("Failed to insert response", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to submit response",
		})
	}

	if err := h.store.MarkInvitationCompleted(c.Context(), inv.ID, now); err != nil {
		logger.Warn("Failed to mark invitation completed", zap.Error(err))
	}

	if h.invalidator != nil {
		if err := h.invalidator.InvalidateSurvey(c.Context(), surveyID); err != nil {
			logger.Warn("Failed to invalidate snapshots", zap.Error(err))
		}
	}

	metrics.ResponsesSubmitted.WithLabelValues(survey.SurveyType).Inc()
	logger.Info("Response submitted",
		zap.String("survey_id", surveyID),
		zap.String("response_id", response.ID),
	)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"response_id":  response.ID,
		"survey_id":    surveyID,
		"submitted_at": response.SubmittedAt.Unix(),
	})
}

func (h *ResponseHandler) ListResponses(c *fiber.Ctx) error {
	surveyID := c.Params("id")

	if _, err := h.store.GetSurvey(c.Context(), surveyID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Survey not found",
			})
		}
		logger.Error("Failed to get survey", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list responses",
		})
	}

	responses, err := h.store.ListResponses(c.Context(), surveyID)
	if err != nil {
		logger.Error("Failed to list responses", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list responses",
		})
	}

	summaries := make([]fiber.Map, 0, len(responses))
	for _, r := range responses {
		summaries = append(summaries, fiber.Map{
			"id":            r.ID,
			"respondent_id": r.RespondentID,
			"submitted_at":  r.SubmittedAt.Unix(),
		})
	}

	return c.JSON(fiber.Map{
		"survey_id": surveyID,
		"count":     len(summaries),
		"responses": summaries,
	})
}
