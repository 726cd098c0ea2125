package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teamscope/backend/internal/metrics"
	"github.com/teamscope/backend/internal/storage/models"
	"github.com/teamscope/backend/pkg/logger"
	"github.com/teamscope/backend/pkg/utils"
)

const invitationLifetime = 14 * 24 * time.Hour

// Store is the persistence surface the HTTP handlers need.
type Store interface {
	CreateSurvey(ctx context.Context, survey *models.Survey) error
	GetSurvey(ctx context.Context, surveyID string) (*models.Survey, error)
	UpdateSurveyStatus(ctx context.Context, surveyID, status string, at time.Time) error
	UpsertRespondent(ctx context.Context, r *models.Respondent) error
	GetRespondentByEmail(ctx context.Context, orgID, email string) (*models.Respondent, error)
	CreateInvitation(ctx context.Context, inv *models.SurveyInvitation) error
	GetInvitationByToken(ctx context.Context, token string) (*models.SurveyInvitation, error)
	MarkInvitationOpened(ctx context.Context, invitationID string, at time.Time) error
	MarkInvitationCompleted(ctx context.Context, invitationID string, at time.Time) error
	ListInvitations(ctx context.Context, surveyID string) ([]models.SurveyInvitation, error)
	InsertResponse(ctx context.Context, r *models.RawResponse) error
	ListResponses(ctx context.Context, surveyID string) ([]models.RawResponse, error)
}

type SurveyHandler struct {
	store Store
}

func NewSurveyHandler(store Store) *SurveyHandler {
	return &SurveyHandler{store: store}
}

var validSurveyTypes = map[string]bool{
	models.SurveyTypeSociometry:   true,
	models.SurveyTypeReview360:    true,
	models.SurveyTypeENPS:         true,
	models.SurveyTypeTeamDynamics: true,
}

// orgID copies the header value out of fiber's request buffer; the buffer
// is reused for the next request, so the raw string must never be retained.
func orgID(c *fiber.Ctx) string {
	return fiberutils.CopyString(c.Get("X-Org-ID"))
}

func (h *SurveyHandler) CreateSurvey(c *fiber.Ctx) error {
	var req struct {
		Title              string `json:"title"`
		Description        string `json:"description"`
		SurveyType         string `json:"survey_type"`
		AnonymizeResponses bool   `json:"anonymize_responses"`
		ScheduledAt        *int64 `json:"scheduled_at"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	org := orgID(c)
	if org == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "X-Org-ID header is required",
		})
	}

	if req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Title is required",
		})
	}

	if !validSurveyTypes[req.SurveyType] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid survey type",
		})
	}

	now := time.Now().UTC()
	survey := &models.Survey{
		ID:                 uuid.NewString(),
		OrgID:              org,
		Title:              req.Title,
		Description:        req.Description,
		SurveyType:         req.SurveyType,
		Status:             models.SurveyStatusDraft,
		AnonymizeResponses: req.AnonymizeResponses,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if req.ScheduledAt != nil {
		t := time.Unix(*req.ScheduledAt, 0).UTC()
		survey.ScheduledAt = &t
		survey.Status = models.SurveyStatusScheduled
	}

	if err := h.store.CreateSurvey(c.Context(), survey); err != nil {
		logger.Error("Failed to create survey", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create survey",
		})
	}

	metrics.SurveysCreated.WithLabelValues(survey.SurveyType).Inc()
	logger.Info("Survey created",
		zap.String("survey_id", survey.ID),
		zap.String("org_id", org),
		zap.String("type", survey.SurveyType),
	)

	return c.Status(fiber.StatusCreated).JSON(survey)
}

func (h *SurveyHandler) GetSurvey(c *fiber.Ctx) error {
	survey, err := h.store.GetSurvey(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Survey not found",
			})
		}
		logger.Error("Failed to get survey", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get survey",
		})
	}

	return c.JSON(survey)
}

func (h *SurveyHandler) ActivateSurvey(c *fiber.Ctx) error {
	return h.transition(c, models.SurveyStatusActive,
		map[string]bool{models.SurveyStatusDraft: true, models.SurveyStatusScheduled: true})
}

func (h *SurveyHandler) CloseSurvey(c *fiber.Ctx) error {
	return h.transition(c, models.SurveyStatusClosed,
		map[string]bool{models.SurveyStatusActive: true})
}

func (h *SurveyHandler) transition(c *fiber.Ctx, target string, allowedFrom map[string]bool) error {
	surveyID := c.Params("id")

	survey, err := h.store.GetSurvey(c.Context(), surveyID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Survey not found",
			})
		}
		logger.Error("Failed to get survey", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get survey",
		})
	}

	if !allowedFrom[survey.Status] {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Invalid status transition",
			"from":  survey.Status,
			"to":    target,
		})
	}

	if err := h.store.UpdateSurveyStatus(c.Context(), surveyID, target, time.Now().UTC()); err != nil {
		logger.Error("Failed to update survey status", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update survey status",
		})
	}

	return c.JSON(fiber.Map{
		"survey_id": surveyID,
		"status":    target,
	})
}

func (h *SurveyHandler) CreateInvitations(c *fiber.Ctx) error {
	// Copied because the id ends up inside stored invitation records.
	surveyID := fiberutils.CopyString(c.Params("id"))

	var req struct {
		Members []struct {
			Email       string `json:"email"`
			DisplayName string `json:"display_name"`
			Department  string `json:"department"`
			Position    string `json:"position"`
		} `json:"members"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if len(req.Members) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one member is required",
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
			"error": "Failed to get survey",
		})
	}

	now := time.Now().UTC()
	invitations := make([]*models.SurveyInvitation, 0, len(req.Members))

	for _, m := range req.Members {
		if m.Email == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Member email is required",
			})
		}

		respondent, err := h.store.GetRespondentByEmail(c.Context(), survey.OrgID, m.Email)
		if errors.Is(err, models.ErrNotFound) {
			respondent = &models.Respondent{
				ID:          uuid.NewString(),
				OrgID:       survey.OrgID,
				Email:       m.Email,
				DisplayName: m.DisplayName,
				Department:  m.Department,
				Position:    m.Position,
			}
			err = h.store.UpsertRespondent(c.Context(), respondent)
		}
		if err != nil {
			logger.Error("Failed to resolve respondent", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create invitations",
			})
		}

		inv := &models.SurveyInvitation{
			ID:           uuid.NewString(),
			SurveyID:     surveyID,
			RespondentID: respondent.ID,
			Email:        m.Email,
			Token:        utils.HashString(uuid.NewString() + m.Email),
			SentAt:       &now,
			ExpiresAt:    now.Add(invitationLifetime),
			CreatedAt:    now,
		}

		if err := h.store.CreateInvitation(c.Context(), inv); err != nil {
			logger.Error("Failed to create invitation", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create invitations",
			})
		}

		metrics.InvitationsSent.Inc()
		invitations = append(invitations, inv)
	}

	logger.Info("Invitations created",
		zap.String("survey_id", surveyID),
		zap.Int("count", len(invitations)),
	)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"survey_id":   surveyID,
		"invitations": invitations,
	})
}

// OpenInvitation resolves an invitation token for a respondent landing on
// the survey page and records first open.
func (h *SurveyHandler) OpenInvitation(c *fiber.Ctx) error {
	token := c.Params("token")

	inv, err := h.store.GetInvitationByToken(c.Context(), token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Invitation not found",
			})
		}
		logger.Error("Failed to get invitation", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get invitation",
		})
	}

	now := time.Now().UTC()
	if now.After(inv.ExpiresAt) {
		return c.Status(fiber.StatusGone).JSON(fiber.Map{
			"error": "Invitation has expired",
		})
	}

	if err := h.store.MarkInvitationOpened(c.Context(), inv.ID, now); err != nil {
		logger.Warn("Failed to mark invitation opened", zap.Error(err))
	}

	survey, err := h.store.GetSurvey(c.Context(), inv.SurveyID)
	if err != nil {
		logger.Error("Failed to get survey for invitation", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get invitation",
		})
	}

	return c.JSON(fiber.Map{
		"survey_id":    survey.ID,
		"survey_title": survey.Title,
		"survey_type":  survey.SurveyType,
		"status":       survey.Status,
		"completed":    inv.CompletedAt != nil,
	})
}
