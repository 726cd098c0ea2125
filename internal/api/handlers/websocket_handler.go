package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/teamscope/backend/internal/analytics"
	"github.com/teamscope/backend/pkg/logger"
)

type WebSocketHandler struct {
	engine *analytics.Engine
}

func NewWebSocketHandler(engine *analytics.Engine) *WebSocketHandler {
	return &WebSocketHandler{engine: engine}
}

// HandleConnection serves a long-lived analysis session. The client sends
// {"type": "analyze", "survey_id": "...", "force": bool} and receives
// phase updates followed by the full report.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type     string `json:"type"`
			SurveyID string `json:"survey_id"`
			Force    bool   `json:"force"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error("Failed to read WebSocket message", zap.Error(err))
			}
			break
		}

		if msg.Type != "analyze" {
			continue
		}

		if msg.SurveyID == "" {
			h.sendError(c, "survey_id is required")
			continue
		}

		logger.Info("Processing WebSocket analysis", zap.String("survey_id", msg.SurveyID))

		err = h.streamAnalysis(c, msg.SurveyID, msg.Force)
		if err != nil {
			logger.Error("Failed to stream analysis", zap.Error(err))
			if errors.Is(err, analytics.ErrSurveyNotFound) {
				h.sendError(c, "Survey not found")
			} else if errors.Is(err, analytics.ErrUnsupportedSurveyType) {
				h.sendError(c, "Network analysis not available for this survey type")
			} else {
				h.sendError(c, "Failed to run analysis")
			}
		}
	}
}

func (h *WebSocketHandler) streamAnalysis(c *websocket.Conn, surveyID string, force bool) error {
	ctx := context.Background()

	if err := h.sendPhase(c, "computing_metrics"); err != nil {
		return err
	}

	surveyMetrics, err := h.engine.ComputeMetrics(ctx, surveyID)
	if err != nil {
		return err
	}

	if err := h.sendPhase(c, "analyzing_network"); err != nil {
		return err
	}

	dynamics, err := h.engine.AnalyzeTeamDynamics(ctx, surveyID, force)
	if err != nil {
		return err
	}

	if err := h.sendPhase(c, "generating_insights"); err != nil {
		return err
	}

	insights, err := h.engine.GenerateInsightReport(ctx, surveyID, force)
	if err != nil {
		return err
	}

	return c.WriteJSON(map[string]interface{}{
		"type":      "complete",
		"survey_id": surveyID,
		"metrics":   surveyMetrics,
		"dynamics":  dynamics,
		"insights":  insights,
	})
}

func (h *WebSocketHandler) sendPhase(c *websocket.Conn, phase string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":  "status",
		"phase": phase,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}
