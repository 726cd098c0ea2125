package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/teamscope/backend/internal/analytics"
	"github.com/teamscope/backend/internal/metrics"
	"github.com/teamscope/backend/pkg/circuitbreaker"
	"github.com/teamscope/backend/pkg/logger"
	"github.com/teamscope/backend/pkg/retry"
)

// Client generates narrative insight reports from computed survey scores
// using a chat completion model. Callers must treat every error as
// recoverable and fall back to rule-based insights.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewClient(apiKey, model string, temperature float32, maxTokens, timeoutSec int) *Client {
	client := openai.NewClient(apiKey)

	cb := circuitbreaker.NewCircuitBreaker("enrichment", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Enrichment client initialized", zap.String("model", model))

	return &Client{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     time.Duration(timeoutSec) * time.Second,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

const systemPrompt = `You are an organizational psychologist analyzing team survey results.
Given computed metrics, produce practical observations for a team lead.

Return ONLY a JSON object with four string arrays:
{"insights": [], "recommendations": [], "risks": [], "positives": []}

Rules:
- Base every statement strictly on the provided numbers
- Never invent names beyond those listed as isolated members or connectors
- Keep each item to one sentence
- 3 to 5 items per array at most`

type enrichedPayload struct {
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
	Risks           []string `json:"risks"`
	Positives       []string `json:"positives"`
}

func (c *Client) EnrichInsights(ctx context.Context, surveyMetrics *analytics.SurveyMetrics, dynamics *analytics.TeamDynamicsReport) (*analytics.InsightReport, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	userPrompt := buildPrompt(surveyMetrics, dynamics)

	var content string

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model: c.model,
					Messages: []openai.ChatCompletionMessage{
						{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
						{Role: openai.ChatMessageRoleUser, Content: userPrompt},
					},
					Temperature: c.temperature,
					MaxTokens:   c.maxTokens,
				},
			)

			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}

			metrics.EnrichmentTokensUsed.WithLabelValues(c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.EnrichmentTokensUsed.WithLabelValues(c.model, "completion").Add(float64(resp.Usage.CompletionTokens))

			content = resp.Choices[0].Message.Content
			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	payload, err := parsePayload(content)
	if err != nil {
		return nil, err
	}

	report := &analytics.InsightReport{
		Insights:        payload.Insights,
		Recommendations: payload.Recommendations,
		Risks:           payload.Risks,
		Positives:       payload.Positives,
		GeneratedAt:     time.Now().UTC(),
		Source:          analytics.InsightSourceEnrichment,
	}

	if report.Insights == nil {
		report.Insights = []string{}
	}
	if report.Recommendations == nil {
		report.Recommendations = []string{}
	}
	if report.Risks == nil {
		report.Risks = []string{}
	}
	if report.Positives == nil {
		report.Positives = []string{}
	}

	logger.Debug("Insights enriched",
		zap.String("survey_id", surveyMetrics.SurveyID),
		zap.Int("insight_count", len(report.Insights)),
	)

	return report, nil
}

func buildPrompt(surveyMetrics *analytics.SurveyMetrics, dynamics *analytics.TeamDynamicsReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Survey: %s (%s)\n", surveyMetrics.SurveyTitle, surveyMetrics.SurveyType)
	fmt.Fprintf(&b, "Response rate: %.1f%% (%d of %d invited)\n",
		surveyMetrics.ResponseRate, surveyMetrics.TotalResponses, surveyMetrics.TotalInvitations)
	fmt.Fprintf(&b, "Engagement score: %.1f\n", surveyMetrics.EngagementScore)
	fmt.Fprintf(&b, "Team cohesion: %.1f\n", dynamics.TeamCohesionScore)
	fmt.Fprintf(&b, "Communication effectiveness: %.1f\n", dynamics.CommunicationEffectiveness)
	fmt.Fprintf(&b, "Collaboration index: %.1f\n", dynamics.CollaborationIndex)

	if surveyMetrics.NPSScore != nil {
		fmt.Fprintf(&b, "NPS: %.1f\n", *surveyMetrics.NPSScore)
	}
	if len(dynamics.IsolatedMembers) > 0 {
		fmt.Fprintf(&b, "Isolated members: %s\n", strings.Join(dynamics.IsolatedMembers, ", "))
	}
	if len(dynamics.KeyConnectors) > 0 {
		fmt.Fprintf(&b, "Key connectors: %s\n", strings.Join(dynamics.KeyConnectors, ", "))
	}

	return b.String()
}

// parsePayload tolerates models that wrap the JSON object in a markdown
// fence or surrounding prose.
func parsePayload(content string) (*enrichedPayload, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in completion")
	}

	var payload enrichedPayload
	if err := json.Unmarshal([]byte(content[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse enriched insights: %w", err)
	}

	if len(payload.Insights) == 0 && len(payload.Recommendations) == 0 &&
		len(payload.Risks) == 0 && len(payload.Positives) == 0 {
		return nil, fmt.Errorf("enriched insights empty")
	}

	return &payload, nil
}
