package enrichment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamscope/backend/internal/analytics"
)

func TestParsePayload(t *testing.T) {
	payload, err := parsePayload(`{"insights": ["a"], "recommendations": ["b"], "risks": [], "positives": ["c"]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, payload.Insights)
	assert.Equal(t, []string{"c"}, payload.Positives)
}

func TestParsePayloadFenced(t *testing.T) {
	content := "Here is the analysis:\n```json\n{\"insights\": [\"x\"], \"recommendations\": [], \"risks\": [], \"positives\": []}\n```\nDone."

	payload, err := parsePayload(content)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, payload.Insights)
}

func TestParsePayloadRejectsGarbage(t *testing.T) {
	_, err := parsePayload("no json here")
	assert.Error(t, err)

	_, err = parsePayload(`{"insights": [], "recommendations": [], "risks": [], "positives": []}`)
	assert.Error(t, err)

	_, err = parsePayload(`{"insights": "not an array"}`)
	assert.Error(t, err)
}

func TestBuildPrompt(t *testing.T) {
	nps := 42.0
	prompt := buildPrompt(
		&analytics.SurveyMetrics{
			SurveyTitle:      "Q1 Pulse",
			SurveyType:       "sociometry",
			ResponseRate:     80,
			TotalResponses:   8,
			TotalInvitations: 10,
			EngagementScore:  75,
			NPSScore:         &nps,
		},
		&analytics.TeamDynamicsReport{
			TeamCohesionScore:          60,
			CommunicationEffectiveness: 55,
			IsolatedMembers:            []string{"Ann"},
			KeyConnectors:              []string{"Ben"},
		},
	)

	assert.True(t, strings.Contains(prompt, "Q1 Pulse"))
	assert.True(t, strings.Contains(prompt, "80.0%"))
	assert.True(t, strings.Contains(prompt, "NPS: 42.0"))
	assert.True(t, strings.Contains(prompt, "Isolated members: Ann"))
	assert.True(t, strings.Contains(prompt, "Key connectors: Ben"))
}
