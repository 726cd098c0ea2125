package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/teamscope/backend/internal/storage/models"
)

// InsightInputs feeds the deterministic insight rule table.
type InsightInputs struct {
	ResponseRate               float64
	EngagementScore            float64
	TeamCohesionScore          float64
	CommunicationEffectiveness float64
	IsolatedMembers            []string
}

// InsightReport is the narrative analytics output. Source records whether it
// came from the enrichment service or the rule table.
type InsightReport struct {
	Insights        []string  `json:"insights"`
	Recommendations []string  `json:"recommendations"`
	Risks           []string  `json:"risks"`
	Positives       []string  `json:"positives"`
	GeneratedAt     time.Time `json:"generated_at"`
	Source          string    `json:"source"`
}

const (
	InsightSourceRules      = "rule_based"
	InsightSourceEnrichment = "enrichment"
)

// GenerateInsights evaluates the deterministic rule table in order. Every
// rule is independent; several may fire for the same input, and the generic
// check-ins recommendation is always appended last.
func GenerateInsights(in InsightInputs) []string {
	var insights []string

	switch {
	case in.ResponseRate >= 80:
		insights = append(insights, "Excellent response rate indicates high team engagement")
	case in.ResponseRate >= 60:
		insights = append(insights, "Good response rate shows team is generally engaged")
	case in.ResponseRate >= 40:
		insights = append(insights, "Moderate response rate suggests room for improvement in engagement")
	default:
		insights = append(insights, "Low response rate indicates potential engagement issues")
	}

	if in.EngagementScore >= 80 {
		insights = append(insights, "High engagement score indicates strong survey participation quality")
	} else if in.EngagementScore < 50 {
		insights = append(insights, "Low engagement score suggests need for better survey design or timing")
	}

	if in.TeamCohesionScore < 50 {
		insights = append(insights, "Consider team building activities to improve overall cohesion")
	}
	if in.TeamCohesionScore > 80 {
		insights = append(insights, "Strong team cohesion detected - maintain current collaboration practices")
	}

	if in.CommunicationEffectiveness < 60 {
		insights = append(insights, "Implement regular communication channels and feedback loops")
	}

	if len(in.IsolatedMembers) > 0 {
		named := in.IsolatedMembers
		if len(named) > 3 {
			named = named[:3]
		}
		insights = append(insights, fmt.Sprintf("Focus on integrating isolated team members: %s", strings.Join(named, ", ")))
	}

	insights = append(insights, "Schedule regular check-ins to monitor team dynamics")

	return insights
}

// TeamRecommendations derives the actionable recommendation list attached
// to a team dynamics report.
func TeamRecommendations(cohesion, communication float64, isolated []string) []string {
	var recommendations []string

	if cohesion < 50 {
		recommendations = append(recommendations, "Consider team building activities to improve overall cohesion")
	}

	if communication < 60 {
		recommendations = append(recommendations, "Implement regular communication channels and feedback loops")
	}

	if len(isolated) > 0 {
		named := isolated
		if len(named) > 3 {
			named = named[:3]
		}
		recommendations = append(recommendations, fmt.Sprintf("Focus on integrating isolated team members: %s", strings.Join(named, ", ")))
	}

	if cohesion > 80 {
		recommendations = append(recommendations, "Strong team cohesion detected - maintain current collaboration practices")
	}

	recommendations = append(recommendations, "Schedule regular check-ins to monitor team dynamics")

	return recommendations
}

// KeyInsights summarizes survey-level metrics into short observations for
// the metrics endpoint.
func KeyInsights(surveyType string, responseRate, engagementScore float64, npsScore *float64) []string {
	var insights []string

	switch {
	case responseRate >= 80:
		insights = append(insights, "Excellent response rate indicates high team engagement")
	case responseRate >= 60:
		insights = append(insights, "Good response rate shows team is generally engaged")
	case responseRate >= 40:
		insights = append(insights, "Moderate response rate suggests room for improvement in engagement")
	default:
		insights = append(insights, "Low response rate indicates potential engagement issues")
	}

	if engagementScore >= 80 {
		insights = append(insights, "High engagement score indicates strong survey participation quality")
	} else if engagementScore < 50 {
		insights = append(insights, "Low engagement score suggests need for better survey design or timing")
	}

	if npsScore != nil {
		switch {
		case *npsScore >= 50:
			insights = append(insights, "Excellent NPS score shows strong team loyalty")
		case *npsScore >= 0:
			insights = append(insights, "Positive NPS score indicates generally satisfied team")
		default:
			insights = append(insights, "Negative NPS score suggests significant satisfaction issues")
		}
	}

	if surveyType == models.SurveyTypeSociometry {
		insights = append(insights, "Sociometric data can reveal team communication patterns and influence networks")
	}

	return insights
}

// FallbackInsightReport builds the deterministic report returned whenever
// the enrichment service is unavailable. Identical inputs always produce an
// identical report apart from the timestamp.
func FallbackInsightReport(in InsightInputs, now time.Time) *InsightReport {
	report := &InsightReport{
		Insights:        []string{},
		Recommendations: []string{},
		Risks:           []string{},
		Positives:       []string{},
		GeneratedAt:     now,
		Source:          InsightSourceRules,
	}

	if in.ResponseRate >= 70 {
		report.Positives = append(report.Positives, "High response rate indicates strong team engagement")
	} else if in.ResponseRate < 40 {
		report.Risks = append(report.Risks, "Low response rate may indicate disengagement")
		report.Recommendations = append(report.Recommendations, "Investigate barriers to survey participation")
	}

	if in.TeamCohesionScore >= 70 {
		report.Positives = append(report.Positives, "Strong team cohesion detected")
	} else if in.TeamCohesionScore < 50 {
		report.Risks = append(report.Risks, "Low team cohesion may affect collaboration")
		report.Recommendations = append(report.Recommendations, "Implement team building initiatives")
	}

	if in.CommunicationEffectiveness < 60 {
		report.Risks = append(report.Risks, "Communication effectiveness could be improved")
		report.Recommendations = append(report.Recommendations, "Establish regular communication channels")
	}

	report.Insights = GenerateInsights(in)

	return report
}
