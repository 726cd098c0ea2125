package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teamscope/backend/internal/metrics"
	"github.com/teamscope/backend/internal/storage/models"
	"github.com/teamscope/backend/pkg/logger"
)

var (
	ErrSurveyNotFound        = errors.New("survey not found")
	ErrUnsupportedSurveyType = errors.New("network analysis not available for this survey type")
)

const (
	SnapshotTypeTeamDynamics = "team_dynamics"
	SnapshotTypeInsights     = "insights"
)

// ResponseStore supplies survey, respondent, invitation, and response
// records for one survey. Implementations return models.ErrNotFound
// (wrapped) when the survey does not exist.
type ResponseStore interface {
	GetSurvey(ctx context.Context, surveyID string) (*models.Survey, error)
	ListResponses(ctx context.Context, surveyID string) ([]models.RawResponse, error)
	ListRespondents(ctx context.Context, surveyID string) ([]models.Respondent, error)
	ListInvitations(ctx context.Context, surveyID string) ([]models.SurveyInvitation, error)
}

// SnapshotStore caches derived reports with an expiry. A miss, an expired
// entry, or any store error always falls back to full recomputation.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, surveyID, snapshotType string, out interface{}) (bool, error)
	SetSnapshot(ctx context.Context, surveyID, snapshotType string, data interface{}, ttl time.Duration) error
}

// Enricher turns computed scores into enriched narrative output. Failures
// are expected and handled by falling back to the rule table.
type Enricher interface {
	EnrichInsights(ctx context.Context, surveyMetrics *SurveyMetrics, dynamics *TeamDynamicsReport) (*InsightReport, error)
}

// Exporter pushes an analyzed network into an external graph store.
// Export is best effort; failures are logged and never surfaced.
type Exporter interface {
	ExportNetwork(ctx context.Context, surveyID string, view *NetworkView) error
}

type Options struct {
	MinConnectionStrength    float64
	EigenvectorMaxIterations int
	SnapshotTTL              time.Duration
}

func (o Options) withDefaults() Options {
	if o.MinConnectionStrength == 0 {
		o.MinConnectionStrength = DefaultMinConnectionStrength
	}
	if o.EigenvectorMaxIterations == 0 {
		o.EigenvectorMaxIterations = DefaultEigenvectorMaxIterations
	}
	if o.SnapshotTTL == 0 {
		o.SnapshotTTL = 24 * time.Hour
	}
	return o
}

// Engine runs sociometric analysis for one survey at a time. Each call
// works on a fresh in-memory snapshot of the survey's responses, so
// analyses for different surveys may run concurrently.
type Engine struct {
	store     ResponseStore
	snapshots SnapshotStore
	enricher  Enricher
	exporter  Exporter
	opts      Options
}

// NewEngine wires the analysis engine. snapshots, enricher, and exporter
// may be nil; the engine degrades to pure recomputation without them.
func NewEngine(store ResponseStore, snapshots SnapshotStore, enricher Enricher, exporter Exporter, opts Options) *Engine {
	return &Engine{
		store:     store,
		snapshots: snapshots,
		enricher:  enricher,
		exporter:  exporter,
		opts:      opts.withDefaults(),
	}
}

type NetworkNode struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Group           string  `json:"group"`
	Department      string  `json:"department,omitempty"`
	Position        string  `json:"position,omitempty"`
	CentralityScore float64 `json:"centrality_score"`
	InfluenceScore  float64 `json:"influence_score"`
}

type NetworkLink struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Weight   float64 `json:"weight"`
	Strength string  `json:"strength"`
}

// NetworkView is the visualization-ready network payload.
type NetworkView struct {
	SurveyID string          `json:"survey_id"`
	Nodes    []NetworkNode   `json:"nodes"`
	Links    []NetworkLink   `json:"links"`
	Metadata NetworkMetadata `json:"metadata"`
}

type DepartmentMetrics struct {
	ResponseRate     float64 `json:"response_rate"`
	TotalResponses   int     `json:"total_responses"`
	TotalInvitations int     `json:"total_invitations"`
}

// SurveyMetrics is the survey-level metrics payload: participation,
// engagement, and satisfaction signals derived from invitation and response
// records.
type SurveyMetrics struct {
	SurveyID            string                       `json:"survey_id"`
	SurveyTitle         string                       `json:"survey_title"`
	SurveyType          string                       `json:"survey_type"`
	ResponseRate        float64                      `json:"response_rate"`
	CompletionRate      float64                      `json:"completion_rate"`
	OpenRate            float64                      `json:"open_rate"`
	AvgResponseHours    float64                      `json:"avg_response_time"`
	EngagementScore     float64                      `json:"engagement_score"`
	TotalResponses      int                          `json:"total_responses"`
	TotalInvitations    int                          `json:"total_invitations"`
	NPSScore            *float64                     `json:"nps_score,omitempty"`
	SatisfactionScore   *float64                     `json:"satisfaction_score,omitempty"`
	KeyInsights         []string                     `json:"key_insights"`
	MetricsByDepartment map[string]DepartmentMetrics `json:"metrics_by_department"`
}

// TeamDynamicsReport is the full team dynamics analysis output.
type TeamDynamicsReport struct {
	SurveyID                   string             `json:"survey_id"`
	TeamCohesionScore          float64            `json:"team_cohesion_score"`
	CommunicationEffectiveness float64            `json:"communication_effectiveness"`
	CollaborationIndex         float64            `json:"collaboration_index"`
	LeadershipInfluence        []LeaderScore      `json:"leadership_influence"`
	DepartmentConnectivity     map[string]float64 `json:"department_connectivity"`
	IsolatedMembers            []string           `json:"isolated_members"`
	KeyConnectors              []string           `json:"key_connectors"`
	Recommendations            []string           `json:"recommendations"`
}

// analysisContext carries the intermediate results shared by the network,
// dynamics, and insight paths of one run.
type analysisContext struct {
	survey      *models.Survey
	network     Network
	graph       GraphMetrics
	names       map[string]string
	departments map[string]string
	positions   map[string]string
	malformed   int
}

// ComputeNetwork builds and annotates the nomination network for a survey.
// Only sociometry and team dynamics surveys support network analysis.
func (e *Engine) ComputeNetwork(ctx context.Context, surveyID string) (*NetworkView, error) {
	ac, err := e.loadAndBuild(ctx, surveyID)
	if err != nil {
		return nil, err
	}
	return e.buildView(surveyID, ac), nil
}

// AnalyzeTeamDynamics produces the TeamDynamicsReport for a survey. A
// survey with no responses yields a well-formed zero report, never an
// error. Unless force is set, a cached snapshot short-circuits
// recomputation.
func (e *Engine) AnalyzeTeamDynamics(ctx context.Context, surveyID string, force bool) (*TeamDynamicsReport, error) {
	if !force {
		var cached TeamDynamicsReport
		if e.snapshotGet(ctx, surveyID, SnapshotTypeTeamDynamics, &cached) {
			return &cached, nil
		}
	}

	started := time.Now()

	ac, err := e.loadAndBuild(ctx, surveyID)
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("team_dynamics", "error").Inc()
		return nil, err
	}

	report := e.buildDynamicsReport(surveyID, ac)

	metrics.AnalysisDuration.WithLabelValues("team_dynamics").Observe(time.Since(started).Seconds())
	metrics.AnalysesTotal.WithLabelValues("team_dynamics", "ok").Inc()
	metrics.NetworkNodes.Observe(float64(ac.graph.Meta.NodeCount))
	metrics.NetworkEdges.Observe(float64(ac.graph.Meta.EdgeCount))

	e.snapshotSet(ctx, surveyID, SnapshotTypeTeamDynamics, report)

	if e.exporter != nil {
		view := e.buildView(surveyID, ac)
		if err := e.exporter.ExportNetwork(ctx, surveyID, view); err != nil {
			logger.Warn("Network export failed",
				zap.String("survey_id", surveyID),
				zap.Error(err),
			)
		}
	}

	return report, nil
}

// ComputeMetrics calculates survey-level participation and engagement
// metrics. Unlike network analysis this is available for every survey type.
func (e *Engine) ComputeMetrics(ctx context.Context, surveyID string) (*SurveyMetrics, error) {
	survey, err := e.getSurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}

	responses, err := e.store.ListResponses(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}

	invitations, err := e.store.ListInvitations(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}

	respondents, err := e.store.ListRespondents(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list respondents: %w", err)
	}

	totalInvitations := len(invitations)
	totalResponses := len(responses)

	completed := 0
	opened := 0
	for _, inv := range invitations {
		if inv.CompletedAt != nil {
			completed++
		}
		if inv.OpenedAt != nil {
			opened++
		}
	}

	var responseRate, completionRate, openRate float64
	if totalInvitations > 0 {
		responseRate = float64(totalResponses) / float64(totalInvitations) * 100
		completionRate = float64(completed) / float64(totalInvitations) * 100
		openRate = float64(opened) / float64(totalInvitations) * 100
	}

	avgHours := 0.0
	if survey.ActivatedAt != nil && totalResponses > 0 {
		total := 0.0
		for _, r := range responses {
			total += r.SubmittedAt.Sub(*survey.ActivatedAt).Hours()
		}
		avgHours = total / float64(totalResponses)
	}

	parsed := make([]map[string]AnswerValue, len(responses))
	for i, r := range responses {
		parsed[i] = ParseAnswers(r.AnswersJSON)
	}

	var quality []float64
	for _, answers := range parsed {
		if len(answers) == 0 {
			continue
		}
		nonEmpty := 0
		for _, a := range answers {
			if !a.IsEmpty() {
				nonEmpty++
			}
		}
		quality = append(quality, float64(nonEmpty)/float64(len(answers)))
	}

	engagement := EngagementScore(EngagementInputs{
		ResponseRate:     responseRate,
		CompletionRate:   completionRate,
		AvgResponseHours: avgHours,
		QualityScores:    quality,
	})

	result := &SurveyMetrics{
		SurveyID:         surveyID,
		SurveyTitle:      survey.Title,
		SurveyType:       survey.SurveyType,
		ResponseRate:     round2(responseRate),
		CompletionRate:   round2(completionRate),
		OpenRate:         round2(openRate),
		AvgResponseHours: round2(avgHours),
		EngagementScore:  engagement,
		TotalResponses:   totalResponses,
		TotalInvitations: totalInvitations,
	}

	if survey.SurveyType == models.SurveyTypeENPS {
		nps := NPSScore(collectRatings(parsed, npsQuestion))
		result.NPSScore = &nps
	}

	if satisfaction := collectRatings(parsed, satisfactionQuestion); len(satisfaction) > 0 {
		sum := 0.0
		for _, v := range satisfaction {
			sum += v
		}
		mean := round2(sum / float64(len(satisfaction)))
		result.SatisfactionScore = &mean
	}

	result.MetricsByDepartment = departmentBreakdown(responses, invitations, respondents)
	result.KeyInsights = KeyInsights(survey.SurveyType, result.ResponseRate, result.EngagementScore, result.NPSScore)

	return result, nil
}

// GenerateInsightReport produces narrative insights for a survey, enriched
// by the external service when one is configured and reachable. Enrichment
// failure always falls back to the deterministic rule table; the caller
// never sees the failure. Unless force is set, a cached report is reused.
func (e *Engine) GenerateInsightReport(ctx context.Context, surveyID string, force bool) (*InsightReport, error) {
	if !force {
		var cached InsightReport
		if e.snapshotGet(ctx, surveyID, SnapshotTypeInsights, &cached) {
			return &cached, nil
		}
	}

	surveyMetrics, err := e.ComputeMetrics(ctx, surveyID)
	if err != nil {
		return nil, err
	}

	dynamics, err := e.AnalyzeTeamDynamics(ctx, surveyID, force)
	if err != nil {
		return nil, err
	}

	report := e.enrichOrFallback(ctx, surveyMetrics, dynamics)

	e.snapshotSet(ctx, surveyID, SnapshotTypeInsights, report)

	return report, nil
}

func (e *Engine) enrichOrFallback(ctx context.Context, surveyMetrics *SurveyMetrics, dynamics *TeamDynamicsReport) *InsightReport {
	inputs := InsightInputs{
		ResponseRate:               surveyMetrics.ResponseRate,
		EngagementScore:            surveyMetrics.EngagementScore,
		TeamCohesionScore:          dynamics.TeamCohesionScore,
		CommunicationEffectiveness: dynamics.CommunicationEffectiveness,
		IsolatedMembers:            dynamics.IsolatedMembers,
	}

	if e.enricher != nil {
		enriched, err := e.enricher.EnrichInsights(ctx, surveyMetrics, dynamics)
		if err == nil {
			return enriched
		}
		metrics.EnrichmentFallbacks.Inc()
		logger.Warn("Insight enrichment failed, using rule-based fallback",
			zap.String("survey_id", surveyMetrics.SurveyID),
			zap.Error(err),
		)
	}

	return FallbackInsightReport(inputs, time.Now().UTC())
}

func (e *Engine) getSurvey(ctx context.Context, surveyID string) (*models.Survey, error) {
	survey, err := e.store.GetSurvey(ctx, surveyID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSurveyNotFound, surveyID)
		}
		return nil, fmt.Errorf("failed to load survey: %w", err)
	}
	return survey, nil
}

func (e *Engine) loadAndBuild(ctx context.Context, surveyID string) (*analysisContext, error) {
	survey, err := e.getSurvey(ctx, surveyID)
	if err != nil {
		return nil, err
	}

	if survey.SurveyType != models.SurveyTypeSociometry && survey.SurveyType != models.SurveyTypeTeamDynamics {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSurveyType, survey.SurveyType)
	}

	responses, err := e.store.ListResponses(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}

	respondents, err := e.store.ListRespondents(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list respondents: %w", err)
	}

	// Stable input order keeps aggregated weights reproducible run to run.
	sort.Slice(responses, func(i, j int) bool { return responses[i].ID < responses[j].ID })

	agg := NewAggregator()
	for _, r := range responses {
		agg.AddResponse(r.RespondentID, ParseAnswers(r.AnswersJSON))
	}

	nw := agg.Build(e.opts.MinConnectionStrength)
	gm := ComputeGraphMetrics(nw, e.opts.EigenvectorMaxIterations)

	names := make(map[string]string, len(nw.Nodes))
	departments := make(map[string]string, len(respondents))
	positions := make(map[string]string, len(respondents))

	byID := make(map[string]models.Respondent, len(respondents))
	for _, r := range respondents {
		byID[r.ID] = r
	}

	for i, id := range nw.Nodes {
		if survey.AnonymizeResponses {
			names[id] = fmt.Sprintf("Member %d", i+1)
		} else if r, ok := byID[id]; ok && r.DisplayName != "" {
			names[id] = r.DisplayName
		} else if r, ok := byID[id]; ok && r.Email != "" {
			names[id] = r.Email
		} else {
			names[id] = id
		}

		if r, ok := byID[id]; ok {
			departments[id] = r.Department
			positions[id] = r.Position
		}
	}

	if agg.MalformedCount() > 0 {
		logger.Debug("Skipped malformed answer items",
			zap.String("survey_id", surveyID),
			zap.Int("count", agg.MalformedCount()),
		)
	}

	return &analysisContext{
		survey:      survey,
		network:     nw,
		graph:       gm,
		names:       names,
		departments: departments,
		positions:   positions,
		malformed:   agg.MalformedCount(),
	}, nil
}

func (e *Engine) buildView(surveyID string, ac *analysisContext) *NetworkView {
	view := &NetworkView{
		SurveyID: surveyID,
		Nodes:    make([]NetworkNode, 0, len(ac.network.Nodes)),
		Links:    make([]NetworkLink, 0, len(ac.network.Edges)),
		Metadata: NetworkMetadata{
			NodeCount:           ac.graph.Meta.NodeCount,
			EdgeCount:           ac.graph.Meta.EdgeCount,
			Density:             round3(ac.graph.Meta.Density),
			AvgClustering:       round3(ac.graph.Meta.AvgClustering),
			ConnectedComponents: ac.graph.Meta.ConnectedComponents,
		},
	}

	for _, id := range ac.network.Nodes {
		nm := ac.graph.Nodes[id]
		view.Nodes = append(view.Nodes, NetworkNode{
			ID:              id,
			Name:            ac.names[id],
			Group:           nm.InfluenceGroup,
			Department:      ac.departments[id],
			Position:        ac.positions[id],
			CentralityScore: round3(nm.Betweenness),
			InfluenceScore:  round3(nm.Eigenvector),
		})
	}

	for _, edge := range ac.network.Edges {
		view.Links = append(view.Links, NetworkLink{
			Source:   edge.Source,
			Target:   edge.Target,
			Weight:   round3(edge.Weight),
			Strength: edge.Strength,
		})
	}

	return view
}

func (e *Engine) buildDynamicsReport(surveyID string, ac *analysisContext) *TeamDynamicsReport {
	cohesion := TeamCohesionScore(ac.graph.Meta)
	communication := CommunicationEffectiveness(ac.network.Edges)
	isolated := IsolatedMembers(ac.network.Nodes, ac.graph.Nodes, ac.names)
	if isolated == nil {
		isolated = []string{}
	}

	connectors := KeyConnectors(ac.network.Nodes, ac.graph.Nodes, ac.names)
	if connectors == nil {
		connectors = []string{}
	}

	return &TeamDynamicsReport{
		SurveyID:                   surveyID,
		TeamCohesionScore:          cohesion,
		CommunicationEffectiveness: communication,
		CollaborationIndex:         CollaborationIndex(ac.network.Edges, ac.departments),
		LeadershipInfluence:        LeadershipInfluence(ac.network.Nodes, ac.graph.Nodes, ac.names),
		DepartmentConnectivity:     DepartmentConnectivity(ac.network.Nodes, ac.network.Edges, ac.departments),
		IsolatedMembers:            isolated,
		KeyConnectors:              connectors,
		Recommendations:            TeamRecommendations(cohesion, communication, isolated),
	}
}

func (e *Engine) snapshotGet(ctx context.Context, surveyID, snapshotType string, out interface{}) bool {
	if e.snapshots == nil {
		return false
	}

	found, err := e.snapshots.GetSnapshot(ctx, surveyID, snapshotType, out)
	if err != nil {
		logger.Warn("Snapshot read failed, recomputing",
			zap.String("survey_id", surveyID),
			zap.String("snapshot_type", snapshotType),
			zap.Error(err),
		)
		return false
	}

	if found {
		metrics.SnapshotCacheHits.WithLabelValues(snapshotType).Inc()
	} else {
		metrics.SnapshotCacheMisses.WithLabelValues(snapshotType).Inc()
	}
	return found
}

func (e *Engine) snapshotSet(ctx context.Context, surveyID, snapshotType string, data interface{}) {
	if e.snapshots == nil {
		return
	}

	if err := e.snapshots.SetSnapshot(ctx, surveyID, snapshotType, data, e.opts.SnapshotTTL); err != nil {
		logger.Warn("Snapshot write failed",
			zap.String("survey_id", surveyID),
			zap.String("snapshot_type", snapshotType),
			zap.Error(err),
		)
	}
}

func npsQuestion(questionID string) bool {
	lower := strings.ToLower(questionID)
	return strings.Contains(lower, "recommend") || strings.Contains(lower, "nps")
}

func satisfactionQuestion(questionID string) bool {
	lower := strings.ToLower(questionID)
	return strings.Contains(lower, "satisfaction") ||
		strings.Contains(lower, "happy") ||
		strings.Contains(lower, "satisfied")
}

// collectRatings pulls at most one matching numeric answer per response,
// mirroring how a respondent answers a question once.
func collectRatings(parsed []map[string]AnswerValue, matches func(string) bool) []float64 {
	var values []float64

	for _, answers := range parsed {
		questionIDs := make([]string, 0, len(answers))
		for qid := range answers {
			questionIDs = append(questionIDs, qid)
		}
		sort.Strings(questionIDs)

		for _, qid := range questionIDs {
			if !matches(qid) {
				continue
			}
			a := answers[qid]
			if a.Kind == AnswerNumber {
				values = append(values, a.Number)
			}
			break
		}
	}

	return values
}

func departmentBreakdown(responses []models.RawResponse, invitations []models.SurveyInvitation, respondents []models.Respondent) map[string]DepartmentMetrics {
	deptOf := make(map[string]string, len(respondents))
	for _, r := range respondents {
		dept := r.Department
		if dept == "" {
			dept = "Unassigned"
		}
		deptOf[r.ID] = dept
	}

	respCounts := make(map[string]int)
	for _, r := range responses {
		if dept, ok := deptOf[r.RespondentID]; ok {
			respCounts[dept]++
		}
	}

	invCounts := make(map[string]int)
	for _, inv := range invitations {
		if dept, ok := deptOf[inv.RespondentID]; ok {
			invCounts[dept]++
		}
	}

	breakdown := make(map[string]DepartmentMetrics)
	for dept := range respCounts {
		breakdown[dept] = DepartmentMetrics{TotalResponses: respCounts[dept]}
	}
	for dept, count := range invCounts {
		m := breakdown[dept]
		m.TotalInvitations = count
		if count > 0 {
			m.ResponseRate = round2(float64(m.TotalResponses) / float64(count) * 100)
		}
		breakdown[dept] = m
	}

	return breakdown
}
