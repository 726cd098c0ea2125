package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamscope/backend/internal/storage/models"
)

type fakeStore struct {
	surveys     map[string]*models.Survey
	responses   map[string][]models.RawResponse
	respondents map[string][]models.Respondent
	invitations map[string][]models.SurveyInvitation

	getSurveyCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		surveys:     make(map[string]*models.Survey),
		responses:   make(map[string][]models.RawResponse),
		respondents: make(map[string][]models.Respondent),
		invitations: make(map[string][]models.SurveyInvitation),
	}
}

func (f *fakeStore) GetSurvey(_ context.Context, surveyID string) (*models.Survey, error) {
	f.getSurveyCalls++
	s, ok := f.surveys[surveyID]
	if !ok {
		return nil, fmt.Errorf("survey %s: %w", surveyID, models.ErrNotFound)
	}
	return s, nil
}

func (f *fakeStore) ListResponses(_ context.Context, surveyID string) ([]models.RawResponse, error) {
	return f.responses[surveyID], nil
}

func (f *fakeStore) ListRespondents(_ context.Context, surveyID string) ([]models.Respondent, error) {
	return f.respondents[surveyID], nil
}

func (f *fakeStore) ListInvitations(_ context.Context, surveyID string) ([]models.SurveyInvitation, error) {
	return f.invitations[surveyID], nil
}

type fakeSnapshots struct {
	data   map[string][]byte
	reads  int
	writes int
	err    error
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{data: make(map[string][]byte)}
}

func (f *fakeSnapshots) key(surveyID, snapshotType string) string {
	return surveyID + ":" + snapshotType
}

func (f *fakeSnapshots) GetSnapshot(_ context.Context, surveyID, snapshotType string, out interface{}) (bool, error) {
	f.reads++
	if f.err != nil {
		return false, f.err
	}
	raw, ok := f.data[f.key(surveyID, snapshotType)]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (f *fakeSnapshots) SetSnapshot(_ context.Context, surveyID, snapshotType string, data interface{}, _ time.Duration) error {
	f.writes++
	if f.err != nil {
		return f.err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	f.data[f.key(surveyID, snapshotType)] = raw
	return nil
}

type fakeEnricher struct {
	report *InsightReport
	err    error
	calls  int
}

func (f *fakeEnricher) EnrichInsights(_ context.Context, _ *SurveyMetrics, _ *TeamDynamicsReport) (*InsightReport, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

type fakeExporter struct {
	calls int
	last  *NetworkView
	err   error
}

func (f *fakeExporter) ExportNetwork(_ context.Context, _ string, view *NetworkView) error {
	f.calls++
	f.last = view
	return f.err
}

func seedTeamSurvey(store *fakeStore, anonymize bool) {
	activated := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	completed := activated.Add(10 * time.Hour)

	store.surveys["s1"] = &models.Survey{
		ID:                 "s1",
		OrgID:              "org1",
		Title:              "Q1 Team Pulse",
		SurveyType:         models.SurveyTypeSociometry,
		Status:             models.SurveyStatusActive,
		AnonymizeResponses: anonymize,
		ActivatedAt:        &activated,
	}

	store.respondents["s1"] = []models.Respondent{
		{ID: "u1", OrgID: "org1", Email: "ann@acme.io", DisplayName: "Ann", Department: "eng"},
		{ID: "u2", OrgID: "org1", Email: "ben@acme.io", DisplayName: "Ben", Department: "eng"},
		{ID: "u3", OrgID: "org1", Email: "cal@acme.io", DisplayName: "Cal", Department: "sales"},
		{ID: "u4", OrgID: "org1", Email: "dee@acme.io", DisplayName: "Dee", Department: "sales"},
	}

	for i, r := range store.respondents["s1"] {
		inv := models.SurveyInvitation{
			ID:           fmt.Sprintf("inv%d", i+1),
			SurveyID:     "s1",
			RespondentID: r.ID,
			Email:        r.Email,
			ExpiresAt:    activated.Add(14 * 24 * time.Hour),
			CreatedAt:    activated,
		}
		if i < 3 {
			inv.OpenedAt = &activated
		}
		if i < 2 {
			inv.CompletedAt = &completed
		}
		store.invitations["s1"] = append(store.invitations["s1"], inv)
	}

	store.responses["s1"] = []models.RawResponse{
		{
			ID:           "r1",
			SurveyID:     "s1",
			RespondentID: "u1",
			AnswersJSON:  `{"q_trust": {"selections": [{"user_id": "u2", "weight": 1.0}, {"user_id": "u3", "weight": 0.5}]}}`,
			SubmittedAt:  completed,
		},
		{
			ID:           "r2",
			SurveyID:     "s1",
			RespondentID: "u2",
			AnswersJSON:  `{"q_trust": {"selections": [{"user_id": "u1", "weight": 0.5}]}, "q_peers": ["u3"]}`,
			SubmittedAt:  completed,
		},
	}
}

func TestEngineSurveyNotFound(t *testing.T) {
	engine := NewEngine(newFakeStore(), nil, nil, nil, Options{})

	_, err := engine.ComputeNetwork(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSurveyNotFound)

	_, err = engine.ComputeMetrics(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSurveyNotFound)

	_, err = engine.AnalyzeTeamDynamics(context.Background(), "missing", false)
	assert.ErrorIs(t, err, ErrSurveyNotFound)
}

func TestEngineUnsupportedSurveyType(t *testing.T) {
	store := newFakeStore()
	store.surveys["s1"] = &models.Survey{ID: "s1", SurveyType: models.SurveyTypeENPS}

	engine := NewEngine(store, nil, nil, nil, Options{})

	_, err := engine.ComputeNetwork(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrUnsupportedSurveyType)

	// Metrics are still available for every survey type.
	_, err = engine.ComputeMetrics(context.Background(), "s1")
	assert.NoError(t, err)
}

func TestEngineComputeNetwork(t *testing.T) {
	store := newFakeStore()
	seedTeamSurvey(store, false)

	engine := NewEngine(store, nil, nil, nil, Options{})

	view, err := engine.ComputeNetwork(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, "s1", view.SurveyID)
	// u1, u2 responded; u3 enters through surviving edges.
	assert.Equal(t, 3, view.Metadata.NodeCount)
	assert.Equal(t, 3, view.Metadata.EdgeCount)

	byID := make(map[string]NetworkNode)
	for _, n := range view.Nodes {
		byID[n.ID] = n
	}

	assert.Equal(t, "Ann", byID["u1"].Name)
	assert.Equal(t, "eng", byID["u1"].Department)
	assert.Equal(t, "sales", byID["u3"].Department)

	// u1-u2 accumulates 1.0 + 0.5 and is the strongest pair.
	var topLink NetworkLink
	for _, l := range view.Links {
		if l.Source == "u1" && l.Target == "u2" {
			topLink = l
		}
	}
	assert.InDelta(t, 1.0, topLink.Weight, 1e-9)
	assert.Equal(t, StrengthStrong, topLink.Strength)
}

func TestEngineAnonymizesNames(t *testing.T) {
	store := newFakeStore()
	seedTeamSurvey(store, true)

	engine := NewEngine(store, nil, nil, nil, Options{})

	view, err := engine.ComputeNetwork(context.Background(), "s1")
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, n := range view.Nodes {
		assert.Regexp(t, `^Member \d+$`, n.Name)
		assert.False(t, seen[n.Name])
		seen[n.Name] = true
	}
}

func TestEngineEmptySurveyDynamics(t *testing.T) {
	store := newFakeStore()
	store.surveys["s1"] = &models.Survey{ID: "s1", SurveyType: models.SurveyTypeTeamDynamics}

	engine := NewEngine(store, nil, nil, nil, Options{})

	report, err := engine.AnalyzeTeamDynamics(context.Background(), "s1", false)
	require.NoError(t, err)

	assert.Zero(t, report.TeamCohesionScore)
	assert.Zero(t, report.CommunicationEffectiveness)
	assert.NotNil(t, report.IsolatedMembers)
	assert.Empty(t, report.IsolatedMembers)
	assert.NotNil(t, report.KeyConnectors)
	assert.NotEmpty(t, report.Recommendations)
}

func TestEngineDynamicsReport(t *testing.T) {
	store := newFakeStore()
	seedTeamSurvey(store, false)

	engine := NewEngine(store, nil, nil, nil, Options{})

	report, err := engine.AnalyzeTeamDynamics(context.Background(), "s1", false)
	require.NoError(t, err)

	assert.Equal(t, "s1", report.SurveyID)
	assert.Greater(t, report.TeamCohesionScore, 0.0)
	assert.Greater(t, report.CommunicationEffectiveness, 0.0)
	assert.NotEmpty(t, report.LeadershipInfluence)
	assert.Contains(t, report.DepartmentConnectivity, "eng")

	// Weak u1-u3 and u2-u3 edges leave everyone with degree >= 2 except
	// nobody; verify the list is still well formed.
	assert.NotNil(t, report.IsolatedMembers)
}

func TestEngineSnapshotCaching(t *testing.T) {
	store := newFakeStore()
	seedTeamSurvey(store, false)
	snaps := newFakeSnapshots()

	engine := NewEngine(store, snaps, nil, nil, Options{})

	first, err := engine.AnalyzeTeamDynamics(context.Background(), "s1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, snaps.writes)

	callsBefore := store.getSurveyCalls

	second, err := engine.AnalyzeTeamDynamics(context.Background(), "s1", false)
	require.NoError(t, err)
	assert.Equal(t, first.TeamCohesionScore, second.TeamCohesionScore)
	assert.Equal(t, callsBefore, store.getSurveyCalls)

	// force recomputes and rewrites the snapshot.
	_, err = engine.AnalyzeTeamDynamics(context.Background(), "s1", true)
	require.NoError(t, err)
	assert.Greater(t, store.getSurveyCalls, callsBefore)
	assert.Equal(t, 2, snaps.writes)
}

func TestEngineSnapshotErrorFallsThrough(t *testing.T) {
	store := newFakeStore()
	seedTeamSurvey(store, false)
	snaps := newFakeSnapshots()
	snaps.err = errors.New("cache down")

	engine := NewEngine(store, snaps, nil, nil, Options{})

	report, err := engine.AnalyzeTeamDynamics(context.Background(), "s1", false)
	require.NoError(t, err)
	assert.Greater(t, report.TeamCohesionScore, 0.0)
}

func TestEngineComputeMetrics(t *testing.T) {
	store := newFakeStore()
	seedTeamSurvey(store, false)

	engine := NewEngine(store, nil, nil, nil, Options{})

	m, err := engine.ComputeMetrics(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, "Q1 Team Pulse", m.SurveyTitle)
	assert.Equal(t, 4, m.TotalInvitations)
	assert.Equal(t, 2, m.TotalResponses)
	assert.InDelta(t, 50.0, m.ResponseRate, 1e-9)
	assert.InDelta(t, 50.0, m.CompletionRate, 1e-9)
	assert.InDelta(t, 75.0, m.OpenRate, 1e-9)
	assert.InDelta(t, 10.0, m.AvgResponseHours, 1e-9)
	assert.Greater(t, m.EngagementScore, 0.0)
	assert.Nil(t, m.NPSScore)
	assert.NotEmpty(t, m.KeyInsights)

	require.Contains(t, m.MetricsByDepartment, "eng")
	assert.Equal(t, 2, m.MetricsByDepartment["eng"].TotalResponses)
	assert.InDelta(t, 100.0, m.MetricsByDepartment["eng"].ResponseRate, 1e-9)
	assert.Equal(t, 0, m.MetricsByDepartment["sales"].TotalResponses)
}

func TestEngineComputeMetricsNPS(t *testing.T) {
	store := newFakeStore()
	store.surveys["s1"] = &models.Survey{
		ID:         "s1",
		Title:      "eNPS",
		SurveyType: models.SurveyTypeENPS,
	}
	store.responses["s1"] = []models.RawResponse{
		{ID: "r1", RespondentID: "u1", AnswersJSON: `{"q_recommend": 10}`, SubmittedAt: time.Now()},
		{ID: "r2", RespondentID: "u2", AnswersJSON: `{"q_recommend": 3}`, SubmittedAt: time.Now()},
		{ID: "r3", RespondentID: "u3", AnswersJSON: `{"q_recommend": 9, "q_satisfaction": 8}`, SubmittedAt: time.Now()},
	}

	engine := NewEngine(store, nil, nil, nil, Options{})

	m, err := engine.ComputeMetrics(context.Background(), "s1")
	require.NoError(t, err)

	require.NotNil(t, m.NPSScore)
	assert.InDelta(t, 33.33, *m.NPSScore, 0.01)

	require.NotNil(t, m.SatisfactionScore)
	assert.InDelta(t, 8.0, *m.SatisfactionScore, 1e-9)
}

func TestEngineInsightEnrichmentFallback(t *testing.T) {
	store := newFakeStore()
	seedTeamSurvey(store, false)
	enricher := &fakeEnricher{err: errors.New("model unavailable")}

	engine := NewEngine(store, nil, enricher, nil, Options{})

	report, err := engine.GenerateInsightReport(context.Background(), "s1", false)
	require.NoError(t, err)

	assert.Equal(t, 1, enricher.calls)
	assert.Equal(t, InsightSourceRules, report.Source)
	assert.NotEmpty(t, report.Insights)
	assert.NotNil(t, report.Risks)
	assert.NotNil(t, report.Positives)
}

func TestEngineInsightEnrichmentSuccess(t *testing.T) {
	store := newFakeStore()
	seedTeamSurvey(store, false)

	enriched := &InsightReport{
		Insights:        []string{"The engineering pair anchors the network"},
		Recommendations: []string{"Pair sales members with engineering"},
		Risks:           []string{},
		Positives:       []string{"Strong reciprocal trust between Ann and Ben"},
		GeneratedAt:     time.Now().UTC(),
		Source:          InsightSourceEnrichment,
	}
	enricher := &fakeEnricher{report: enriched}

	engine := NewEngine(store, nil, enricher, nil, Options{})

	report, err := engine.GenerateInsightReport(context.Background(), "s1", false)
	require.NoError(t, err)

	assert.Equal(t, InsightSourceEnrichment, report.Source)
	assert.Equal(t, enriched.Insights, report.Insights)
}

func TestEngineInsightReportCached(t *testing.T) {
	store := newFakeStore()
	seedTeamSurvey(store, false)
	snaps := newFakeSnapshots()
	enricher := &fakeEnricher{err: errors.New("down")}

	engine := NewEngine(store, snaps, enricher, nil, Options{})

	_, err := engine.GenerateInsightReport(context.Background(), "s1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, enricher.calls)

	_, err = engine.GenerateInsightReport(context.Background(), "s1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, enricher.calls)
}

func TestEngineExportsNetwork(t *testing.T) {
	store := newFakeStore()
	seedTeamSurvey(store, false)
	exporter := &fakeExporter{}

	engine := NewEngine(store, nil, nil, exporter, Options{})

	_, err := engine.AnalyzeTeamDynamics(context.Background(), "s1", false)
	require.NoError(t, err)

	assert.Equal(t, 1, exporter.calls)
	require.NotNil(t, exporter.last)
	assert.Equal(t, 3, len(exporter.last.Nodes))
}

func TestEngineExportFailureIsSilent(t *testing.T) {
	store := newFakeStore()
	seedTeamSurvey(store, false)
	exporter := &fakeExporter{err: errors.New("graph store down")}

	engine := NewEngine(store, nil, nil, exporter, Options{})

	_, err := engine.AnalyzeTeamDynamics(context.Background(), "s1", false)
	assert.NoError(t, err)
}
