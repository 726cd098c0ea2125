package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamscope/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.InitSchema())
	return client
}

func sampleSurvey() *models.Survey {
	now := time.Unix(time.Now().Unix(), 0).UTC()
	return &models.Survey{
		ID:         "s1",
		OrgID:      "org1",
		Title:      "Team Pulse",
		SurveyType: models.SurveyTypeSociometry,
		Status:     models.SurveyStatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestSurveyRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	survey := sampleSurvey()
	survey.AnonymizeResponses = true
	require.NoError(t, client.CreateSurvey(ctx, survey))

	got, err := client.GetSurvey(ctx, "s1")
	require.NoError(t, err)

	assert.Equal(t, survey.Title, got.Title)
	assert.Equal(t, survey.SurveyType, got.SurveyType)
	assert.True(t, got.AnonymizeResponses)
	assert.Nil(t, got.ActivatedAt)
	assert.Equal(t, survey.CreatedAt.Unix(), got.CreatedAt.Unix())
}

func TestGetSurveyNotFound(t *testing.T) {
	client := newTestClient(t)

	_, err := client.GetSurvey(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpdateSurveyStatus(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.CreateSurvey(ctx, sampleSurvey()))

	at := time.Unix(time.Now().Unix(), 0).UTC()
	require.NoError(t, client.UpdateSurveyStatus(ctx, "s1", models.SurveyStatusActive, at))

	got, err := client.GetSurvey(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.SurveyStatusActive, got.Status)
	require.NotNil(t, got.ActivatedAt)
	assert.Equal(t, at.Unix(), got.ActivatedAt.Unix())

	err = client.UpdateSurveyStatus(ctx, "missing", models.SurveyStatusActive, at)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestInvitationLifecycle(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.CreateSurvey(ctx, sampleSurvey()))
	require.NoError(t, client.UpsertRespondent(ctx, &models.Respondent{
		ID: "u1", OrgID: "org1", Email: "ann@acme.io", DisplayName: "Ann", Department: "eng",
	}))

	now := time.Unix(time.Now().Unix(), 0).UTC()
	inv := &models.SurveyInvitation{
		ID:           "inv1",
		SurveyID:     "s1",
		RespondentID: "u1",
		Email:        "ann@acme.io",
		Token:        "tok1",
		ExpiresAt:    now.Add(24 * time.Hour),
		CreatedAt:    now,
	}
	require.NoError(t, client.CreateInvitation(ctx, inv))

	got, err := client.GetInvitationByToken(ctx, "tok1")
	require.NoError(t, err)
	assert.Equal(t, "inv1", got.ID)
	assert.Nil(t, got.OpenedAt)

	require.NoError(t, client.MarkInvitationOpened(ctx, "inv1", now))
	require.NoError(t, client.MarkInvitationCompleted(ctx, "inv1", now))

	got, err = client.GetInvitationByToken(ctx, "tok1")
	require.NoError(t, err)
	require.NotNil(t, got.OpenedAt)
	require.NotNil(t, got.CompletedAt)

	// Marking again keeps the original timestamps.
	later := now.Add(time.Hour)
	require.NoError(t, client.MarkInvitationOpened(ctx, "inv1", later))
	got, _ = client.GetInvitationByToken(ctx, "tok1")
	assert.Equal(t, now.Unix(), got.OpenedAt.Unix())

	invs, err := client.ListInvitations(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, invs, 1)

	respondents, err := client.ListRespondents(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, respondents, 1)
	assert.Equal(t, "Ann", respondents[0].DisplayName)
}

func TestRespondentUpsert(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.UpsertRespondent(ctx, &models.Respondent{
		ID: "u1", OrgID: "org1", Email: "ann@acme.io", DisplayName: "Ann",
	}))
	require.NoError(t, client.UpsertRespondent(ctx, &models.Respondent{
		ID: "u1-dup", OrgID: "org1", Email: "ann@acme.io", DisplayName: "Ann Lee", Department: "eng",
	}))

	got, err := client.GetRespondentByEmail(ctx, "org1", "ann@acme.io")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, "Ann Lee", got.DisplayName)
	assert.Equal(t, "eng", got.Department)

	_, err = client.GetRespondentByEmail(ctx, "org2", "ann@acme.io")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestResponseRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.CreateSurvey(ctx, sampleSurvey()))

	now := time.Unix(time.Now().Unix(), 0).UTC()
	require.NoError(t, client.InsertResponse(ctx, &models.RawResponse{
		ID:           "r1",
		SurveyID:     "s1",
		RespondentID: "u1",
		InvitationID: "inv1",
		AnswersJSON:  `{"q_peers": ["u2"]}`,
		SubmittedAt:  now,
	}))

	responses, err := client.ListResponses(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, responses, 1)
	assert.Equal(t, `{"q_peers": ["u2"]}`, responses[0].AnswersJSON)
	assert.Equal(t, now.Unix(), responses[0].SubmittedAt.Unix())
}

func TestSnapshotStore(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.CreateSurvey(ctx, sampleSurvey()))

	type payload struct {
		Score float64 `json:"score"`
	}

	var out payload
	found, err := client.GetSnapshot(ctx, "s1", "team_dynamics", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, client.SetSnapshot(ctx, "s1", "team_dynamics", payload{Score: 72.5}, time.Hour))

	found, err = client.GetSnapshot(ctx, "s1", "team_dynamics", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 72.5, out.Score)

	// Overwrite replaces the stored payload.
	require.NoError(t, client.SetSnapshot(ctx, "s1", "team_dynamics", payload{Score: 80}, time.Hour))
	_, err = client.GetSnapshot(ctx, "s1", "team_dynamics", &out)
	require.NoError(t, err)
	assert.Equal(t, 80.0, out.Score)

	require.NoError(t, client.InvalidateSurvey(ctx, "s1"))
	found, err = client.GetSnapshot(ctx, "s1", "team_dynamics", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSnapshotExpiry(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.CreateSurvey(ctx, sampleSurvey()))
	require.NoError(t, client.SetSnapshot(ctx, "s1", "insights", map[string]string{"k": "v"}, -time.Hour))

	var out map[string]string
	found, err := client.GetSnapshot(ctx, "s1", "insights", &out)
	require.NoError(t, err)
	assert.False(t, found)
}
