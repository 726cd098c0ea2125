package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a referenced record does not
// exist.
var ErrNotFound = errors.New("record not found")

const (
	SurveyTypeSociometry   = "sociometry"
	SurveyTypeReview360    = "360"
	SurveyTypeENPS         = "enps"
	SurveyTypeTeamDynamics = "team_dynamics"
)

const (
	SurveyStatusDraft     = "draft"
	SurveyStatusScheduled = "scheduled"
	SurveyStatusActive    = "active"
	SurveyStatusClosed    = "closed"
	SurveyStatusCancelled = "cancelled"
)

type Survey struct {
	ID                 string     `json:"id"`
	OrgID              string     `json:"org_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	SurveyType         string     `json:"survey_type"`
	Status             string     `json:"status"`
	AnonymizeResponses bool       `json:"anonymize_responses"`
	ScheduledAt        *time.Time `json:"scheduled_at,omitempty"`
	ActivatedAt        *time.Time `json:"activated_at,omitempty"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type Respondent struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Department  string `json:"department,omitempty"`
	Position    string `json:"position,omitempty"`
}

type SurveyInvitation struct {
	ID           string     `json:"id"`
	SurveyID     string     `json:"survey_id"`
	RespondentID string     `json:"respondent_id"`
	Email        string     `json:"email"`
	Token        string     `json:"token"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	OpenedAt     *time.Time `json:"opened_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ExpiresAt    time.Time  `json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// RawResponse carries one respondent's submitted answers. Answers are stored
// as a JSON object keyed by question id; the analytics layer interprets the
// heterogeneous value shapes.
type RawResponse struct {
	ID           string
	SurveyID     string
	RespondentID string
	InvitationID string
	AnswersJSON  string
	SubmittedAt  time.Time
}

type AnalyticsSnapshot struct {
	ID           string
	SurveyID     string
	SnapshotType string
	DataJSON     string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}
