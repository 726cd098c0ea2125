package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teamscope/backend/internal/storage/models"
	"github.com/teamscope/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS surveys (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		survey_type TEXT NOT NULL,
		status TEXT NOT NULL,
		anonymize_responses INTEGER DEFAULT 0,
		scheduled_at INTEGER,
		activated_at INTEGER,
		closed_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_surveys_org ON surveys(org_id);
	CREATE INDEX IF NOT EXISTS idx_surveys_status ON surveys(status);

	CREATE TABLE IF NOT EXISTS respondents (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		email TEXT NOT NULL,
		display_name TEXT,
		department TEXT,
		position TEXT,
		UNIQUE(org_id, email)
	);
	CREATE INDEX IF NOT EXISTS idx_respondents_org ON respondents(org_id);

	CREATE TABLE IF NOT EXISTS survey_invitations (
		id TEXT PRIMARY KEY,
		survey_id TEXT NOT NULL,
		respondent_id TEXT NOT NULL,
		email TEXT NOT NULL,
		token TEXT UNIQUE NOT NULL,
		sent_at INTEGER,
		opened_at INTEGER,
		completed_at INTEGER,
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (survey_id) REFERENCES surveys(id) ON DELETE CASCADE,
		FOREIGN KEY (respondent_id) REFERENCES respondents(id)
	);
	CREATE INDEX IF NOT EXISTS idx_invitations_survey ON survey_invitations(survey_id);
	CREATE INDEX IF NOT EXISTS idx_invitations_token ON survey_invitations(token);

	CREATE TABLE IF NOT EXISTS responses (
		id TEXT PRIMARY KEY,
		survey_id TEXT NOT NULL,
		respondent_id TEXT NOT NULL,
		invitation_id TEXT,
		answers TEXT NOT NULL,
		submitted_at INTEGER NOT NULL,
		FOREIGN KEY (survey_id) REFERENCES surveys(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_responses_survey ON responses(survey_id);
	CREATE INDEX IF NOT EXISTS idx_responses_respondent ON responses(respondent_id);

	CREATE TABLE IF NOT EXISTS analytics_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		survey_id TEXT NOT NULL,
		snapshot_type TEXT NOT NULL,
		data TEXT NOT NULL,
		expires_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE(survey_id, snapshot_type),
		FOREIGN KEY (survey_id) REFERENCES surveys(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_survey ON analytics_snapshots(survey_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func nullableTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0).UTC()
	return &t
}

func (c *Client) CreateSurvey(ctx context.Context, survey *models.Survey) error {
	query := `
		INSERT INTO surveys (id, org_id, title, description, survey_type, status, anonymize_responses,
			scheduled_at, activated_at, closed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	anonymize := 0
	if survey.AnonymizeResponses {
		anonymize = 1
	}

	_, err := c.db.ExecContext(ctx, query,
		survey.ID,
		survey.OrgID,
		survey.Title,
		survey.Description,
		survey.SurveyType,
		survey.Status,
		anonymize,
		nullableTime(survey.ScheduledAt),
		nullableTime(survey.ActivatedAt),
		nullableTime(survey.ClosedAt),
		survey.CreatedAt.Unix(),
		survey.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert survey: %w", err)
	}

	logger.Debug("Survey inserted", zap.String("survey_id", survey.ID), zap.String("type", survey.SurveyType))
	return nil
}

func (c *Client) GetSurvey(ctx context.Context, surveyID string) (*models.Survey, error) {
	query := `
		SELECT id, org_id, title, description, survey_type, status, anonymize_responses,
			scheduled_at, activated_at, closed_at, created_at, updated_at
		FROM surveys WHERE id = ?
	`

	var survey models.Survey
	var anonymize int
	var scheduledAt, activatedAt, closedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := c.db.QueryRowContext(ctx, query, surveyID).Scan(
		&survey.ID,
		&survey.OrgID,
		&survey.Title,
		&survey.Description,
		&survey.SurveyType,
		&survey.Status,
		&anonymize,
		&scheduledAt,
		&activatedAt,
		&closedAt,
		&createdAt,
		&updatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("survey %s: %w", surveyID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get survey: %w", err)
	}

	survey.AnonymizeResponses = anonymize == 1
	survey.ScheduledAt = timePtr(scheduledAt)
	survey.ActivatedAt = timePtr(activatedAt)
	survey.ClosedAt = timePtr(closedAt)
	survey.CreatedAt = time.Unix(createdAt, 0).UTC()
	survey.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &survey, nil
}

func (c *Client) UpdateSurveyStatus(ctx context.Context, surveyID, status string, at time.Time) error {
	var column string
	switch status {
	case models.SurveyStatusActive:
		column = "activated_at"
	case models.SurveyStatusClosed, models.SurveyStatusCancelled:
		column = "closed_at"
	}

	var result sql.Result
	var err error
	if column != "" {
		query := fmt.Sprintf("UPDATE surveys SET status = ?, %s = ?, updated_at = ? WHERE id = ?", column)
		result, err = c.db.ExecContext(ctx, query, status, at.Unix(), at.Unix(), surveyID)
	} else {
		result, err = c.db.ExecContext(ctx, "UPDATE surveys SET status = ?, updated_at = ? WHERE id = ?", status, at.Unix(), surveyID)
	}

	if err != nil {
		return fmt.Errorf("failed to update survey status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("survey %s: %w", surveyID, models.ErrNotFound)
	}

	logger.Info("Survey status updated",
		zap.String("survey_id", surveyID),
		zap.String("status", status),
	)

	return nil
}

func (c *Client) UpsertRespondent(ctx context.Context, r *models.Respondent) error {
	query := `
		INSERT INTO respondents (id, org_id, email, display_name, department, position)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(org_id, email) DO UPDATE SET
			display_name = excluded.display_name,
			department = excluded.department,
			position = excluded.position
	`

	_, err := c.db.ExecContext(ctx, query, r.ID, r.OrgID, r.Email, r.DisplayName, r.Department, r.Position)
	if err != nil {
		return fmt.Errorf("failed to upsert respondent: %w", err)
	}

	return nil
}

func (c *Client) GetRespondentByEmail(ctx context.Context, orgID, email string) (*models.Respondent, error) {
	query := `SELECT id, org_id, email, display_name, department, position FROM respondents WHERE org_id = ? AND email = ?`

	var r models.Respondent
	err := c.db.QueryRowContext(ctx, query, orgID, email).Scan(
		&r.ID, &r.OrgID, &r.Email, &r.DisplayName, &r.Department, &r.Position,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("respondent %s: %w", email, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get respondent: %w", err)
	}

	return &r, nil
}

func (c *Client) ListRespondents(ctx context.Context, surveyID string) ([]models.Respondent, error) {
	query := `
		SELECT DISTINCT r.id, r.org_id, r.email, r.display_name, r.department, r.position
		FROM respondents r
		JOIN survey_invitations i ON i.respondent_id = r.id
		WHERE i.survey_id = ?
		ORDER BY r.id
	`

	rows, err := c.db.QueryContext(ctx, query, surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list respondents: %w", err)
	}
	defer rows.Close()

	var respondents []models.Respondent
	for rows.Next() {
		var r models.Respondent
		if err := rows.Scan(&r.ID, &r.OrgID, &r.Email, &r.DisplayName, &r.Department, &r.Position); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		respondents = append(respondents, r)
	}

	return respondents, rows.Err()
}

func (c *Client) CreateInvitation(ctx context.Context, inv *models.SurveyInvitation) error {
	query := `
		INSERT INTO survey_invitations (id, survey_id, respondent_id, email, token,
			sent_at, opened_at, completed_at, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		inv.ID,
		inv.SurveyID,
		inv.RespondentID,
		inv.Email,
		inv.Token,
		nullableTime(inv.SentAt),
		nullableTime(inv.OpenedAt),
		nullableTime(inv.CompletedAt),
		inv.ExpiresAt.Unix(),
		inv.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert invitation: %w", err)
	}

	return nil
}

func (c *Client) GetInvitationByToken(ctx context.Context, token string) (*models.SurveyInvitation, error) {
	query := `
		SELECT id, survey_id, respondent_id, email, token, sent_at, opened_at, completed_at, expires_at, created_at
		FROM survey_invitations WHERE token = ?
	`

	var inv models.SurveyInvitation
	var sentAt, openedAt, completedAt sql.NullInt64
	var expiresAt, createdAt int64

	err := c.db.QueryRowContext(ctx, query, token).Scan(
		&inv.ID,
		&inv.SurveyID,
		&inv.RespondentID,
		&inv.Email,
		&inv.Token,
		&sentAt,
		&openedAt,
		&completedAt,
		&expiresAt,
		&createdAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invitation: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	inv.SentAt = timePtr(sentAt)
	inv.OpenedAt = timePtr(openedAt)
	inv.CompletedAt = timePtr(completedAt)
	inv.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	inv.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &inv, nil
}

func (c *Client) MarkInvitationOpened(ctx context.Context, invitationID string, at time.Time) error {
	query := `UPDATE survey_invitations SET opened_at = ? WHERE id = ? AND opened_at IS NULL`

	if _, err := c.db.ExecContext(ctx, query, at.Unix(), invitationID); err != nil {
		return fmt.Errorf("failed to mark invitation opened: %w", err)
	}
	return nil
}

func (c *Client) MarkInvitationCompleted(ctx context.Context, invitationID string, at time.Time) error {
	query := `UPDATE survey_invitations SET completed_at = ? WHERE id = ? AND completed_at IS NULL`

	if _, err := c.db.ExecContext(ctx, query, at.Unix(), invitationID); err != nil {
		return fmt.Errorf("failed to mark invitation completed: %w", err)
	}
	return nil
}

func (c *Client) ListInvitations(ctx context.Context, surveyID string) ([]models.SurveyInvitation, error) {
	query := `
		SELECT id, survey_id, respondent_id, email, token, sent_at, opened_at, completed_at, expires_at, created_at
		FROM survey_invitations WHERE survey_id = ? ORDER BY created_at
	`

	rows, err := c.db.QueryContext(ctx, query, surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []models.SurveyInvitation
	for rows.Next() {
		var inv models.SurveyInvitation
		var sentAt, openedAt, completedAt sql.NullInt64
		var expiresAt, createdAt int64

		err := rows.Scan(
			&inv.ID, &inv.SurveyID, &inv.RespondentID, &inv.Email, &inv.Token,
			&sentAt, &openedAt, &completedAt, &expiresAt, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		inv.SentAt = timePtr(sentAt)
		inv.OpenedAt = timePtr(openedAt)
		inv.CompletedAt = timePtr(completedAt)
		inv.ExpiresAt = time.Unix(expiresAt, 0).UTC()
		inv.CreatedAt = time.Unix(createdAt, 0).UTC()
		invitations = append(invitations, inv)
	}

	return invitations, rows.Err()
}

func (c *Client) InsertResponse(ctx context.Context, r *models.RawResponse) error {
	query := `
		INSERT INTO responses (id, survey_id, respondent_id, invitation_id, answers, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(ctx, query,
		r.ID,
		r.SurveyID,
		r.RespondentID,
		r.InvitationID,
		r.AnswersJSON,
		r.SubmittedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert response: %w", err)
	}

	logger.Debug("Response inserted",
		zap.String("response_id", r.ID),
		zap.String("survey_id", r.SurveyID),
	)

	return nil
}

func (c *Client) ListResponses(ctx context.Context, surveyID string) ([]models.RawResponse, error) {
	query := `
		SELECT id, survey_id, respondent_id, invitation_id, answers, submitted_at
		FROM responses WHERE survey_id = ? ORDER BY submitted_at
	`

	rows, err := c.db.QueryContext(ctx, query, surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list responses: %w", err)
	}
	defer rows.Close()

	var responses []models.RawResponse
	for rows.Next() {
		var r models.RawResponse
		var submittedAt int64

		err := rows.Scan(&r.ID, &r.SurveyID, &r.RespondentID, &r.InvitationID, &r.AnswersJSON, &submittedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.SubmittedAt = time.Unix(submittedAt, 0).UTC()
		responses = append(responses, r)
	}

	return responses, rows.Err()
}

// GetSnapshot and SetSnapshot let the SQLite client stand in as the
// snapshot cache when Redis is not configured. Expired rows are treated
// as misses and overwritten on the next write.
func (c *Client) GetSnapshot(ctx context.Context, surveyID, snapshotType string, out interface{}) (bool, error) {
	query := `SELECT data, expires_at FROM analytics_snapshots WHERE survey_id = ? AND snapshot_type = ?`

	var data string
	var expiresAt int64

	err := c.db.QueryRowContext(ctx, query, surveyID, snapshotType).Scan(&data, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if time.Now().Unix() >= expiresAt {
		return false, nil
	}

	if err := json.Unmarshal([]byte(data), out); err != nil {
		return false, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return true, nil
}

func (c *Client) SetSnapshot(ctx context.Context, surveyID, snapshotType string, data interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO analytics_snapshots (survey_id, snapshot_type, data, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(survey_id, snapshot_type) DO UPDATE SET
			data = excluded.data,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at
	`

	_, err = c.db.ExecContext(ctx, query, surveyID, snapshotType, string(payload), now.Add(ttl).Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	return nil
}

func (c *Client) InvalidateSurvey(ctx context.Context, surveyID string) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM analytics_snapshots WHERE survey_id = ?", surveyID)
	if err != nil {
		return fmt.Errorf("failed to invalidate snapshots: %w", err)
	}
	return nil
}
