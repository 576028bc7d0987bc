package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/jonathan/onboarding-survey/internal/types"
)

const upsertResponse = `INSERT INTO survey_responses (
		user_id, full_name, education_level, industry, mission_focus, strength_areas,
		learning_preference, portfolio, experience_summary, platform_connections, metadata, completed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (user_id) DO UPDATE SET
		full_name = EXCLUDED.full_name,
		education_level = EXCLUDED.education_level,
		industry = EXCLUDED.industry,
		mission_focus = EXCLUDED.mission_focus,
		strength_areas = EXCLUDED.strength_areas,
		learning_preference = EXCLUDED.learning_preference,
		portfolio = EXCLUDED.portfolio,
		experience_summary = EXCLUDED.experience_summary,
		platform_connections = EXCLUDED.platform_connections,
		metadata = EXCLUDED.metadata,
		completed_at = EXCLUDED.completed_at,
		updated_at = NOW()
	RETURNING id, completed_at`

const responseColumns = `id, user_id, full_name, education_level, industry, mission_focus, strength_areas,
	learning_preference, portfolio, experience_summary, platform_connections, metadata,
	completed_at, created_at, updated_at`

// SaveSurveyResponse upserts the response for p.UserID, so a retried submission replaces
// rather than duplicates the stored row.
func (db *DB) SaveSurveyResponse(ctx context.Context, p types.SubmissionPayload) (uuid.UUID, time.Time, error) {
	portfolio, err := json.Marshal(p.Portfolio)
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("failed to marshal portfolio: %w", err)
	}
	platforms, err := json.Marshal(p.PlatformConnections)
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("failed to marshal platform connections: %w", err)
	}
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	completedAt := p.Metadata.CompletedAt.UTC()
	var id uuid.UUID
	err = db.pool.QueryRow(ctx, upsertResponse,
		p.UserID, p.FullName, p.EducationLevel, p.Industry, p.MissionFocus, p.StrengthAreas,
		p.LearningPreference, portfolio, p.ExperienceSummary, platforms, metadata, completedAt,
	).Scan(&id, &completedAt)
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("failed to save survey response: %w", err)
	}
	return id, completedAt, nil
}

// Submit stores a completed survey. It lets *DB serve as the survey controller's Submitter.
func (db *DB) Submit(ctx context.Context, sub types.Submission) (types.SubmitReceipt, error) {
	id, completedAt, err := db.SaveSurveyResponse(ctx, types.NewSubmissionPayload(sub))
	if err != nil {
		return types.SubmitReceipt{}, err
	}
	db.log.Info("survey response saved",
		zap.String("user_id", sub.UserID.String()),
		zap.String("response_id", id.String()))
	return types.SubmitReceipt{ResponseID: id, CompletedAt: completedAt}, nil
}

func scanResponse(row pgx.Row) (*SurveyResponse, error) {
	var (
		r                              SurveyResponse
		portfolio, platforms, metadata []byte
	)
	err := row.Scan(&r.ID, &r.UserID, &r.FullName, &r.EducationLevel, &r.Industry,
		&r.MissionFocus, &r.StrengthAreas, &r.LearningPreference, &portfolio,
		&r.ExperienceSummary, &platforms, &metadata, &r.CompletedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalColumn(portfolio, &r.Portfolio); err != nil {
		return nil, fmt.Errorf("portfolio: %w", err)
	}
	if err := unmarshalColumn(platforms, &r.PlatformConnections); err != nil {
		return nil, fmt.Errorf("platform_connections: %w", err)
	}
	if err := unmarshalColumn(metadata, &r.Metadata); err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	return &r, nil
}

func unmarshalColumn(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// GetSurveyResponse retrieves a user's response. It returns nil, nil when none exists.
func (db *DB) GetSurveyResponse(ctx context.Context, userID uuid.UUID) (*SurveyResponse, error) {
	r, err := scanResponse(db.pool.QueryRow(ctx,
		`SELECT `+responseColumns+` FROM survey_responses WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get survey response: %w", err)
	}
	return r, nil
}

// ListSurveyResponses retrieves responses, newest first, with optional filters
func (db *DB) ListSurveyResponses(ctx context.Context, filters ResponseFilters) ([]SurveyResponse, error) {
	if filters.Limit == 0 {
		filters.Limit = 100
	}

	query := `SELECT ` + responseColumns + ` FROM survey_responses WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.Industry != "" {
		query += fmt.Sprintf(" AND industry = $%d", argNum)
		args = append(args, filters.Industry)
		argNum++
	}
	if filters.Since != nil {
		query += fmt.Sprintf(" AND completed_at >= $%d", argNum)
		args = append(args, *filters.Since)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY completed_at DESC LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filters.Limit, filters.Offset)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list survey responses: %w", err)
	}
	defer rows.Close()

	var out []SurveyResponse
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan survey response: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list survey responses: %w", err)
	}
	return out, nil
}

// GetSurveyStatus reports whether the user finished the survey and when their answers last
// changed, counting drafts.
func (db *DB) GetSurveyStatus(ctx context.Context, userID uuid.UUID, draftKey string) (*SurveyStatus, error) {
	var (
		st            SurveyStatus
		responseAt    *time.Time
		draftUpdateAt *time.Time
	)
	err := db.pool.QueryRow(ctx,
		`SELECT u.onboarded, u.survey_completed_at,
			(SELECT r.updated_at FROM survey_responses r WHERE r.user_id = u.id),
			(SELECT d.updated_at FROM survey_drafts d WHERE d.key = $2)
		 FROM users u WHERE u.id = $1`,
		userID, draftKey,
	).Scan(&st.Onboarded, &st.CompletedAt, &responseAt, &draftUpdateAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get survey status: %w", err)
	}

	st.Completed = responseAt != nil
	st.LastModified = latest(responseAt, draftUpdateAt)
	return &st, nil
}

func latest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	}
	return a
}
