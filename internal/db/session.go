package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/onboarding-survey/internal/types"
)

// Session exposes one user's row as the survey's session record.
type Session struct {
	db     *DB
	userID uuid.UUID
}

// Session returns the session record store for userID.
func (db *DB) Session(userID uuid.UUID) *Session {
	return &Session{db: db, userID: userID}
}

// Read returns nil, nil when the user no longer exists.
func (s *Session) Read(ctx context.Context) (*types.UserRecord, error) {
	u, err := s.db.GetUser(ctx, s.userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, nil
	}
	return &types.UserRecord{ID: u.ID, Onboarded: u.Onboarded, SurveyCompletedAt: u.SurveyCompletedAt}, nil
}

func (s *Session) Write(ctx context.Context, rec types.UserRecord) error {
	if rec.ID != s.userID {
		return fmt.Errorf("session record belongs to %s, not %s", rec.ID, s.userID)
	}
	return s.db.SetOnboarded(ctx, rec.ID, rec.Onboarded, rec.SurveyCompletedAt)
}
