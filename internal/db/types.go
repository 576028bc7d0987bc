package db

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/onboarding-survey/internal/types"
)

// User represents a user account
type User struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Phone             string     `json:"phone,omitempty"`
	PasswordHash      string     `json:"-" db:"password_hash"` // Never serialize to JSON
	PasswordSet       bool       `json:"password_set" db:"password_set"`
	Onboarded         bool       `json:"onboarded"`
	SurveyCompletedAt *time.Time `json:"survey_completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// SurveyResponse is one row of survey_responses.
type SurveyResponse struct {
	ID uuid.UUID `json:"id"`
	types.SubmissionPayload
	CompletedAt time.Time `json:"completed_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ResponseFilters narrows ListSurveyResponses.
type ResponseFilters struct {
	Industry string
	Since    *time.Time
	Limit    int
	Offset   int
}

// SurveyStatus summarises a user's survey progress.
type SurveyStatus struct {
	Completed    bool       `json:"completed"`
	Onboarded    bool       `json:"onboarded"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}
