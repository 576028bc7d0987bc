package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

// CreateUserRequest registers a new account with password authentication.
type CreateUserRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Phone    string `json:"phone,omitempty" validate:"omitempty,e164"`
}

// LoginRequest represents the login request.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// User is the account as returned by the API. The password hash never leaves the db package.
type User struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Phone             string     `json:"phone,omitempty"`
	PasswordSet       bool       `json:"password_set"`
	Onboarded         bool       `json:"onboarded"`
	SurveyCompletedAt *time.Time `json:"survey_completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// LoginResponse carries the user and a bearer token. RedirectURL sends users who have not
// finished onboarding to the survey.
type LoginResponse struct {
	User        *User  `json:"user"`
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// UpdatePasswordRequest represents a password update request.
type UpdatePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72,nefield=CurrentPassword"`
}

// Post-login destinations.
const (
	SurveyURL    = "/onboard/survey"
	DashboardURL = "/user-dashboard"
)

// LandingURL is where a user goes after signing in.
func (u *User) LandingURL() string {
	if u != nil && u.Onboarded {
		return DashboardURL
	}
	return SurveyURL
}

// Validate validates the CreateUserRequest using the validator.
func (r *CreateUserRequest) Validate() error {
	return requestValidator.Struct(r)
}

// Validate validates the LoginRequest using the validator.
func (r *LoginRequest) Validate() error {
	return requestValidator.Struct(r)
}

// Validate validates the UpdatePasswordRequest using the validator.
func (r *UpdatePasswordRequest) Validate() error {
	return requestValidator.Struct(r)
}
