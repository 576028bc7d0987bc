// Package server provides the HTTP API that hosts the onboarding survey.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/jonathan/onboarding-survey/internal/survey"
)

// ErrEmailAlreadyExists indicates email is already registered
type ErrEmailAlreadyExists struct {
	Email string
}

func (e *ErrEmailAlreadyExists) Error() string {
	return fmt.Sprintf("email already registered: %s", e.Email)
}

// ErrInvalidCredentials indicates invalid login credentials
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid email or password"
}

// ErrUserNotFound indicates user was not found
type ErrUserNotFound struct {
	UserID uuid.UUID
}

func (e *ErrUserNotFound) Error() string {
	return fmt.Sprintf("user not found: %s", e.UserID)
}

// ErrPasswordMismatch indicates current password is incorrect
type ErrPasswordMismatch struct{}

func (e *ErrPasswordMismatch) Error() string {
	return "current password is incorrect"
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus maps account and survey errors to a response status.
func HTTPStatus(err error) int {
	var (
		exists    *ErrEmailAlreadyExists
		creds     *ErrInvalidCredentials
		mismatch  *ErrPasswordMismatch
		notFound  *ErrUserNotFound
		invalid   *ErrValidation
		authErr   *survey.AuthError
		valErr    *survey.ValidationError
		timeout   *survey.TimeoutError
		serverErr *survey.ServerError
		httpErr   *survey.HTTPError
		platform  *survey.UnknownPlatformError
	)
	switch {
	case errors.As(err, &exists):
		return http.StatusConflict
	case errors.As(err, &creds), errors.As(err, &mismatch), errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &invalid), errors.As(err, &valErr), errors.As(err, &platform):
		return http.StatusBadRequest
	case errors.Is(err, survey.ErrSubmitInProgress),
		errors.Is(err, survey.ErrUploadInProgress),
		errors.Is(err, survey.ErrAlreadyCompleted),
		errors.Is(err, survey.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, survey.ErrStepNotSkippable),
		errors.Is(err, survey.ErrResetNotAllowed),
		errors.Is(err, survey.ErrNotOnFinalStep):
		return http.StatusUnprocessableEntity
	case errors.Is(err, survey.ErrNoUploader):
		return http.StatusNotImplemented
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &serverErr):
		return http.StatusBadGateway
	case errors.As(err, &httpErr):
		if httpErr.Status >= 400 && httpErr.Status < 500 {
			return httpErr.Status
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error    string `json:"error"`
	Message  string `json:"message,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}

// surveyErrorBody pairs the raw error with the banner text the survey UI shows.
func surveyErrorBody(err error) errorBody {
	body := errorBody{Error: err.Error(), Redirect: survey.RedirectTo(err)}
	switch {
	case errors.Is(err, survey.ErrSubmitInProgress),
		errors.Is(err, survey.ErrUploadInProgress),
		errors.Is(err, survey.ErrAlreadyCompleted),
		errors.Is(err, survey.ErrStepNotSkippable),
		errors.Is(err, survey.ErrResetNotAllowed),
		errors.Is(err, survey.ErrNotOnFinalStep),
		errors.Is(err, survey.ErrSuperseded):
		body.Message = err.Error()
	default:
		body.Message = survey.UserMessage(err)
	}
	return body
}
