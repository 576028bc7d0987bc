package survey

import (
	"context"
	"errors"
	"fmt"
)

// LoginRedirect is where the caller should send a user whose session expired mid-survey.
const LoginRedirect = "/login?redirect=/onboard/survey"

// User-facing submission messages.
const (
	msgAuth    = "Session expired. Please sign in again."
	msgTimeout = "Request timed out. Please check your connection and try again."
	msgServer  = "Server error. Please try again later."
	msgDefault = "Failed to save survey. Please try again."
)

// ErrSubmitInProgress is returned when a submission is already pending.
var ErrSubmitInProgress = errors.New("survey submission already in progress")

// ErrStepNotSkippable is returned by Skip on a step that is not optional.
var ErrStepNotSkippable = errors.New("step cannot be skipped")

// ErrNotOnFinalStep is returned by Submit before the user has reached the last input step.
var ErrNotOnFinalStep = errors.New("survey can only be submitted from the final step")

// ErrAlreadyCompleted is returned by mutations attempted after a successful submission.
var ErrAlreadyCompleted = errors.New("survey already completed")

// ErrUploadInProgress is returned when a second portfolio upload is started before the first settles.
var ErrUploadInProgress = errors.New("portfolio upload already in progress")

// ValidationError names the first required step that failed revalidation at submit time.
type ValidationError struct {
	Step    int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Please complete step %d before submitting", e.Step)
}

// AuthError indicates the acting user's session is no longer valid.
type AuthError struct {
	Message string
	Cause   error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("auth error: %s", e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// TimeoutError indicates a collaborator did not answer within its bound.
type TimeoutError struct {
	Operation string
	Cause     error
}

func (e *TimeoutError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s timed out: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("%s timed out", e.Operation)
}

func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// ServerError indicates a 5xx-equivalent failure in a collaborator.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("server error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server error: %s", e.Message)
}

// HTTPError is a non-auth 4xx-equivalent failure. Message is shown to the user verbatim.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error (%d): %s", e.Status, e.Message)
}

// UserMessage classifies err into the banner text shown after a failed submission.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		authErr    *AuthError
		valErr     *ValidationError
		timeoutErr *TimeoutError
		serverErr  *ServerError
		httpErr    *HTTPError
	)
	switch {
	case errors.As(err, &authErr):
		return msgAuth
	case errors.As(err, &valErr):
		return valErr.Error()
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return msgTimeout
	case errors.As(err, &serverErr):
		return msgServer
	case errors.As(err, &httpErr):
		if httpErr.Message != "" {
			return httpErr.Message
		}
		return msgDefault
	default:
		return msgDefault
	}
}

// RedirectTo returns where the caller should navigate after err, or "" to stay put.
func RedirectTo(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return LoginRedirect
	}
	return ""
}
