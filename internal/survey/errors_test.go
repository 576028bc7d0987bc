package survey

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		want     string
		redirect string
	}{
		{"nil", nil, "", ""},
		{"auth", &AuthError{Message: "expired"}, "Session expired. Please sign in again.", LoginRedirect},
		{"wrapped auth", fmt.Errorf("submit: %w", &AuthError{Message: "expired"}), "Session expired. Please sign in again.", LoginRedirect},
		{"validation", &ValidationError{Step: 2}, "Please complete step 2 before submitting", ""},
		{"timeout", &TimeoutError{Operation: "submit"}, "Request timed out. Please check your connection and try again.", ""},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), "Request timed out. Please check your connection and try again.", ""},
		{"server", &ServerError{Status: 502}, "Server error. Please try again later.", ""},
		{"http with message", &HTTPError{Status: 422, Message: "Industry is not supported"}, "Industry is not supported", ""},
		{"http without message", &HTTPError{Status: 404}, "Failed to save survey. Please try again.", ""},
		{"unknown", errBoom, "Failed to save survey. Please try again.", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
			assert.Equal(t, tt.redirect, RedirectTo(tt.err))
		})
	}
}

func TestTimeoutError_Unwrap(t *testing.T) {
	err := &TimeoutError{Operation: "upload", Cause: context.DeadlineExceeded}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "upload timed out")
}
