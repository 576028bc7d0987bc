package types

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserRequest_Validate(t *testing.T) {
	valid := CreateUserRequest{Name: "Jane Doe", Email: "jane@example.com", Password: "correct-horse"}

	tests := []struct {
		name    string
		mutate  func(*CreateUserRequest)
		wantErr bool
	}{
		{"valid", func(*CreateUserRequest) {}, false},
		{"valid with phone", func(r *CreateUserRequest) { r.Phone = "+14155550100" }, false},
		{"missing name", func(r *CreateUserRequest) { r.Name = "" }, true},
		{"name too long", func(r *CreateUserRequest) { r.Name = strings.Repeat("a", 101) }, true},
		{"bad email", func(r *CreateUserRequest) { r.Email = "jane" }, true},
		{"short password", func(r *CreateUserRequest) { r.Password = "short" }, true},
		{"password over bcrypt limit", func(r *CreateUserRequest) { r.Password = strings.Repeat("p", 73) }, true},
		{"bad phone", func(r *CreateUserRequest) { r.Phone = "555-0100" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoginRequest_Validate(t *testing.T) {
	assert.NoError(t, (&LoginRequest{Email: "jane@example.com", Password: "x"}).Validate())
	assert.Error(t, (&LoginRequest{Email: "jane@example.com"}).Validate())
	assert.Error(t, (&LoginRequest{Email: "not-an-email", Password: "x"}).Validate())
}

func TestUpdatePasswordRequest_Validate(t *testing.T) {
	assert.NoError(t, (&UpdatePasswordRequest{CurrentPassword: "old-password", NewPassword: "new-password"}).Validate())
	assert.Error(t, (&UpdatePasswordRequest{CurrentPassword: "same-password", NewPassword: "same-password"}).Validate())
	assert.Error(t, (&UpdatePasswordRequest{CurrentPassword: "old-password", NewPassword: "short"}).Validate())
	assert.Error(t, (&UpdatePasswordRequest{NewPassword: "new-password"}).Validate())
}

func TestUser_LandingURL(t *testing.T) {
	assert.Equal(t, SurveyURL, (&User{}).LandingURL())
	assert.Equal(t, DashboardURL, (&User{Onboarded: true}).LandingURL())
	assert.Equal(t, SurveyURL, (*User)(nil).LandingURL())
}

func TestLoginResponse_OmitsSecrets(t *testing.T) {
	resp := LoginResponse{User: &User{ID: uuid.New(), Email: "jane@example.com"}, Token: "tok", RedirectURL: SurveyURL}
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "password_hash")
	assert.Contains(t, string(data), `"redirect_url":"/onboard/survey"`)
	assert.NotContains(t, string(data), "survey_completed_at")
}
