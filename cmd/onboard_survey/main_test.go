package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/onboarding-survey/internal/client"
	"github.com/jonathan/onboarding-survey/internal/observability"
	"github.com/jonathan/onboarding-survey/internal/survey"
	"github.com/jonathan/onboarding-survey/internal/survey/catalog"
	"github.com/jonathan/onboarding-survey/internal/types"
)

// execute runs the root command in an empty working directory so no config.yaml is read.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	observability.ResetForTest()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	root.SetContext(t.Context())
	err := root.Execute()
	return out.String(), err
}

func completeDraft() types.FormData {
	d := survey.NewStore(nil, 0).Snapshot()
	d.FullName.Value = "Jane Doe"
	d.Industry.Value = "Technology & Software"
	d.MissionFocus.Value = []string{"Cybersecurity"}
	d.MissionFocus.Options = catalog.IndustryOptions("Technology & Software")
	d.StrengthAreas.Value = catalog.Strengths[:3]
	d.LearningPreference.Value = catalog.LearningBoth
	d.CurrentStep = survey.FinalInputStep
	d.TimeSpentPerStep = map[int]time.Duration{1: 90 * time.Second, 2: 30 * time.Second}
	return d
}

func writeDraft(t *testing.T, d any) string {
	t.Helper()
	blob, err := json.Marshal(d)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "draft.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))
	return path
}

func TestValidateDraft(t *testing.T) {
	t.Run("complete draft passes", func(t *testing.T) {
		path := writeDraft(t, completeDraft())
		out, err := execute(t, "validate-draft", "--file", path)
		require.NoError(t, err)
		assert.Contains(t, out, "All steps pass validation")
	})

	t.Run("verbose prints the draft", func(t *testing.T) {
		path := writeDraft(t, completeDraft())
		out, err := execute(t, "validate-draft", "-v", "-f", path)
		require.NoError(t, err)
		assert.Contains(t, out, "Jane Doe")
	})

	t.Run("incomplete draft reports the failing step", func(t *testing.T) {
		d := completeDraft()
		d.StrengthAreas.Value = nil
		path := writeDraft(t, d)

		out, err := execute(t, "validate-draft", "--file", path)
		assert.ErrorIs(t, err, errDraftIncomplete)
		assert.Contains(t, out, string(types.FieldStrengthAreas))
	})

	t.Run("schema violation", func(t *testing.T) {
		path := writeDraft(t, map[string]any{"currentStep": 2})
		_, err := execute(t, "validate-draft", "--file", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "schema validation failed")
	})

	t.Run("file flag is required", func(t *testing.T) {
		_, err := execute(t, "validate-draft")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"file" not set`)
	})
}

func TestSubmitDraft(t *testing.T) {
	responseID := uuid.New()
	completedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var (
		gotAuth    string
		gotPayload types.SubmissionPayload
		calls      int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != client.ResponsesPath || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(types.SubmitReceipt{ResponseID: responseID, CompletedAt: completedAt})
	}))
	defer srv.Close()

	t.Run("posts the draft", func(t *testing.T) {
		path := writeDraft(t, completeDraft())
		out, err := execute(t, "submit-draft", "--file", path, "--token", "tok", "--base-url", srv.URL)
		require.NoError(t, err)

		assert.Equal(t, "Bearer tok", gotAuth)
		assert.Equal(t, "Jane Doe", gotPayload.FullName)
		assert.Equal(t, []string{"Cybersecurity"}, gotPayload.MissionFocus)
		assert.Equal(t, int64(120_000), gotPayload.Metadata.TotalTimeSpent)
		assert.Contains(t, out, responseID.String())
	})

	t.Run("token from environment", func(t *testing.T) {
		t.Setenv(tokenEnv, "from-env")
		path := writeDraft(t, completeDraft())
		_, err := execute(t, "submit-draft", "-f", path, "--base-url", srv.URL)
		require.NoError(t, err)
		assert.Equal(t, "Bearer from-env", gotAuth)
	})

	t.Run("incomplete draft is not sent", func(t *testing.T) {
		before := calls
		d := completeDraft()
		d.FullName.Value = ""
		path := writeDraft(t, d)

		_, err := execute(t, "submit-draft", "--file", path, "--token", "tok", "--base-url", srv.URL)
		assert.ErrorIs(t, err, errDraftIncomplete)
		assert.Equal(t, before, calls)
	})

	t.Run("missing token", func(t *testing.T) {
		t.Setenv(tokenEnv, "")
		path := writeDraft(t, completeDraft())
		_, err := execute(t, "submit-draft", "--file", path, "--base-url", srv.URL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bearer token is required")
	})

	t.Run("invalid user id", func(t *testing.T) {
		path := writeDraft(t, completeDraft())
		_, err := execute(t, "submit-draft", "--file", path, "--token", "tok", "--user-id", "nope")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid --user-id")
	})

	t.Run("rejected submission surfaces the server message", func(t *testing.T) {
		reject := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"forbidden","message":"Cannot submit for another user"}`))
		}))
		defer reject.Close()

		path := writeDraft(t, completeDraft())
		_, err := execute(t, "submit-draft", "--file", path, "--token", "tok", "--base-url", reject.URL, "--user-id", uuid.NewString())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Cannot submit for another user")
	})
}

func TestCommandsRequireDatabase(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"serve", []string{"serve"}},
		{"migrate", []string{"migrate"}},
		{"export", []string{"export", "--out", "responses.xlsx"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "testSecret")
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "DATABASE_URL")
		})
	}
}

func TestExport_InvalidSince(t *testing.T) {
	_, err := execute(t, "export", "--out", "x.xlsx", "--since", "last week")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --since")
}

func TestParseSince(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-03-01", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"2026-03-01T10:30:00Z", time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseSince(tt.in)
		require.NoError(t, err)
		assert.True(t, tt.want.Equal(got), "%s: got %s", tt.in, got)
	}
}
