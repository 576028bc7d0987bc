// Package types provides type definitions for structured data used throughout the onboarding survey.
package types

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// FieldName identifies a user-editable survey field. The values double as the keys of
// per-field error maps and as JSON property names.
type FieldName string

const (
	FieldFullName           FieldName = "fullName"
	FieldEducationLevel     FieldName = "educationLevel"
	FieldIndustry           FieldName = "industry"
	FieldMissionFocus       FieldName = "missionFocus"
	FieldStrengthAreas      FieldName = "strengthAreas"
	FieldLearningPreference FieldName = "learningPreference"
	FieldPortfolioURL       FieldName = "portfolioUrl"
	FieldPortfolioFile      FieldName = "portfolioFile"
	FieldExperienceSummary  FieldName = "experienceSummary"
)

// Answer wraps every user-editable value with its validation metadata.
// Error is only meaningful once Touched is true or a step validation pass has run.
type Answer[T any] struct {
	Value   T       `json:"value"`
	Error   *string `json:"error"`
	Touched bool    `json:"touched"`
}

// MissionFocusAnswer is the industry-dependent multi-select. QuestionText and Options are
// derived from the industry answer and recomputed whenever it changes.
type MissionFocusAnswer struct {
	Answer[[]string]
	QuestionText string   `json:"questionText"`
	Options      []string `json:"options"`
}

// UploadStatus tracks the portfolio upload lifecycle.
type UploadStatus string

const (
	UploadNone      UploadStatus = ""
	UploadUploading UploadStatus = "uploading"
	UploadSuccess   UploadStatus = "success"
	UploadError     UploadStatus = "error"
)

// PortfolioFile describes a file chosen for upload. The bytes travel separately.
type PortfolioFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// PortfolioAnswer holds either a file or a URL, never both.
type PortfolioAnswer struct {
	File             *PortfolioFile `json:"file"`
	FileError        *string        `json:"fileError"`
	FileProgress     int            `json:"fileProgress"`
	URL              string         `json:"url"`
	URLError         *string        `json:"urlError"`
	UploadStatus     UploadStatus   `json:"uploadStatus"`
	UploadedURL      string         `json:"uploadedUrl,omitempty"`
	UploadedFilename string         `json:"uploadedFilename,omitempty"`
}

// Platform names an external profile source.
type Platform string

const (
	PlatformGitHub     Platform = "github"
	PlatformCodeSignal Platform = "codesignal"
	PlatformHackerRank Platform = "hackerrank"
)

// Platforms lists every supported platform in display order.
var Platforms = []Platform{PlatformGitHub, PlatformCodeSignal, PlatformHackerRank}

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool { return slices.Contains(Platforms, p) }

// PlatformConnection is the per-platform connection record.
// Connected implies Error == nil and Loading == false.
type PlatformConnection struct {
	Connected bool           `json:"connected"`
	Username  string         `json:"username"`
	UserID    string         `json:"userId"`
	Avatar    string         `json:"avatar"`
	Profile   map[string]any `json:"profile"`
	Error     *string        `json:"error"`
	Loading   bool           `json:"loading"`
	Score     *float64       `json:"score,omitempty"`
	Rank      *int           `json:"rank,omitempty"`
}

// PlatformConnections keeps one record per platform; records are reset, never removed.
type PlatformConnections struct {
	GitHub     PlatformConnection `json:"github"`
	CodeSignal PlatformConnection `json:"codesignal"`
	HackerRank PlatformConnection `json:"hackerrank"`
}

// Get returns the record for p, or nil for an unknown platform.
func (pc *PlatformConnections) Get(p Platform) *PlatformConnection {
	switch p {
	case PlatformGitHub:
		return &pc.GitHub
	case PlatformCodeSignal:
		return &pc.CodeSignal
	case PlatformHackerRank:
		return &pc.HackerRank
	}
	return nil
}

// Interaction is one telemetry log entry.
type Interaction struct {
	Timestamp time.Time     `json:"timestamp"`
	Step      int           `json:"step"`
	Action    string        `json:"action"`
	Data      any           `json:"data,omitempty"`
	TimeSpent time.Duration `json:"timeSpent,omitempty"`
}

// Interaction actions.
const (
	ActionFieldUpdate = "field_update"
	ActionNextStep    = "next_step"
	ActionPrevStep    = "prev_step"
	ActionSkipStep    = "skip_step"
	ActionReset       = "reset_subsequent"
	ActionUpload      = "portfolio_upload"
	ActionConnect     = "platform_connect"
	ActionDisconnect  = "platform_disconnect"
)

// FormData is the survey aggregate root.
type FormData struct {
	// Step 1
	FullName       Answer[string] `json:"fullName"`
	EducationLevel Answer[string] `json:"educationLevel"`
	Industry       Answer[string] `json:"industry"`

	// Step 2
	MissionFocus MissionFocusAnswer `json:"missionFocus"`

	// Step 3
	StrengthAreas Answer[[]string] `json:"strengthAreas"`

	// Step 4
	LearningPreference Answer[string] `json:"learningPreference"`

	// Step 5 (optional)
	Portfolio PortfolioAnswer `json:"portfolio"`

	// Step 6 (optional)
	PlatformConnections PlatformConnections `json:"platformConnections"`

	// Step 7
	ExperienceSummary Answer[string] `json:"experienceSummary"`

	CurrentStep  int        `json:"currentStep"`
	TotalSteps   int        `json:"totalSteps"`
	IsSubmitting bool       `json:"isSubmitting"`
	SubmitError  *string    `json:"submitError"`
	CompletedAt  *time.Time `json:"completedAt"`

	SavedAt *time.Time `json:"savedAt"`
	IsDraft bool       `json:"isDraft"`

	StartedAt        time.Time             `json:"startedAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
	TimeSpentPerStep map[int]time.Duration `json:"timeSpentPerStep"`
	Interactions     []Interaction         `json:"interactions"`
}

// Clone returns a deep copy of the form data. Interaction payloads are shared; they are
// never mutated after being logged.
func (d *FormData) Clone() FormData {
	out := *d
	out.FullName.Error = cloneString(d.FullName.Error)
	out.EducationLevel.Error = cloneString(d.EducationLevel.Error)
	out.Industry.Error = cloneString(d.Industry.Error)
	out.MissionFocus.Value = slices.Clone(d.MissionFocus.Value)
	out.MissionFocus.Error = cloneString(d.MissionFocus.Error)
	out.MissionFocus.Options = slices.Clone(d.MissionFocus.Options)
	out.StrengthAreas.Value = slices.Clone(d.StrengthAreas.Value)
	out.StrengthAreas.Error = cloneString(d.StrengthAreas.Error)
	out.LearningPreference.Error = cloneString(d.LearningPreference.Error)
	out.ExperienceSummary.Error = cloneString(d.ExperienceSummary.Error)

	if d.Portfolio.File != nil {
		f := *d.Portfolio.File
		out.Portfolio.File = &f
	}
	out.Portfolio.FileError = cloneString(d.Portfolio.FileError)
	out.Portfolio.URLError = cloneString(d.Portfolio.URLError)

	for _, p := range Platforms {
		src := d.PlatformConnections.Get(p)
		dst := out.PlatformConnections.Get(p)
		dst.Profile = maps.Clone(src.Profile)
		dst.Error = cloneString(src.Error)
		if src.Score != nil {
			s := *src.Score
			dst.Score = &s
		}
		if src.Rank != nil {
			r := *src.Rank
			dst.Rank = &r
		}
	}

	out.SubmitError = cloneString(d.SubmitError)
	out.CompletedAt = cloneTime(d.CompletedAt)
	out.SavedAt = cloneTime(d.SavedAt)
	out.TimeSpentPerStep = maps.Clone(d.TimeSpentPerStep)
	out.Interactions = slices.Clone(d.Interactions)
	return out
}

// TotalTimeSpent sums the recorded per-step durations.
func (d *FormData) TotalTimeSpent() time.Duration {
	var total time.Duration
	for _, v := range d.TimeSpentPerStep {
		total += v
	}
	return total
}

// UserRecord is the slice of the signed-in user's record the survey reads and writes.
type UserRecord struct {
	ID                uuid.UUID  `json:"id"`
	Onboarded         bool       `json:"onboarded"`
	SurveyCompletedAt *time.Time `json:"surveyCompletedAt"`
}

// Submission is the immutable payload handed to the submission backend.
type Submission struct {
	UserID         uuid.UUID     `json:"userId"`
	Data           FormData      `json:"data"`
	CompletedAt    time.Time     `json:"completedAt"`
	TotalTimeSpent time.Duration `json:"totalTimeSpent"`
}

// SubmitReceipt is returned by a successful submission.
type SubmitReceipt struct {
	ResponseID  uuid.UUID `json:"responseId"`
	CompletedAt time.Time `json:"completedAt"`
}

// UploadReceipt describes a stored portfolio file.
type UploadReceipt struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Type     string `json:"type"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
