package types

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SubmissionPayload is the stored and transmitted shape of a completed survey.
type SubmissionPayload struct {
	UserID              uuid.UUID           `json:"user_id"`
	FullName            string              `json:"full_name"`
	EducationLevel      string              `json:"education_level"`
	Industry            string              `json:"industry"`
	MissionFocus        []string            `json:"mission_focus"`
	StrengthAreas       []string            `json:"strength_areas"`
	LearningPreference  string              `json:"learning_preference"`
	Portfolio           PortfolioPayload    `json:"portfolio"`
	ExperienceSummary   string              `json:"experience_summary"`
	PlatformConnections PlatformConnections `json:"platform_connections"`
	Metadata            SubmissionMetadata  `json:"metadata"`
}

// PortfolioPayload carries at most one of File and URL.
type PortfolioPayload struct {
	File *PortfolioFilePayload `json:"file"`
	URL  *string               `json:"url"`
}

// PortfolioFilePayload describes an uploaded portfolio file.
type PortfolioFilePayload struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// SubmissionMetadata carries the telemetry attached to a submission. Durations are in
// milliseconds.
type SubmissionMetadata struct {
	TotalTimeSpent   int64            `json:"total_time_spent"`
	TimeSpentPerStep map[string]int64 `json:"time_spent_per_step,omitempty"`
	Interactions     []Interaction    `json:"interactions"`
	StartedAt        time.Time        `json:"started_at"`
	CompletedAt      time.Time        `json:"completed_at"`
}

// NewSubmissionPayload flattens a submission into its stored shape.
func NewSubmissionPayload(sub Submission) SubmissionPayload {
	d := sub.Data
	p := SubmissionPayload{
		UserID:              sub.UserID,
		FullName:            d.FullName.Value,
		EducationLevel:      d.EducationLevel.Value,
		Industry:            d.Industry.Value,
		MissionFocus:        nonNil(d.MissionFocus.Value),
		StrengthAreas:       nonNil(d.StrengthAreas.Value),
		LearningPreference:  d.LearningPreference.Value,
		ExperienceSummary:   d.ExperienceSummary.Value,
		PlatformConnections: d.PlatformConnections,
		Metadata: SubmissionMetadata{
			TotalTimeSpent: sub.TotalTimeSpent.Milliseconds(),
			Interactions:   d.Interactions,
			StartedAt:      d.StartedAt,
			CompletedAt:    sub.CompletedAt,
		},
	}
	if p.Metadata.Interactions == nil {
		p.Metadata.Interactions = []Interaction{}
	}
	if len(d.TimeSpentPerStep) > 0 {
		p.Metadata.TimeSpentPerStep = make(map[string]int64, len(d.TimeSpentPerStep))
		for step, spent := range d.TimeSpentPerStep {
			p.Metadata.TimeSpentPerStep[strconv.Itoa(step)] = spent.Milliseconds()
		}
	}

	switch {
	case d.Portfolio.File != nil:
		p.Portfolio.File = &PortfolioFilePayload{
			Name: d.Portfolio.File.Name,
			Size: d.Portfolio.File.Size,
			Type: d.Portfolio.File.Type,
			URL:  d.Portfolio.UploadedURL,
		}
	case d.Portfolio.URL != "":
		u := d.Portfolio.URL
		p.Portfolio.URL = &u
	}
	return p
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
