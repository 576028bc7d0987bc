package survey

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jonathan/onboarding-survey/internal/survey/catalog"
	"github.com/jonathan/onboarding-survey/internal/types"
)

// DefaultEducationLevel pre-selects the most common answer.
const DefaultEducationLevel = "Bachelors Degree"

// Patch is a partial update of the answer values. Nil fields are left untouched.
type Patch struct {
	FullName           *string   `json:"fullName,omitempty"`
	EducationLevel     *string   `json:"educationLevel,omitempty"`
	Industry           *string   `json:"industry,omitempty"`
	MissionFocus       *[]string `json:"missionFocus,omitempty"`
	StrengthAreas      *[]string `json:"strengthAreas,omitempty"`
	LearningPreference *string   `json:"learningPreference,omitempty"`
	PortfolioURL       *string   `json:"portfolioUrl,omitempty"`
	ExperienceSummary  *string   `json:"experienceSummary,omitempty"`
}

// IsEmpty reports whether the patch sets nothing.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

func (p Patch) clone() Patch {
	out := p
	if p.MissionFocus != nil {
		v := slices.Clone(*p.MissionFocus)
		out.MissionFocus = &v
	}
	if p.StrengthAreas != nil {
		v := slices.Clone(*p.StrengthAreas)
		out.StrengthAreas = &v
	}
	return out
}

// FieldEdit replaces one field's value and error. Error nil clears the field's error.
// The set of implementations is closed.
type FieldEdit interface {
	Field() types.FieldName
	apply(d *types.FormData)
	value() any
}

type FullNameEdit struct {
	Value string
	Error *string
}

type EducationLevelEdit struct {
	Value string
	Error *string
}

type IndustryEdit struct {
	Value string
	Error *string
}

type MissionFocusEdit struct {
	Value []string
	Error *string
}

type StrengthAreasEdit struct {
	Value []string
	Error *string
}

type LearningPreferenceEdit struct {
	Value string
	Error *string
}

type ExperienceSummaryEdit struct {
	Value string
	Error *string
}

// PortfolioURLEdit switches the portfolio to the URL channel, clearing any file.
type PortfolioURLEdit struct {
	Value string
	Error *string
}

func (FullNameEdit) Field() types.FieldName           { return types.FieldFullName }
func (EducationLevelEdit) Field() types.FieldName     { return types.FieldEducationLevel }
func (IndustryEdit) Field() types.FieldName           { return types.FieldIndustry }
func (MissionFocusEdit) Field() types.FieldName       { return types.FieldMissionFocus }
func (StrengthAreasEdit) Field() types.FieldName      { return types.FieldStrengthAreas }
func (LearningPreferenceEdit) Field() types.FieldName { return types.FieldLearningPreference }
func (ExperienceSummaryEdit) Field() types.FieldName  { return types.FieldExperienceSummary }
func (PortfolioURLEdit) Field() types.FieldName       { return types.FieldPortfolioURL }

func (e FullNameEdit) value() any           { return e.Value }
func (e EducationLevelEdit) value() any     { return e.Value }
func (e IndustryEdit) value() any           { return e.Value }
func (e MissionFocusEdit) value() any       { return slices.Clone(e.Value) }
func (e StrengthAreasEdit) value() any      { return slices.Clone(e.Value) }
func (e LearningPreferenceEdit) value() any { return e.Value }
func (e ExperienceSummaryEdit) value() any  { return e.Value }
func (e PortfolioURLEdit) value() any       { return e.Value }

func setAnswer[T any](a *types.Answer[T], v T, errMsg *string) {
	a.Value = v
	a.Error = cloneMsg(errMsg)
	a.Touched = true
}

func (e FullNameEdit) apply(d *types.FormData)       { setAnswer(&d.FullName, e.Value, e.Error) }
func (e EducationLevelEdit) apply(d *types.FormData) { setAnswer(&d.EducationLevel, e.Value, e.Error) }
func (e IndustryEdit) apply(d *types.FormData)       { setAnswer(&d.Industry, e.Value, e.Error) }
func (e MissionFocusEdit) apply(d *types.FormData) {
	setAnswer(&d.MissionFocus.Answer, slices.Clone(e.Value), e.Error)
}
func (e StrengthAreasEdit) apply(d *types.FormData) {
	setAnswer(&d.StrengthAreas, slices.Clone(e.Value), e.Error)
}
func (e LearningPreferenceEdit) apply(d *types.FormData) {
	setAnswer(&d.LearningPreference, e.Value, e.Error)
}
func (e ExperienceSummaryEdit) apply(d *types.FormData) {
	setAnswer(&d.ExperienceSummary, e.Value, e.Error)
}
func (e PortfolioURLEdit) apply(d *types.FormData) {
	selectURLChannel(&d.Portfolio)
	d.Portfolio.URL = e.Value
	d.Portfolio.URLError = cloneMsg(e.Error)
}

// DecodeFieldEdit builds the edit for name from a JSON body of the form {"value": ...}.
func DecodeFieldEdit(name types.FieldName, raw json.RawMessage) (FieldEdit, error) {
	var body struct {
		Value json.RawMessage `json:"value"`
		Error *string         `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("invalid field edit: %w", err)
	}
	if len(body.Value) == 0 {
		return nil, fmt.Errorf("invalid field edit: value is required")
	}

	var (
		s    string
		list []string
	)
	switch name {
	case types.FieldMissionFocus, types.FieldStrengthAreas:
		if err := json.Unmarshal(body.Value, &list); err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", name, err)
		}
	default:
		if err := json.Unmarshal(body.Value, &s); err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", name, err)
		}
	}

	switch name {
	case types.FieldFullName:
		return FullNameEdit{Value: s, Error: body.Error}, nil
	case types.FieldEducationLevel:
		return EducationLevelEdit{Value: s, Error: body.Error}, nil
	case types.FieldIndustry:
		return IndustryEdit{Value: s, Error: body.Error}, nil
	case types.FieldMissionFocus:
		return MissionFocusEdit{Value: list, Error: body.Error}, nil
	case types.FieldStrengthAreas:
		return StrengthAreasEdit{Value: list, Error: body.Error}, nil
	case types.FieldLearningPreference:
		return LearningPreferenceEdit{Value: s, Error: body.Error}, nil
	case types.FieldExperienceSummary:
		return ExperienceSummaryEdit{Value: s, Error: body.Error}, nil
	case types.FieldPortfolioURL:
		return PortfolioURLEdit{Value: s, Error: body.Error}, nil
	}
	return nil, fmt.Errorf("unknown field: %s", name)
}

// Store holds the canonical form snapshot. It is not safe for concurrent use;
// the Controller serializes access.
type Store struct {
	data            types.FormData
	now             func() time.Time
	maxInteractions int
}

// NewStore returns a store holding a fresh form positioned on step 1.
// maxInteractions caps the telemetry log; 0 keeps every entry.
func NewStore(now func() time.Time, maxInteractions int) *Store {
	if now == nil {
		now = time.Now
	}
	s := &Store{now: now, maxInteractions: maxInteractions}
	s.data = newFormData(now())
	return s
}

func newFormData(now time.Time) types.FormData {
	d := types.FormData{
		CurrentStep:      StepBasicInfo,
		TotalSteps:       TotalSteps,
		StartedAt:        now,
		UpdatedAt:        now,
		TimeSpentPerStep: map[int]time.Duration{},
	}
	d.EducationLevel.Value = DefaultEducationLevel
	syncMissionOptions(&d)
	return d
}

// Snapshot returns a deep copy of the current form data.
func (s *Store) Snapshot() types.FormData {
	return s.data.Clone()
}

// ReplaceFields merges every non-nil field of p and logs one field_update interaction.
// An industry change recomputes the mission options and prunes stale selections.
func (s *Store) ReplaceFields(p Patch) {
	if p.IsEmpty() {
		return
	}
	d := &s.data
	if p.FullName != nil {
		d.FullName.Value = *p.FullName
	}
	if p.EducationLevel != nil {
		d.EducationLevel.Value = *p.EducationLevel
	}
	if p.Industry != nil {
		d.Industry.Value = *p.Industry
	}
	if p.MissionFocus != nil {
		d.MissionFocus.Value = slices.Clone(*p.MissionFocus)
	}
	if p.StrengthAreas != nil {
		d.StrengthAreas.Value = slices.Clone(*p.StrengthAreas)
	}
	if p.LearningPreference != nil {
		d.LearningPreference.Value = *p.LearningPreference
	}
	if p.PortfolioURL != nil {
		selectURLChannel(&d.Portfolio)
		d.Portfolio.URL = *p.PortfolioURL
	}
	if p.ExperienceSummary != nil {
		d.ExperienceSummary.Value = *p.ExperienceSummary
	}
	syncMissionOptions(d)
	s.touch()
	s.record(types.ActionFieldUpdate, p.clone(), 0)
}

// ReplaceOneField applies e, marks the field touched and logs one field_update interaction.
func (s *Store) ReplaceOneField(e FieldEdit) {
	e.apply(&s.data)
	syncMissionOptions(&s.data)
	s.touch()
	s.record(types.ActionFieldUpdate, map[string]any{"field": string(e.Field()), "value": e.value()}, 0)
}

// Blur applies the leave-field policy: the name is trimmed, then the single-field rule sets
// or clears the error and the field becomes touched.
func (s *Store) Blur(field types.FieldName) {
	d := &s.data
	if field == types.FieldFullName {
		if trimmed := strings.TrimSpace(d.FullName.Value); trimmed != d.FullName.Value {
			d.FullName.Value = trimmed
			s.touch()
		}
	}
	msg := errPtr(validateField(field, d))
	switch field {
	case types.FieldFullName:
		d.FullName.Error, d.FullName.Touched = msg, true
	case types.FieldEducationLevel:
		d.EducationLevel.Error, d.EducationLevel.Touched = msg, true
	case types.FieldIndustry:
		d.Industry.Error, d.Industry.Touched = msg, true
	case types.FieldMissionFocus:
		d.MissionFocus.Error, d.MissionFocus.Touched = msg, true
	case types.FieldStrengthAreas:
		d.StrengthAreas.Error, d.StrengthAreas.Touched = msg, true
	case types.FieldLearningPreference:
		d.LearningPreference.Error, d.LearningPreference.Touched = msg, true
	case types.FieldExperienceSummary:
		d.ExperienceSummary.Error, d.ExperienceSummary.Touched = msg, true
	case types.FieldPortfolioURL:
		d.Portfolio.URLError = msg
	case types.FieldPortfolioFile:
		d.Portfolio.FileError = msg
	}
}

// setErrors writes a validation pass over fields into the answers: listed fields get their
// message, the rest are cleared.
func (s *Store) setErrors(fields []types.FieldName, errs map[types.FieldName]string) {
	d := &s.data
	for _, f := range fields {
		msg := errPtr(errs[f])
		switch f {
		case types.FieldFullName:
			d.FullName.Error = msg
		case types.FieldEducationLevel:
			d.EducationLevel.Error = msg
		case types.FieldIndustry:
			d.Industry.Error = msg
		case types.FieldMissionFocus:
			d.MissionFocus.Error = msg
		case types.FieldStrengthAreas:
			d.StrengthAreas.Error = msg
		case types.FieldLearningPreference:
			d.LearningPreference.Error = msg
		case types.FieldExperienceSummary:
			d.ExperienceSummary.Error = msg
		case types.FieldPortfolioURL:
			d.Portfolio.URLError = msg
		case types.FieldPortfolioFile:
			d.Portfolio.FileError = msg
		}
	}
}

// resetDownstream clears every answer after step 1.
func (s *Store) resetDownstream() {
	d := &s.data
	d.MissionFocus.Answer = types.Answer[[]string]{}
	d.StrengthAreas = types.Answer[[]string]{}
	d.LearningPreference = types.Answer[string]{}
	d.Portfolio = types.PortfolioAnswer{}
	d.PlatformConnections = types.PlatformConnections{}
	d.ExperienceSummary = types.Answer[string]{}
	syncMissionOptions(d)
	s.touch()
	s.record(types.ActionReset, nil, 0)
}

func (s *Store) touch() {
	s.data.UpdatedAt = s.now()
}

func (s *Store) record(action string, data any, spent time.Duration) {
	s.data.Interactions = append(s.data.Interactions, types.Interaction{
		Timestamp: s.now(),
		Step:      s.data.CurrentStep,
		Action:    action,
		Data:      data,
		TimeSpent: spent,
	})
	if s.maxInteractions > 0 && len(s.data.Interactions) > s.maxInteractions {
		drop := len(s.data.Interactions) - s.maxInteractions
		s.data.Interactions = slices.Delete(s.data.Interactions, 0, drop)
	}
}

// syncMissionOptions derives the mission question from the industry answer and drops
// selections that are no longer offered.
func syncMissionOptions(d *types.FormData) {
	d.MissionFocus.Options = catalog.IndustryOptions(d.Industry.Value)
	d.MissionFocus.QuestionText = catalog.QuestionText(d.Industry.Value)
	if len(d.MissionFocus.Value) == 0 {
		return
	}
	kept := d.MissionFocus.Value[:0:0]
	for _, v := range d.MissionFocus.Value {
		if slices.Contains(d.MissionFocus.Options, v) {
			kept = append(kept, v)
		}
	}
	d.MissionFocus.Value = kept
}

func selectURLChannel(p *types.PortfolioAnswer) {
	p.File = nil
	p.FileError = nil
	p.FileProgress = 0
	p.UploadStatus = types.UploadNone
	p.UploadedURL = ""
	p.UploadedFilename = ""
}

func selectFileChannel(p *types.PortfolioAnswer) {
	p.URL = ""
	p.URLError = nil
}

func errPtr(msg string) *string {
	if msg == "" {
		return nil
	}
	return &msg
}

func cloneMsg(msg *string) *string {
	if msg == nil {
		return nil
	}
	v := *msg
	return &v
}
