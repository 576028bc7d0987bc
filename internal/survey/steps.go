package survey

import "github.com/jonathan/onboarding-survey/internal/types"

// Step numbers of the onboarding sequence.
const (
	StepBasicInfo           = 1
	StepMissionFocus        = 2
	StepStrengthAreas       = 3
	StepLearningPreference  = 4
	StepPortfolio           = 5
	StepPlatformConnections = 6
	StepExperienceSummary   = 7
	StepCompletion          = 8

	// TotalSteps is also the terminal completion step.
	TotalSteps = StepCompletion
	// FinalInputStep is the last step with answers; advancing from it submits.
	FinalInputStep = StepExperienceSummary
)

// StepDef describes one step of the sequence.
type StepDef struct {
	Number    int               `json:"number"`
	Name      string            `json:"name"`
	Required  bool              `json:"required"`
	Skippable bool              `json:"skippable"`
	Fields    []types.FieldName `json:"fields,omitempty"`
}

// Steps is the ordered step configuration.
var Steps = []StepDef{
	{Number: StepBasicInfo, Name: "basic_info", Required: true,
		Fields: []types.FieldName{types.FieldFullName, types.FieldEducationLevel, types.FieldIndustry}},
	{Number: StepMissionFocus, Name: "mission_focus", Required: true,
		Fields: []types.FieldName{types.FieldMissionFocus}},
	{Number: StepStrengthAreas, Name: "strength_areas", Required: true,
		Fields: []types.FieldName{types.FieldStrengthAreas}},
	{Number: StepLearningPreference, Name: "learning_preference", Required: true,
		Fields: []types.FieldName{types.FieldLearningPreference}},
	{Number: StepPortfolio, Name: "portfolio", Skippable: true,
		Fields: []types.FieldName{types.FieldPortfolioURL, types.FieldPortfolioFile}},
	{Number: StepPlatformConnections, Name: "platform_connections", Skippable: true},
	{Number: StepExperienceSummary, Name: "experience_summary",
		Fields: []types.FieldName{types.FieldExperienceSummary}},
	{Number: StepCompletion, Name: "completion"},
}

// StepByNumber looks up a step definition.
func StepByNumber(n int) (StepDef, bool) {
	if n < 1 || n > len(Steps) {
		return StepDef{}, false
	}
	return Steps[n-1], true
}

// RequiredSteps returns the numbers of every required step, in order.
func RequiredSteps() []int {
	var out []int
	for _, s := range Steps {
		if s.Required {
			out = append(out, s.Number)
		}
	}
	return out
}
