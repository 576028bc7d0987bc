package survey

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jonathan/onboarding-survey/internal/survey/catalog"
	"github.com/jonathan/onboarding-survey/internal/types"
)

// MaxPortfolioBytes is the largest accepted portfolio upload (10 MiB).
const MaxPortfolioBytes = 10 * 1024 * 1024

// MaxExperienceSummary caps the free-text experience summary.
const MaxExperienceSummary = 2000

// AllowedPortfolioTypes is the MIME whitelist for portfolio uploads.
var AllowedPortfolioTypes = []string{
	"application/pdf",
	"image/png",
	"image/jpeg",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// AllowedPortfolioExtensions is the file extension whitelist for portfolio uploads.
var AllowedPortfolioExtensions = []string{".pdf", ".png", ".jpg", ".jpeg", ".doc", ".docx"}

var personName = regexp.MustCompile(`^[a-zA-Z\s'-]+$`)

// Result is the outcome of validating one step. A field absent from Errors is valid.
type Result struct {
	IsValid bool                       `json:"isValid"`
	Errors  map[types.FieldName]string `json:"errors"`
}

type messageFunc func(fe validator.FieldError) string

func text(s string) messageFunc {
	return func(validator.FieldError) string { return s }
}

// Rule structs. The field tag names the FieldName an error is reported under.

type fullNameRule struct {
	FullName string `field:"fullName" validate:"required,min=2,max=50,personname"`
}

type educationRule struct {
	EducationLevel string `field:"educationLevel" validate:"required,education"`
}

type industryRule struct {
	Industry string `field:"industry" validate:"required,industry"`
}

type missionRule struct {
	Industry     string
	MissionFocus []string `field:"missionFocus" validate:"required,min=1"`
}

type strengthRule struct {
	StrengthAreas []string `field:"strengthAreas" validate:"required,min=3,max=9,unique,dive,strength"`
}

type learningRule struct {
	LearningPreference string `field:"learningPreference" validate:"required,oneof=trial-error reading both"`
}

type portfolioURLRule struct {
	URL string `field:"portfolioUrl" validate:"omitempty,url,httpscheme"`
}

type portfolioFileRule struct {
	Size int64  `field:"portfolioFile" validate:"max=10485760"`
	Type string `field:"portfolioFile" validate:"portfoliomime"`
	Name string `field:"portfolioFile" validate:"portfolioext"`
}

type experienceRule struct {
	ExperienceSummary string `field:"experienceSummary" validate:"omitempty,max=2000"`
}

var messages = map[string]messageFunc{
	"fullName.required":   text("Name is required"),
	"fullName.min":        text("Name must be at least 2 characters"),
	"fullName.max":        text("Name must be under 50 characters"),
	"fullName.personname": text("Name contains invalid characters"),

	"educationLevel.required":  text("Education level is required"),
	"educationLevel.education": text("Invalid education level"),

	"industry.required": text("Industry is required"),
	"industry.industry": text("Invalid industry"),

	"missionFocus.required":      text("Please select at least 1 option"),
	"missionFocus.min":           text("Please select at least 1 option"),
	"missionFocus.missionoption": text("Invalid options selected"),

	"strengthAreas.required": text("Please select at least 3 strengths"),
	"strengthAreas.min":      text("Please select at least 3 strengths"),
	"strengthAreas.max":      text("Please select no more than 9 strengths"),
	"strengthAreas.unique":   text("Duplicate strengths selected"),
	"strengthAreas.strength": text("Invalid strengths selected"),

	"learningPreference.required": text("Please select a learning preference"),
	"learningPreference.oneof":    text("Invalid learning preference"),

	"portfolioUrl.url":        text("Please enter a valid URL"),
	"portfolioUrl.httpscheme": text("URL must use HTTP or HTTPS"),

	"portfolioFile.max": func(fe validator.FieldError) string {
		size, _ := fe.Value().(int64)
		return fmt.Sprintf("File too large. Maximum size is 10MB, but you uploaded %.2fMB", float64(size)/1024/1024)
	},
	"portfolioFile.portfoliomime": text("File type not allowed. Supported types: " + strings.Join(AllowedPortfolioExtensions, ", ")),
	"portfolioFile.portfolioext": func(fe validator.FieldError) string {
		name, _ := fe.Value().(string)
		return "File extension not allowed: " + strings.ToLower(filepath.Ext(name))
	},

	"experienceSummary.max": text(fmt.Sprintf("Experience summary must be under %d characters", MaxExperienceSummary)),
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("field")
	})

	custom := map[string]validator.Func{
		"personname": func(fl validator.FieldLevel) bool { return personName.MatchString(fl.Field().String()) },
		"education":  func(fl validator.FieldLevel) bool { return catalog.IsEducationLevel(fl.Field().String()) },
		"industry":   func(fl validator.FieldLevel) bool { return catalog.IsIndustry(fl.Field().String()) },
		"strength":   func(fl validator.FieldLevel) bool { return catalog.IsStrength(fl.Field().String()) },
		"httpscheme": func(fl validator.FieldLevel) bool {
			u, err := url.Parse(fl.Field().String())
			return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
		},
		"portfoliomime": func(fl validator.FieldLevel) bool {
			return slices.Contains(AllowedPortfolioTypes, fl.Field().String())
		},
		"portfolioext": func(fl validator.FieldLevel) bool {
			ext := strings.ToLower(filepath.Ext(fl.Field().String()))
			return slices.Contains(AllowedPortfolioExtensions, ext)
		},
	}
	for tag, fn := range custom {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("survey: register validation %q: %v", tag, err))
		}
	}

	v.RegisterStructValidation(func(sl validator.StructLevel) {
		r := sl.Current().Interface().(missionRule)
		for _, opt := range r.MissionFocus {
			if !catalog.IsMissionOption(r.Industry, opt) {
				sl.ReportError(r.MissionFocus, "missionFocus", "MissionFocus", "missionoption", "")
				return
			}
		}
	}, missionRule{})
	return v
}

// check runs the validator over rule and returns the first message per field.
func check(rule any) map[types.FieldName]string {
	out := map[types.FieldName]string{}
	err := validate.Struct(rule)
	if err == nil {
		return out
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return out
	}
	for _, fe := range verrs {
		field, _, _ := strings.Cut(fe.Field(), "[")
		name := types.FieldName(field)
		if _, seen := out[name]; seen {
			continue
		}
		if fn, ok := messages[field+"."+fe.Tag()]; ok {
			out[name] = fn(fe)
		} else {
			out[name] = "Invalid value"
		}
	}
	return out
}

func single(name types.FieldName, rule any) string {
	return check(rule)[name]
}

// ValidateFullName checks the trimmed name. The stored value is only trimmed on blur.
// It returns "" when the name is valid.
func ValidateFullName(v string) string {
	return single(types.FieldFullName, fullNameRule{FullName: strings.TrimSpace(v)})
}

// ValidateEducationLevel returns "" when v is an accepted education level.
func ValidateEducationLevel(v string) string {
	return single(types.FieldEducationLevel, educationRule{EducationLevel: v})
}

// ValidateIndustry returns "" when v is an accepted industry.
func ValidateIndustry(v string) string {
	return single(types.FieldIndustry, industryRule{Industry: v})
}

// ValidateMissionFocus checks selections against the options derived from industry.
// The option list is recomputed on every call.
func ValidateMissionFocus(v []string, industry string) string {
	return single(types.FieldMissionFocus, missionRule{Industry: industry, MissionFocus: v})
}

// ValidateStrengthAreas returns "" when between 3 and 9 distinct known strengths are selected.
func ValidateStrengthAreas(v []string) string {
	return single(types.FieldStrengthAreas, strengthRule{StrengthAreas: v})
}

// ValidateLearningPreference returns "" for one of the three accepted values.
func ValidateLearningPreference(v string) string {
	return single(types.FieldLearningPreference, learningRule{LearningPreference: v})
}

// ValidatePortfolioURL accepts an empty string or an absolute http(s) URL.
func ValidatePortfolioURL(v string) string {
	return single(types.FieldPortfolioURL, portfolioURLRule{URL: v})
}

// ValidatePortfolioFile accepts nil or a file within the size, type and extension limits.
func ValidatePortfolioFile(f *types.PortfolioFile) string {
	if f == nil {
		return ""
	}
	return single(types.FieldPortfolioFile, portfolioFileRule{Size: f.Size, Type: f.Type, Name: f.Name})
}

// ValidateExperienceSummary enforces the summary length cap.
func ValidateExperienceSummary(v string) string {
	return single(types.FieldExperienceSummary, experienceRule{ExperienceSummary: v})
}

// Validate evaluates every rule of step against d. It is pure: it never mutates d and
// returns the same result for the same input. Steps without rules are always valid.
func Validate(step int, d *types.FormData) Result {
	if d == nil {
		d = &types.FormData{}
	}
	errs := map[types.FieldName]string{}
	add := func(name types.FieldName, msg string) {
		if msg != "" {
			errs[name] = msg
		}
	}

	switch step {
	case StepBasicInfo:
		add(types.FieldFullName, ValidateFullName(d.FullName.Value))
		add(types.FieldEducationLevel, ValidateEducationLevel(d.EducationLevel.Value))
		add(types.FieldIndustry, ValidateIndustry(d.Industry.Value))
	case StepMissionFocus:
		add(types.FieldMissionFocus, ValidateMissionFocus(d.MissionFocus.Value, d.Industry.Value))
	case StepStrengthAreas:
		add(types.FieldStrengthAreas, ValidateStrengthAreas(d.StrengthAreas.Value))
	case StepLearningPreference:
		add(types.FieldLearningPreference, ValidateLearningPreference(d.LearningPreference.Value))
	case StepPortfolio:
		if d.Portfolio.URL != "" {
			add(types.FieldPortfolioURL, ValidatePortfolioURL(d.Portfolio.URL))
		}
		if d.Portfolio.File != nil {
			add(types.FieldPortfolioFile, ValidatePortfolioFile(d.Portfolio.File))
		}
	case StepExperienceSummary:
		add(types.FieldExperienceSummary, ValidateExperienceSummary(d.ExperienceSummary.Value))
	}

	return Result{IsValid: len(errs) == 0, Errors: errs}
}

// validateField runs the single-field rule for name against d.
func validateField(name types.FieldName, d *types.FormData) string {
	switch name {
	case types.FieldFullName:
		return ValidateFullName(d.FullName.Value)
	case types.FieldEducationLevel:
		return ValidateEducationLevel(d.EducationLevel.Value)
	case types.FieldIndustry:
		return ValidateIndustry(d.Industry.Value)
	case types.FieldMissionFocus:
		return ValidateMissionFocus(d.MissionFocus.Value, d.Industry.Value)
	case types.FieldStrengthAreas:
		return ValidateStrengthAreas(d.StrengthAreas.Value)
	case types.FieldLearningPreference:
		return ValidateLearningPreference(d.LearningPreference.Value)
	case types.FieldPortfolioURL:
		return ValidatePortfolioURL(d.Portfolio.URL)
	case types.FieldPortfolioFile:
		return ValidatePortfolioFile(d.Portfolio.File)
	case types.FieldExperienceSummary:
		return ValidateExperienceSummary(d.ExperienceSummary.Value)
	}
	return ""
}
