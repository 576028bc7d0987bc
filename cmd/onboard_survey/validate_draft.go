package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/onboarding-survey/internal/observability"
	"github.com/jonathan/onboarding-survey/internal/schemas"
	"github.com/jonathan/onboarding-survey/internal/survey"
	"github.com/jonathan/onboarding-survey/internal/types"
)

var errDraftIncomplete = errors.New("draft does not pass validation")

func newValidateDraftCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate-draft",
		Short: "Check a saved survey draft against the draft schema and step rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := loadDraft(file)
			if err != nil {
				return err
			}
			p := observability.NewPrinter(cmd.OutOrStdout())
			if a.verbose {
				p.PrintDraft(d)
			}
			errs := stepErrors(d)
			p.PrintStepErrors(errs)
			if len(errs) > 0 {
				return errDraftIncomplete
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the draft JSON file (required)")
	markRequired(cmd, "file")
	return cmd
}

// loadDraft reads a draft file, checking it against the schema before decoding.
func loadDraft(path string) (*types.FormData, error) {
	if err := schemas.ValidateDraftFile(path); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read draft %s: %w", path, err)
	}
	var d types.FormData
	if err := json.Unmarshal(blob, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft JSON: %w", err)
	}
	return &d, nil
}

// stepErrors runs every step that is checked at submission. Passing steps are omitted.
func stepErrors(d *types.FormData) map[int]map[types.FieldName]string {
	out := map[int]map[types.FieldName]string{}
	steps := append(survey.RequiredSteps(), survey.StepPortfolio, survey.FinalInputStep)
	for _, step := range steps {
		if res := survey.Validate(step, d); !res.IsValid {
			out[step] = res.Errors
		}
	}
	return out
}
