package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/onboarding-survey/internal/client"
	"github.com/jonathan/onboarding-survey/internal/observability"
	"github.com/jonathan/onboarding-survey/internal/survey"
	"github.com/jonathan/onboarding-survey/internal/types"
)

// tokenEnv supplies the bearer token when --token is not given.
const tokenEnv = "ONBOARD_TOKEN"

func newSubmitDraftCmd(a *app) *cobra.Command {
	var (
		file    string
		token   string
		userID  string
		baseURL string
	)
	cmd := &cobra.Command{
		Use:   "submit-draft",
		Short: "Submit a completed survey draft to the API",
		Long:  "Validate a saved draft and post it as a completed survey, retrying transient failures.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				token = os.Getenv(tokenEnv)
			}
			if token == "" {
				return fmt.Errorf("a bearer token is required (--token or %s)", tokenEnv)
			}
			var uid uuid.UUID
			if userID != "" {
				var err error
				if uid, err = uuid.Parse(userID); err != nil {
					return fmt.Errorf("invalid --user-id: %w", err)
				}
			}

			d, err := loadDraft(file)
			if err != nil {
				return err
			}
			if errs := stepErrors(d); len(errs) > 0 {
				observability.NewPrinter(cmd.OutOrStdout()).PrintStepErrors(errs)
				return errDraftIncomplete
			}

			opts := client.DefaultOptions(a.cfg.Client.BaseURL, token)
			if baseURL != "" {
				opts.BaseURL = baseURL
			}
			opts.Timeout = a.cfg.Client.Timeout
			opts.MaxRetries = a.cfg.Client.MaxRetries
			opts.BaseBackoff = a.cfg.Client.BaseBackoff
			opts.Logger = a.log
			c, err := client.New(opts)
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			d.CompletedAt = &now
			d.IsDraft = false
			d.CurrentStep = survey.TotalSteps
			receipt, err := c.Submit(cmd.Context(), types.Submission{
				UserID:         uid,
				Data:           *d,
				CompletedAt:    now,
				TotalTimeSpent: d.TotalTimeSpent(),
			})
			if err != nil {
				return fmt.Errorf("%s: %w", survey.UserMessage(err), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted response %s at %s\n", receipt.ResponseID, receipt.CompletedAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the draft JSON file (required)")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token for the API (default $"+tokenEnv+")")
	cmd.Flags().StringVar(&userID, "user-id", "", "User id to submit as; the server uses the token's user when empty")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "API base URL (overrides client.base_url)")
	markRequired(cmd, "file")
	return cmd
}
