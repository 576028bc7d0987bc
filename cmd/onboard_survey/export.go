package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/onboarding-survey/internal/db"
	"github.com/jonathan/onboarding-survey/internal/export"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		out      string
		industry string
		since    string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export completed survey responses to an Excel workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filters := db.ResponseFilters{Industry: industry, Limit: limit}
			if since != "" {
				t, err := parseSince(since)
				if err != nil {
					return err
				}
				filters.Since = &t
			}
			if a.cfg.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL environment variable is required")
			}

			database, err := db.Connect(cmd.Context(), a.cfg.Database.URL, a.log)
			if err != nil {
				return err
			}
			defer database.Close()

			responses, err := database.ListSurveyResponses(cmd.Context(), filters)
			if err != nil {
				return err
			}
			path, err := export.WriteFile(responses, out, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d responses to %s\n", len(responses), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Path to the output .xlsx file (required)")
	cmd.Flags().StringVar(&industry, "industry", "", "Only export responses for this industry")
	cmd.Flags().StringVar(&since, "since", "", "Only export responses completed at or after this date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of responses (0 for all)")
	markRequired(cmd, "out")
	return cmd
}

func parseSince(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: use YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}
