package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/onboarding-survey/internal/db"
)

const defaultMigrationsDir = "internal/db/migrations"

func newMigrateCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.Database.URL == "" {
				return fmt.Errorf("DATABASE_URL environment variable is required")
			}
			database, err := db.Connect(cmd.Context(), a.cfg.Database.URL, a.log)
			if err != nil {
				return err
			}
			defer database.Close()

			applied, err := database.Migrate(cmd.Context(), dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(out, "Database is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(out, "Applied %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", defaultMigrationsDir, "Migrations directory; the built-in set is used when it does not exist")
	return cmd
}
