// Package main provides the onboard_survey command: the survey API server and its
// operational tools.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jonathan/onboarding-survey/internal/config"
	"github.com/jonathan/onboarding-survey/internal/observability"
)

// app carries what every subcommand needs once the root has loaded configuration.
type app struct {
	cfgFile string
	verbose bool
	cfg     *config.Config
	log     *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "onboard_survey",
		Short: "Onboarding survey API server",
		Long:  "Onboarding survey hosts the multi-step onboarding questionnaire over HTTP and ships tools to migrate, export and inspect survey data.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			observability.Initialize(cfg.Logger, zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr())))
			a.log = observability.GetLogger()
			return nil
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "Path to a YAML config file (default ./config.yaml when present)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Print detailed output")

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newExportCmd(a),
		newValidateDraftCmd(a),
		newSubmitDraftCmd(a),
	)
	return root
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	err := newRootCmd().Execute()
	observability.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func markRequired(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(fmt.Sprintf("failed to mark %s flag as required: %v", name, err))
		}
	}
}
