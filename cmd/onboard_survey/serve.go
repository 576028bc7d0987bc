package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/onboarding-survey/internal/cache"
	"github.com/jonathan/onboarding-survey/internal/config"
	"github.com/jonathan/onboarding-survey/internal/db"
	"github.com/jonathan/onboarding-survey/internal/platforms"
	"github.com/jonathan/onboarding-survey/internal/server"
	"github.com/jonathan/onboarding-survey/internal/storage"
	"github.com/jonathan/onboarding-survey/internal/survey"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		port          int
		migrate       bool
		migrationsDir string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long:  "Start an HTTP server that hosts each signed-in user's onboarding survey.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a.cfg, a.log, migrate, migrationsDir)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "Port to listen on (overrides server.port)")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply pending migrations before serving")
	cmd.Flags().StringVar(&migrationsDir, "migrations", defaultMigrationsDir, "Migrations directory; the built-in set is used when it does not exist")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, log *zap.Logger, migrate bool, migrationsDir string) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if _, err := cfg.JWT(); err != nil {
		return err
	}

	database, err := db.Connect(ctx, cfg.Database.URL, log)
	if err != nil {
		return err
	}
	defer database.Close()

	if migrate {
		applied, err := database.Migrate(ctx, migrationsDir)
		if err != nil {
			return err
		}
		log.Info("migrations applied", zap.Strings("names", applied))
	}

	drafts, closeDrafts, err := openDraftStore(ctx, cfg, database)
	if err != nil {
		return err
	}
	defer closeDrafts()

	uploader, err := storage.NewLocalUploader(cfg.Upload.Dir, cfg.Upload.PublicPrefix, cfg.Upload.MaxBytes, log)
	if err != nil {
		return err
	}
	connectors, err := platforms.Default(platforms.GitHubOptions{Token: cfg.GitHub.Token, BaseURL: cfg.GitHub.BaseURL})
	if err != nil {
		return err
	}

	factory := server.NewControllerFactory(cfg.Survey, survey.Options{
		Submitter:  database,
		Drafts:     drafts,
		Uploader:   uploader,
		Connectors: connectors,
		Logger:     log,
	}, func(id uuid.UUID) survey.SessionStore {
		return database.Session(id)
	})

	srv, err := server.New(cfg, server.Deps{
		Users:       database,
		Responses:   database,
		Controllers: factory,
		UploadDir:   uploader.Dir(),
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Run(ctx)
}

// openDraftStore picks Redis or Postgres for drafts. The returned func releases the store.
func openDraftStore(ctx context.Context, cfg *config.Config, database *db.DB) (survey.DraftStore, func(), error) {
	switch backend := cfg.DraftBackend(); backend {
	case config.DraftStoreRedis:
		client, err := cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		return cache.NewDraftStore(client, cfg.Redis.DraftTTL), func() { _ = client.Close() }, nil
	case config.DraftStorePostgres:
		return database.Drafts(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown draft store %q", backend)
	}
}
