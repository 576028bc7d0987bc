package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

type migrationFile struct {
	name string
	data []byte
}

const (
	createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
		name       TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	selectApplied   = `SELECT name FROM schema_migrations`
	insertMigration = `INSERT INTO schema_migrations (name) VALUES ($1)`
)

// Migrate applies pending migrations in name order, each in its own transaction. Files are
// read from dir when it exists, otherwise from the embedded set. It returns the names of
// the migrations it applied.
func (db *DB) Migrate(ctx context.Context, dir string) ([]string, error) {
	files, err := loadMigrations(dir)
	if err != nil {
		return nil, err
	}

	if _, err := db.pool.Exec(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	rows, err := db.pool.Query(ctx, selectApplied)
	if err != nil {
		return nil, fmt.Errorf("failed to list applied migrations: %w", err)
	}
	applied, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan applied migrations: %w", err)
	}

	var ran []string
	for _, mf := range files {
		if slices.Contains(applied, mf.name) || len(strings.TrimSpace(string(mf.data))) == 0 {
			continue
		}
		if err := db.applyMigration(ctx, mf); err != nil {
			return ran, err
		}
		db.log.Info("applied migration", zap.String("name", mf.name))
		ran = append(ran, mf.name)
	}
	return ran, nil
}

func (db *DB) applyMigration(ctx context.Context, mf migrationFile) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			db.log.Error("failed to rollback migration", zap.String("name", mf.name), zap.Error(rbErr))
		}
	}()

	if _, err := tx.Exec(ctx, string(mf.data)); err != nil {
		return fmt.Errorf("exec migration %s: %w", mf.name, err)
	}
	if _, err := tx.Exec(ctx, insertMigration, mf.name); err != nil {
		return fmt.Errorf("record migration %s: %w", mf.name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", mf.name, err)
	}
	return nil
}

func loadMigrations(dir string) ([]migrationFile, error) {
	var fsys fs.FS
	root := "migrations"
	if dir != "" {
		if _, err := os.Stat(dir); err == nil {
			fsys, root = os.DirFS(dir), "."
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read migrations: %w", err)
		}
	}
	if fsys == nil {
		fsys = embeddedMigrations
	}

	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var files []migrationFile
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		content, err := fs.ReadFile(fsys, filepath.ToSlash(filepath.Join(root, entry.Name())))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		files = append(files, migrationFile{name: entry.Name(), data: content})
	}
	slices.SortFunc(files, func(a, b migrationFile) int { return strings.Compare(a.name, b.name) })
	return files, nil
}
