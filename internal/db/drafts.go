package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Drafts stores survey drafts in the survey_drafts table.
type Drafts struct {
	db *DB
}

// Drafts returns a draft store backed by this database.
func (db *DB) Drafts() *Drafts {
	return &Drafts{db: db}
}

func (d *Drafts) Save(ctx context.Context, key string, blob []byte) error {
	_, err := d.db.pool.Exec(ctx,
		`INSERT INTO survey_drafts (key, data, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		key, blob,
	)
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// Load returns nil, nil when no draft is stored under key.
func (d *Drafts) Load(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := d.db.pool.QueryRow(ctx, `SELECT data FROM survey_drafts WHERE key = $1`, key).Scan(&blob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}
	return blob, nil
}

func (d *Drafts) Delete(ctx context.Context, key string) error {
	if _, err := d.db.pool.Exec(ctx, `DELETE FROM survey_drafts WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}
