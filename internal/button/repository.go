package button

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Repository stores button configs keyed by identity and coordinate.
// Writes are whole-config replacements; there is no cross-button
// transaction.
type Repository interface {
	// Get returns the stored config, or ErrNotFound.
	Get(ctx context.Context, identity string, c Coordinate) (Config, error)

	// Put stores cfg under cfg.Coordinates, replacing any previous value.
	Put(ctx context.Context, identity string, cfg Config) error
}

// Load returns the stored config for c, or Default(c) when none exists.
func Load(ctx context.Context, repo Repository, identity string, c Coordinate) (Config, error) {
	cfg, err := repo.Get(ctx, identity, c)
	if errors.Is(err, ErrNotFound) {
		return Default(c), nil
	}
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SQLiteRepository implements Repository on the button_configs table.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Get retrieves the config stored for identity at c.
func (r *SQLiteRepository) Get(ctx context.Context, identity string, c Coordinate) (Config, error) {
	var raw string
	err := r.db.QueryRowContext(ctx,
		`SELECT config FROM button_configs WHERE key = ?`,
		Key(identity, c),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Config{}, ErrNotFound
	}
	if err != nil {
		return Config{}, fmt.Errorf("querying button config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return Config{}, fmt.Errorf("decoding button config %s: %w", Key(identity, c), err)
	}
	return cfg, nil
}

// Put upserts cfg.
func (r *SQLiteRepository) Put(ctx context.Context, identity string, cfg Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding button config: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO button_configs (key, identity, row_num, col_num, config, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			config = excluded.config,
			updated_at = excluded.updated_at`,
		Key(identity, cfg.Coordinates),
		identity,
		cfg.Coordinates.Row,
		cfg.Coordinates.Column,
		string(raw),
		r.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("storing button config: %w", err)
	}
	return nil
}
