package ruleconfig

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore persists rule configuration in PostgreSQL. Values are
// stored as JSONB so bools, ints and floats round-trip without a type
// column.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed rule config store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the rule_config table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rule_config (
			key         VARCHAR(128) PRIMARY KEY,
			value       JSONB NOT NULL,
			enabled     BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (s *PostgresStore) ListEnabled(ctx context.Context) (map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM rule_config WHERE enabled = TRUE
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule config: %w", err)
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan rule config: %w", err)
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rule config value: %w", err)
		}
		out[key] = value
	}
	return out, rows.Err()
}

func (s *PostgresStore) List(ctx context.Context) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, enabled, updated_at FROM rule_config ORDER BY key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule config: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		var raw []byte
		if err := rows.Scan(&e.Key, &raw, &e.Enabled, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule config: %w", err)
		}
		if err := json.Unmarshal(raw, &e.Value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rule config value: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Upsert(ctx context.Context, entry *Entry) error {
	raw, err := json.Marshal(entry.Value)
	if err != nil {
		return fmt.Errorf("failed to marshal rule config value: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rule_config (key, value, enabled, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value      = EXCLUDED.value,
			enabled    = EXCLUDED.enabled,
			updated_at = NOW()
	`, entry.Key, raw, entry.Enabled)
	if err != nil {
		return fmt.Errorf("failed to upsert rule config: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rule_config WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete rule config: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete rule config: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
