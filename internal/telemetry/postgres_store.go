package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists action logs in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed action log store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the action_logs table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS action_logs (
			id                  VARCHAR(64) PRIMARY KEY,
			player_id           VARCHAR(64) NOT NULL,
			action_type         VARCHAR(64) NOT NULL,
			action_category     VARCHAR(64) NOT NULL DEFAULT '',
			value_diff          BIGINT NOT NULL DEFAULT 0,
			metadata            JSONB NOT NULL DEFAULT '{}',
			device_fingerprint  VARCHAR(128) NOT NULL DEFAULT '',
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_action_logs_player
			ON action_logs (player_id, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_action_logs_fingerprint
			ON action_logs (device_fingerprint);
	`)
	return err
}

func (s *PostgresStore) Insert(ctx context.Context, entry *LogEntry) error {
	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO action_logs (id, player_id, action_type, action_category, value_diff, metadata, device_fingerprint, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		entry.ID,
		entry.PlayerID,
		entry.ActionType,
		entry.ActionCategory,
		entry.ValueDiff,
		metadataJSON,
		entry.DeviceFingerprint,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert action log: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*LogEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, player_id, action_type, action_category, value_diff, metadata, device_fingerprint, created_at
		FROM action_logs
		WHERE id = $1
	`, id)

	entry, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get action log: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, playerID string, limit int) ([]*LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, player_id, action_type, action_category, value_diff, metadata, device_fingerprint, created_at
		FROM action_logs
		WHERE player_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectEntries(rows)
}

func (s *PostgresStore) ListSince(ctx context.Context, playerID string, since time.Time) ([]*LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, player_id, action_type, action_category, value_diff, metadata, device_fingerprint, created_at
		FROM action_logs
		WHERE player_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`, playerID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs since %s: %w", since, err)
	}
	defer func() { _ = rows.Close() }()

	return collectEntries(rows)
}

func scanEntry(scan func(...any) error) (*LogEntry, error) {
	var e LogEntry
	var metadataJSON []byte
	if err := scan(&e.ID, &e.PlayerID, &e.ActionType, &e.ActionCategory, &e.ValueDiff, &metadataJSON, &e.DeviceFingerprint, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Metadata = make(map[string]any)
	_ = json.Unmarshal(metadataJSON, &e.Metadata)
	return &e, nil
}

func collectEntries(rows *sql.Rows) ([]*LogEntry, error) {
	var result []*LogEntry
	for rows.Next() {
		entry, err := scanEntry(rows.Scan)
		if err != nil {
			continue
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
