package sessions

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists sessions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed session store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the player_sessions table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS player_sessions (
			player_id           VARCHAR(64) NOT NULL,
			device_fingerprint  VARCHAR(128) NOT NULL,
			first_seen_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_seen_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (player_id, device_fingerprint)
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_fingerprint
			ON player_sessions(device_fingerprint);
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, playerID, fingerprint string) error {
	if fingerprint == "" {
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO player_sessions (player_id, device_fingerprint)
		VALUES ($1, $2)
		ON CONFLICT (player_id, device_fingerprint) DO UPDATE SET
			last_seen_at = NOW()
	`, playerID, fingerprint)
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListOtherPlayers(ctx context.Context, fingerprint, excludePlayerID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT player_id FROM player_sessions
		WHERE device_fingerprint = $1 AND player_id != $2
		ORDER BY player_id
	`, fingerprint, excludePlayerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list players by fingerprint: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
