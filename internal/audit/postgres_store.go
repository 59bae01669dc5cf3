package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wardenhq/warden/internal/idgen"
)

// PostgresStore persists audit entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the audit_log table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_log (
			id          VARCHAR(64) PRIMARY KEY,
			player_id   VARCHAR(64),
			action      VARCHAR(64) NOT NULL,
			detail      TEXT NOT NULL DEFAULT '',
			context     JSONB,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_audit_player
			ON audit_log(player_id, created_at DESC);
	`)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, entry *Entry) error {
	id := entry.ID
	if id == "" {
		id = idgen.WithPrefix("audit_")
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var contextJSON []byte
	if entry.Context != nil {
		var err error
		contextJSON, err = json.Marshal(entry.Context)
		if err != nil {
			return fmt.Errorf("failed to marshal audit context: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, player_id, action, detail, context, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)
	`, id, entry.PlayerID, entry.Action, entry.Detail, contextJSON, createdAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByPlayer(ctx context.Context, playerID string, limit int) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(player_id, ''), action, detail, context, created_at
		FROM audit_log
		WHERE player_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		var contextJSON []byte
		if err := rows.Scan(&e.ID, &e.PlayerID, &e.Action, &e.Detail, &contextJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &e.Context); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit context: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
