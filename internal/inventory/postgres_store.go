package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wardenhq/warden/internal/idgen"
)

// PostgresStore persists inventory changes in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed inventory store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the inventory_changes table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS inventory_changes (
			id           VARCHAR(64) PRIMARY KEY,
			player_id    VARCHAR(64) NOT NULL,
			item_id      VARCHAR(64) NOT NULL,
			change_type  VARCHAR(16) NOT NULL,
			quantity     INT NOT NULL DEFAULT 1,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_inventory_player
			ON inventory_changes(player_id, change_type, created_at DESC);
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, change *Change) error {
	id := change.ID
	if id == "" {
		id = idgen.New()
	}
	createdAt := change.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_changes (id, player_id, item_id, change_type, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, change.PlayerID, change.ItemID, change.ChangeType, change.Quantity, createdAt)
	if err != nil {
		return fmt.Errorf("failed to record inventory change: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, playerID, changeType string, limit int) ([]*Change, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, player_id, item_id, change_type, quantity, created_at
		FROM inventory_changes
		WHERE player_id = $1 AND change_type = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, playerID, changeType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory changes: %w", err)
	}
	defer rows.Close()

	var out []*Change
	for rows.Next() {
		var c Change
		if err := rows.Scan(&c.ID, &c.PlayerID, &c.ItemID, &c.ChangeType, &c.Quantity, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan inventory change: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
