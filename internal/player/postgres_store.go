package player

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore persists player profiles in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed player profile store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the players table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS players (
			id            VARCHAR(64) PRIMARY KEY,
			username      VARCHAR(200) NOT NULL DEFAULT '',
			level         INT NOT NULL DEFAULT 1,
			cash          BIGINT NOT NULL DEFAULT 0,
			flagged       BOOLEAN NOT NULL DEFAULT FALSE,
			flagged_at    TIMESTAMPTZ,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_seen_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_players_flagged ON players (flagged) WHERE flagged;
	`)
	return err
}

func (s *PostgresStore) GetByID(ctx context.Context, playerID string) (*Profile, error) {
	var p Profile
	var flaggedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, level, cash, flagged, flagged_at, created_at, last_seen_at
		FROM players WHERE id = $1
	`, playerID).Scan(&p.ID, &p.Username, &p.Level, &p.Cash, &p.Flagged, &flaggedAt, &p.CreatedAt, &p.LastSeenAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	if flaggedAt.Valid {
		p.FlaggedAt = &flaggedAt.Time
	}
	return &p, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, profile *Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO players (id, username, level, cash, created_at, last_seen_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			username     = EXCLUDED.username,
			level        = EXCLUDED.level,
			cash         = EXCLUDED.cash,
			last_seen_at = NOW()
	`, profile.ID, profile.Username, profile.Level, profile.Cash)
	if err != nil {
		return fmt.Errorf("failed to upsert player: %w", err)
	}
	return nil
}

// SetFlagged marks or unmarks a player as flagged. The WHERE clause makes
// repeat flagging a no-op so flagged_at records the first transition only.
func (s *PostgresStore) SetFlagged(ctx context.Context, playerID string, flagged bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE players
		SET flagged = $2,
		    flagged_at = CASE WHEN $2 THEN NOW() ELSE NULL END
		WHERE id = $1 AND flagged IS DISTINCT FROM $2
	`, playerID, flagged)
	if err != nil {
		return fmt.Errorf("failed to set flagged: %w", err)
	}

	if rows, _ := res.RowsAffected(); rows == 0 {
		// Either already in the desired state (fine) or missing.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM players WHERE id = $1)`, playerID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check player existence: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}
