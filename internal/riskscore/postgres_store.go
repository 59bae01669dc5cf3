package riskscore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore persists risk scores in PostgreSQL.
//
// AtomicAdd is a single INSERT ... ON CONFLICT DO UPDATE statement, so the
// increment happens inside the database and concurrent invocations for the
// same player serialize on the row without a lost update.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed risk score store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the risk_scores table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_scores (
			player_id          VARCHAR(64) PRIMARY KEY,
			total_risk_score   INT NOT NULL DEFAULT 0 CHECK (total_risk_score >= 0),
			last_violation_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, playerID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT total_risk_score FROM risk_scores WHERE player_id = $1
	`, playerID).Scan(&total)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil // absent score defaults to 0, not an error
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get risk score: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) AtomicAdd(ctx context.Context, playerID string, delta int) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO risk_scores (player_id, total_risk_score, last_violation_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (player_id) DO UPDATE SET
			total_risk_score  = risk_scores.total_risk_score + EXCLUDED.total_risk_score,
			last_violation_at = NOW()
		RETURNING total_risk_score
	`, playerID, delta).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to add risk score: %w", err)
	}
	return total, nil
}
