package alerts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wardenhq/warden/internal/idgen"
)

// PostgresStore persists security alerts in PostgreSQL.
//
// Deduplication rides on a unique index over (log_id, alert_type): a retried
// insert hits ON CONFLICT DO NOTHING and the existing row's id is returned.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed alert store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the security_alerts table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS security_alerts (
			id               VARCHAR(64) PRIMARY KEY,
			player_id        VARCHAR(64) NOT NULL,
			log_id           VARCHAR(64) NOT NULL,
			alert_type       VARCHAR(64) NOT NULL,
			severity         VARCHAR(16) NOT NULL,
			confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
			description      TEXT NOT NULL DEFAULT '',
			evidence         JSONB,
			status           VARCHAR(16) NOT NULL DEFAULT 'pending',
			requires_review  BOOLEAN NOT NULL DEFAULT FALSE,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_log_rule
			ON security_alerts(log_id, alert_type);
		CREATE INDEX IF NOT EXISTS idx_alerts_player
			ON security_alerts(player_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_alerts_pending
			ON security_alerts(created_at) WHERE status = 'pending';
	`)
	return err
}

func (s *PostgresStore) Insert(ctx context.Context, alert *SecurityAlert) (string, error) {
	id := alert.ID
	if id == "" {
		id = idgen.WithPrefix("alert_")
	}
	status := alert.Status
	if status == "" {
		status = StatusPending
	}
	createdAt := alert.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var evidence []byte
	if alert.Evidence != nil {
		var err error
		evidence, err = json.Marshal(alert.Evidence)
		if err != nil {
			return "", fmt.Errorf("failed to marshal evidence: %w", err)
		}
	}

	var insertedID string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO security_alerts
			(id, player_id, log_id, alert_type, severity, confidence,
			 description, evidence, status, requires_review, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (log_id, alert_type) DO NOTHING
		RETURNING id
	`, id, alert.PlayerID, alert.LogID, alert.AlertType, alert.Severity,
		alert.Confidence, alert.Description, evidence, status,
		alert.RequiresReview, createdAt).Scan(&insertedID)

	if errors.Is(err, sql.ErrNoRows) {
		// Conflict: fetch the id of the alert already written for this pair.
		err = s.db.QueryRowContext(ctx, `
			SELECT id FROM security_alerts WHERE log_id = $1 AND alert_type = $2
		`, alert.LogID, alert.AlertType).Scan(&insertedID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to insert alert: %w", err)
	}
	return insertedID, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*SecurityAlert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, player_id, log_id, alert_type, severity, confidence,
		       description, evidence, status, requires_review, created_at
		FROM security_alerts WHERE id = $1
	`, id)

	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListByPlayer(ctx context.Context, playerID string, limit int) ([]*SecurityAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, player_id, log_id, alert_type, severity, confidence,
		       description, evidence, status, requires_review, created_at
		FROM security_alerts
		WHERE player_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

func (s *PostgresStore) ListPending(ctx context.Context, limit int) ([]*SecurityAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, player_id, log_id, alert_type, severity, confidence,
		       description, evidence, status, requires_review, created_at
		FROM security_alerts
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending alerts: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

func (s *PostgresStore) SetStatus(ctx context.Context, id, status string) error {
	if status != StatusPending && status != StatusReviewed && status != StatusDismissed {
		return fmt.Errorf("invalid alert status %q", status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE security_alerts SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update alert status: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*SecurityAlert, error) {
	var a SecurityAlert
	var evidence []byte
	err := row.Scan(&a.ID, &a.PlayerID, &a.LogID, &a.AlertType, &a.Severity,
		&a.Confidence, &a.Description, &evidence, &a.Status,
		&a.RequiresReview, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &a.Evidence); err != nil {
			return nil, fmt.Errorf("failed to unmarshal evidence: %w", err)
		}
	}
	return &a, nil
}

func collectAlerts(rows *sql.Rows) ([]*SecurityAlert, error) {
	var out []*SecurityAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
