package reconcile

import (
	"context"
	"database/sql"
	"fmt"

	"cart-dialer/pkg/utils"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS call_status_events (
	id               UUID PRIMARY KEY,
	provider         TEXT NOT NULL,
	provider_call_id TEXT NOT NULL,
	status           TEXT NOT NULL,
	to_number        TEXT NOT NULL DEFAULT '',
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	ended_reason     TEXT NOT NULL DEFAULT '',
	recording_url    TEXT NOT NULL DEFAULT '',
	summary          TEXT NOT NULL DEFAULT '',
	raw_payload      TEXT NOT NULL DEFAULT '',
	occurred_at      TIMESTAMPTZ NOT NULL,
	received_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS call_status_events_call_idx
	ON call_status_events (provider_call_id, occurred_at);
`

const insertSQL = `INSERT INTO call_status_events
	(id, provider, provider_call_id, status, to_number, duration_seconds, ended_reason,
	 recording_url, summary, raw_payload, occurred_at, received_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

const listSQL = `SELECT id, provider, provider_call_id, status, to_number, duration_seconds,
	ended_reason, recording_url, summary, raw_payload, occurred_at, received_at
FROM call_status_events
WHERE provider_call_id = $1
ORDER BY occurred_at ASC`

// PostgresStore keeps events in an INSERT-only table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Init creates the table and index if missing.
func (s *PostgresStore) Init(ctx context.Context) error {
	return utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("reconcile: create schema: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Append(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx, insertSQL,
		e.ID, e.Provider, e.ProviderCallID, e.Status, e.To, e.DurationSecs, e.EndedReason,
		e.RecordingURL, e.Summary, e.RawPayload, e.OccurredAt, e.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("reconcile: insert event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByCall(ctx context.Context, providerCallID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, listSQL, providerCallID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.ID, &e.Provider, &e.ProviderCallID, &e.Status, &e.To, &e.DurationSecs,
			&e.EndedReason, &e.RecordingURL, &e.Summary, &e.RawPayload, &e.OccurredAt, &e.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("reconcile: scan event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reconcile: list events: %w", err)
	}
	return out, nil
}
