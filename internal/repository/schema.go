package repository

import (
	"database/sql"
	"fmt"
)

// schema.go - bootstrap таблиц аудит-журнала
//
// Журнал устроен append-most: таблицы создаются идемпотентно при
// старте, миграций со сменой структуры нет.

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS hedges (
		id         TEXT PRIMARY KEY,
		pair_id    TEXT NOT NULL,
		state      TEXT NOT NULL,
		legs       JSONB NOT NULL DEFAULT '[]',
		total_pnl  DOUBLE PRECISION NOT NULL DEFAULT 0,
		fail_cause TEXT NOT NULL DEFAULT '',
		opened_at  TIMESTAMPTZ,
		closed_at  TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_hedges_pair_created ON hedges (pair_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_hedges_state ON hedges (state)`,

	`CREATE TABLE IF NOT EXISTS risk_events (
		id          BIGSERIAL PRIMARY KEY,
		level       TEXT NOT NULL,
		reason      TEXT NOT NULL,
		pair_id     TEXT NOT NULL DEFAULT '',
		account     TEXT NOT NULL DEFAULT '',
		value       DOUBLE PRECISION NOT NULL DEFAULT 0,
		limit_value DOUBLE PRECISION NOT NULL DEFAULT 0,
		action      TEXT NOT NULL DEFAULT '',
		timestamp   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_risk_events_timestamp ON risk_events (timestamp DESC)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id        BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		type      TEXT NOT NULL,
		severity  TEXT NOT NULL DEFAULT 'info',
		pair_id   TEXT NOT NULL DEFAULT '',
		hedge_id  TEXT NOT NULL DEFAULT '',
		message   TEXT NOT NULL,
		meta      JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_timestamp ON notifications (timestamp DESC)`,

	`CREATE TABLE IF NOT EXISTS daily_stats (
		day           TIMESTAMPTZ PRIMARY KEY,
		hedges_opened INT NOT NULL DEFAULT 0,
		hedges_closed INT NOT NULL DEFAULT 0,
		hedges_failed INT NOT NULL DEFAULT 0,
		total_pnl     DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
}

// InitSchema создаёт таблицы журнала, если их ещё нет
func InitSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
