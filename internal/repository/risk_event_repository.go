package repository

import (
	"database/sql"
	"time"

	"hedger/internal/models"
)

// RiskEventRepository - append-only журнал риск-событий (таблица risk_events)
//
// В памяти события нумеруются процессным счётчиком; БД присваивает
// собственный serial id, поэтому Create не мутирует событие.
type RiskEventRepository struct {
	db *sql.DB
}

// NewRiskEventRepository создает новый экземпляр репозитория
func NewRiskEventRepository(db *sql.DB) *RiskEventRepository {
	return &RiskEventRepository{db: db}
}

// Create записывает событие и возвращает его id в журнале
func (r *RiskEventRepository) Create(event *models.RiskEvent) (int64, error) {
	query := `
		INSERT INTO risk_events (level, reason, pair_id, account, value, limit_value, action, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	var id int64
	err := r.db.QueryRow(
		query,
		event.Level,
		event.Reason,
		event.PairID,
		event.Account,
		event.Value,
		event.Limit,
		event.Action,
		event.Timestamp,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetRecent возвращает последние N событий
func (r *RiskEventRepository) GetRecent(limit int) ([]*models.RiskEvent, error) {
	query := `
		SELECT id, level, reason, pair_id, account, value, limit_value, action, timestamp
		FROM risk_events
		ORDER BY timestamp DESC
		LIMIT $1`

	return r.queryEvents(query, limit)
}

// GetByLevel возвращает события одного уровня (global, pair, account)
func (r *RiskEventRepository) GetByLevel(level string, limit int) ([]*models.RiskEvent, error) {
	query := `
		SELECT id, level, reason, pair_id, account, value, limit_value, action, timestamp
		FROM risk_events
		WHERE level = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	return r.queryEvents(query, level, limit)
}

// GetByAccount возвращает события по аккаунту
func (r *RiskEventRepository) GetByAccount(account string, limit int) ([]*models.RiskEvent, error) {
	query := `
		SELECT id, level, reason, pair_id, account, value, limit_value, action, timestamp
		FROM risk_events
		WHERE account = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	return r.queryEvents(query, account, limit)
}

// CountSince возвращает количество событий с указанного момента
func (r *RiskEventRepository) CountSince(since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM risk_events WHERE timestamp >= $1`, since).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteOlderThan удаляет события старше указанной даты
func (r *RiskEventRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM risk_events WHERE timestamp < $1`, timestamp)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *RiskEventRepository) queryEvents(query string, args ...interface{}) ([]*models.RiskEvent, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.RiskEvent
	for rows.Next() {
		event := &models.RiskEvent{}
		err := rows.Scan(
			&event.ID,
			&event.Level,
			&event.Reason,
			&event.PairID,
			&event.Account,
			&event.Value,
			&event.Limit,
			&event.Action,
			&event.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
