package repository

import (
	"database/sql"
	"errors"
	"time"

	"hedger/internal/models"
)

// StatsRepository - дневная статистика (таблица daily_stats)
//
// Счётчики инкрементируются write-behind по событиям жизненного цикла
// хеджа. Ключ - UTC день.
type StatsRepository struct {
	db *sql.DB
}

// NewStatsRepository создает новый экземпляр репозитория
func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// RecordOpened инкрементирует счётчик открытых хеджей за день
func (r *StatsRepository) RecordOpened(day time.Time) error {
	query := `
		INSERT INTO daily_stats (day, hedges_opened, hedges_closed, hedges_failed, total_pnl)
		VALUES ($1, 1, 0, 0, 0)
		ON CONFLICT (day) DO UPDATE
		SET hedges_opened = daily_stats.hedges_opened + 1`

	_, err := r.db.Exec(query, day)
	return err
}

// RecordClosed инкрементирует счётчик закрытых и добавляет реализованный PNL
func (r *StatsRepository) RecordClosed(day time.Time, pnl float64) error {
	query := `
		INSERT INTO daily_stats (day, hedges_opened, hedges_closed, hedges_failed, total_pnl)
		VALUES ($1, 0, 1, 0, $2)
		ON CONFLICT (day) DO UPDATE
		SET hedges_closed = daily_stats.hedges_closed + 1,
		    total_pnl = daily_stats.total_pnl + $2`

	_, err := r.db.Exec(query, day, pnl)
	return err
}

// RecordFailed инкрементирует счётчик сбойных хеджей за день
func (r *StatsRepository) RecordFailed(day time.Time) error {
	query := `
		INSERT INTO daily_stats (day, hedges_opened, hedges_closed, hedges_failed, total_pnl)
		VALUES ($1, 0, 0, 1, 0)
		ON CONFLICT (day) DO UPDATE
		SET hedges_failed = daily_stats.hedges_failed + 1`

	_, err := r.db.Exec(query, day)
	return err
}

// GetDay возвращает статистику за день. Для дня без записей
// возвращается нулевая строка, а не ошибка.
func (r *StatsRepository) GetDay(day time.Time) (*models.DailyStats, error) {
	query := `
		SELECT day, hedges_opened, hedges_closed, hedges_failed, total_pnl
		FROM daily_stats
		WHERE day = $1`

	stats := &models.DailyStats{}
	err := r.db.QueryRow(query, day).Scan(
		&stats.Day,
		&stats.HedgesOpened,
		&stats.HedgesClosed,
		&stats.HedgesFailed,
		&stats.TotalPnl,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.DailyStats{Day: day}, nil
		}
		return nil, err
	}
	return stats, nil
}

// GetRange возвращает статистику за период, новые дни первыми
func (r *StatsRepository) GetRange(from, to time.Time) ([]*models.DailyStats, error) {
	query := `
		SELECT day, hedges_opened, hedges_closed, hedges_failed, total_pnl
		FROM daily_stats
		WHERE day >= $1 AND day <= $2
		ORDER BY day DESC`

	rows, err := r.db.Query(query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []*models.DailyStats
	for rows.Next() {
		stats := &models.DailyStats{}
		err := rows.Scan(
			&stats.Day,
			&stats.HedgesOpened,
			&stats.HedgesClosed,
			&stats.HedgesFailed,
			&stats.TotalPnl,
		)
		if err != nil {
			return nil, err
		}
		all = append(all, stats)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return all, nil
}
