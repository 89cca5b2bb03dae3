package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"hedger/internal/models"
)

// Ошибки репозитория хеджей
var (
	ErrHedgeNotFound = errors.New("hedge not found")
)

// HedgeRepository - аудит-журнал хеджей (таблица hedges)
//
// Журнал пишется write-behind: движок никогда не читает отсюда на
// горячем пути, состояние хеджей живёт в памяти координатора. Ноги
// хранятся как JSONB — журналу не нужны реляционные запросы по ногам.
type HedgeRepository struct {
	db *sql.DB
}

// NewHedgeRepository создает новый экземпляр репозитория
func NewHedgeRepository(db *sql.DB) *HedgeRepository {
	return &HedgeRepository{db: db}
}

// Save сохраняет хедж (upsert по id): запись создаётся при открытии
// и перезаписывается при каждом переходе состояния
func (r *HedgeRepository) Save(hedge *models.Hedge) error {
	legs, err := json.Marshal(hedge.Legs)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO hedges (id, pair_id, state, legs, total_pnl, fail_cause, opened_at, closed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state,
		    legs = EXCLUDED.legs,
		    total_pnl = EXCLUDED.total_pnl,
		    fail_cause = EXCLUDED.fail_cause,
		    opened_at = EXCLUDED.opened_at,
		    closed_at = EXCLUDED.closed_at,
		    updated_at = EXCLUDED.updated_at`

	var openedAt *time.Time
	if !hedge.OpenedAt.IsZero() {
		openedAt = &hedge.OpenedAt
	}

	_, err = r.db.Exec(
		query,
		hedge.ID,
		hedge.PairID,
		hedge.State,
		legs,
		hedge.TotalPnl,
		hedge.FailCause,
		openedAt,
		hedge.ClosedAt,
		hedge.CreatedAt,
		hedge.UpdatedAt,
	)
	return err
}

// GetByID возвращает хедж по ID
func (r *HedgeRepository) GetByID(id string) (*models.Hedge, error) {
	query := `
		SELECT id, pair_id, state, legs, total_pnl, fail_cause, opened_at, closed_at, created_at, updated_at
		FROM hedges
		WHERE id = $1`

	hedge, err := scanHedge(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHedgeNotFound
		}
		return nil, err
	}
	return hedge, nil
}

// GetRecent возвращает последние N хеджей
func (r *HedgeRepository) GetRecent(limit int) ([]*models.Hedge, error) {
	query := `
		SELECT id, pair_id, state, legs, total_pnl, fail_cause, opened_at, closed_at, created_at, updated_at
		FROM hedges
		ORDER BY created_at DESC
		LIMIT $1`

	return r.queryHedges(query, limit)
}

// GetByPairID возвращает последние хеджи пары
func (r *HedgeRepository) GetByPairID(pairID string, limit int) ([]*models.Hedge, error) {
	query := `
		SELECT id, pair_id, state, legs, total_pnl, fail_cause, opened_at, closed_at, created_at, updated_at
		FROM hedges
		WHERE pair_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return r.queryHedges(query, pairID, limit)
}

// GetByState возвращает хеджи в определённом состоянии
func (r *HedgeRepository) GetByState(state string, limit int) ([]*models.Hedge, error) {
	query := `
		SELECT id, pair_id, state, legs, total_pnl, fail_cause, opened_at, closed_at, created_at, updated_at
		FROM hedges
		WHERE state = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return r.queryHedges(query, state, limit)
}

// GetClosedInRange возвращает хеджи, закрытые за период
func (r *HedgeRepository) GetClosedInRange(from, to time.Time) ([]*models.Hedge, error) {
	query := `
		SELECT id, pair_id, state, legs, total_pnl, fail_cause, opened_at, closed_at, created_at, updated_at
		FROM hedges
		WHERE closed_at >= $1 AND closed_at <= $2
		ORDER BY closed_at DESC`

	return r.queryHedges(query, from, to)
}

// TotalPnlSince возвращает суммарный реализованный PNL с указанного момента
func (r *HedgeRepository) TotalPnlSince(since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(total_pnl), 0)
		FROM hedges
		WHERE state = $1 AND closed_at >= $2`

	var total float64
	err := r.db.QueryRow(query, models.HedgeClosed, since).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Count возвращает общее количество хеджей в журнале
func (r *HedgeRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM hedges`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountByState возвращает количество хеджей в состоянии
func (r *HedgeRepository) CountByState(state string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM hedges WHERE state = $1`, state).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteOlderThan удаляет записи старше указанной даты
func (r *HedgeRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM hedges WHERE created_at < $1`, timestamp)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *HedgeRepository) queryHedges(query string, args ...interface{}) ([]*models.Hedge, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hedges []*models.Hedge
	for rows.Next() {
		hedge, err := scanHedge(rows)
		if err != nil {
			return nil, err
		}
		hedges = append(hedges, hedge)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return hedges, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHedge(row rowScanner) (*models.Hedge, error) {
	hedge := &models.Hedge{}
	var legs []byte
	var openedAt *time.Time

	err := row.Scan(
		&hedge.ID,
		&hedge.PairID,
		&hedge.State,
		&legs,
		&hedge.TotalPnl,
		&hedge.FailCause,
		&openedAt,
		&hedge.ClosedAt,
		&hedge.CreatedAt,
		&hedge.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if openedAt != nil {
		hedge.OpenedAt = *openedAt
	}
	if len(legs) > 0 {
		if err := json.Unmarshal(legs, &hedge.Legs); err != nil {
			return nil, err
		}
	}
	return hedge, nil
}
