package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"hedger/internal/models"
)

// Ошибки репозитория уведомлений
var (
	ErrNotificationNotFound = errors.New("notification not found")
)

// NotificationRepository - журнал уведомлений (таблица notifications)
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository создает новый экземпляр репозитория
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create записывает уведомление и присваивает ему ID
func (r *NotificationRepository) Create(notif *models.Notification) error {
	var meta []byte
	if notif.Meta != nil {
		var err error
		meta, err = json.Marshal(notif.Meta)
		if err != nil {
			return err
		}
	}

	if notif.Timestamp.IsZero() {
		notif.Timestamp = time.Now()
	}

	query := `
		INSERT INTO notifications (timestamp, type, severity, pair_id, hedge_id, message, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	return r.db.QueryRow(
		query,
		notif.Timestamp,
		notif.Type,
		notif.Severity,
		notif.PairID,
		notif.HedgeID,
		notif.Message,
		meta,
	).Scan(&notif.ID)
}

// GetByID возвращает уведомление по ID
func (r *NotificationRepository) GetByID(id int64) (*models.Notification, error) {
	query := `
		SELECT id, timestamp, type, severity, pair_id, hedge_id, message, meta
		FROM notifications
		WHERE id = $1`

	notif, err := scanNotification(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return notif, nil
}

// GetRecent возвращает последние N уведомлений
func (r *NotificationRepository) GetRecent(limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, timestamp, type, severity, pair_id, hedge_id, message, meta
		FROM notifications
		ORDER BY timestamp DESC
		LIMIT $1`

	return r.queryNotifications(query, limit)
}

// GetByType возвращает уведомления одного типа
func (r *NotificationRepository) GetByType(notifType string, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, timestamp, type, severity, pair_id, hedge_id, message, meta
		FROM notifications
		WHERE type = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	return r.queryNotifications(query, notifType, limit)
}

// GetBySeverity возвращает уведомления одного уровня важности
func (r *NotificationRepository) GetBySeverity(severity string, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, timestamp, type, severity, pair_id, hedge_id, message, meta
		FROM notifications
		WHERE severity = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	return r.queryNotifications(query, severity, limit)
}

// GetByHedgeID возвращает уведомления, относящиеся к хеджу
func (r *NotificationRepository) GetByHedgeID(hedgeID string) ([]*models.Notification, error) {
	query := `
		SELECT id, timestamp, type, severity, pair_id, hedge_id, message, meta
		FROM notifications
		WHERE hedge_id = $1
		ORDER BY timestamp DESC`

	return r.queryNotifications(query, hedgeID)
}

// Count возвращает общее количество уведомлений
func (r *NotificationRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM notifications`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteOlderThan удаляет уведомления старше указанной даты
func (r *NotificationRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM notifications WHERE timestamp < $1`, timestamp)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// KeepRecent оставляет только последние N уведомлений
func (r *NotificationRepository) KeepRecent(keep int) (int64, error) {
	query := `
		DELETE FROM notifications
		WHERE id NOT IN (
			SELECT id FROM notifications ORDER BY timestamp DESC LIMIT $1
		)`

	result, err := r.db.Exec(query, keep)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *NotificationRepository) queryNotifications(query string, args ...interface{}) ([]*models.Notification, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifs []*models.Notification
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifs = append(notifs, notif)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return notifs, nil
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	notif := &models.Notification{}
	var meta []byte

	err := row.Scan(
		&notif.ID,
		&notif.Timestamp,
		&notif.Type,
		&notif.Severity,
		&notif.PairID,
		&notif.HedgeID,
		&notif.Message,
		&meta,
	)
	if err != nil {
		return nil, err
	}

	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &notif.Meta); err != nil {
			return nil, err
		}
	}
	return notif, nil
}
