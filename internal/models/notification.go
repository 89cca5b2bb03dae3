package models

import "time"

// Notification представляет уведомление о торговом событии
type Notification struct {
	ID        int64                  `json:"id" db:"id"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	Type      string                 `json:"type" db:"type"`         // OPEN, CLOSE, UNWIND, RISK, ERROR, PAUSE
	Severity  string                 `json:"severity" db:"severity"` // info, warn, error
	PairID    string                 `json:"pair_id,omitempty" db:"pair_id"`
	HedgeID   string                 `json:"hedge_id,omitempty" db:"hedge_id"`
	Message   string                 `json:"message" db:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty" db:"meta"` // дополнительные данные (JSON в БД)
}

// Типы уведомлений
const (
	NotificationTypeOpen   = "OPEN"   // хедж открыт
	NotificationTypeClose  = "CLOSE"  // хедж закрыт
	NotificationTypeUnwind = "UNWIND" // частичный сбой, экспозиция развёрнута
	NotificationTypeRisk   = "RISK"   // риск-событие
	NotificationTypeError  = "ERROR"  // ошибка API/ордера
	NotificationTypePause  = "PAUSE"  // пауза/остановка пары или движка
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
