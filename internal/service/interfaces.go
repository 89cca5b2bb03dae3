package service

import (
	"context"
	"time"

	"hedger/internal/models"
)

// TradingEngine - операции движка, нужные сервисному слою.
// Реализуется *engine.Engine; интерфейс позволяет подставить mock в тестах.
type TradingEngine interface {
	Start(ctx context.Context) error
	Stop() error
	Running() bool
	Status() models.EngineStatus

	Pairs() []models.PairConfig
	Pair(pairID string) (models.PairConfig, bool)
	Hedges() []models.Hedge
	Hedge(hedgeID string) (models.Hedge, bool)
	OpenHedges() []models.Hedge
	Accounts() []models.Account
	RiskEvents(limit int) []models.RiskEvent
	Cooldowns() []models.CooldownWindow

	ClosePosition(ctx context.Context, hedgeID string) error
	CloseAll(ctx context.Context, reason string) error
	EmergencyStop(ctx context.Context, reason string) error
}

// HedgeStore - журнал хеджей
type HedgeStore interface {
	Save(hedge *models.Hedge) error
	GetRecent(limit int) ([]*models.Hedge, error)
	GetByPairID(pairID string, limit int) ([]*models.Hedge, error)
}

// RiskEventStore - журнал риск-событий
type RiskEventStore interface {
	Create(event *models.RiskEvent) (int64, error)
	GetRecent(limit int) ([]*models.RiskEvent, error)
}

// NotificationStore - журнал уведомлений
type NotificationStore interface {
	Create(notif *models.Notification) error
	GetRecent(limit int) ([]*models.Notification, error)
}

// StatsStore - дневная статистика
type StatsStore interface {
	RecordOpened(day time.Time) error
	RecordClosed(day time.Time, pnl float64) error
	RecordFailed(day time.Time) error
	GetDay(day time.Time) (*models.DailyStats, error)
	GetRange(from, to time.Time) ([]*models.DailyStats, error)
}

// StatusServiceInterface - read-only операции для HTTP handlers.
// Реализуется *StatusService.
type StatusServiceInterface interface {
	Status() models.EngineStatus
	Positions(openOnly bool) []models.Hedge
	Position(hedgeID string) (models.Hedge, error)
	Accounts() []models.Account
	Pairs() []models.PairConfig
	Cooldowns() []models.CooldownWindow
	RiskEvents(limit int) []models.RiskEvent
	RiskEventHistory(limit int) ([]*models.RiskEvent, error)
	HedgeHistory(pairID string, limit int) ([]*models.Hedge, error)
	Notifications(limit int) ([]*models.Notification, error)
	DailyStats(days int) ([]*models.DailyStats, error)
}

// ControlServiceInterface - управляющие операции для HTTP handlers.
// Реализуется *ControlService.
type ControlServiceInterface interface {
	Start(ctx context.Context) error
	Stop() error
	ClosePosition(ctx context.Context, hedgeID string) error
	CloseAll(ctx context.Context) error
	EmergencyStop(ctx context.Context, reason string) error
}

// Broadcaster - рассылка событий подключённым WebSocket клиентам.
// Интерфейс разрывает циклическую зависимость service <-> websocket.
type Broadcaster interface {
	BroadcastHedgeUpdate(hedge models.Hedge)
	BroadcastNotification(notif models.Notification)
	BroadcastRiskEvent(event models.RiskEvent)
	BroadcastAccountUpdate(account models.Account)
}
