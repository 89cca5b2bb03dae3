package service

import (
	"fmt"
	"time"

	"hedger/internal/models"
)

// Лимиты выборок status API
const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 500
)

// StatusService отдаёт read-only данные для status API
//
// Живое состояние (позиции, аккаунты, риск-журнал) берётся из движка,
// история - из аудит-журнала в БД.
type StatusService struct {
	engine TradingEngine

	hedgeStore HedgeStore
	riskStore  RiskEventStore
	notifStore NotificationStore
	statsStore StatsStore
}

// NewStatusService создает новый экземпляр StatusService
func NewStatusService(
	engine TradingEngine,
	hedgeStore HedgeStore,
	riskStore RiskEventStore,
	notifStore NotificationStore,
	statsStore StatsStore,
) *StatusService {
	return &StatusService{
		engine:     engine,
		hedgeStore: hedgeStore,
		riskStore:  riskStore,
		notifStore: notifStore,
		statsStore: statsStore,
	}
}

// Status возвращает снимок состояния движка
func (s *StatusService) Status() models.EngineStatus {
	return s.engine.Status()
}

// Positions возвращает хеджи: только открытые или все известные координатору
func (s *StatusService) Positions(openOnly bool) []models.Hedge {
	if openOnly {
		return s.engine.OpenHedges()
	}
	return s.engine.Hedges()
}

// Position возвращает хедж по ID
func (s *StatusService) Position(hedgeID string) (models.Hedge, error) {
	hedge, ok := s.engine.Hedge(hedgeID)
	if !ok {
		return models.Hedge{}, fmt.Errorf("hedge %s not found", hedgeID)
	}
	return hedge, nil
}

// Accounts возвращает снимок реестра аккаунтов
func (s *StatusService) Accounts() []models.Account {
	return s.engine.Accounts()
}

// Pairs возвращает конфигурацию пар
func (s *StatusService) Pairs() []models.PairConfig {
	return s.engine.Pairs()
}

// Cooldowns возвращает активные окна охлаждения
func (s *StatusService) Cooldowns() []models.CooldownWindow {
	return s.engine.Cooldowns()
}

// RiskEvents возвращает последние события из журнала риск-менеджера
func (s *StatusService) RiskEvents(limit int) []models.RiskEvent {
	return s.engine.RiskEvents(clampLimit(limit))
}

// RiskEventHistory возвращает события из аудит-журнала (переживает рестарт)
func (s *StatusService) RiskEventHistory(limit int) ([]*models.RiskEvent, error) {
	return s.riskStore.GetRecent(clampLimit(limit))
}

// HedgeHistory возвращает последние хеджи из аудит-журнала
func (s *StatusService) HedgeHistory(pairID string, limit int) ([]*models.Hedge, error) {
	limit = clampLimit(limit)
	if pairID != "" {
		return s.hedgeStore.GetByPairID(pairID, limit)
	}
	return s.hedgeStore.GetRecent(limit)
}

// Notifications возвращает последние уведомления из журнала
func (s *StatusService) Notifications(limit int) ([]*models.Notification, error) {
	return s.notifStore.GetRecent(clampLimit(limit))
}

// DailyStats возвращает статистику за период, заканчивающийся сегодня
func (s *StatusService) DailyStats(days int) ([]*models.DailyStats, error) {
	if days <= 0 {
		days = 7
	}
	now := time.Now().UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -(days - 1))
	return s.statsStore.GetRange(from, to)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
