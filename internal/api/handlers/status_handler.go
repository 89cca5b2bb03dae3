package handlers

import (
	"net/http"

	"hedger/internal/models"
	"hedger/internal/service"
)

// StatusHandler отвечает за read-only endpoints мониторинга
//
// Endpoints:
// - GET /api/v1/status - сводка состояния движка
// - GET /api/v1/accounts - снимок реестра аккаунтов
// - GET /api/v1/pairs - настроенные пары
// - GET /api/v1/cooldowns - активные окна охлаждения
// - GET /api/v1/risk/events - кольцевой буфер риск-событий движка
// - GET /api/v1/risk/events/history - журнал риск-событий из БД
// - GET /api/v1/notifications - журнал уведомлений
// - GET /api/v1/stats - дневная статистика
type StatusHandler struct {
	status service.StatusServiceInterface
}

// NewStatusHandler создает новый StatusHandler с внедрением зависимости
func NewStatusHandler(status service.StatusServiceInterface) *StatusHandler {
	return &StatusHandler{status: status}
}

// GetStatus возвращает сводку состояния движка
//
// GET /api/v1/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.status.Status())
}

// AccountsResponse представляет ответ списка аккаунтов
type AccountsResponse struct {
	Accounts []models.Account `json:"accounts"`
	Total    int              `json:"total"`
}

// GetAccounts возвращает снимок реестра аккаунтов
//
// GET /api/v1/accounts
func (h *StatusHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := h.status.Accounts()
	respondWithJSON(w, http.StatusOK, AccountsResponse{
		Accounts: accounts,
		Total:    len(accounts),
	})
}

// PairsResponse представляет ответ списка пар
type PairsResponse struct {
	Pairs []models.PairConfig `json:"pairs"`
	Total int                 `json:"total"`
}

// GetPairs возвращает настроенные пары
//
// GET /api/v1/pairs
func (h *StatusHandler) GetPairs(w http.ResponseWriter, r *http.Request) {
	pairs := h.status.Pairs()
	respondWithJSON(w, http.StatusOK, PairsResponse{
		Pairs: pairs,
		Total: len(pairs),
	})
}

// CooldownsResponse представляет ответ списка окон охлаждения
type CooldownsResponse struct {
	Cooldowns []models.CooldownWindow `json:"cooldowns"`
	Total     int                     `json:"total"`
}

// GetCooldowns возвращает активные окна охлаждения по парам
//
// GET /api/v1/cooldowns
func (h *StatusHandler) GetCooldowns(w http.ResponseWriter, r *http.Request) {
	cooldowns := h.status.Cooldowns()
	respondWithJSON(w, http.StatusOK, CooldownsResponse{
		Cooldowns: cooldowns,
		Total:     len(cooldowns),
	})
}

// RiskEventsResponse представляет ответ списка риск-событий
type RiskEventsResponse struct {
	Events []models.RiskEvent `json:"events"`
	Total  int                `json:"total"`
}

// GetRiskEvents возвращает последние риск-события из памяти движка
//
// GET /api/v1/risk/events
//
// Query параметры:
// - limit (int): количество записей (по умолчанию 100, максимум 500)
func (h *StatusHandler) GetRiskEvents(w http.ResponseWriter, r *http.Request) {
	events := h.status.RiskEvents(queryInt(r, "limit", 0))
	respondWithJSON(w, http.StatusOK, RiskEventsResponse{
		Events: events,
		Total:  len(events),
	})
}

// RiskEventHistoryResponse представляет ответ журнала риск-событий
type RiskEventHistoryResponse struct {
	Events []*models.RiskEvent `json:"events"`
	Total  int                 `json:"total"`
}

// GetRiskEventHistory возвращает журнал риск-событий из БД
//
// GET /api/v1/risk/events/history
//
// Query параметры:
// - limit (int): количество записей (по умолчанию 100, максимум 500)
func (h *StatusHandler) GetRiskEventHistory(w http.ResponseWriter, r *http.Request) {
	events, err := h.status.RiskEventHistory(queryInt(r, "limit", 0))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to get risk events: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, RiskEventHistoryResponse{
		Events: events,
		Total:  len(events),
	})
}

// NotificationsResponse представляет ответ журнала уведомлений
type NotificationsResponse struct {
	Notifications []*models.Notification `json:"notifications"`
	Total         int                    `json:"total"`
}

// GetNotifications возвращает журнал уведомлений
//
// GET /api/v1/notifications
//
// Query параметры:
// - limit (int): количество записей (по умолчанию 100, максимум 500)
func (h *StatusHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	notifications, err := h.status.Notifications(queryInt(r, "limit", 0))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to get notifications: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, NotificationsResponse{
		Notifications: notifications,
		Total:         len(notifications),
	})
}

// DailyStatsResponse представляет ответ дневной статистики
type DailyStatsResponse struct {
	Days []*models.DailyStats `json:"days"`
}

// GetStats возвращает дневную статистику за последние N дней
//
// GET /api/v1/stats
//
// Query параметры:
// - days (int): глубина окна в днях (по умолчанию 7)
func (h *StatusHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	days, err := h.status.DailyStats(queryInt(r, "days", 0))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to get stats: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, DailyStatsResponse{Days: days})
}
