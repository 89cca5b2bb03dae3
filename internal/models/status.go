package models

import "time"

// EngineStatus - read-only снимок состояния движка для status API
//
// Собирается движком по запросу, опрашивается внешним web-слоем.
type EngineStatus struct {
	Running        bool       `json:"running"`
	EmergencyStop  bool       `json:"emergency_stop"`
	ActiveHedges   int        `json:"active_hedges"`
	TotalAccounts  int        `json:"total_accounts"`
	LockedAccounts int        `json:"locked_accounts"`
	ActivePairs    int        `json:"active_pairs"`
	LastTradeTime  *time.Time `json:"last_trade_time,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	UptimeSeconds  float64    `json:"uptime_seconds"`
}

// DailyStats - агрегированная дневная статистика
type DailyStats struct {
	Day          time.Time `json:"day" db:"day"`
	HedgesOpened int       `json:"hedges_opened" db:"hedges_opened"`
	HedgesClosed int       `json:"hedges_closed" db:"hedges_closed"`
	HedgesFailed int       `json:"hedges_failed" db:"hedges_failed"`
	TotalPnl     float64   `json:"total_pnl" db:"total_pnl"`
}
