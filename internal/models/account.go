package models

import "time"

// Account представляет runtime состояние торгового аккаунта
//
// Создаётся при старте из конфигурации, живёт только в памяти.
// Балансы и счётчики убытков мутируются исключительно через
// AccountRegistry — прямой доступ из нескольких горутин запрещён.
type Account struct {
	Address          string    `json:"address"`                      // L1 адрес аккаунта
	Index            int       `json:"index"`                        // индекс аккаунта на бирже
	AvailableBalance float64   `json:"available_balance"`            // доступный баланс в USDT
	Locked           bool      `json:"locked"`                       // заблокирован (не участвует в новых хеджах)
	LockReason       string    `json:"lock_reason,omitempty"`        // причина блокировки
	ActiveOrders     int       `json:"active_orders"`                // количество активных ордеров
	DailyLoss        float64   `json:"daily_loss"`                   // накопленный убыток за день (положительное число)
	DailyTrades      int       `json:"daily_trades"`                 // количество сделок за день
	LastReset        time.Time `json:"last_reset"`                   // время последнего сброса дневных счётчиков
	LastError        string    `json:"last_error,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}
