package models

import "time"

// PairConfig представляет конфигурацию торговой пары для хеджирования
//
// Неизменяема после загрузки: движок никогда не перечитывает конфигурацию
// во время работы (изменения требуют рестарта).
type PairConfig struct {
	ID               string   `json:"id" yaml:"id"`                               // btc_hedge_1
	Name             string   `json:"name" yaml:"name"`                           // BTC-USDT
	Market           string   `json:"market" yaml:"market"`                       // идентификатор рынка у биржи
	BaseAmount       float64  `json:"base_amount" yaml:"base_amount"`             // размер одной ноги в USDT
	MaxPositions     int      `json:"max_positions" yaml:"max_positions"`         // максимум одновременных хеджей
	CooldownMinutes  int      `json:"cooldown_minutes" yaml:"cooldown_minutes"`   // окно охлаждения после закрытия/сбоя
	AccountAddresses []string `json:"account_addresses" yaml:"account_addresses"` // упорядоченный список допущенных аккаунтов (>= 2)
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	TakeProfit       float64  `json:"take_profit" yaml:"take_profit"`             // целевой PNL для закрытия, USDT (0 = выкл)
	StopLoss         float64  `json:"stop_loss" yaml:"stop_loss"`                 // лимит убытка для закрытия, USDT (0 = выкл)
	MaxDailyLoss     float64  `json:"max_daily_loss" yaml:"max_daily_loss"`       // дневной лимит убытка пары
	MaxPositionSize  float64  `json:"max_position_size" yaml:"max_position_size"` // лимит размера одной ноги

	Conditions MarketConditions `json:"conditions" yaml:"conditions"` // рыночные пороги (условие 8 гейта)
}

// MarketConditions - пороги рыночных условий для допуска к открытию
type MarketConditions struct {
	MaxSpreadPct     float64       `json:"max_spread_pct" yaml:"max_spread_pct"`         // максимальный bid/ask спред, %
	MaxVolatilityPct float64       `json:"max_volatility_pct" yaml:"max_volatility_pct"` // максимальная волатильность, %
	MinLiquidity     float64       `json:"min_liquidity" yaml:"min_liquidity"`           // минимальная глубина стакана
	MaxPriceAge      time.Duration `json:"max_price_age" yaml:"max_price_age"`           // максимальный возраст цены (staleness)
}

// RequiredAccounts - минимальное число аккаунтов для одного хеджа
// (по одной ноге на каждую сторону)
const RequiredAccounts = 2
