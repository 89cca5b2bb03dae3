package models

import "time"

// RiskEvent представляет запись о срабатывании риск-лимита
//
// Создаётся RiskManager'ом, потребляется координатором и cooldown-трекером.
// После создания никогда не мутируется (append-only журнал).
type RiskEvent struct {
	ID        int64     `json:"id" db:"id"`
	Level     string    `json:"level" db:"level"`     // global, pair, account
	Reason    string    `json:"reason" db:"reason"`   // что сработало
	PairID    string    `json:"pair_id,omitempty" db:"pair_id"`
	Account   string    `json:"account,omitempty" db:"account"`
	Value     float64   `json:"value" db:"value"`     // фактическое значение
	Limit     float64   `json:"limit" db:"limit_value"` // нарушенный лимит
	Action    string    `json:"action" db:"action"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// Уровни риск-событий
const (
	RiskLevelGlobal  = "global"
	RiskLevelPair    = "pair"
	RiskLevelAccount = "account"
)

// Действия риск-событий
const (
	RiskActionWarn         = "warn"           // предупреждение, торговля продолжается
	RiskActionHaltPair     = "halt-pair"      // запрет новых хеджей по паре
	RiskActionHaltAccount  = "halt-account"   // блокировка аккаунта
	RiskActionEmergencyStop = "emergency-stop-all" // остановка всех допусков
)

// CooldownWindow представляет окно охлаждения пары
//
// Создаётся при закрытии хеджа или риск-событии. Истекает естественно:
// проверка — чистое сравнение с текущим временем, без фоновых таймеров.
type CooldownWindow struct {
	PairID    string    `json:"pair_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Reason    string    `json:"reason"` // close, failure, risk
}

// Active возвращает true если окно ещё действует в момент now
//
// Граница включительна в пользу допуска: ровно в ExpiresAt окно
// считается истёкшим.
func (w CooldownWindow) Active(now time.Time) bool {
	return now.Before(w.ExpiresAt)
}
