package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"hedger/internal/models"
	"hedger/pkg/utils"
)

// risk.go - риск-менеджер трёх уровней
//
// Уровни: глобальный (весь процесс), пара, аккаунт. Каждый уровень
// ведёт дневной счётчик убытков (только убытки, по модулю) и сравнивает
// его с лимитом. Нарушение лимита производит RiskEvent - данные, не
// ошибку, - с действием соответствующего уровня:
//
//	глобальный -> emergency-stop-all
//	пара       -> halt-pair
//	аккаунт    -> halt-account (+ блокировка в реестре)
//
// При достижении 80% лимита выпускается предупреждение (warn), один
// раз на уровень в сутки.

// warnThreshold - доля лимита, при которой выпускается предупреждение
const warnThreshold = 0.8

// riskEventCap - ёмкость кольцевого журнала событий
const riskEventCap = 256

// RiskLimits - лимиты дневных убытков и минимальные балансы
type RiskLimits struct {
	GlobalMaxDailyLoss  float64            // 0 = без лимита
	AccountMaxDailyLoss float64            // общий лимит на аккаунт, 0 = без лимита
	PairMaxDailyLoss    map[string]float64 // по паре, 0 = без лимита
	AccountMinBalance   map[string]float64 // минимальный баланс по аккаунту, 0 = без проверки
}

// RiskManager отслеживает дневные убытки и режимы остановки
type RiskManager struct {
	mu     sync.Mutex
	limits RiskLimits

	globalLoss  float64
	pairLoss    map[string]float64
	accountLoss map[string]float64
	lastReset   time.Time

	emergencyStop   bool
	emergencyReason string
	haltedPairs     map[string]string // pairID -> reason
	haltedAccounts  map[string]string // address -> reason

	warned map[string]bool // дедупликация 80% предупреждений, сбрасывается раз в сутки

	events []models.RiskEvent // кольцевой журнал
	seq    atomic.Int64

	registry *AccountRegistry
	sink     chan<- models.RiskEvent // опциональный поток событий наружу
	log      *utils.Logger
}

// NewRiskManager создаёт риск-менеджер.
// sink может быть nil; события тогда остаются только в журнале.
func NewRiskManager(limits RiskLimits, registry *AccountRegistry, sink chan<- models.RiskEvent, log *utils.Logger) *RiskManager {
	if limits.PairMaxDailyLoss == nil {
		limits.PairMaxDailyLoss = make(map[string]float64)
	}
	if limits.AccountMinBalance == nil {
		limits.AccountMinBalance = make(map[string]float64)
	}
	return &RiskManager{
		limits:         limits,
		pairLoss:       make(map[string]float64),
		accountLoss:    make(map[string]float64),
		lastReset:      utils.StartOfDayUTC(time.Now()),
		haltedPairs:    make(map[string]string),
		haltedAccounts: make(map[string]string),
		warned:         make(map[string]bool),
		registry:       registry,
		sink:           sink,
		log:            log.WithComponent("risk"),
	}
}

// resetIfNewDay сбрасывает дневные счётчики на границе суток UTC.
// Остановки (halt, emergency stop) НЕ сбрасываются: их снимает оператор.
// Вызывается под mu.
func (rm *RiskManager) resetIfNewDay(now time.Time) {
	if utils.SameDayUTC(rm.lastReset, now) {
		return
	}
	rm.globalLoss = 0
	rm.pairLoss = make(map[string]float64)
	rm.accountLoss = make(map[string]float64)
	rm.warned = make(map[string]bool)
	rm.lastReset = utils.StartOfDayUTC(now)
}

// emit записывает событие в журнал и отправляет в sink. Вызывается под mu.
func (rm *RiskManager) emit(event models.RiskEvent) {
	rm.events = append(rm.events, event)
	if len(rm.events) > riskEventCap {
		rm.events = rm.events[len(rm.events)-riskEventCap:]
	}

	rm.log.Warn("risk event",
		utils.String("level", event.Level),
		utils.String("action", event.Action),
		utils.Pair(event.PairID),
		utils.Account(event.Account),
		utils.Float64("value", event.Value),
		utils.Float64("limit", event.Limit),
		utils.Reason(event.Reason),
	)

	if rm.sink != nil {
		select {
		case rm.sink <- event:
		default:
			// Переполненный sink не должен блокировать торговый путь
			rm.log.Warn("risk event sink full, event dropped", utils.Int64("event_id", event.ID))
		}
	}
}

func (rm *RiskManager) newEvent(level, action, reason, pairID, account string, value, limit float64, now time.Time) models.RiskEvent {
	return models.RiskEvent{
		ID:        rm.seq.Add(1),
		Level:     level,
		Reason:    reason,
		PairID:    pairID,
		Account:   account,
		Value:     value,
		Limit:     limit,
		Action:    action,
		Timestamp: now,
	}
}

// checkTier сравнивает счётчик с лимитом одного уровня. Вызывается под mu.
// Возвращает событие остановки, если лимит превышен.
func (rm *RiskManager) checkTier(level, pairID, account string, loss, limit float64, now time.Time) *models.RiskEvent {
	if limit <= 0 {
		return nil
	}

	warnKey := level + ":" + pairID + account
	if loss >= limit*warnThreshold && loss < limit && !rm.warned[warnKey] {
		rm.warned[warnKey] = true
		ev := rm.newEvent(level, models.RiskActionWarn,
			fmt.Sprintf("daily loss at %.0f%% of limit", loss/limit*100),
			pairID, account, loss, limit, now)
		rm.emit(ev)
	}

	if loss < limit {
		return nil
	}

	switch level {
	case models.RiskLevelGlobal:
		if rm.emergencyStop {
			return nil // уже остановлены
		}
		rm.emergencyStop = true
		rm.emergencyReason = "global daily loss limit exceeded"
		ev := rm.newEvent(level, models.RiskActionEmergencyStop,
			rm.emergencyReason, "", "", loss, limit, now)
		rm.emit(ev)
		return &ev

	case models.RiskLevelPair:
		if _, halted := rm.haltedPairs[pairID]; halted {
			return nil
		}
		reason := "pair daily loss limit exceeded"
		rm.haltedPairs[pairID] = reason
		ev := rm.newEvent(level, models.RiskActionHaltPair, reason, pairID, "", loss, limit, now)
		rm.emit(ev)
		return &ev

	case models.RiskLevelAccount:
		if _, halted := rm.haltedAccounts[account]; halted {
			return nil
		}
		reason := "account daily loss limit exceeded"
		rm.haltedAccounts[account] = reason
		ev := rm.newEvent(level, models.RiskActionHaltAccount, reason, "", account, loss, limit, now)
		rm.emit(ev)
		if rm.registry != nil {
			rm.registry.Lock(account, reason)
		}
		return &ev
	}

	return nil
}

// RecordPnL учитывает реализованный PNL по всем трём уровням.
//
// Прибыль лимиты не ослабляет: счётчики накапливают только убытки.
// Возвращает события остановок, произведённые этим вызовом.
func (rm *RiskManager) RecordPnL(pairID, account string, pnl float64, now time.Time) []models.RiskEvent {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.resetIfNewDay(now)

	if pnl >= 0 {
		return nil
	}
	loss := utils.Abs(pnl)

	rm.globalLoss += loss
	rm.pairLoss[pairID] += loss
	rm.accountLoss[account] += loss

	var halts []models.RiskEvent

	if ev := rm.checkTier(models.RiskLevelGlobal, "", "", rm.globalLoss, rm.limits.GlobalMaxDailyLoss, now); ev != nil {
		halts = append(halts, *ev)
	}
	if ev := rm.checkTier(models.RiskLevelPair, pairID, "", rm.pairLoss[pairID], rm.limits.PairMaxDailyLoss[pairID], now); ev != nil {
		halts = append(halts, *ev)
	}
	if ev := rm.checkTier(models.RiskLevelAccount, "", account, rm.accountLoss[account], rm.limits.AccountMaxDailyLoss, now); ev != nil {
		halts = append(halts, *ev)
	}

	return halts
}

// checkBalance сравнивает доступный баланс аккаунта с его минимальным
// порогом. Порог 0 или отсутствующий отключает проверку. Вызывается под mu.
func (rm *RiskManager) checkBalance(account string, now time.Time) *models.RiskEvent {
	floor := rm.limits.AccountMinBalance[account]
	if floor <= 0 || rm.registry == nil {
		return nil
	}
	balance, ok := rm.registry.Balance(account)
	if !ok || balance >= floor {
		return nil
	}
	if _, halted := rm.haltedAccounts[account]; halted {
		return nil
	}

	reason := "account balance below minimum"
	rm.haltedAccounts[account] = reason
	ev := rm.newEvent(models.RiskLevelAccount, models.RiskActionHaltAccount,
		reason, "", account, balance, floor, now)
	rm.emit(ev)
	rm.registry.Lock(account, reason)
	return &ev
}

// CheckBalance проверяет минимальный баланс одного аккаунта после
// расчёта PNL. Возвращает событие остановки, если порог нарушен.
func (rm *RiskManager) CheckBalance(account string, now time.Time) *models.RiskEvent {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.checkBalance(account, now)
}

// CheckBalances проходит по всем аккаунтам с настроенным порогом.
// Вызывается периодически из цикла мониторинга.
func (rm *RiskManager) CheckBalances(now time.Time) []models.RiskEvent {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	var halts []models.RiskEvent
	for account := range rm.limits.AccountMinBalance {
		if ev := rm.checkBalance(account, now); ev != nil {
			halts = append(halts, *ev)
		}
	}
	return halts
}

// ReportUnwindFailure фиксирует неуправляемую экспозицию: разворот ноги
// не удался, аккаунт блокируется, выпускается halt-account событие.
func (rm *RiskManager) ReportUnwindFailure(hedgeID, pairID, account string, cause error, now time.Time) models.RiskEvent {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	reason := fmt.Sprintf("unwind failed for hedge %s: %v", hedgeID, cause)
	rm.haltedAccounts[account] = reason
	if rm.registry != nil {
		rm.registry.Lock(account, reason)
	}

	ev := rm.newEvent(models.RiskLevelAccount, models.RiskActionHaltAccount,
		reason, pairID, account, 0, 0, now)
	rm.emit(ev)
	return ev
}

// Halted проверяет, остановлена ли торговля для пары и её аккаунтов.
// Возвращает причину первого сработавшего уровня.
func (rm *RiskManager) Halted(pairID string, accounts []string) (bool, string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.emergencyStop {
		return true, "emergency stop: " + rm.emergencyReason
	}
	if reason, ok := rm.haltedPairs[pairID]; ok {
		return true, "pair halted: " + reason
	}
	for _, acc := range accounts {
		if reason, ok := rm.haltedAccounts[acc]; ok {
			return true, "account " + acc + " halted: " + reason
		}
	}
	return false, ""
}

// EmergencyStopActive возвращает состояние глобальной остановки
func (rm *RiskManager) EmergencyStopActive() bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.emergencyStop
}

// SetEmergencyStop включает/выключает глобальную остановку вручную
func (rm *RiskManager) SetEmergencyStop(active bool, reason string, now time.Time) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.emergencyStop == active {
		return
	}
	rm.emergencyStop = active
	rm.emergencyReason = reason

	action := models.RiskActionEmergencyStop
	if !active {
		action = models.RiskActionWarn
		reason = "emergency stop cleared: " + reason
	}
	ev := rm.newEvent(models.RiskLevelGlobal, action, reason, "", "", 0, 0, now)
	rm.emit(ev)
}

// ResumePair снимает остановку пары (ручная операция)
func (rm *RiskManager) ResumePair(pairID string) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, ok := rm.haltedPairs[pairID]; !ok {
		return false
	}
	delete(rm.haltedPairs, pairID)
	return true
}

// ResumeAccount снимает остановку аккаунта (ручная операция).
// Блокировку в реестре оператор снимает отдельно.
func (rm *RiskManager) ResumeAccount(address string) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, ok := rm.haltedAccounts[address]; !ok {
		return false
	}
	delete(rm.haltedAccounts, address)
	return true
}

// Events возвращает последние limit событий, новые в конце.
// limit <= 0 возвращает весь журнал.
func (rm *RiskManager) Events(limit int) []models.RiskEvent {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	events := rm.events
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return append([]models.RiskEvent(nil), events...)
}

// DailyLosses возвращает текущие счётчики для status API
func (rm *RiskManager) DailyLosses(now time.Time) (global float64, byPair map[string]float64, byAccount map[string]float64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.resetIfNewDay(now)

	byPair = make(map[string]float64, len(rm.pairLoss))
	for k, v := range rm.pairLoss {
		byPair[k] = v
	}
	byAccount = make(map[string]float64, len(rm.accountLoss))
	for k, v := range rm.accountLoss {
		byAccount[k] = v
	}
	return rm.globalLoss, byPair, byAccount
}
