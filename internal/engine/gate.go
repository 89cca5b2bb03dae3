package engine

import (
	"context"
	"fmt"
	"time"

	"hedger/internal/models"
	"hedger/pkg/utils"
)

// gate.go - гейт допуска к открытию нового хеджа
//
// Восемь условий проверяются строго по порядку с остановкой на первом
// нарушенном. Порядок выбран от дешёвых проверок к дорогим: рыночный
// снимок запрашивается последним.

// Имена условий гейта; попадают в метрики и причины отказа
const (
	CondNoOpeningHedge   = "no_opening_hedge"
	CondNoPendingOrders  = "no_pending_orders"
	CondNoLockedAccounts = "no_locked_accounts"
	CondPositionCapacity = "position_capacity"
	CondEligibleAccounts = "eligible_accounts"
	CondNoRiskHalt       = "no_risk_halt"
	CondCooldownExpired  = "cooldown_expired"
	CondMarketConditions = "market_conditions"
)

// GateDecision - результат оценки гейта
type GateDecision struct {
	Allowed   bool
	Condition string // нарушенное условие (пусто при допуске)
	Reason    string // человекочитаемая причина отказа
}

func deny(condition, reason string) GateDecision {
	return GateDecision{Condition: condition, Reason: reason}
}

// hedgeLedger - взгляд гейта на текущие хеджи пары.
// Реализуется координатором.
type hedgeLedger interface {
	// HasOpeningHedge сообщает о хедже пары в состоянии OPENING
	HasOpeningHedge(pairID string) bool

	// PendingOrderCount считает непогашенные ордера пары, не старше
	// timeout. Ордера старше timeout считаются протухшими и не
	// блокируют гейт: их разбирает сканер таймаутов.
	PendingOrderCount(pairID string, now time.Time, timeout time.Duration) int

	// InFlightCount считает хеджи пары в состояниях OPENING/OPEN/CLOSING
	InFlightCount(pairID string) int
}

// AdmissionGate оценивает условия допуска для пары
type AdmissionGate struct {
	ledger       hedgeLedger
	registry     *AccountRegistry
	risk         *RiskManager
	cooldowns    *CooldownTracker
	market       MarketDataProvider
	orderTimeout time.Duration
	log          *utils.Logger
}

// NewAdmissionGate создаёт гейт
func NewAdmissionGate(
	ledger hedgeLedger,
	registry *AccountRegistry,
	risk *RiskManager,
	cooldowns *CooldownTracker,
	market MarketDataProvider,
	orderTimeout time.Duration,
	log *utils.Logger,
) *AdmissionGate {
	return &AdmissionGate{
		ledger:       ledger,
		registry:     registry,
		risk:         risk,
		cooldowns:    cooldowns,
		market:       market,
		orderTimeout: orderTimeout,
		log:          log.WithComponent("gate"),
	}
}

// Evaluate проверяет все условия допуска для пары.
//
// Метрики фиксируют исход и нарушенное условие; причина отказа
// логируется на debug, чтобы не зашумлять лог на каждом тике.
func (g *AdmissionGate) Evaluate(ctx context.Context, pair models.PairConfig, now time.Time) GateDecision {
	decision := g.evaluate(ctx, pair, now)

	if decision.Allowed {
		metricGateEvaluations.WithLabelValues(pair.ID, "allowed").Inc()
	} else {
		metricGateEvaluations.WithLabelValues(pair.ID, "denied").Inc()
		metricGateRejections.WithLabelValues(pair.ID, decision.Condition).Inc()
		g.log.Debug("admission denied",
			utils.Pair(pair.ID),
			utils.String("condition", decision.Condition),
			utils.Reason(decision.Reason),
		)
	}

	return decision
}

func (g *AdmissionGate) evaluate(ctx context.Context, pair models.PairConfig, now time.Time) GateDecision {
	// 1. Нет хеджа в процессе открытия
	if g.ledger.HasOpeningHedge(pair.ID) {
		return deny(CondNoOpeningHedge, "a hedge is already opening for this pair")
	}

	// 2. Нет непогашенных ордеров
	if n := g.ledger.PendingOrderCount(pair.ID, now, g.orderTimeout); n > 0 {
		return deny(CondNoPendingOrders, fmt.Sprintf("%d pending orders outstanding", n))
	}

	// 3. Нет заблокированных аккаунтов среди аккаунтов пары
	if g.registry.HasLocked(pair.AccountAddresses) {
		return deny(CondNoLockedAccounts, "pair has locked accounts")
	}

	// 4. Лимит одновременных позиций: OPENING+OPEN+CLOSING < max_positions.
	// max_positions = 0 полностью запрещает новые открытия.
	if inFlight := g.ledger.InFlightCount(pair.ID); inFlight >= pair.MaxPositions {
		return deny(CondPositionCapacity,
			fmt.Sprintf("position limit reached: %d of %d", inFlight, pair.MaxPositions))
	}

	// 5. Достаточно пригодных аккаунтов
	if n := g.registry.EligibleCount(pair.AccountAddresses, pair.BaseAmount, now); n < models.RequiredAccounts {
		return deny(CondEligibleAccounts,
			fmt.Sprintf("only %d of %d required accounts eligible", n, models.RequiredAccounts))
	}

	// 6. Нет риск-остановок на любом уровне
	if halted, reason := g.risk.Halted(pair.ID, pair.AccountAddresses); halted {
		return deny(CondNoRiskHalt, reason)
	}

	// 7. Пауза пары истекла. Допуск разрешён ровно в момент истечения.
	if w, active := g.cooldowns.Active(pair.ID, now); active {
		return deny(CondCooldownExpired,
			fmt.Sprintf("cooldown until %s (%s)", w.ExpiresAt.Format(time.RFC3339), w.Reason))
	}

	// 8. Рыночные условия
	return g.checkMarket(ctx, pair, now)
}

// checkMarket запрашивает снимок рынка и сверяет с порогами пары
func (g *AdmissionGate) checkMarket(ctx context.Context, pair models.PairConfig, now time.Time) GateDecision {
	snap, err := g.market.Snapshot(ctx, pair.Market)
	if err != nil {
		return deny(CondMarketConditions, fmt.Sprintf("market snapshot unavailable: %v", err))
	}

	if !snap.Open {
		return deny(CondMarketConditions, "market is closed")
	}

	maxAge := pair.Conditions.MaxPriceAge
	if maxAge > 0 && utils.IsStale(snap.Timestamp, maxAge, now) {
		return deny(CondMarketConditions,
			fmt.Sprintf("quote is stale: age %v exceeds %v", now.Sub(snap.Timestamp), maxAge))
	}

	if max := pair.Conditions.MaxVolatilityPct; max > 0 && snap.VolatilityPct > max {
		return deny(CondMarketConditions,
			fmt.Sprintf("volatility %.2f%% exceeds %.2f%%", snap.VolatilityPct, max))
	}

	if min := pair.Conditions.MinLiquidity; min > 0 && snap.Liquidity < min {
		return deny(CondMarketConditions,
			fmt.Sprintf("liquidity %.0f below %.0f", snap.Liquidity, min))
	}

	if max := pair.Conditions.MaxSpreadPct; max > 0 {
		if spread := snap.SpreadPct(); spread > max {
			return deny(CondMarketConditions,
				fmt.Sprintf("spread %.3f%% exceeds %.3f%%", spread, max))
		}
	}

	return GateDecision{Allowed: true}
}
