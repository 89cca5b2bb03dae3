package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"hedger/internal/config"
	"hedger/internal/models"
	"hedger/pkg/utils"
)

// engine.go - торговый движок
//
// Движок связывает гейт, координатор и риск-менеджер в рабочий цикл:
//   - тик мониторинга оценивает гейт по всем парам параллельно и
//     открывает хеджи там, где допуск разрешён;
//   - насос заполнений транслирует уведомления биржи в координатор;
//   - монитор позиций закрывает открытые хеджи по take profit / stop loss.

var (
	ErrAlreadyRunning = errors.New("engine is already running")
	ErrNotRunning     = errors.New("engine is not running")
)

// Engine - владелец рабочего цикла торговли
type Engine struct {
	cfg       config.EngineConfig
	pairs     map[string]models.PairConfig
	pairOrder []string

	gate      *AdmissionGate
	coord     *Coordinator
	registry  *AccountRegistry
	risk      *RiskManager
	cooldowns *CooldownTracker
	executor  OrderExecutor
	market    MarketDataProvider
	log       *utils.Logger

	running atomic.Bool

	mu            sync.Mutex
	startedAt     time.Time
	lastTradeTime time.Time
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewEngine собирает движок из компонентов
func NewEngine(
	cfg config.EngineConfig,
	pairs []models.PairConfig,
	gate *AdmissionGate,
	coord *Coordinator,
	registry *AccountRegistry,
	risk *RiskManager,
	cooldowns *CooldownTracker,
	executor OrderExecutor,
	market MarketDataProvider,
	log *utils.Logger,
) *Engine {
	e := &Engine{
		cfg:       cfg,
		pairs:     make(map[string]models.PairConfig, len(pairs)),
		pairOrder: make([]string, 0, len(pairs)),
		gate:      gate,
		coord:     coord,
		registry:  registry,
		risk:      risk,
		cooldowns: cooldowns,
		executor:  executor,
		market:    market,
		log:       log.WithComponent("engine"),
	}
	for _, p := range pairs {
		e.pairs[p.ID] = p
		e.pairOrder = append(e.pairOrder, p.ID)
	}
	return e
}

// Start запускает рабочий цикл. Повторный запуск возвращает ошибку.
func (e *Engine) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.startedAt = time.Now()
	e.mu.Unlock()

	e.wg.Add(3)
	go e.fillPump(runCtx)
	go e.tickLoop(runCtx)
	go e.monitorLoop(runCtx)

	e.log.Info("engine started",
		utils.Int("pairs", len(e.pairs)),
		utils.String("monitoring_interval", e.cfg.MonitoringInterval.String()),
	)
	return nil
}

// Stop останавливает рабочий цикл и ждёт завершения горутин.
// Открытые хеджи НЕ закрываются: остановка движка не трогает позиции.
func (e *Engine) Stop() error {
	if !e.running.CompareAndSwap(true, false) {
		return ErrNotRunning
	}

	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()

	e.log.Info("engine stopped")
	return nil
}

// Running возвращает состояние рабочего цикла
func (e *Engine) Running() bool {
	return e.running.Load()
}

// fillPump транслирует уведомления биржи координатору
func (e *Engine) fillPump(ctx context.Context) {
	defer e.wg.Done()

	fills := e.executor.Fills()
	for {
		select {
		case fill, ok := <-fills:
			if !ok {
				e.log.Warn("fill stream closed")
				return
			}
			e.coord.HandleFill(fill)
		case <-ctx.Done():
			return
		}
	}
}

// tickLoop оценивает гейт по всем парам на каждом тике
func (e *Engine) tickLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.MonitoringInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// tick параллельно оценивает все включённые пары.
//
// Параллельная оценка безопасна: атомарность резервирования аккаунтов
// гарантирует реестр, остальные решения гейта идемпотентны.
func (e *Engine) tick(ctx context.Context) {
	started := time.Now()
	defer func() {
		metricTickDuration.Observe(time.Since(started).Seconds())
	}()

	now := time.Now()
	var wg sync.WaitGroup

	for _, pairID := range e.pairOrder {
		pair := e.pairs[pairID]
		if !pair.Enabled {
			continue
		}

		wg.Add(1)
		go func(pair models.PairConfig) {
			defer wg.Done()
			e.evaluatePair(ctx, pair, now)
		}(pair)
	}
	wg.Wait()

	e.coord.ScanTimeouts(ctx, e.pairs, now)
}

// evaluatePair оценивает гейт одной пары и открывает хедж при допуске
func (e *Engine) evaluatePair(ctx context.Context, pair models.PairConfig, now time.Time) {
	decision := e.gate.Evaluate(ctx, pair, now)
	if !decision.Allowed {
		return
	}

	if _, err := e.coord.OpenHedge(ctx, pair, now); err != nil {
		var resErr *ReservationError
		if errors.As(err, &resErr) {
			// Гонка за аккаунты с другой парой: штатно, повтор на
			// следующем тике
			e.log.Debug("reservation lost", utils.Pair(pair.ID), utils.Err(err))
			return
		}
		e.log.Error("hedge open failed",
			utils.Pair(pair.ID),
			utils.Err(err),
		)
		return
	}

	e.mu.Lock()
	e.lastTradeTime = time.Now()
	e.mu.Unlock()
}

// monitorLoop следит за открытыми хеджами и риск-состоянием
func (e *Engine) monitorLoop(ctx context.Context) {
	defer e.wg.Done()

	interval := e.cfg.RiskCheckInterval
	if interval <= 0 {
		interval = e.cfg.MonitoringInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.monitorPositions(ctx)
			for _, ev := range e.risk.CheckBalances(time.Now()) {
				metricRiskEvents.WithLabelValues(ev.Level, ev.Action).Inc()
			}
		case <-ctx.Done():
			return
		}
	}
}

// monitorPositions проверяет открытые хеджи на take profit / stop loss.
//
// PNL хеджа считается по текущей mid-цене относительно цен входа ног
// и сравнивается с абсолютными порогами пары в USDT.
func (e *Engine) monitorPositions(ctx context.Context) {
	for _, hedge := range e.coord.OpenHedges() {
		pair, ok := e.pairs[hedge.PairID]
		if !ok {
			continue
		}

		snap, err := e.market.Snapshot(ctx, pair.Market)
		if err != nil {
			e.log.Warn("snapshot failed during position monitoring",
				utils.Pair(pair.ID),
				utils.Err(err),
			)
			continue
		}
		mid := utils.MidPrice(snap.Bid, snap.Ask)
		if mid <= 0 {
			continue
		}

		var unrealized float64
		for _, leg := range hedge.Legs {
			unrealized += utils.CalculatePNL(leg.Side, leg.EntryPrice, mid, leg.FilledSize)
		}

		var reason string
		switch {
		case pair.TakeProfit > 0 && unrealized >= pair.TakeProfit:
			reason = fmt.Sprintf("take profit: %.2f >= %.2f", unrealized, pair.TakeProfit)
		case pair.StopLoss > 0 && unrealized <= -pair.StopLoss:
			reason = fmt.Sprintf("stop loss: %.2f <= -%.2f", unrealized, pair.StopLoss)
		default:
			continue
		}

		e.log.Info("closing hedge on threshold",
			utils.HedgeID(hedge.ID),
			utils.PNL(unrealized),
			utils.Reason(reason),
		)
		if err := e.coord.CloseHedge(ctx, hedge.ID, pair, reason); err != nil {
			e.log.Error("threshold close failed",
				utils.HedgeID(hedge.ID),
				utils.Err(err),
			)
		}
	}
}

// ============================================================
// Управляющие операции
// ============================================================

// ClosePosition закрывает один хедж по запросу оператора
func (e *Engine) ClosePosition(ctx context.Context, hedgeID string) error {
	hedge, ok := e.coord.Hedge(hedgeID)
	if !ok {
		return fmt.Errorf("hedge %s not found", hedgeID)
	}
	pair, ok := e.pairs[hedge.PairID]
	if !ok {
		return fmt.Errorf("pair %s is not configured", hedge.PairID)
	}
	return e.coord.CloseHedge(ctx, hedgeID, pair, "manual close")
}

// CloseAll закрывает все открытые хеджи. Ошибки собираются, закрытие
// остальных хеджей продолжается.
func (e *Engine) CloseAll(ctx context.Context, reason string) error {
	var errs []error
	for _, hedge := range e.coord.OpenHedges() {
		pair, ok := e.pairs[hedge.PairID]
		if !ok {
			continue
		}
		if err := e.coord.CloseHedge(ctx, hedge.ID, pair, reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EmergencyStop включает глобальную остановку и закрывает все позиции
func (e *Engine) EmergencyStop(ctx context.Context, reason string) error {
	e.risk.SetEmergencyStop(true, reason, time.Now())
	return e.CloseAll(ctx, "emergency stop: "+reason)
}

// Status возвращает снимок состояния движка
func (e *Engine) Status() models.EngineStatus {
	now := time.Now()

	e.mu.Lock()
	lastTrade := e.lastTradeTime
	startedAt := e.startedAt
	e.mu.Unlock()

	activePairs := 0
	for _, p := range e.pairs {
		if p.Enabled {
			activePairs++
		}
	}

	status := models.EngineStatus{
		Running:        e.running.Load(),
		EmergencyStop:  e.risk.EmergencyStopActive(),
		ActiveHedges:   e.coord.ActiveCount(),
		TotalAccounts:  len(e.registry.Snapshot(now)),
		LockedAccounts: e.registry.LockedCount(),
		ActivePairs:    activePairs,
	}
	if !lastTrade.IsZero() {
		status.LastTradeTime = &lastTrade
	}
	if e.running.Load() {
		status.StartedAt = startedAt
		status.UptimeSeconds = now.Sub(startedAt).Seconds()
	}
	return status
}

// Pairs возвращает конфигурацию пар в порядке объявления
func (e *Engine) Pairs() []models.PairConfig {
	out := make([]models.PairConfig, 0, len(e.pairOrder))
	for _, id := range e.pairOrder {
		out = append(out, e.pairs[id])
	}
	return out
}

// Pair возвращает конфигурацию пары по ID
func (e *Engine) Pair(pairID string) (models.PairConfig, bool) {
	p, ok := e.pairs[pairID]
	return p, ok
}

// Hedges возвращает копии всех хеджей координатора
func (e *Engine) Hedges() []models.Hedge {
	return e.coord.Hedges()
}

// Hedge возвращает копию хеджа по ID
func (e *Engine) Hedge(hedgeID string) (models.Hedge, bool) {
	return e.coord.Hedge(hedgeID)
}

// OpenHedges возвращает копии открытых хеджей
func (e *Engine) OpenHedges() []models.Hedge {
	return e.coord.OpenHedges()
}

// Accounts возвращает снимок реестра аккаунтов
func (e *Engine) Accounts() []models.Account {
	return e.registry.Snapshot(time.Now())
}

// RiskEvents возвращает последние события из журнала риск-менеджера
func (e *Engine) RiskEvents(limit int) []models.RiskEvent {
	return e.risk.Events(limit)
}

// Cooldowns возвращает активные окна охлаждения
func (e *Engine) Cooldowns() []models.CooldownWindow {
	return e.cooldowns.Snapshot(time.Now())
}
