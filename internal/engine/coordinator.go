package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"hedger/internal/config"
	"hedger/internal/models"
	"hedger/pkg/retry"
	"hedger/pkg/utils"
)

// coordinator.go - координатор хедж-позиций
//
// Координатор владеет всеми хеджами, ведёт индекс order_ref -> нога для
// корреляции асинхронных уведомлений и выполняет протоколы открытия,
// закрытия и разворота. Центральный инвариант: хедж никогда не остаётся
// с односторонней экспозицией в терминальном состоянии - при частичном
// сбое заполненные ноги разворачиваются, а неуправляемая экспозиция
// блокирует аккаунт.

// legRef указывает на ногу внутри хеджа
type legRef struct {
	hedgeID string
	legIdx  int
}

// Coordinator управляет жизненным циклом хеджей
type Coordinator struct {
	mu          sync.Mutex
	hedges      map[string]*models.Hedge
	byOrderRef  map[string]legRef
	waiters     map[string]chan Fill // ожидающие заполнения по order_ref
	sideCounter map[string]int64     // счётчик ротации сторон по паре

	hedgeSeq atomic.Int64

	registry  *AccountRegistry
	risk      *RiskManager
	cooldowns *CooldownTracker
	executor  OrderExecutor
	market    MarketDataProvider
	cfg       config.EngineConfig
	log       *utils.Logger

	// onUpdate вызывается после каждого изменения хеджа (для WebSocket
	// трансляции); onNotify - для уведомлений оператору. Оба опциональны.
	onUpdate func(models.Hedge)
	onNotify func(models.Notification)
}

// NewCoordinator создаёт координатор
func NewCoordinator(
	registry *AccountRegistry,
	risk *RiskManager,
	cooldowns *CooldownTracker,
	executor OrderExecutor,
	market MarketDataProvider,
	cfg config.EngineConfig,
	log *utils.Logger,
) *Coordinator {
	return &Coordinator{
		hedges:      make(map[string]*models.Hedge),
		byOrderRef:  make(map[string]legRef),
		waiters:     make(map[string]chan Fill),
		sideCounter: make(map[string]int64),
		registry:    registry,
		risk:        risk,
		cooldowns:   cooldowns,
		executor:    executor,
		market:      market,
		cfg:         cfg,
		log:         log.WithComponent("coordinator"),
	}
}

// SetUpdateCallback задаёт обработчик изменений хеджей
func (c *Coordinator) SetUpdateCallback(fn func(models.Hedge)) {
	c.onUpdate = fn
}

// SetNotifyCallback задаёт обработчик уведомлений
func (c *Coordinator) SetNotifyCallback(fn func(models.Notification)) {
	c.onNotify = fn
}

// ============================================================
// hedgeLedger (взгляд гейта)
// ============================================================

// HasOpeningHedge сообщает о хедже пары в состоянии OPENING
func (c *Coordinator) HasOpeningHedge(pairID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, h := range c.hedges {
		if h.PairID == pairID && h.State == models.HedgeOpening {
			return true
		}
	}
	return false
}

// PendingOrderCount считает непогашенные ордера пары не старше timeout
func (c *Coordinator) PendingOrderCount(pairID string, now time.Time, timeout time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, h := range c.hedges {
		if h.PairID != pairID || h.IsTerminal() {
			continue
		}
		for i := range h.Legs {
			leg := &h.Legs[i]
			if leg.OrderRef == "" || leg.FillState != models.LegPending {
				continue
			}
			if timeout > 0 && now.Sub(leg.PlacedAt) > timeout {
				continue // протухший ордер разбирает сканер таймаутов
			}
			count++
		}
	}
	return count
}

// InFlightCount считает хеджи пары в состояниях OPENING/OPEN/CLOSING
func (c *Coordinator) InFlightCount(pairID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, h := range c.hedges {
		if h.PairID == pairID && h.IsInFlight() {
			count++
		}
	}
	return count
}

// ============================================================
// Открытие хеджа
// ============================================================

// OpenHedge выполняет полный протокол открытия: резервирование
// аккаунтов, размещение обеих ног, ожидание заполнения и сверку.
//
// Вызывается движком ПОСЛЕ положительного решения гейта. Возвращает
// открытый хедж либо ошибку; при частичном сбое разворот выполняется
// внутри и хедж завершается в состоянии FAILED.
func (c *Coordinator) OpenHedge(ctx context.Context, pair models.PairConfig, now time.Time) (*models.Hedge, error) {
	hedgeID := fmt.Sprintf("hedge-%s-%d", pair.ID, c.hedgeSeq.Add(1))
	log := c.log.WithHedge(hedgeID)

	// Атомарное эксклюзивное резервирование аккаунтов
	accounts, err := c.registry.Reserve(hedgeID, pair.AccountAddresses, models.RequiredAccounts, pair.BaseAmount, now)
	if err != nil {
		return nil, err
	}

	// Размер ноги: базовая сумма в USDT по текущей средней цене
	snap, err := c.market.Snapshot(ctx, pair.Market)
	if err != nil {
		c.registry.Release(hedgeID, accounts)
		return nil, fmt.Errorf("market snapshot for sizing: %w", err)
	}
	mid := utils.MidPrice(snap.Bid, snap.Ask)
	if mid <= 0 {
		c.registry.Release(hedgeID, accounts)
		return nil, fmt.Errorf("market %s has no usable mid price", pair.Market)
	}

	notional := pair.BaseAmount
	if pair.MaxPositionSize > 0 && notional > pair.MaxPositionSize {
		notional = pair.MaxPositionSize
	}
	size := notional / mid

	hedge := c.newHedge(hedgeID, pair, accounts, size, now)

	if err := c.transition(hedge, models.HedgeOpening); err != nil {
		c.registry.Release(hedgeID, accounts)
		return nil, err
	}

	log.Info("opening hedge",
		utils.Pair(pair.ID),
		utils.Size(size),
		utils.String("long_account", longAccount(hedge)),
		utils.String("short_account", shortAccount(hedge)),
	)

	// Обе ноги размещаются параллельно: одновременность минимизирует
	// окно односторонней экспозиции
	placed := c.placeLegs(ctx, hedge, pair.Market, false)

	// Ожидание заполнения размещённых ног
	var waitErr error
	if placed == nil {
		waitErr = c.awaitFills(ctx, hedge, c.cfg.OrderTimeout)
	} else {
		waitErr = placed
	}

	if waitErr == nil && c.allFilled(hedge) {
		return hedge, c.completeOpen(hedge, pair, time.Now())
	}

	// Частичный сбой: сверка и разворот
	c.reconcile(ctx, hedge, pair, waitErr)
	return hedge, waitErr
}

// newHedge создаёт хедж в состоянии PENDING с ротацией сторон.
//
// Направления чередуются между открытиями: аккаунт, бывший long в
// прошлом хедже пары, в следующем становится short. Ротация выравнивает
// funding и износ аккаунтов.
func (c *Coordinator) newHedge(hedgeID string, pair models.PairConfig, accounts []string, size float64, now time.Time) *models.Hedge {
	c.mu.Lock()
	defer c.mu.Unlock()

	turn := c.sideCounter[pair.ID]
	c.sideCounter[pair.ID] = turn + 1

	sides := []string{models.SideLong, models.SideShort}
	if turn%2 == 1 {
		sides[0], sides[1] = sides[1], sides[0]
	}

	hedge := &models.Hedge{
		ID:        hedgeID,
		PairID:    pair.ID,
		State:     models.HedgePending,
		CreatedAt: now,
		UpdatedAt: now,
		Legs: []models.Leg{
			{Account: accounts[0], Side: sides[0], Size: size, FillState: models.LegPending},
			{Account: accounts[1], Side: sides[1], Size: size, FillState: models.LegPending},
		},
	}

	c.hedges[hedgeID] = hedge
	return hedge
}

// placeLegs размещает все незаполненные ноги хеджа параллельно.
// reduceOnly = true для закрытия/разворота.
func (c *Coordinator) placeLegs(ctx context.Context, hedge *models.Hedge, market string, reduceOnly bool) error {
	type result struct {
		legIdx int
		ack    OrderAck
		err    error
	}

	c.mu.Lock()
	var pending []int
	for i := range hedge.Legs {
		if hedge.Legs[i].FillState == models.LegPending && hedge.Legs[i].OrderRef == "" {
			pending = append(pending, i)
		}
	}
	c.mu.Unlock()

	results := make(chan result, len(pending))
	for _, idx := range pending {
		go func(idx int) {
			c.mu.Lock()
			leg := hedge.Legs[idx]
			c.mu.Unlock()

			side := leg.Side
			if reduceOnly {
				side = oppositeSide(side)
			}

			ack, err := c.executor.PlaceOrder(ctx, OrderRequest{
				Account:    leg.Account,
				Market:     market,
				Side:       side,
				Size:       leg.Size,
				ReduceOnly: reduceOnly,
			})
			results <- result{legIdx: idx, ack: ack, err: err}
		}(idx)
	}

	var firstErr error
	for range pending {
		res := <-results
		if res.err != nil {
			c.mu.Lock()
			hedge.Legs[res.legIdx].FillState = models.LegRejected
			hedge.UpdatedAt = time.Now()
			c.mu.Unlock()

			if firstErr == nil {
				firstErr = &OrderRejectedError{
					Account: hedge.Legs[res.legIdx].Account,
					Reason:  res.err.Error(),
				}
			}
			continue
		}

		c.mu.Lock()
		leg := &hedge.Legs[res.legIdx]
		leg.OrderRef = res.ack.OrderRef
		leg.PlacedAt = res.ack.PlacedAt
		if leg.PlacedAt.IsZero() {
			leg.PlacedAt = time.Now()
		}
		c.byOrderRef[res.ack.OrderRef] = legRef{hedgeID: hedge.ID, legIdx: res.legIdx}
		c.waiters[res.ack.OrderRef] = make(chan Fill, 1)
		hedge.UpdatedAt = time.Now()
		c.mu.Unlock()
	}

	c.broadcast(hedge)
	return firstErr
}

// awaitFills ждёт результата всех размещённых ног хеджа
func (c *Coordinator) awaitFills(ctx context.Context, hedge *models.Hedge, timeout time.Duration) error {
	c.mu.Lock()
	type wait struct {
		ref     string
		account string
		ch      chan Fill
	}
	var waits []wait
	for i := range hedge.Legs {
		leg := &hedge.Legs[i]
		if leg.FillState == models.LegPending && leg.OrderRef != "" {
			if ch, ok := c.waiters[leg.OrderRef]; ok {
				waits = append(waits, wait{ref: leg.OrderRef, account: leg.Account, ch: ch})
			}
		}
	}
	c.mu.Unlock()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var firstErr error
	for _, w := range waits {
		select {
		case fill := <-w.ch:
			if fill.Status != FillStatusFilled && firstErr == nil {
				firstErr = &OrderRejectedError{
					OrderRef: w.ref,
					Account:  w.account,
					Reason:   fill.Reason,
				}
			}
		case <-deadline.C:
			if firstErr == nil {
				firstErr = &OrderTimeoutError{OrderRef: w.ref, Account: w.account, Waited: timeout}
			}
			return firstErr
		case <-ctx.Done():
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			return firstErr
		}
	}
	return firstErr
}

// allFilled проверяет заполнение всех ног под mu
func (c *Coordinator) allFilled(hedge *models.Hedge) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return hedge.AllLegsFilled()
}

// completeOpen финализирует успешное открытие
func (c *Coordinator) completeOpen(hedge *models.Hedge, pair models.PairConfig, now time.Time) error {
	if err := c.transition(hedge, models.HedgeOpen); err != nil {
		return err
	}

	c.mu.Lock()
	hedge.OpenedAt = now
	hedge.UpdatedAt = now
	accounts := legAccounts(hedge)
	c.mu.Unlock()

	for _, acc := range accounts {
		c.registry.RecordTrade(acc, now)
	}
	// Резерв снимается: открытая позиция не мешает аккаунту участвовать
	// в следующем хедже, пригодность дальше ограничивает баланс
	c.registry.Release(hedge.ID, accounts)

	metricHedgesOpened.WithLabelValues(pair.ID).Inc()
	metricActiveHedges.WithLabelValues(pair.ID).Set(float64(c.InFlightCount(pair.ID)))

	c.log.Info("hedge open",
		utils.HedgeID(hedge.ID),
		utils.Pair(pair.ID),
	)
	c.notify(models.Notification{
		Type:     models.NotificationTypeOpen,
		Severity: models.SeverityInfo,
		Message:  fmt.Sprintf("hedge %s opened on %s", hedge.ID, pair.Name),
		PairID:   pair.ID,
		HedgeID:  hedge.ID,
		Timestamp: now,
	})
	c.broadcast(hedge)
	return nil
}

// ============================================================
// Сверка и разворот при частичном сбое
// ============================================================

// reconcile приводит частично открытый хедж к безопасному состоянию:
// незаполненные ордера снимаются, заполненные ноги разворачиваются.
// Любой исход завершает хедж в FAILED; неудачный разворот дополнительно
// блокирует аккаунт и выпускает risk event.
func (c *Coordinator) reconcile(ctx context.Context, hedge *models.Hedge, pair models.PairConfig, cause error) {
	now := time.Now()
	log := c.log.WithHedge(hedge.ID)
	log.Warn("reconciling partially opened hedge", utils.Err(cause))

	// Снимаем ордера, которые ещё могут заполниться
	c.cancelPending(ctx, hedge)

	// Разворачиваем заполненные ноги
	c.mu.Lock()
	var filled []int
	for i := range hedge.Legs {
		if hedge.Legs[i].FillState == models.LegFilled {
			filled = append(filled, i)
		}
	}
	failCause := ""
	if cause != nil {
		failCause = cause.Error()
	}
	hedge.FailCause = failCause
	c.mu.Unlock()

	unwindFailed := false
	for _, idx := range filled {
		if err := c.unwindLeg(ctx, hedge, pair, idx); err != nil {
			unwindFailed = true

			c.mu.Lock()
			account := hedge.Legs[idx].Account
			c.mu.Unlock()

			metricUnwindFailures.Inc()
			c.risk.ReportUnwindFailure(hedge.ID, pair.ID, account, err, time.Now())
			c.notify(models.Notification{
				Type:     models.NotificationTypeError,
				Severity: models.SeverityError,
				Message:  fmt.Sprintf("UNMANAGED EXPOSURE: failed to unwind %s leg on %s", hedge.ID, account),
				PairID:   pair.ID,
				HedgeID:  hedge.ID,
				Timestamp: time.Now(),
			})
		}
	}

	if err := c.transition(hedge, models.HedgeFailed); err != nil {
		log.Error("failed hedge could not reach FAILED state", utils.Err(err))
	}

	c.mu.Lock()
	closedAt := time.Now()
	hedge.ClosedAt = &closedAt
	hedge.UpdatedAt = closedAt
	accounts := legAccounts(hedge)
	c.dropOrderRefs(hedge)
	c.mu.Unlock()

	c.registry.Release(hedge.ID, accounts)

	// Пауза после сбоя: пара не пытается открыться немедленно снова
	c.cooldowns.Start(pair.ID, time.Duration(pair.CooldownMinutes)*time.Minute, "hedge open failed", now)

	metricHedgesFailed.WithLabelValues(pair.ID).Inc()
	metricActiveHedges.WithLabelValues(pair.ID).Set(float64(c.InFlightCount(pair.ID)))
	metricLockedAccounts.Set(float64(c.registry.LockedCount()))

	if !unwindFailed {
		c.notify(models.Notification{
			Type:     models.NotificationTypeUnwind,
			Severity: models.SeverityWarn,
			Message:  fmt.Sprintf("hedge %s failed to open and was unwound: %s", hedge.ID, failCause),
			PairID:   pair.ID,
			HedgeID:  hedge.ID,
			Timestamp: time.Now(),
		})
	}
	c.broadcast(hedge)
}

// cancelPending снимает незаполненные ордера хеджа
func (c *Coordinator) cancelPending(ctx context.Context, hedge *models.Hedge) {
	c.mu.Lock()
	type target struct {
		ref     string
		account string
		legIdx  int
	}
	var targets []target
	for i := range hedge.Legs {
		leg := &hedge.Legs[i]
		if leg.FillState == models.LegPending && leg.OrderRef != "" {
			targets = append(targets, target{ref: leg.OrderRef, account: leg.Account, legIdx: i})
		}
	}
	c.mu.Unlock()

	for _, t := range targets {
		if err := c.executor.CancelOrder(ctx, t.account, t.ref); err != nil {
			// Отказ cancel обычно означает, что ордер уже исполнился.
			// Ждём финальный статус, чтобы заполненная нога попала в
			// разворот, а не потерялась как отменённая.
			c.log.Warn("order cancel failed, awaiting final status",
				utils.HedgeID(hedge.ID),
				utils.OrderRef(t.ref),
				utils.Err(err),
			)
			c.awaitFinalStatus(ctx, t.ref)
		}

		c.mu.Lock()
		leg := &hedge.Legs[t.legIdx]
		// Если fill успел прийти, нога остаётся filled и уйдёт в разворот
		if leg.FillState == models.LegPending {
			leg.FillState = models.LegCancelled
			hedge.UpdatedAt = time.Now()
		}
		c.mu.Unlock()
	}
}

// awaitFinalStatus ждёт финального уведомления по ордеру после
// неудачного cancel. HandleFill применит статус к ноге сам.
func (c *Coordinator) awaitFinalStatus(ctx context.Context, orderRef string) {
	c.mu.Lock()
	ch, ok := c.waiters[orderRef]
	c.mu.Unlock()
	if !ok {
		return
	}

	timer := time.NewTimer(c.cfg.CloseTimeout)
	defer timer.Stop()

	select {
	case <-ch:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// unwindLeg закрывает одну заполненную ногу встречным reduce-only
// ордером. Попытки ограничены MaxUnwindRetries; каждая попытка
// размещает ордер и ждёт заполнения, снимая его при таймауте.
func (c *Coordinator) unwindLeg(ctx context.Context, hedge *models.Hedge, pair models.PairConfig, legIdx int) error {
	c.mu.Lock()
	leg := hedge.Legs[legIdx]
	c.mu.Unlock()

	log := c.log.WithHedge(hedge.ID).WithAccount(leg.Account)

	cfg := retry.AggressiveConfig()
	cfg.MaxRetries = c.cfg.MaxUnwindRetries
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		metricUnwindRetries.Inc()
		log.Warn("unwind retry",
			utils.Int("attempt", attempt),
			utils.Err(err),
		)
	}

	fill, err := retry.DoWithResult(ctx, func() (Fill, error) {
		return c.executeReduceOnly(ctx, leg, pair.Market)
	}, cfg)
	if err != nil {
		return &UnwindFailedError{HedgeID: hedge.ID, Account: leg.Account, Err: err}
	}

	// Реализованный PNL разворота учитывается лимитами
	pnl := utils.CalculatePNL(leg.Side, leg.EntryPrice, fill.Price, leg.FilledSize)
	c.settlePnL(pair.ID, leg.Account, pnl, time.Now())

	log.Info("leg unwound",
		utils.Side(leg.Side),
		utils.Price(fill.Price),
		utils.PNL(pnl),
	)
	return nil
}

// executeReduceOnly размещает встречный ордер для одной ноги и ждёт
// его заполнения. Одна попытка протокола разворота/закрытия.
func (c *Coordinator) executeReduceOnly(ctx context.Context, leg models.Leg, market string) (Fill, error) {
	size := leg.FilledSize
	if size <= 0 {
		size = leg.Size
	}

	ack, err := c.executor.PlaceOrder(ctx, OrderRequest{
		Account:    leg.Account,
		Market:     market,
		Side:       oppositeSide(leg.Side),
		Size:       size,
		ReduceOnly: true,
	})
	if err != nil {
		return Fill{}, err
	}

	ch := make(chan Fill, 1)
	c.mu.Lock()
	c.waiters[ack.OrderRef] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.waiters, ack.OrderRef)
		c.mu.Unlock()
	}()

	timer := time.NewTimer(c.cfg.CloseTimeout)
	defer timer.Stop()

	select {
	case fill := <-ch:
		if fill.Status != FillStatusFilled {
			return Fill{}, &OrderRejectedError{OrderRef: ack.OrderRef, Account: leg.Account, Reason: fill.Reason}
		}
		return fill, nil
	case <-timer.C:
		// Снимаем зависший ордер перед следующей попыткой
		if cancelErr := c.executor.CancelOrder(ctx, leg.Account, ack.OrderRef); cancelErr != nil {
			c.log.Warn("cancel of stale reduce-only order failed",
				utils.OrderRef(ack.OrderRef),
				utils.Err(cancelErr),
			)
		}
		return Fill{}, &OrderTimeoutError{OrderRef: ack.OrderRef, Account: leg.Account, Waited: c.cfg.CloseTimeout}
	case <-ctx.Done():
		return Fill{}, ctx.Err()
	}
}

// ============================================================
// Закрытие хеджа
// ============================================================

// CloseHedge закрывает открытый хедж: обе ноги закрываются встречными
// reduce-only ордерами, PNL фиксируется, пара уходит в паузу.
func (c *Coordinator) CloseHedge(ctx context.Context, hedgeID string, pair models.PairConfig, reason string) error {
	c.mu.Lock()
	hedge, ok := c.hedges[hedgeID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("hedge %s not found", hedgeID)
	}

	if err := c.transition(hedge, models.HedgeClosing); err != nil {
		return err
	}
	c.broadcast(hedge)

	log := c.log.WithHedge(hedgeID)
	log.Info("closing hedge", utils.Reason(reason))

	c.mu.Lock()
	legs := append([]models.Leg(nil), hedge.Legs...)
	c.mu.Unlock()

	var totalPnl float64
	var closeErr error

	for i, leg := range legs {
		if leg.FillState != models.LegFilled {
			continue
		}

		cfg := retry.AggressiveConfig()
		cfg.MaxRetries = c.cfg.MaxUnwindRetries
		cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
			metricUnwindRetries.Inc()
			log.Warn("close retry", utils.Int("attempt", attempt), utils.Err(err))
		}

		fill, err := retry.DoWithResult(ctx, func() (Fill, error) {
			return c.executeReduceOnly(ctx, leg, pair.Market)
		}, cfg)
		if err != nil {
			closeErr = &UnwindFailedError{HedgeID: hedgeID, Account: leg.Account, Err: err}
			metricUnwindFailures.Inc()
			c.risk.ReportUnwindFailure(hedgeID, pair.ID, leg.Account, err, time.Now())
			continue
		}

		pnl := utils.CalculatePNL(leg.Side, leg.EntryPrice, fill.Price, leg.FilledSize)
		totalPnl += pnl
		c.settlePnL(pair.ID, leg.Account, pnl, time.Now())

		c.mu.Lock()
		hedge.Legs[i].CurrentPrice = fill.Price
		hedge.Legs[i].UnrealizedPnl = 0
		c.mu.Unlock()
	}

	now := time.Now()
	finalState := models.HedgeClosed
	result := "closed"
	if closeErr != nil {
		finalState = models.HedgeFailed
		result = "failed"
	}

	if err := c.transition(hedge, finalState); err != nil {
		log.Error("close could not finalize state", utils.Err(err))
	}

	c.mu.Lock()
	hedge.TotalPnl = totalPnl
	hedge.ClosedAt = &now
	hedge.UpdatedAt = now
	if closeErr != nil && hedge.FailCause == "" {
		hedge.FailCause = closeErr.Error()
	}
	c.dropOrderRefs(hedge)
	c.mu.Unlock()

	c.cooldowns.Start(pair.ID, time.Duration(pair.CooldownMinutes)*time.Minute, "hedge closed", now)

	metricHedgesClosed.WithLabelValues(pair.ID, result).Inc()
	metricActiveHedges.WithLabelValues(pair.ID).Set(float64(c.InFlightCount(pair.ID)))
	metricLockedAccounts.Set(float64(c.registry.LockedCount()))
	observeRealizedPnl(pair.ID, totalPnl)

	log.Info("hedge closed",
		utils.PNL(totalPnl),
		utils.State(finalState),
	)
	c.notify(models.Notification{
		Type:     models.NotificationTypeClose,
		Severity: models.SeverityInfo,
		Message:  fmt.Sprintf("hedge %s closed (%s), pnl %.2f", hedgeID, reason, totalPnl),
		PairID:   pair.ID,
		HedgeID:  hedgeID,
		Timestamp: now,
	})
	c.broadcast(hedge)
	return closeErr
}

// settlePnL фиксирует реализованный PNL в риск-менеджере и реестре
func (c *Coordinator) settlePnL(pairID, account string, pnl float64, now time.Time) {
	c.registry.SettlePnL(account, pnl, now)
	halts := c.risk.RecordPnL(pairID, account, pnl, now)
	if ev := c.risk.CheckBalance(account, now); ev != nil {
		halts = append(halts, *ev)
	}
	for _, ev := range halts {
		metricRiskEvents.WithLabelValues(ev.Level, ev.Action).Inc()
	}
}

// ============================================================
// Обработка асинхронных уведомлений
// ============================================================

// HandleFill принимает уведомление о результате ордера.
//
// Уведомления коррелируются по order_ref и могут приходить в любом
// порядке. Неизвестный order_ref (ордер разворота, чей waiter уже снят,
// либо дубликат) логируется и игнорируется.
func (c *Coordinator) HandleFill(fill Fill) {
	c.mu.Lock()

	// Сначала ожидающие: ордера закрытия/разворота живут только в waiters
	if ch, ok := c.waiters[fill.OrderRef]; ok {
		select {
		case ch <- fill:
		default:
		}
	}

	ref, ok := c.byOrderRef[fill.OrderRef]
	if !ok {
		c.mu.Unlock()
		c.log.Debug("fill for unknown order ref", utils.OrderRef(fill.OrderRef))
		return
	}

	hedge, ok := c.hedges[ref.hedgeID]
	if !ok || ref.legIdx >= len(hedge.Legs) {
		c.mu.Unlock()
		return
	}

	leg := &hedge.Legs[ref.legIdx]
	if leg.FillState != models.LegPending {
		// Дубликат или гонка с cancel
		c.mu.Unlock()
		return
	}

	switch fill.Status {
	case FillStatusFilled:
		leg.FillState = models.LegFilled
		leg.EntryPrice = fill.Price
		leg.FilledSize = fill.Size
		leg.CurrentPrice = fill.Price
		if !leg.PlacedAt.IsZero() {
			metricLegFillLatency.Observe(fill.Timestamp.Sub(leg.PlacedAt).Seconds())
		}
	case FillStatusRejected:
		leg.FillState = models.LegRejected
	case FillStatusCancelled:
		leg.FillState = models.LegCancelled
	default:
		c.mu.Unlock()
		c.log.Warn("fill with unknown status",
			utils.OrderRef(fill.OrderRef),
			utils.String("status", fill.Status),
		)
		return
	}
	hedge.UpdatedAt = time.Now()
	snapshot := *hedge
	c.mu.Unlock()

	c.broadcast(&snapshot)
}

// ScanTimeouts - страховочный проход по зависшим состояниям.
//
// Протокол открытия ждёт заполнения синхронно, поэтому в норме здесь
// пусто. Сканер подбирает хеджи, осиротевшие из-за сбоя процесса ожидания
// (например, отмена контекста), и отправляет их на сверку.
func (c *Coordinator) ScanTimeouts(ctx context.Context, pairs map[string]models.PairConfig, now time.Time) {
	c.mu.Lock()
	var stale []*models.Hedge
	for _, h := range c.hedges {
		if h.State != models.HedgeOpening {
			continue
		}
		// Хедж в OPENING дольше двух таймаутов ордера осиротел
		if now.Sub(h.UpdatedAt) > 2*c.cfg.OrderTimeout {
			stale = append(stale, h)
		}
	}
	c.mu.Unlock()

	for _, h := range stale {
		pair, ok := pairs[h.PairID]
		if !ok {
			continue
		}
		c.log.Warn("orphaned opening hedge, forcing reconciliation", utils.HedgeID(h.ID))
		c.reconcile(ctx, h, pair, &OrderTimeoutError{Waited: 2 * c.cfg.OrderTimeout})
	}
}

// ============================================================
// Доступ для status API
// ============================================================

// Hedge возвращает копию хеджа по ID
func (c *Coordinator) Hedge(hedgeID string) (models.Hedge, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.hedges[hedgeID]
	if !ok {
		return models.Hedge{}, false
	}
	return snapshotHedge(h), true
}

// Hedges возвращает копии всех хеджей, отсортированные по времени создания
func (c *Coordinator) Hedges() []models.Hedge {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.Hedge, 0, len(c.hedges))
	for _, h := range c.hedges {
		out = append(out, snapshotHedge(h))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// OpenHedges возвращает хеджи в состоянии OPEN
func (c *Coordinator) OpenHedges() []models.Hedge {
	var open []models.Hedge
	for _, h := range c.Hedges() {
		if h.State == models.HedgeOpen {
			open = append(open, h)
		}
	}
	return open
}

// ActiveCount возвращает количество незавершённых хеджей
func (c *Coordinator) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, h := range c.hedges {
		if h.IsInFlight() {
			count++
		}
	}
	return count
}

// ============================================================
// Вспомогательные функции
// ============================================================

// transition выполняет переход состояния и обновляет UpdatedAt
func (c *Coordinator) transition(hedge *models.Hedge, to string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !CanTransition(hedge.State, to) {
		return &TransitionError{HedgeID: hedge.ID, From: hedge.State, To: to}
	}
	hedge.State = to
	hedge.UpdatedAt = time.Now()
	return nil
}

func (c *Coordinator) broadcast(hedge *models.Hedge) {
	if c.onUpdate == nil {
		return
	}
	c.mu.Lock()
	snapshot := snapshotHedge(hedge)
	c.mu.Unlock()
	c.onUpdate(snapshot)
}

// snapshotHedge снимает глубокую копию: ноги живого хеджа мутируют под
// мьютексом, поэтому срез обязан быть отвязан от исходного. Вызывать
// только под c.mu.
func snapshotHedge(h *models.Hedge) models.Hedge {
	snapshot := *h
	snapshot.Legs = append([]models.Leg(nil), h.Legs...)
	return snapshot
}

// dropOrderRefs снимает корреляцию ордеров завершённого хеджа: поздние
// дубликаты уведомлений по этим order_ref игнорируются в HandleFill.
// Вызывать только под c.mu.
func (c *Coordinator) dropOrderRefs(hedge *models.Hedge) {
	for i := range hedge.Legs {
		ref := hedge.Legs[i].OrderRef
		if ref == "" {
			continue
		}
		delete(c.byOrderRef, ref)
		delete(c.waiters, ref)
	}
}

func (c *Coordinator) notify(n models.Notification) {
	if c.onNotify != nil {
		c.onNotify(n)
	}
}

func oppositeSide(side string) string {
	if side == models.SideLong {
		return models.SideShort
	}
	return models.SideLong
}

func legAccounts(hedge *models.Hedge) []string {
	accounts := make([]string, 0, len(hedge.Legs))
	for i := range hedge.Legs {
		accounts = append(accounts, hedge.Legs[i].Account)
	}
	return accounts
}

func longAccount(hedge *models.Hedge) string {
	for i := range hedge.Legs {
		if hedge.Legs[i].Side == models.SideLong {
			return hedge.Legs[i].Account
		}
	}
	return ""
}

func shortAccount(hedge *models.Hedge) string {
	for i := range hedge.Legs {
		if hedge.Legs[i].Side == models.SideShort {
			return hedge.Legs[i].Account
		}
	}
	return ""
}
