package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"hedger/internal/config"
	"hedger/internal/models"
	"hedger/pkg/utils"
)

// mocks_test.go - ручные моки внешних коллабораторов ядра

// fillDelay - задержка доставки уведомления после размещения ордера.
// Даёт координатору время зарегистрировать order_ref перед приходом fill.
const fillDelay = 20 * time.Millisecond

// mockExecutor - программируемый исполнитель ордеров
type mockExecutor struct {
	mu        sync.Mutex
	seq       int
	placed    []OrderRequest
	cancelled []string

	// respond возвращает уведомление для размещённого ордера.
	// nil = ордер остаётся без ответа (сценарий таймаута).
	respond func(req OrderRequest) *Fill

	// placeErr возвращает ошибку размещения (nil = ордер принят)
	placeErr func(req OrderRequest) error

	cancelErr error

	// deliver доставляет уведомления напрямую (обычно
	// Coordinator.HandleFill). nil = уведомления идут в канал Fills,
	// как при работе через насос движка.
	deliver func(Fill)

	fills chan Fill
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{fills: make(chan Fill, 32)}
}

func (m *mockExecutor) PlaceOrder(_ context.Context, req OrderRequest) (OrderAck, error) {
	m.mu.Lock()
	if m.placeErr != nil {
		if err := m.placeErr(req); err != nil {
			m.mu.Unlock()
			return OrderAck{}, err
		}
	}
	m.seq++
	ref := fmt.Sprintf("ord-%d", m.seq)
	m.placed = append(m.placed, req)
	respond := m.respond
	deliver := m.deliver
	m.mu.Unlock()

	ack := OrderAck{OrderRef: ref, PlacedAt: time.Now()}

	if respond != nil {
		if fill := respond(req); fill != nil {
			f := *fill
			f.OrderRef = ref
			if f.Timestamp.IsZero() {
				f.Timestamp = time.Now()
			}
			dispatch := deliver
			if dispatch == nil {
				dispatch = func(f Fill) { m.fills <- f }
			}
			time.AfterFunc(fillDelay, func() { dispatch(f) })
		}
	}
	return ack, nil
}

func (m *mockExecutor) CancelOrder(_ context.Context, _, orderRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, orderRef)
	return m.cancelErr
}

func (m *mockExecutor) Fills() <-chan Fill {
	return m.fills
}

// placedCount считает размещённые ордера по предикату
func (m *mockExecutor) placedCount(match func(OrderRequest) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, req := range m.placed {
		if match(req) {
			count++
		}
	}
	return count
}

func (m *mockExecutor) cancelledCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cancelled)
}

// mockMarket - источник рыночных снимков с фиксированным ответом
type mockMarket struct {
	mu   sync.Mutex
	snap MarketSnapshot
	err  error
}

func (m *mockMarket) Snapshot(_ context.Context, market string) (MarketSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return MarketSnapshot{}, m.err
	}
	snap := m.snap
	snap.Market = market
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}
	return snap, nil
}

func (m *mockMarket) set(snap MarketSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
	m.err = nil
}

func (m *mockMarket) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// goodSnapshot - рыночные условия, проходящие гейт (mid = 100)
func goodSnapshot() MarketSnapshot {
	return MarketSnapshot{
		Bid:           99.5,
		Ask:           100.5,
		VolatilityPct: 1.0,
		Liquidity:     1_000_000,
		Open:          true,
	}
}

// ============================================================
// Сборка тестового окружения
// ============================================================

func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "error", Format: "text"})
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		MonitoringInterval: 20 * time.Millisecond,
		RiskCheckInterval:  20 * time.Millisecond,
		OrderTimeout:       2 * time.Second,
		CloseTimeout:       500 * time.Millisecond,
		MaxUnwindRetries:   2,
	}
}

func testAccounts(n int) []models.Account {
	accounts := make([]models.Account, 0, n)
	for i := 0; i < n; i++ {
		accounts = append(accounts, models.Account{
			Address:          fmt.Sprintf("0xacc%d", i+1),
			Index:            i,
			AvailableBalance: 10_000,
		})
	}
	return accounts
}

func testPair(accounts ...string) models.PairConfig {
	return models.PairConfig{
		ID:               "eth_hedge",
		Name:             "ETH-USDT",
		Market:           "ETH-USD",
		BaseAmount:       1000,
		MaxPositions:     2,
		CooldownMinutes:  5,
		AccountAddresses: accounts,
		Enabled:          true,
		Conditions: models.MarketConditions{
			MaxSpreadPct:     2,
			MaxVolatilityPct: 5,
			MinLiquidity:     1000,
			MaxPriceAge:      time.Minute,
		},
	}
}

// testRig - полный комплект ядра с моками вместо биржи
type testRig struct {
	registry  *AccountRegistry
	risk      *RiskManager
	cooldowns *CooldownTracker
	exec      *mockExecutor
	market    *mockMarket
	coord     *Coordinator
	gate      *AdmissionGate
	cfg       config.EngineConfig
	log       *utils.Logger
}

func newTestRig(t *testing.T, accounts int, mutate func(*config.EngineConfig)) *testRig {
	t.Helper()

	log := testLogger()
	cfg := testEngineConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	registry := NewAccountRegistry(testAccounts(accounts), nil, log)
	risk := NewRiskManager(RiskLimits{}, registry, nil, log)
	cooldowns := NewCooldownTracker()
	exec := newMockExecutor()
	market := &mockMarket{snap: goodSnapshot()}

	coord := NewCoordinator(registry, risk, cooldowns, exec, market, cfg, log)
	exec.deliver = coord.HandleFill

	gate := NewAdmissionGate(coord, registry, risk, cooldowns, market, cfg.OrderTimeout, log)

	return &testRig{
		registry:  registry,
		risk:      risk,
		cooldowns: cooldowns,
		exec:      exec,
		market:    market,
		coord:     coord,
		gate:      gate,
		cfg:       cfg,
		log:       log,
	}
}

// fillAt отвечает заполнением по указанной цене на любой ордер
func fillAt(price float64) func(OrderRequest) *Fill {
	return func(req OrderRequest) *Fill {
		return &Fill{Status: FillStatusFilled, Price: price, Size: req.Size}
	}
}

// updatesLog собирает трансляции изменений и уведомления координатора
type updatesLog struct {
	mu            sync.Mutex
	updates       []models.Hedge
	notifications []models.Notification
}

func (l *updatesLog) update(h models.Hedge) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, h)
}

func (l *updatesLog) notify(n models.Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notifications = append(l.notifications, n)
}

func (l *updatesLog) updateCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.updates)
}

func (l *updatesLog) notificationsOfType(typ string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for _, n := range l.notifications {
		if n.Type == typ {
			count++
		}
	}
	return count
}

// waitFor опрашивает условие до истечения таймаута
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
