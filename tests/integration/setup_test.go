//go:build integration

// Package integration contains integration tests for the hedge engine.
//
// The tests assemble a full stack — paper exchange, admission gate,
// coordinator, engine, audit, HTTP API and WebSocket hub — and drive it
// through the public API the way an operator dashboard would.
//
// Run with: go test -tags=integration ./tests/integration/...
//
// Database tests additionally need a reachable PostgreSQL instance
// (TEST_DB_* environment variables) and skip themselves otherwise.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"hedger/internal/api"
	"hedger/internal/config"
	"hedger/internal/engine"
	"hedger/internal/exchange"
	"hedger/internal/models"
	"hedger/internal/service"
	"hedger/internal/websocket"
	"hedger/pkg/utils"
)

const (
	accountA = "0xa11ce0000000000000000000000000000000aaaa"
	accountB = "0xb0b00000000000000000000000000000000bbbb"
)

func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "error", Format: "text"})
}

// testPair возвращает пару без рыночных порогов и без TP/SL: хедж
// открывается на первом же тике и живёт до ручного закрытия
func testPair() models.PairConfig {
	return models.PairConfig{
		ID:               "eth_hedge_1",
		Name:             "ETH-USDT",
		Market:           "ETH-USD",
		BaseAmount:       100,
		MaxPositions:     1,
		CooldownMinutes:  0,
		AccountAddresses: []string{accountA, accountB},
		Enabled:          true,
	}
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		MonitoringInterval: 20 * time.Millisecond,
		RiskCheckInterval:  25 * time.Millisecond,
		OrderTimeout:       2 * time.Second,
		CloseTimeout:       2 * time.Second,
		MaxUnwindRetries:   2,
		GlobalMaxDailyLoss: 1_000_000,
	}
}

// TestStack - полный стек под httptest-сервером
type TestStack struct {
	Paper   *exchange.PaperClient
	Engine  *engine.Engine
	Hub     *websocket.Hub
	Server  *httptest.Server
	Stores  *memoryStores
	Control *service.ControlService

	cancel  context.CancelFunc
	cleanup func()
}

// SetupTestStack собирает стек с бумажной биржей и in-memory журналами.
// Движок НЕ запущен: тест стартует его сам через API или Control.
func SetupTestStack(t *testing.T, paperCfg exchange.PaperConfig) *TestStack {
	t.Helper()

	log := testLogger()
	paper := exchange.NewPaperClient(paperCfg, log)
	stores := newMemoryStores()

	hub := websocket.NewHub(log)
	go hub.Run()

	audit := service.NewAuditService(stores.hedges, stores.events, stores.notifs, stores.stats, hub, log)

	accounts := []models.Account{
		{Address: accountA, Index: 1, AvailableBalance: 10_000},
		{Address: accountB, Index: 2, AvailableBalance: 10_000},
	}
	maxTrades := map[string]int{accountA: 100, accountB: 100}

	cfg := testEngineConfig()
	registry := engine.NewAccountRegistry(accounts, maxTrades, log)
	risk := engine.NewRiskManager(engine.RiskLimits{
		GlobalMaxDailyLoss:  cfg.GlobalMaxDailyLoss,
		AccountMaxDailyLoss: 1_000_000,
	}, registry, audit.RiskSink(), log)
	cooldowns := engine.NewCooldownTracker()

	coord := engine.NewCoordinator(registry, risk, cooldowns, paper, paper, cfg, log)
	coord.SetUpdateCallback(audit.HandleHedgeUpdate)
	coord.SetNotifyCallback(audit.HandleNotification)

	gate := engine.NewAdmissionGate(coord, registry, risk, cooldowns, paper, cfg.OrderTimeout, log)
	eng := engine.NewEngine(cfg, []models.PairConfig{testPair()}, gate, coord, registry, risk, cooldowns, paper, paper, log)

	statusSvc := service.NewStatusService(eng, stores.hedges, stores.events, stores.notifs, stores.stats)
	controlSvc := service.NewControlService(eng, log)
	controlSvc.SetNotifyCallback(audit.HandleNotification)

	ctx, cancel := context.WithCancel(context.Background())
	go audit.Run(ctx)

	router := api.SetupRoutes(&api.Dependencies{
		Status:  statusSvc,
		Control: controlSvc,
		Hub:     hub,
		Log:     log,
	})
	server := httptest.NewServer(router)

	stack := &TestStack{
		Paper:   paper,
		Engine:  eng,
		Hub:     hub,
		Server:  server,
		Stores:  stores,
		Control: controlSvc,
		cancel:  cancel,
	}
	stack.cleanup = func() {
		eng.Stop() // ErrNotRunning безопасен при уже остановленном движке
		server.Close()
		paper.Close()
		cancel()
		audit.Wait()
	}
	t.Cleanup(stack.cleanup)
	return stack
}

// waitFor опрашивает условие до таймаута
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ============================================================
// HTTP helpers
// ============================================================

func apiGet(t *testing.T, server *httptest.Server, path string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(server.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	decodeBody(t, resp.Body, out)
	return resp.StatusCode
}

func apiPost(t *testing.T, server *httptest.Server, path string, body string, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	resp, err := http.Post(server.URL+path, "application/json", reader)
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	decodeBody(t, resp.Body, out)
	return resp.StatusCode
}

func decodeBody(t *testing.T, body io.Reader, out interface{}) {
	t.Helper()
	if out == nil {
		io.Copy(io.Discard, body)
		return
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

// ============================================================
// In-memory журналы (service.HedgeStore и компания)
// ============================================================

type memoryStores struct {
	hedges *memHedgeStore
	events *memRiskStore
	notifs *memNotifStore
	stats  *memStatsStore
}

func newMemoryStores() *memoryStores {
	return &memoryStores{
		hedges: &memHedgeStore{byID: make(map[string]models.Hedge)},
		events: &memRiskStore{},
		notifs: &memNotifStore{},
		stats:  &memStatsStore{byDay: make(map[time.Time]*models.DailyStats)},
	}
}

type memHedgeStore struct {
	mu    sync.Mutex
	byID  map[string]models.Hedge
	order []string
}

func (s *memHedgeStore) Save(hedge *models.Hedge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[hedge.ID]; !ok {
		s.order = append(s.order, hedge.ID)
	}
	s.byID[hedge.ID] = *hedge
	return nil
}

func (s *memHedgeStore) GetRecent(limit int) ([]*models.Hedge, error) {
	return s.filter(limit, func(models.Hedge) bool { return true })
}

func (s *memHedgeStore) GetByPairID(pairID string, limit int) ([]*models.Hedge, error) {
	return s.filter(limit, func(h models.Hedge) bool { return h.PairID == pairID })
}

func (s *memHedgeStore) filter(limit int, keep func(models.Hedge) bool) ([]*models.Hedge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Hedge
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		h := s.byID[s.order[i]]
		if keep(h) {
			copied := h
			out = append(out, &copied)
		}
	}
	return out, nil
}

// State возвращает последнее записанное состояние хеджа
func (s *memHedgeStore) State(hedgeID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.byID[hedgeID]
	return h.State, ok
}

type memRiskStore struct {
	mu     sync.Mutex
	events []models.RiskEvent
}

func (s *memRiskStore) Create(event *models.RiskEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return int64(len(s.events)), nil
}

func (s *memRiskStore) GetRecent(limit int) ([]*models.RiskEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.RiskEvent
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		copied := s.events[i]
		out = append(out, &copied)
	}
	return out, nil
}

type memNotifStore struct {
	mu     sync.Mutex
	notifs []models.Notification
}

func (s *memNotifStore) Create(notif *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifs = append(s.notifs, *notif)
	return nil
}

func (s *memNotifStore) GetRecent(limit int) ([]*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Notification
	for i := len(s.notifs) - 1; i >= 0 && len(out) < limit; i-- {
		copied := s.notifs[i]
		out = append(out, &copied)
	}
	return out, nil
}

// Types возвращает типы записанных уведомлений
func (s *memNotifStore) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.notifs))
	for _, n := range s.notifs {
		types = append(types, n.Type)
	}
	return types
}

type memStatsStore struct {
	mu    sync.Mutex
	byDay map[time.Time]*models.DailyStats
}

func (s *memStatsStore) day(day time.Time) *models.DailyStats {
	if st, ok := s.byDay[day]; ok {
		return st
	}
	st := &models.DailyStats{Day: day}
	s.byDay[day] = st
	return st
}

func (s *memStatsStore) RecordOpened(day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.day(day).HedgesOpened++
	return nil
}

func (s *memStatsStore) RecordClosed(day time.Time, pnl float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.day(day)
	st.HedgesClosed++
	st.TotalPnl += pnl
	return nil
}

func (s *memStatsStore) RecordFailed(day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.day(day).HedgesFailed++
	return nil
}

func (s *memStatsStore) GetDay(day time.Time) (*models.DailyStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.byDay[day]; ok {
		copied := *st
		return &copied, nil
	}
	return nil, fmt.Errorf("no stats for %s", day.Format("2006-01-02"))
}

func (s *memStatsStore) GetRange(from, to time.Time) ([]*models.DailyStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.DailyStats
	for day, st := range s.byDay {
		if day.Before(from) || day.After(to) {
			continue
		}
		copied := *st
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}
