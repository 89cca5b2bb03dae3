package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"hedger/internal/models"
	"hedger/pkg/utils"
)

func testLogger() *utils.Logger {
	return utils.InitLogger(utils.LogConfig{Level: "error", Format: "text"})
}

// ============ Mock TradingEngine ============

type mockEngine struct {
	mu       sync.Mutex
	running  bool
	status   models.EngineStatus
	pairs    []models.PairConfig
	hedges   []models.Hedge
	accounts []models.Account
	events   []models.RiskEvent

	startErr error
	closeErr error

	closed       []string
	closeAllN    int
	emergencyN   int
	lastEmergency string
}

func (m *mockEngine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	if m.running {
		return errors.New("already running")
	}
	m.running = true
	return nil
}

func (m *mockEngine) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return errors.New("not running")
	}
	m.running = false
	return nil
}

func (m *mockEngine) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *mockEngine) Status() models.EngineStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := m.status
	status.Running = m.running
	return status
}

func (m *mockEngine) Pairs() []models.PairConfig { return m.pairs }

func (m *mockEngine) Pair(pairID string) (models.PairConfig, bool) {
	for _, p := range m.pairs {
		if p.ID == pairID {
			return p, true
		}
	}
	return models.PairConfig{}, false
}

func (m *mockEngine) Hedges() []models.Hedge { return m.hedges }

func (m *mockEngine) Hedge(hedgeID string) (models.Hedge, bool) {
	for _, h := range m.hedges {
		if h.ID == hedgeID {
			return h, true
		}
	}
	return models.Hedge{}, false
}

func (m *mockEngine) OpenHedges() []models.Hedge {
	var open []models.Hedge
	for _, h := range m.hedges {
		if h.State == models.HedgeOpen {
			open = append(open, h)
		}
	}
	return open
}

func (m *mockEngine) Accounts() []models.Account { return m.accounts }

func (m *mockEngine) RiskEvents(limit int) []models.RiskEvent {
	if limit <= 0 || limit >= len(m.events) {
		return m.events
	}
	return m.events[len(m.events)-limit:]
}

func (m *mockEngine) Cooldowns() []models.CooldownWindow { return nil }

func (m *mockEngine) ClosePosition(ctx context.Context, hedgeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closeErr != nil {
		return m.closeErr
	}
	m.closed = append(m.closed, hedgeID)
	return nil
}

func (m *mockEngine) CloseAll(ctx context.Context, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeAllN++
	return m.closeErr
}

func (m *mockEngine) EmergencyStop(ctx context.Context, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emergencyN++
	m.lastEmergency = reason
	return nil
}

// ============ In-memory stores ============

type memHedgeStore struct {
	mu     sync.Mutex
	saved  []models.Hedge
	getErr error
	putErr error
}

func (s *memHedgeStore) Save(hedge *models.Hedge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.saved = append(s.saved, *hedge)
	return nil
}

func (s *memHedgeStore) GetRecent(limit int) ([]*models.Hedge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	var out []*models.Hedge
	for i := len(s.saved) - 1; i >= 0 && len(out) < limit; i-- {
		h := s.saved[i]
		out = append(out, &h)
	}
	return out, nil
}

func (s *memHedgeStore) GetByPairID(pairID string, limit int) ([]*models.Hedge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Hedge
	for i := len(s.saved) - 1; i >= 0 && len(out) < limit; i-- {
		if s.saved[i].PairID == pairID {
			h := s.saved[i]
			out = append(out, &h)
		}
	}
	return out, nil
}

func (s *memHedgeStore) savedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func (s *memHedgeStore) lastSaved() (models.Hedge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return models.Hedge{}, false
	}
	return s.saved[len(s.saved)-1], true
}

type memRiskStore struct {
	mu     sync.Mutex
	events []models.RiskEvent
	seq    int64
}

func (s *memRiskStore) Create(event *models.RiskEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.events = append(s.events, *event)
	return s.seq, nil
}

func (s *memRiskStore) GetRecent(limit int) ([]*models.RiskEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.RiskEvent
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.events[i]
		out = append(out, &e)
	}
	return out, nil
}

func (s *memRiskStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type memNotifStore struct {
	mu     sync.Mutex
	notifs []models.Notification
	seq    int64
}

func (s *memNotifStore) Create(notif *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	notif.ID = s.seq
	s.notifs = append(s.notifs, *notif)
	return nil
}

func (s *memNotifStore) GetRecent(limit int) ([]*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Notification
	for i := len(s.notifs) - 1; i >= 0 && len(out) < limit; i-- {
		n := s.notifs[i]
		out = append(out, &n)
	}
	return out, nil
}

func (s *memNotifStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notifs)
}

type memStatsStore struct {
	mu     sync.Mutex
	opened map[string]int
	closed map[string]int
	failed map[string]int
	pnl    map[string]float64
}

func newMemStatsStore() *memStatsStore {
	return &memStatsStore{
		opened: make(map[string]int),
		closed: make(map[string]int),
		failed: make(map[string]int),
		pnl:    make(map[string]float64),
	}
}

func dayKey(day time.Time) string { return day.UTC().Format("2006-01-02") }

func (s *memStatsStore) RecordOpened(day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened[dayKey(day)]++
	return nil
}

func (s *memStatsStore) RecordClosed(day time.Time, pnl float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed[dayKey(day)]++
	s.pnl[dayKey(day)] += pnl
	return nil
}

func (s *memStatsStore) RecordFailed(day time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[dayKey(day)]++
	return nil
}

func (s *memStatsStore) GetDay(day time.Time) (*models.DailyStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dayKey(day)
	return &models.DailyStats{
		Day:          day,
		HedgesOpened: s.opened[key],
		HedgesClosed: s.closed[key],
		HedgesFailed: s.failed[key],
		TotalPnl:     s.pnl[key],
	}, nil
}

func (s *memStatsStore) GetRange(from, to time.Time) ([]*models.DailyStats, error) {
	var out []*models.DailyStats
	for day := to; !day.Before(from); day = day.AddDate(0, 0, -1) {
		stats, _ := s.GetDay(day)
		out = append(out, stats)
	}
	return out, nil
}

// ============ Mock Broadcaster ============

type mockHub struct {
	mu       sync.Mutex
	hedges   []models.Hedge
	notifs   []models.Notification
	events   []models.RiskEvent
	accounts []models.Account
}

func (h *mockHub) BroadcastHedgeUpdate(hedge models.Hedge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hedges = append(h.hedges, hedge)
}

func (h *mockHub) BroadcastNotification(notif models.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifs = append(h.notifs, notif)
}

func (h *mockHub) BroadcastRiskEvent(event models.RiskEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *mockHub) BroadcastAccountUpdate(account models.Account) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.accounts = append(h.accounts, account)
}

func (h *mockHub) hedgeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hedges)
}

func (h *mockHub) notifCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.notifs)
}

func (h *mockHub) eventCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

// waitFor опрашивает условие до таймаута
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}
