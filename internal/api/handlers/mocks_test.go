package handlers

import (
	"context"
	"errors"
	"fmt"

	"hedger/internal/models"
)

// ErrMockDatabase - ошибка для проверки 500 ответов
var ErrMockDatabase = errors.New("mock database error")

// ============ MockStatusService ============

// MockStatusService - in-memory реализация service.StatusServiceInterface
type MockStatusService struct {
	status        models.EngineStatus
	hedges        []models.Hedge
	accounts      []models.Account
	pairs         []models.PairConfig
	cooldowns     []models.CooldownWindow
	riskEvents    []models.RiskEvent
	history       []*models.Hedge
	notifications []*models.Notification
	stats         []*models.DailyStats

	errs map[string]error // операция -> ошибка
}

func NewMockStatusService() *MockStatusService {
	return &MockStatusService{errs: make(map[string]error)}
}

// SetError включает ошибку для операции ("history", "notifications", "stats", "risk_history")
func (m *MockStatusService) SetError(op string, err error) {
	m.errs[op] = err
}

func (m *MockStatusService) Status() models.EngineStatus { return m.status }

func (m *MockStatusService) Positions(openOnly bool) []models.Hedge {
	if !openOnly {
		return m.hedges
	}
	open := make([]models.Hedge, 0, len(m.hedges))
	for _, h := range m.hedges {
		if !h.IsTerminal() {
			open = append(open, h)
		}
	}
	return open
}

func (m *MockStatusService) Position(hedgeID string) (models.Hedge, error) {
	for _, h := range m.hedges {
		if h.ID == hedgeID {
			return h, nil
		}
	}
	return models.Hedge{}, fmt.Errorf("hedge %s not found", hedgeID)
}

func (m *MockStatusService) Accounts() []models.Account          { return m.accounts }
func (m *MockStatusService) Pairs() []models.PairConfig          { return m.pairs }
func (m *MockStatusService) Cooldowns() []models.CooldownWindow  { return m.cooldowns }

func (m *MockStatusService) RiskEvents(limit int) []models.RiskEvent {
	if limit > 0 && limit < len(m.riskEvents) {
		return m.riskEvents[:limit]
	}
	return m.riskEvents
}

func (m *MockStatusService) RiskEventHistory(limit int) ([]*models.RiskEvent, error) {
	if err := m.errs["risk_history"]; err != nil {
		return nil, err
	}
	out := make([]*models.RiskEvent, 0, len(m.riskEvents))
	for i := range m.riskEvents {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, &m.riskEvents[i])
	}
	return out, nil
}

func (m *MockStatusService) HedgeHistory(pairID string, limit int) ([]*models.Hedge, error) {
	if err := m.errs["history"]; err != nil {
		return nil, err
	}
	out := make([]*models.Hedge, 0, len(m.history))
	for _, h := range m.history {
		if pairID != "" && h.PairID != pairID {
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, h)
	}
	return out, nil
}

func (m *MockStatusService) Notifications(limit int) ([]*models.Notification, error) {
	if err := m.errs["notifications"]; err != nil {
		return nil, err
	}
	if limit > 0 && limit < len(m.notifications) {
		return m.notifications[:limit], nil
	}
	return m.notifications, nil
}

func (m *MockStatusService) DailyStats(days int) ([]*models.DailyStats, error) {
	if err := m.errs["stats"]; err != nil {
		return nil, err
	}
	return m.stats, nil
}

// ============ MockControlService ============

// MockControlService записывает управляющие вызовы
type MockControlService struct {
	startErr     error
	stopErr      error
	closeErr     error
	closeAllErr  error
	emergencyErr error

	started    int
	stopped    int
	closed     []string
	closeAllN  int
	emergencyN int
	lastReason string
}

func NewMockControlService() *MockControlService {
	return &MockControlService{}
}

func (m *MockControlService) Start(ctx context.Context) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started++
	return nil
}

func (m *MockControlService) Stop() error {
	if m.stopErr != nil {
		return m.stopErr
	}
	m.stopped++
	return nil
}

func (m *MockControlService) ClosePosition(ctx context.Context, hedgeID string) error {
	if m.closeErr != nil {
		return m.closeErr
	}
	m.closed = append(m.closed, hedgeID)
	return nil
}

func (m *MockControlService) CloseAll(ctx context.Context) error {
	if m.closeAllErr != nil {
		return m.closeAllErr
	}
	m.closeAllN++
	return nil
}

func (m *MockControlService) EmergencyStop(ctx context.Context, reason string) error {
	if m.emergencyErr != nil {
		return m.emergencyErr
	}
	m.emergencyN++
	m.lastReason = reason
	return nil
}
