package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hedger/internal/models"
)

// ============ StatusHandler Tests ============

func TestStatusHandler_GetStatus(t *testing.T) {
	mockSvc := NewMockStatusService()
	mockSvc.status = models.EngineStatus{
		Running:       true,
		ActiveHedges:  2,
		TotalAccounts: 4,
	}
	handler := NewStatusHandler(mockSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()

	handler.GetStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var status models.EngineStatus
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !status.Running {
		t.Error("expected running=true")
	}
	if status.ActiveHedges != 2 {
		t.Errorf("expected 2 active hedges, got %d", status.ActiveHedges)
	}
}

func TestStatusHandler_GetAccounts(t *testing.T) {
	mockSvc := NewMockStatusService()
	mockSvc.accounts = []models.Account{
		{Address: "0xacc1", AvailableBalance: 1000},
		{Address: "0xacc2", Locked: true, LockReason: "unwind failed"},
	}
	handler := NewStatusHandler(mockSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
	w := httptest.NewRecorder()

	handler.GetAccounts(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response AccountsResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Total != 2 {
		t.Errorf("expected total 2, got %d", response.Total)
	}
	if !response.Accounts[1].Locked {
		t.Error("expected second account locked")
	}
}

func TestStatusHandler_GetPairs(t *testing.T) {
	mockSvc := NewMockStatusService()
	mockSvc.pairs = []models.PairConfig{
		{ID: "eth_hedge_1", Market: "ETH-USDT", Enabled: true},
	}
	handler := NewStatusHandler(mockSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pairs", nil)
	w := httptest.NewRecorder()

	handler.GetPairs(w, req)

	var response PairsResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Total != 1 {
		t.Errorf("expected total 1, got %d", response.Total)
	}
	if response.Pairs[0].ID != "eth_hedge_1" {
		t.Errorf("expected pair eth_hedge_1, got %s", response.Pairs[0].ID)
	}
}

func TestStatusHandler_GetCooldowns(t *testing.T) {
	mockSvc := NewMockStatusService()
	mockSvc.cooldowns = []models.CooldownWindow{
		{PairID: "eth_hedge_1", ExpiresAt: time.Now().Add(time.Minute), Reason: "close"},
	}
	handler := NewStatusHandler(mockSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cooldowns", nil)
	w := httptest.NewRecorder()

	handler.GetCooldowns(w, req)

	var response CooldownsResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Total != 1 {
		t.Errorf("expected total 1, got %d", response.Total)
	}
}

func TestStatusHandler_GetRiskEvents(t *testing.T) {
	mockSvc := NewMockStatusService()
	mockSvc.riskEvents = []models.RiskEvent{
		{ID: 1, Level: "account", Reason: "daily loss limit"},
		{ID: 2, Level: "pair", Reason: "pair daily loss limit"},
		{ID: 3, Level: "global", Reason: "max open hedges"},
	}
	handler := NewStatusHandler(mockSvc)

	t.Run("returns all events", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/risk/events", nil)
		w := httptest.NewRecorder()

		handler.GetRiskEvents(w, req)

		var response RiskEventsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 3 {
			t.Errorf("expected total 3, got %d", response.Total)
		}
	})

	t.Run("respects limit parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/risk/events?limit=2", nil)
		w := httptest.NewRecorder()

		handler.GetRiskEvents(w, req)

		var response RiskEventsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 2 {
			t.Errorf("expected total 2 (limited), got %d", response.Total)
		}
	})
}

func TestStatusHandler_GetRiskEventHistory(t *testing.T) {
	t.Run("returns events from store", func(t *testing.T) {
		mockSvc := NewMockStatusService()
		mockSvc.riskEvents = []models.RiskEvent{
			{ID: 1, Level: "account", Reason: "daily loss limit"},
		}
		handler := NewStatusHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/risk/events/history", nil)
		w := httptest.NewRecorder()

		handler.GetRiskEventHistory(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var response RiskEventHistoryResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 1 {
			t.Errorf("expected total 1, got %d", response.Total)
		}
	})

	t.Run("returns 500 on store error", func(t *testing.T) {
		mockSvc := NewMockStatusService()
		mockSvc.SetError("risk_history", ErrMockDatabase)
		handler := NewStatusHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/risk/events/history", nil)
		w := httptest.NewRecorder()

		handler.GetRiskEventHistory(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}

func TestStatusHandler_GetNotifications(t *testing.T) {
	t.Run("returns notifications", func(t *testing.T) {
		mockSvc := NewMockStatusService()
		mockSvc.notifications = []*models.Notification{
			{ID: 1, Type: models.NotificationTypeOpen, Message: "hedge opened"},
			{ID: 2, Type: models.NotificationTypeClose, Message: "hedge closed"},
		}
		handler := NewStatusHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
		w := httptest.NewRecorder()

		handler.GetNotifications(w, req)

		var response NotificationsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 2 {
			t.Errorf("expected total 2, got %d", response.Total)
		}
	})

	t.Run("respects limit parameter", func(t *testing.T) {
		mockSvc := NewMockStatusService()
		for i := 0; i < 5; i++ {
			mockSvc.notifications = append(mockSvc.notifications, &models.Notification{ID: int64(i + 1)})
		}
		handler := NewStatusHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit=3", nil)
		w := httptest.NewRecorder()

		handler.GetNotifications(w, req)

		var response NotificationsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response.Total != 3 {
			t.Errorf("expected total 3 (limited), got %d", response.Total)
		}
	})

	t.Run("returns 500 on store error", func(t *testing.T) {
		mockSvc := NewMockStatusService()
		mockSvc.SetError("notifications", ErrMockDatabase)
		handler := NewStatusHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
		w := httptest.NewRecorder()

		handler.GetNotifications(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}

func TestStatusHandler_GetStats(t *testing.T) {
	t.Run("returns daily rows", func(t *testing.T) {
		mockSvc := NewMockStatusService()
		mockSvc.stats = []*models.DailyStats{
			{HedgesOpened: 3, HedgesClosed: 2, TotalPnl: 12.5},
		}
		handler := NewStatusHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats?days=3", nil)
		w := httptest.NewRecorder()

		handler.GetStats(w, req)

		var response DailyStatsResponse
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(response.Days) != 1 {
			t.Fatalf("expected 1 day, got %d", len(response.Days))
		}
		if response.Days[0].TotalPnl != 12.5 {
			t.Errorf("expected pnl 12.5, got %v", response.Days[0].TotalPnl)
		}
	})

	t.Run("returns 500 on store error", func(t *testing.T) {
		mockSvc := NewMockStatusService()
		mockSvc.SetError("stats", ErrMockDatabase)
		handler := NewStatusHandler(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
		w := httptest.NewRecorder()

		handler.GetStats(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		fallback int
		want     int
	}{
		{"missing parameter", "/x", 7, 7},
		{"valid parameter", "/x?limit=25", 7, 25},
		{"invalid parameter", "/x?limit=abc", 7, 7},
		{"negative parameter", "/x?limit=-5", 7, 7},
		{"zero parameter", "/x?limit=0", 7, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if got := queryInt(req, "limit", tt.fallback); got != tt.want {
				t.Errorf("queryInt() = %d, want %d", got, tt.want)
			}
		})
	}
}
