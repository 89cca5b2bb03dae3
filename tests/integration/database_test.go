//go:build integration

package integration

import (
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"hedger/internal/models"
	"hedger/internal/repository"
	"hedger/pkg/utils"

	_ "github.com/lib/pq"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// setupTestDB подключается к тестовой базе или пропускает тест
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		getEnv("TEST_DB_HOST", "localhost"),
		getEnv("TEST_DB_PORT", "5432"),
		getEnv("TEST_DB_USER", "postgres"),
		getEnv("TEST_DB_PASSWORD", "postgres"),
		getEnv("TEST_DB_NAME", "hedger_test"),
		getEnv("TEST_DB_SSLMODE", "disable"),
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Skipf("skipping database test: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping database test: cannot ping database: %v", err)
	}

	if err := repository.InitSchema(db); err != nil {
		db.Close()
		t.Fatalf("failed to initialize schema: %v", err)
	}

	t.Cleanup(func() {
		for _, table := range []string{"hedges", "risk_events", "notifications", "daily_stats"} {
			db.Exec("TRUNCATE TABLE " + table)
		}
		db.Close()
	})
	return db
}

func TestHedgeRepository_Roundtrip(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewHedgeRepository(db)

	now := time.Now().UTC().Truncate(time.Microsecond)
	hedge := &models.Hedge{
		ID:     "db-hedge-1",
		PairID: "eth_hedge_1",
		State:  models.HedgeOpening,
		Legs: []models.Leg{
			{Account: accountA, Side: models.SideLong, Size: 100, FillState: models.LegPending},
			{Account: accountB, Side: models.SideShort, Size: 100, FillState: models.LegPending},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := repo.Save(hedge); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}

	// Переход состояния перезаписывает ту же строку
	hedge.State = models.HedgeOpen
	hedge.OpenedAt = now.Add(time.Second)
	hedge.Legs[0].FillState = models.LegFilled
	hedge.Legs[1].FillState = models.LegFilled
	hedge.UpdatedAt = now.Add(time.Second)
	if err := repo.Save(hedge); err != nil {
		t.Fatalf("Save() on transition returned error: %v", err)
	}

	got, err := repo.GetByID("db-hedge-1")
	if err != nil {
		t.Fatalf("GetByID() returned error: %v", err)
	}
	if got.State != models.HedgeOpen {
		t.Errorf("expected OPEN, got %s", got.State)
	}
	if len(got.Legs) != 2 || got.Legs[0].FillState != models.LegFilled {
		t.Errorf("legs did not survive roundtrip: %+v", got.Legs)
	}
	if got.OpenedAt.IsZero() {
		t.Error("opened_at was not persisted")
	}

	count, err := repo.Count()
	if err != nil {
		t.Fatalf("Count() returned error: %v", err)
	}
	if count != 1 {
		t.Errorf("upsert should keep a single row, got %d", count)
	}

	if _, err := repo.GetByID("missing"); err != repository.ErrHedgeNotFound {
		t.Errorf("expected ErrHedgeNotFound, got %v", err)
	}
}

func TestHedgeRepository_QueriesAndPnl(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewHedgeRepository(db)

	now := time.Now().UTC().Truncate(time.Microsecond)
	closedAt := now.Add(time.Minute)
	for i, pnl := range []float64{10.5, -3.25} {
		h := &models.Hedge{
			ID:        fmt.Sprintf("db-hedge-%d", i),
			PairID:    "eth_hedge_1",
			State:     models.HedgeClosed,
			TotalPnl:  pnl,
			OpenedAt:  now,
			ClosedAt:  &closedAt,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
			UpdatedAt: closedAt,
		}
		if err := repo.Save(h); err != nil {
			t.Fatalf("Save() returned error: %v", err)
		}
	}

	recent, err := repo.GetByPairID("eth_hedge_1", 10)
	if err != nil {
		t.Fatalf("GetByPairID() returned error: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 hedges, got %d", len(recent))
	}
	// Сортировка от новых к старым
	if recent[0].ID != "db-hedge-1" {
		t.Errorf("expected newest first, got %s", recent[0].ID)
	}

	total, err := repo.TotalPnlSince(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("TotalPnlSince() returned error: %v", err)
	}
	if total != 7.25 {
		t.Errorf("expected total pnl 7.25, got %v", total)
	}
}

func TestRiskEventRepository_CreateAndRecent(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewRiskEventRepository(db)

	event := &models.RiskEvent{
		Level:     models.RiskLevelPair,
		Reason:    "pair daily loss limit",
		PairID:    "eth_hedge_1",
		Value:     520,
		Limit:     500,
		Action:    "pair halted",
		Timestamp: time.Now().UTC(),
	}
	id, err := repo.Create(event)
	if err != nil {
		t.Fatalf("Create() returned error: %v", err)
	}
	if id == 0 {
		t.Error("expected generated id")
	}

	events, err := repo.GetRecent(10)
	if err != nil {
		t.Fatalf("GetRecent() returned error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Reason != "pair daily loss limit" || events[0].Limit != 500 {
		t.Errorf("event did not survive roundtrip: %+v", events[0])
	}
}

func TestNotificationRepository_CreateAndRecent(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewNotificationRepository(db)

	notif := &models.Notification{
		Type:     models.NotificationTypeUnwind,
		Severity: models.SeverityError,
		PairID:   "eth_hedge_1",
		HedgeID:  "db-hedge-1",
		Message:  "partial fill unwound",
		Meta:     map[string]interface{}{"legs": 2.0},
	}
	if err := repo.Create(notif); err != nil {
		t.Fatalf("Create() returned error: %v", err)
	}
	if notif.ID == 0 {
		t.Error("expected generated id")
	}
	if notif.Timestamp.IsZero() {
		t.Error("Create() must set missing timestamp")
	}

	notifs, err := repo.GetRecent(10)
	if err != nil {
		t.Fatalf("GetRecent() returned error: %v", err)
	}
	if len(notifs) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifs))
	}
	if notifs[0].Meta["legs"] != 2.0 {
		t.Errorf("meta did not survive roundtrip: %+v", notifs[0].Meta)
	}
}

func TestStatsRepository_Accumulation(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewStatsRepository(db)

	day := utils.StartOfDayUTC(time.Now())
	if err := repo.RecordOpened(day); err != nil {
		t.Fatalf("RecordOpened() returned error: %v", err)
	}
	if err := repo.RecordOpened(day); err != nil {
		t.Fatalf("RecordOpened() returned error: %v", err)
	}
	if err := repo.RecordClosed(day, 12.5); err != nil {
		t.Fatalf("RecordClosed() returned error: %v", err)
	}
	if err := repo.RecordFailed(day); err != nil {
		t.Fatalf("RecordFailed() returned error: %v", err)
	}

	stats, err := repo.GetDay(day)
	if err != nil {
		t.Fatalf("GetDay() returned error: %v", err)
	}
	if stats.HedgesOpened != 2 || stats.HedgesClosed != 1 || stats.HedgesFailed != 1 {
		t.Errorf("unexpected counters: %+v", stats)
	}
	if stats.TotalPnl != 12.5 {
		t.Errorf("expected pnl 12.5, got %v", stats.TotalPnl)
	}

	rng, err := repo.GetRange(day.AddDate(0, 0, -1), day)
	if err != nil {
		t.Fatalf("GetRange() returned error: %v", err)
	}
	if len(rng) != 1 {
		t.Errorf("expected 1 day in range, got %d", len(rng))
	}
}
