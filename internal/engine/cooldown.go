package engine

import (
	"sync"
	"time"

	"hedger/internal/models"
)

// cooldown.go - трекер пауз между открытиями по паре
//
// После закрытия хеджа (или риск-события) пара выдерживает паузу перед
// следующим открытием. Новое окно всегда замещает старое, даже более
// длинное: последняя причина определяет срок.

// CooldownTracker хранит активные окна паузы по парам
type CooldownTracker struct {
	mu      sync.Mutex
	windows map[string]models.CooldownWindow // по pairID
}

// NewCooldownTracker создаёт пустой трекер
func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{
		windows: make(map[string]models.CooldownWindow),
	}
}

// Start открывает окно паузы для пары.
// Нулевая или отрицательная длительность не создаёт окна.
func (t *CooldownTracker) Start(pairID string, duration time.Duration, reason string, now time.Time) {
	if duration <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.windows[pairID] = models.CooldownWindow{
		PairID:    pairID,
		ExpiresAt: now.Add(duration),
		Reason:    reason,
	}
}

// Active возвращает активное окно пары, если оно есть.
// Окно, истёкшее ровно сейчас, уже не активно: допуск разрешён
// точно в момент истечения.
func (t *CooldownTracker) Active(pairID string, now time.Time) (models.CooldownWindow, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.windows[pairID]
	if !ok {
		return models.CooldownWindow{}, false
	}
	if !w.Active(now) {
		delete(t.windows, pairID)
		return models.CooldownWindow{}, false
	}
	return w, true
}

// Clear снимает окно пары (ручная операция оператора)
func (t *CooldownTracker) Clear(pairID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.windows, pairID)
}

// Snapshot возвращает все активные окна для status API
func (t *CooldownTracker) Snapshot(now time.Time) []models.CooldownWindow {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []models.CooldownWindow
	for pairID, w := range t.windows {
		if !w.Active(now) {
			delete(t.windows, pairID)
			continue
		}
		out = append(out, w)
	}
	return out
}
