package engine

import (
	"fmt"

	"hedger/internal/models"
)

// state_machine.go - машина состояний хеджа
//
// Жизненный цикл:
//
//	PENDING -> OPENING -> OPEN -> CLOSING -> CLOSED
//	              |
//	              +-> FAILED (разворот после частичного открытия)
//
// CLOSED и FAILED - терминальные состояния.

// ValidTransitions задаёт допустимые переходы между состояниями
var ValidTransitions = map[string][]string{
	models.HedgePending: {models.HedgeOpening},
	models.HedgeOpening: {models.HedgeOpen, models.HedgeFailed},
	models.HedgeOpen:    {models.HedgeClosing},
	models.HedgeClosing: {models.HedgeClosed, models.HedgeFailed},
	models.HedgeClosed:  {},
	models.HedgeFailed:  {},
}

// CanTransition проверяет допустимость перехода from -> to
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError возвращается при недопустимом переходе состояния
type TransitionError struct {
	HedgeID string
	From    string
	To      string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("hedge %s: invalid transition %s -> %s", e.HedgeID, e.From, e.To)
}

// TerminalStates перечисляет состояния без исходящих переходов
func TerminalStates() []string {
	var out []string
	for state, next := range ValidTransitions {
		if len(next) == 0 {
			out = append(out, state)
		}
	}
	return out
}
