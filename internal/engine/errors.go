package engine

import (
	"fmt"
	"time"
)

// errors.go - классификация ошибок торгового ядра
//
// Классы различаются по реакции:
//   - ReservationError: гонка за аккаунты, пара пропускает тик
//   - OrderRejectedError / OrderTimeoutError: запускают разворот хеджа
//   - UnwindFailedError: блокировка аккаунта + risk event
//
// Нарушения риск-лимитов НЕ являются ошибками: RiskManager возвращает
// их как события (models.RiskEvent).

// ReservationError - не удалось атомарно зарезервировать аккаунты.
// Нормальная ситуация при конкуренции пар за общий пул; повторяется
// на следующем тике.
type ReservationError struct {
	HedgeID string
	Reason  string
}

func (e *ReservationError) Error() string {
	return fmt.Sprintf("hedge %s: account reservation failed: %s", e.HedgeID, e.Reason)
}

// Retryable: следующий тик повторит попытку
func (e *ReservationError) Retryable() bool { return true }

// OrderRejectedError - биржа отклонила ордер ноги
type OrderRejectedError struct {
	OrderRef string
	Account  string
	Reason   string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("order %s (account %s) rejected: %s", e.OrderRef, e.Account, e.Reason)
}

func (e *OrderRejectedError) Retryable() bool { return false }

// OrderTimeoutError - нога не заполнилась за отведённое время
type OrderTimeoutError struct {
	OrderRef string
	Account  string
	Waited   time.Duration
}

func (e *OrderTimeoutError) Error() string {
	return fmt.Sprintf("order %s (account %s) not filled after %v", e.OrderRef, e.Account, e.Waited)
}

// UnwindFailedError - не удалось развернуть заполненную ногу после
// исчерпания повторных попыток. Аккаунт остаётся с открытой экспозицией
// и блокируется до ручного вмешательства.
type UnwindFailedError struct {
	HedgeID string
	Account string
	Err     error
}

func (e *UnwindFailedError) Error() string {
	return fmt.Sprintf("hedge %s: failed to unwind leg on account %s: %v", e.HedgeID, e.Account, e.Err)
}

func (e *UnwindFailedError) Unwrap() error { return e.Err }
