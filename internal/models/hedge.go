package models

import "time"

// Hedge представляет набор встречных позиций по одной паре
//
// Инвариант: хедж в состоянии OPEN имеет ровно ожидаемое число ног и все
// они заполнены. Хедж никогда не остаётся односторонним в терминальном
// состоянии: при частичном сбое заполненные ноги разворачиваются
// (reconciliation), после чего хедж переходит в FAILED.
type Hedge struct {
	ID        string     `json:"id"`
	PairID    string     `json:"pair_id"`
	State     string     `json:"state"`
	Legs      []Leg      `json:"legs"`
	TotalPnl  float64    `json:"total_pnl"`           // реализованный PNL после закрытия
	OpenedAt  time.Time  `json:"opened_at,omitempty"` // момент перехода в OPEN
	ClosedAt  *time.Time `json:"closed_at,omitempty"` // момент терминального состояния
	FailCause string     `json:"fail_cause,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Leg представляет одну ногу хеджа: ордер одного аккаунта
//
// Нога принадлежит исключительно родительскому хеджу.
type Leg struct {
	Account       string  `json:"account"`             // адрес аккаунта
	Side          string  `json:"side"`                // long, short
	Size          float64 `json:"size"`                // запрошенный размер в USDT
	OrderRef      string  `json:"order_ref,omitempty"` // ссылка на ордер биржи (корреляция fill callbacks)
	FillState     string  `json:"fill_state"`
	EntryPrice    float64 `json:"entry_price"`
	FilledSize    float64 `json:"filled_size"`
	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
	PlacedAt      time.Time `json:"placed_at,omitempty"` // для таймаута ноги
}

// Состояния хеджа (state machine)
const (
	HedgePending = "PENDING" // создан, ордера ещё не отправлены
	HedgeOpening = "OPENING" // ноги отправлены, ожидание заполнения
	HedgeOpen    = "OPEN"    // все ноги заполнены
	HedgeClosing = "CLOSING" // процесс закрытия/разворота
	HedgeClosed  = "CLOSED"  // закрыт штатно
	HedgeFailed  = "FAILED"  // частичный сбой, экспозиция развёрнута
)

// Состояния заполнения ноги
const (
	LegPending   = "pending"
	LegFilled    = "filled"
	LegRejected  = "rejected"
	LegCancelled = "cancelled"
)

// Стороны ноги
const (
	SideLong  = "long"
	SideShort = "short"
)

// IsTerminal возвращает true для терминальных состояний хеджа
//
// Терминальные хеджи сохраняются для аудита и никогда не удаляются молча.
func (h *Hedge) IsTerminal() bool {
	return h.State == HedgeClosed || h.State == HedgeFailed
}

// IsInFlight возвращает true если хедж занимает слот max_positions
func (h *Hedge) IsInFlight() bool {
	return h.State == HedgeOpening || h.State == HedgeOpen || h.State == HedgeClosing
}

// LegByOrderRef находит ногу по ссылке на ордер
func (h *Hedge) LegByOrderRef(ref string) *Leg {
	for i := range h.Legs {
		if h.Legs[i].OrderRef == ref {
			return &h.Legs[i]
		}
	}
	return nil
}

// FilledLegs возвращает заполненные ноги
func (h *Hedge) FilledLegs() []*Leg {
	var filled []*Leg
	for i := range h.Legs {
		if h.Legs[i].FillState == LegFilled {
			filled = append(filled, &h.Legs[i])
		}
	}
	return filled
}

// AllLegsFilled проверяет что каждая нога заполнена
func (h *Hedge) AllLegsFilled() bool {
	if len(h.Legs) == 0 {
		return false
	}
	for i := range h.Legs {
		if h.Legs[i].FillState != LegFilled {
			return false
		}
	}
	return true
}

// HasFailedLeg проверяет наличие отклонённой или отменённой ноги
func (h *Hedge) HasFailedLeg() bool {
	for i := range h.Legs {
		if h.Legs[i].FillState == LegRejected || h.Legs[i].FillState == LegCancelled {
			return true
		}
	}
	return false
}
