package engine

import (
	"context"
	"time"

	"hedger/pkg/utils"
)

// executor.go - интерфейсы внешних коллабораторов ядра
//
// Ядро не знает про конкретную биржу: исполнение ордеров и рыночные
// данные приходят через эти интерфейсы. Реализации живут в
// internal/exchange.

// OrderRequest - запрос на размещение рыночного ордера одной ноги
type OrderRequest struct {
	Account    string  // адрес аккаунта
	Market     string  // рынок (например, ETH-USD)
	Side       string  // long, short
	Size       float64 // размер в базовой валюте
	ReduceOnly bool    // закрытие/разворот существующей позиции
}

// OrderAck - подтверждение принятия ордера биржей.
// OrderRef уникален и используется для корреляции асинхронных
// уведомлений о заполнении.
type OrderAck struct {
	OrderRef string
	PlacedAt time.Time
}

// Статусы заполнения в уведомлениях биржи
const (
	FillStatusFilled    = "filled"
	FillStatusRejected  = "rejected"
	FillStatusCancelled = "cancelled"
)

// Fill - асинхронное уведомление о результате ордера.
// Уведомления могут приходить в любом порядке относительно
// подтверждений размещения.
type Fill struct {
	OrderRef  string
	Status    string
	Price     float64 // средняя цена исполнения
	Size      float64 // заполненный размер
	Reason    string  // причина для rejected/cancelled
	Timestamp time.Time
}

// OrderExecutor - исполнение ордеров на бирже
//
// PlaceOrder возвращает OrderAck сразу после принятия; результат
// приходит позже через канал Fills. CancelOrder снимает ордер,
// который ещё не заполнился.
type OrderExecutor interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	CancelOrder(ctx context.Context, account, orderRef string) error

	// Fills - поток уведомлений о заполнении. Канал закрывается
	// при завершении работы исполнителя.
	Fills() <-chan Fill
}

// MarketSnapshot - моментальный снимок рыночных условий для гейта допуска
type MarketSnapshot struct {
	Market        string
	Bid           float64
	Ask           float64
	VolatilityPct float64 // реализованная волатильность за короткое окно, %
	Liquidity     float64 // доступная ликвидность в котировочной валюте
	Open          bool    // рынок открыт для торговли
	Timestamp     time.Time
}

// SpreadPct возвращает спред снимка в процентах от mid price
func (s MarketSnapshot) SpreadPct() float64 {
	return utils.CalculateSpreadPct(s.Bid, s.Ask)
}

// MarketDataProvider - источник рыночных снимков
type MarketDataProvider interface {
	Snapshot(ctx context.Context, market string) (MarketSnapshot, error)
}
