package websocket

import (
	"time"

	"hedger/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeHedgeUpdate - смена состояния хеджа или заполнение ноги
	MessageTypeHedgeUpdate MessageType = "hedgeUpdate"

	// MessageTypeNotification - новое уведомление (открытие, закрытие,
	// разворот, ошибки, пауза)
	MessageTypeNotification MessageType = "notification"

	// MessageTypeRiskEvent - сработал риск-лимит
	MessageTypeRiskEvent MessageType = "riskEvent"

	// MessageTypeAccountUpdate - изменение аккаунта (блокировка,
	// дневные счётчики, баланс)
	MessageTypeAccountUpdate MessageType = "accountUpdate"
)

// HedgeUpdateMessage - сообщение об обновлении хеджа
type HedgeUpdateMessage struct {
	Type      MessageType  `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Hedge     models.Hedge `json:"hedge"`
}

// NotificationMessage - сообщение с уведомлением
type NotificationMessage struct {
	Type         MessageType         `json:"type"`
	Timestamp    time.Time           `json:"timestamp"`
	Notification models.Notification `json:"notification"`
}

// RiskEventMessage - сообщение о риск-событии
type RiskEventMessage struct {
	Type      MessageType      `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Event     models.RiskEvent `json:"event"`
}

// AccountUpdateMessage - сообщение об изменении аккаунта
type AccountUpdateMessage struct {
	Type      MessageType    `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Account   models.Account `json:"account"`
}
