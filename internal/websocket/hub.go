package websocket

import (
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"hedger/internal/models"
	"hedger/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Hub управляет всеми активными WebSocket соединениями дашборда.
//
// Центральная точка рассылки: аудит-сервис отдаёт сюда обновления
// хеджей, уведомления и риск-события, hub доставляет их всем
// подключённым клиентам. Медленный клиент не задерживает остальных:
// при переполнении его буфера соединение просто закрывается.
//
// Использование:
//
//	hub := NewHub(log)
//	go hub.Run()
//	hub.BroadcastHedgeUpdate(hedge)
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu  sync.RWMutex
	log *utils.Logger
}

// NewHub создает новый Hub
func NewHub(log *utils.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log.WithComponent("ws"),
	}
}

// Run запускает главный цикл Hub
//
// Должен запускаться в отдельной горутине: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client connected", utils.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client disconnected", utils.Int("total", total))

		case message := <-h.broadcast:
			// Копируем список под коротким RLock, отправляем без блокировки
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Буфер клиента полон - отключаем
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				total := len(h.clients)
				h.mu.Unlock()
				h.log.Warn("dropped slow clients",
					utils.Int("removed", len(toRemove)),
					utils.Int("total", total),
				)
			}
		}
	}
}

// Broadcast сериализует сообщение и рассылает всем клиентам
func (h *Hub) Broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.log.Error("failed to marshal broadcast message", utils.Err(err))
		return
	}

	select {
	case h.broadcast <- data:
	default:
		// Канал рассылки переполнен - дашборд переживёт потерю кадра
		h.log.Warn("broadcast channel full, message dropped")
	}
}

// BroadcastHedgeUpdate отправляет смену состояния хеджа
func (h *Hub) BroadcastHedgeUpdate(hedge models.Hedge) {
	h.Broadcast(&HedgeUpdateMessage{
		Type:      MessageTypeHedgeUpdate,
		Timestamp: time.Now().UTC(),
		Hedge:     hedge,
	})
}

// BroadcastNotification отправляет новое уведомление
func (h *Hub) BroadcastNotification(notif models.Notification) {
	h.Broadcast(&NotificationMessage{
		Type:         MessageTypeNotification,
		Timestamp:    time.Now().UTC(),
		Notification: notif,
	})
}

// BroadcastRiskEvent отправляет риск-событие
func (h *Hub) BroadcastRiskEvent(event models.RiskEvent) {
	h.Broadcast(&RiskEventMessage{
		Type:      MessageTypeRiskEvent,
		Timestamp: time.Now().UTC(),
		Event:     event,
	})
}

// BroadcastAccountUpdate отправляет изменение аккаунта
func (h *Hub) BroadcastAccountUpdate(account models.Account) {
	h.Broadcast(&AccountUpdateMessage{
		Type:      MessageTypeAccountUpdate,
		Timestamp: time.Now().UTC(),
		Account:   account,
	})
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
