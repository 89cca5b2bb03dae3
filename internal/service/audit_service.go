package service

import (
	"context"
	"sync"
	"time"

	"hedger/internal/models"
	"hedger/pkg/utils"
)

// audit_service.go - write-behind аудит
//
// AuditService принимает события движка (обновления хеджей, уведомления,
// риск-события) через неблокирующие буферы и пишет их в БД и WebSocket
// хаб из фоновой горутины. Торговый путь никогда не ждёт ни БД, ни
// клиентов: при переполнении буфера событие теряется для аудита, но
// состояние движка остаётся корректным.

const auditBuffer = 512

// AuditService - фоновый писатель аудит-журнала
type AuditService struct {
	hedges HedgeStore
	events RiskEventStore
	notifs NotificationStore
	stats  StatsStore
	hub    Broadcaster
	log    *utils.Logger

	hedgeCh chan models.Hedge
	notifCh chan models.Notification
	riskCh  chan models.RiskEvent

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewAuditService создает новый экземпляр AuditService.
// hub может быть nil - тогда события только пишутся в БД.
func NewAuditService(
	hedges HedgeStore,
	events RiskEventStore,
	notifs NotificationStore,
	stats StatsStore,
	hub Broadcaster,
	log *utils.Logger,
) *AuditService {
	return &AuditService{
		hedges:  hedges,
		events:  events,
		notifs:  notifs,
		stats:   stats,
		hub:     hub,
		log:     log.WithComponent("audit"),
		hedgeCh: make(chan models.Hedge, auditBuffer),
		notifCh: make(chan models.Notification, auditBuffer),
		riskCh:  make(chan models.RiskEvent, auditBuffer),
	}
}

// RiskSink возвращает канал для риск-менеджера (параметр sink
// NewRiskManager): события попадают в аудит напрямую
func (s *AuditService) RiskSink() chan<- models.RiskEvent {
	return s.riskCh
}

// HandleHedgeUpdate - callback координатора (SetUpdateCallback).
// Неблокирующий: вызывается на торговом пути.
func (s *AuditService) HandleHedgeUpdate(hedge models.Hedge) {
	select {
	case s.hedgeCh <- hedge:
	default:
		s.log.Warn("audit buffer full, hedge update dropped", utils.HedgeID(hedge.ID))
	}
}

// HandleNotification - callback координатора (SetNotifyCallback)
func (s *AuditService) HandleNotification(notif models.Notification) {
	select {
	case s.notifCh <- notif:
	default:
		s.log.Warn("audit buffer full, notification dropped", utils.String("type", notif.Type))
	}
}

// Run запускает фонового писателя. Блокируется до отмены контекста.
func (s *AuditService) Run(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()

	for {
		select {
		case hedge := <-s.hedgeCh:
			s.persistHedge(hedge)
		case notif := <-s.notifCh:
			s.persistNotification(notif)
		case event := <-s.riskCh:
			s.persistRiskEvent(event)
		case <-ctx.Done():
			s.drain()
			return
		}
	}
}

// drain дописывает события, накопившиеся к моменту остановки
func (s *AuditService) drain() {
	for {
		select {
		case hedge := <-s.hedgeCh:
			s.persistHedge(hedge)
		case notif := <-s.notifCh:
			s.persistNotification(notif)
		case event := <-s.riskCh:
			s.persistRiskEvent(event)
		default:
			return
		}
	}
}

// Wait блокируется до завершения фонового писателя
func (s *AuditService) Wait() {
	s.wg.Wait()
}

func (s *AuditService) persistHedge(hedge models.Hedge) {
	if err := s.hedges.Save(&hedge); err != nil {
		s.log.Error("hedge audit write failed", utils.HedgeID(hedge.ID), utils.Err(err))
	}

	s.recordStats(hedge)

	if s.hub != nil {
		s.hub.BroadcastHedgeUpdate(hedge)
	}
}

// recordStats инкрементирует дневные счётчики на переходах жизненного
// цикла. Обновления заполнений внутри одного состояния статистику не
// трогают: OPEN, CLOSED и FAILED встречаются у хеджа по одному разу.
func (s *AuditService) recordStats(hedge models.Hedge) {
	day := utils.StartOfDayUTC(hedge.UpdatedAt)

	var err error
	switch hedge.State {
	case models.HedgeOpen:
		err = s.stats.RecordOpened(day)
	case models.HedgeClosed:
		err = s.stats.RecordClosed(day, hedge.TotalPnl)
	case models.HedgeFailed:
		err = s.stats.RecordFailed(day)
	default:
		return
	}
	if err != nil {
		s.log.Error("daily stats write failed", utils.HedgeID(hedge.ID), utils.Err(err))
	}
}

func (s *AuditService) persistNotification(notif models.Notification) {
	if notif.Timestamp.IsZero() {
		notif.Timestamp = time.Now()
	}
	if err := s.notifs.Create(&notif); err != nil {
		s.log.Error("notification audit write failed", utils.Err(err))
	}

	if s.hub != nil {
		s.hub.BroadcastNotification(notif)
	}
}

func (s *AuditService) persistRiskEvent(event models.RiskEvent) {
	if _, err := s.events.Create(&event); err != nil {
		s.log.Error("risk event audit write failed", utils.Int64("event_id", event.ID), utils.Err(err))
	}

	if s.hub != nil {
		s.hub.BroadcastRiskEvent(event)
	}
}
