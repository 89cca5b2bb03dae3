package service

import (
	"context"

	"hedger/internal/models"
	"hedger/pkg/utils"
)

// ControlService - управляющие операции движка для control API
//
// Каждая операция логируется: это след ручного вмешательства оператора.
type ControlService struct {
	engine TradingEngine
	notify func(models.Notification) // опциональный канал в аудит/ws
	log    *utils.Logger
}

// NewControlService создает новый экземпляр ControlService
func NewControlService(engine TradingEngine, log *utils.Logger) *ControlService {
	return &ControlService{
		engine: engine,
		log:    log.WithComponent("control"),
	}
}

// SetNotifyCallback задаёт получателя уведомлений об управляющих операциях
func (s *ControlService) SetNotifyCallback(fn func(models.Notification)) {
	s.notify = fn
}

// Start запускает движок
func (s *ControlService) Start(ctx context.Context) error {
	if err := s.engine.Start(ctx); err != nil {
		return err
	}
	s.log.Info("engine started by operator")
	s.emit(models.NotificationTypePause, models.SeverityInfo, "engine started")
	return nil
}

// Stop останавливает движок. Открытые позиции не закрываются.
func (s *ControlService) Stop() error {
	if err := s.engine.Stop(); err != nil {
		return err
	}
	s.log.Info("engine stopped by operator")
	s.emit(models.NotificationTypePause, models.SeverityWarn, "engine stopped")
	return nil
}

// ClosePosition закрывает один хедж
func (s *ControlService) ClosePosition(ctx context.Context, hedgeID string) error {
	s.log.Info("manual close requested", utils.HedgeID(hedgeID))
	return s.engine.ClosePosition(ctx, hedgeID)
}

// CloseAll закрывает все открытые хеджи
func (s *ControlService) CloseAll(ctx context.Context) error {
	s.log.Warn("close-all requested")
	return s.engine.CloseAll(ctx, "manual close-all")
}

// EmergencyStop включает глобальную остановку допусков и закрывает позиции
func (s *ControlService) EmergencyStop(ctx context.Context, reason string) error {
	if reason == "" {
		reason = "operator emergency stop"
	}
	s.log.Error("emergency stop requested", utils.Reason(reason))
	s.emit(models.NotificationTypePause, models.SeverityError, "emergency stop: "+reason)
	return s.engine.EmergencyStop(ctx, reason)
}

func (s *ControlService) emit(notifType, severity, message string) {
	if s.notify == nil {
		return
	}
	s.notify(models.Notification{
		Type:     notifType,
		Severity: severity,
		Message:  message,
	})
}
