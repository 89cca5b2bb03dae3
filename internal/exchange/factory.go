package exchange

import (
	"context"
	"fmt"

	"hedger/internal/config"
	"hedger/internal/engine"
	"hedger/pkg/utils"
)

// Connector объединяет исполнение ордеров и рыночные данные одного
// подключения к бирже
type Connector interface {
	engine.OrderExecutor
	engine.MarketDataProvider

	// Start устанавливает соединения (приватный WebSocket и т.п.)
	Start(ctx context.Context) error
	Close()
}

// New создаёт коннектор по конфигурации: бумажная симуляция или
// живое подключение. Для live учётные данные уже расшифрованы.
func New(cfg config.ExchangeConfig, creds []Credentials, log *utils.Logger) (Connector, error) {
	switch cfg.Mode {
	case "paper":
		return NewPaperClient(DefaultPaperConfig(), log), nil
	case "live":
		return NewClient(DefaultClientConfig(cfg.BaseURL, cfg.WSURL), creds, log), nil
	default:
		return nil, fmt.Errorf("unknown exchange mode %q", cfg.Mode)
	}
}
