package exchange

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"hedger/internal/engine"
	"hedger/pkg/utils"
)

// paper.go - бумажный режим
//
// PaperClient исполняет ордера локально без биржи: заполнение
// приходит с небольшой задержкой по цене случайного блуждания вокруг
// стартовой. Используется для прогона стратегии без реальных денег.

// PaperConfig - параметры симуляции
type PaperConfig struct {
	StartPrice float64       // стартовый mid
	SpreadPct  float64       // постоянный спред в процентах
	DriftPct   float64       // максимальный шаг блуждания за тик, %
	FillDelay  time.Duration // задержка между размещением и заполнением
	RejectRate float64       // доля отклоняемых ордеров, 0..1
}

// DefaultPaperConfig - узкий спред и спокойный рынок
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{
		StartPrice: 2000,
		SpreadPct:  0.02,
		DriftPct:   0.05,
		FillDelay:  50 * time.Millisecond,
		RejectRate: 0,
	}
}

// PaperClient реализует engine.OrderExecutor и engine.MarketDataProvider
type PaperClient struct {
	cfg PaperConfig
	log *utils.Logger

	mu     sync.Mutex
	mid    float64
	seq    int64
	rng    *rand.Rand
	closed bool

	fills chan engine.Fill
}

func NewPaperClient(cfg PaperConfig, log *utils.Logger) *PaperClient {
	if cfg.StartPrice <= 0 {
		cfg = DefaultPaperConfig()
	}
	return &PaperClient{
		cfg:   cfg,
		log:   log.WithComponent("paper"),
		mid:   cfg.StartPrice,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		fills: make(chan engine.Fill, 256),
	}
}

// Start в бумажном режиме ничего не подключает
func (p *PaperClient) Start(ctx context.Context) error {
	return nil
}

// PlaceOrder принимает ордер и планирует заполнение по текущему mid
func (p *PaperClient) PlaceOrder(ctx context.Context, req engine.OrderRequest) (engine.OrderAck, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return engine.OrderAck{}, fmt.Errorf("paper client closed")
	}
	p.seq++
	ref := fmt.Sprintf("paper-%d", p.seq)
	price := p.fillPrice(req.Side)
	rejected := p.cfg.RejectRate > 0 && p.rng.Float64() < p.cfg.RejectRate
	p.mu.Unlock()

	fill := engine.Fill{
		OrderRef:  ref,
		Status:    engine.FillStatusFilled,
		Price:     price,
		Size:      req.Size,
		Timestamp: time.Now().Add(p.cfg.FillDelay),
	}
	if rejected {
		fill.Status = engine.FillStatusRejected
		fill.Reason = "simulated rejection"
		fill.Price = 0
		fill.Size = 0
	}

	time.AfterFunc(p.cfg.FillDelay, func() {
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return
		}
		select {
		case p.fills <- fill:
		default:
			p.log.Error("paper fill buffer full", utils.OrderRef(ref))
		}
	})

	return engine.OrderAck{OrderRef: ref, PlacedAt: time.Now()}, nil
}

// CancelOrder в бумажном режиме всегда успешен: заполнение, которое
// уже запланировано, всё равно придёт и будет отброшено координатором
func (p *PaperClient) CancelOrder(ctx context.Context, account, orderRef string) error {
	return nil
}

func (p *PaperClient) Fills() <-chan engine.Fill {
	return p.fills
}

// Snapshot двигает mid случайным блужданием и возвращает снимок
// всегда открытого ликвидного рынка
func (p *PaperClient) Snapshot(ctx context.Context, market string) (engine.MarketSnapshot, error) {
	p.mu.Lock()
	step := p.mid * p.cfg.DriftPct / 100 * (p.rng.Float64()*2 - 1)
	p.mid += step
	mid := p.mid
	p.mu.Unlock()

	half := mid * p.cfg.SpreadPct / 200
	return engine.MarketSnapshot{
		Market:        market,
		Bid:           mid - half,
		Ask:           mid + half,
		VolatilityPct: p.cfg.DriftPct,
		Liquidity:     mid * 1e6,
		Open:          true,
		Timestamp:     time.Now(),
	}, nil
}

// fillPrice даёт цену заполнения с учётом стороны: покупка по ask,
// продажа по bid
func (p *PaperClient) fillPrice(side string) float64 {
	half := p.mid * p.cfg.SpreadPct / 200
	if side == "long" {
		return p.mid + half
	}
	return p.mid - half
}

// Close закрывает поток заполнений
func (p *PaperClient) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	close(p.fills)
}
