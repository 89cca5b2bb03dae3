package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"hedger/internal/engine"
	"hedger/pkg/ratelimit"
	"hedger/pkg/retry"
	"hedger/pkg/utils"
)

// client.go - клиент биржи
//
// Размещение и снятие ордеров идут по REST с HMAC подписью ключом
// аккаунта; результаты ордеров приходят асинхронно по приватному
// WebSocket и транслируются в канал Fills. Рыночные снимки собираются
// из стакана и статуса рынка.

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Категории rate limiter: ордера лимитируются жёстче рыночных данных
const (
	rateOrders = "orders"
	rateMarket = "market"
)

// Credentials - расшифрованные учётные данные аккаунта
type Credentials struct {
	Address    string
	Index      int
	PrivateKey string // hex, расшифрован из конфигурации при старте
}

// ClientConfig - параметры подключения к бирже
type ClientConfig struct {
	BaseURL    string
	WSURL      string
	OrderRate  float64 // запросов/сек для ордеров
	MarketRate float64 // запросов/сек для рыночных данных
	HTTP       HTTPClientConfig
	WS         WSConfig
}

// DefaultClientConfig - лимиты с запасом под одновременное размещение
// обеих ног
func DefaultClientConfig(baseURL, wsURL string) ClientConfig {
	return ClientConfig{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		WSURL:      wsURL,
		OrderRate:  10,
		MarketRate: 20,
		HTTP:       DefaultHTTPClientConfig(),
		WS:         DefaultWSConfig(),
	}
}

// APIError - ошибка биржевого API
type APIError struct {
	Status  int    // HTTP статус
	Code    string // код биржи
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange api: status %d code %s: %s", e.Status, e.Code, e.Message)
}

// Retryable: серверные ошибки и rate limit повторяемы, клиентские - нет
func (e *APIError) Retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// Client реализует engine.OrderExecutor и engine.MarketDataProvider
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	limits *ratelimit.MultiLimiter
	log    *utils.Logger

	credsMu sync.RWMutex
	creds   map[string]Credentials // по адресу

	ws    *WSConn
	fills chan engine.Fill

	closeOnce sync.Once
}

// NewClient создаёт клиент. Ключи аккаунтов уже расшифрованы вызывающим.
func NewClient(cfg ClientConfig, creds []Credentials, log *utils.Logger) *Client {
	limits := ratelimit.NewMultiLimiter()
	limits.Add(rateOrders, cfg.OrderRate, cfg.OrderRate*2)
	limits.Add(rateMarket, cfg.MarketRate, cfg.MarketRate*2)

	c := &Client{
		cfg:    cfg,
		http:   NewHTTPClient(cfg.HTTP),
		limits: limits,
		log:    log.WithComponent("exchange"),
		creds:  make(map[string]Credentials, len(creds)),
		fills:  make(chan engine.Fill, 256),
	}
	for _, cr := range creds {
		c.creds[cr.Address] = cr
	}
	return c
}

// Start подключает приватный WebSocket и подписывается на обновления
// ордеров всех аккаунтов
func (c *Client) Start(ctx context.Context) error {
	c.ws = NewWSConn(c.cfg.WSURL, c.cfg.WS, c.handleWSMessage, c.log)
	if err := c.ws.Connect(); err != nil {
		return fmt.Errorf("connect private stream: %w", err)
	}

	c.credsMu.RLock()
	defer c.credsMu.RUnlock()
	for addr := range c.creds {
		sub, err := json.Marshal(map[string]interface{}{
			"op":      "subscribe",
			"channel": "orders",
			"account": addr,
		})
		if err != nil {
			return err
		}
		if err := c.ws.Subscribe(sub); err != nil {
			return fmt.Errorf("subscribe orders for %s: %w", addr, err)
		}
	}
	return nil
}

// Close разрывает соединения. Канал Fills закрывается, чтобы насос
// движка завершился.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.ws != nil {
			c.ws.Close()
		}
		CloseIdleConnections(c.http)
		close(c.fills)
	})
}

// ============================================================
// engine.OrderExecutor
// ============================================================

type orderPayload struct {
	Account    string  `json:"account"`
	Market     string  `json:"market"`
	Side       string  `json:"side"` // buy, sell
	Type       string  `json:"type"` // market
	Size       float64 `json:"size"`
	ReduceOnly bool    `json:"reduce_only"`
}

type orderAckResponse struct {
	OrderRef string `json:"order_ref"`
	PlacedAt int64  `json:"placed_at"` // unix millis
}

// PlaceOrder размещает рыночный ордер. Без повторных попыток: повтор
// размещения может задвоить позицию, retry-политику держит вызывающий.
func (c *Client) PlaceOrder(ctx context.Context, req engine.OrderRequest) (engine.OrderAck, error) {
	if err := c.limits.Wait(ctx, rateOrders); err != nil {
		return engine.OrderAck{}, err
	}

	payload := orderPayload{
		Account:    req.Account,
		Market:     req.Market,
		Side:       sideToVenue(req.Side),
		Type:       "market",
		Size:       req.Size,
		ReduceOnly: req.ReduceOnly,
	}

	var ack orderAckResponse
	if err := c.doSigned(ctx, req.Account, http.MethodPost, "/api/v1/orders", payload, &ack); err != nil {
		return engine.OrderAck{}, err
	}

	placedAt := time.UnixMilli(ack.PlacedAt)
	if ack.PlacedAt == 0 {
		placedAt = time.Now()
	}

	c.log.Debug("order placed",
		utils.Account(req.Account),
		utils.OrderRef(ack.OrderRef),
		utils.Side(req.Side),
		utils.Size(req.Size),
	)
	return engine.OrderAck{OrderRef: ack.OrderRef, PlacedAt: placedAt}, nil
}

// CancelOrder снимает незаполненный ордер
func (c *Client) CancelOrder(ctx context.Context, account, orderRef string) error {
	if err := c.limits.Wait(ctx, rateOrders); err != nil {
		return err
	}

	payload := map[string]string{
		"account":   account,
		"order_ref": orderRef,
	}
	return c.doSigned(ctx, account, http.MethodPost, "/api/v1/orders/cancel", payload, nil)
}

// Fills - поток уведомлений с приватного WebSocket
func (c *Client) Fills() <-chan engine.Fill {
	return c.fills
}

// ============================================================
// engine.MarketDataProvider
// ============================================================

type orderBookResponse struct {
	Bids      [][2]float64 `json:"bids"` // [price, volume], лучшая первой
	Asks      [][2]float64 `json:"asks"`
	Timestamp int64        `json:"timestamp"` // unix millis
}

type marketStatusResponse struct {
	Open          bool    `json:"open"`
	VolatilityPct float64 `json:"volatility_pct"`
}

// Snapshot собирает рыночный снимок для гейта: стакан даёт bid/ask и
// ликвидность, статус рынка - открытость и волатильность. GET запросы
// безопасно повторяются.
func (c *Client) Snapshot(ctx context.Context, market string) (engine.MarketSnapshot, error) {
	if err := c.limits.Wait(ctx, rateMarket); err != nil {
		return engine.MarketSnapshot{}, err
	}

	cfg := retry.DefaultConfig()
	cfg.RetryIf = retry.IsRetryable

	return retry.DoWithResult(ctx, func() (engine.MarketSnapshot, error) {
		var book orderBookResponse
		if err := c.doPublic(ctx, "/api/v1/markets/"+market+"/orderbook", &book); err != nil {
			return engine.MarketSnapshot{}, err
		}
		var status marketStatusResponse
		if err := c.doPublic(ctx, "/api/v1/markets/"+market+"/status", &status); err != nil {
			return engine.MarketSnapshot{}, err
		}

		snap := engine.MarketSnapshot{
			Market:        market,
			VolatilityPct: status.VolatilityPct,
			Open:          status.Open,
			Timestamp:     time.UnixMilli(book.Timestamp),
		}
		if len(book.Bids) > 0 {
			snap.Bid = book.Bids[0][0]
		}
		if len(book.Asks) > 0 {
			snap.Ask = book.Asks[0][0]
		}
		snap.Liquidity = utils.DepthLiquidity(bookLevels(book.Bids), 10) +
			utils.DepthLiquidity(bookLevels(book.Asks), 10)
		return snap, nil
	}, cfg)
}

func bookLevels(raw [][2]float64) []utils.BookLevel {
	levels := make([]utils.BookLevel, 0, len(raw))
	for _, l := range raw {
		levels = append(levels, utils.BookLevel{Price: l[0], Volume: l[1]})
	}
	return levels
}

// ============================================================
// Транспорт
// ============================================================

// sign подписывает запрос ключом аккаунта: HMAC-SHA256(timestamp + body)
func sign(privateKey, timestamp, body string) string {
	h := hmac.New(sha256.New, []byte(privateKey))
	h.Write([]byte(timestamp))
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}

type apiEnvelope struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Data    jsoniter.RawMessage `json:"data"`
}

// doSigned выполняет подписанный запрос от имени аккаунта
func (c *Client) doSigned(ctx context.Context, account, method, path string, payload, out interface{}) error {
	c.credsMu.RLock()
	cred, ok := c.creds[account]
	c.credsMu.RUnlock()
	if !ok {
		return fmt.Errorf("no credentials for account %s", account)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, strings.NewReader(string(body)))
	if err != nil {
		return err
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-HEDGER-ACCOUNT", account)
	req.Header.Set("X-HEDGER-INDEX", strconv.Itoa(cred.Index))
	req.Header.Set("X-HEDGER-TIMESTAMP", timestamp)
	req.Header.Set("X-HEDGER-SIGNATURE", sign(cred.PrivateKey, timestamp, string(body)))

	return c.do(req, out)
}

// doPublic выполняет неподписанный GET
func (c *Client) doPublic(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK || (envelope.Code != "" && envelope.Code != "0") {
		return &APIError{
			Status:  resp.StatusCode,
			Code:    envelope.Code,
			Message: envelope.Message,
		}
	}

	if out != nil && len(envelope.Data) > 0 {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}

// ============================================================
// Приватный поток
// ============================================================

type orderUpdateMessage struct {
	Channel  string  `json:"channel"`
	OrderRef string  `json:"order_ref"`
	Status   string  `json:"status"` // filled, rejected, cancelled
	Price    float64 `json:"price"`
	Size     float64 `json:"size"`
	Reason   string  `json:"reason"`
	Ts       int64   `json:"ts"` // unix millis
}

// handleWSMessage транслирует обновление ордера в engine.Fill.
// Неразборчивые сообщения логируются и пропускаются: один плохой кадр
// не должен останавливать поток.
func (c *Client) handleWSMessage(raw []byte) {
	var msg orderUpdateMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.log.Warn("unparseable private stream message", utils.Err(err))
		return
	}
	if msg.Channel != "orders" || msg.OrderRef == "" {
		return
	}

	fill := engine.Fill{
		OrderRef:  msg.OrderRef,
		Status:    msg.Status,
		Price:     msg.Price,
		Size:      msg.Size,
		Reason:    msg.Reason,
		Timestamp: time.UnixMilli(msg.Ts),
	}
	if msg.Ts == 0 {
		fill.Timestamp = time.Now()
	}

	select {
	case c.fills <- fill:
	default:
		// Переполнение буфера: лучше потерять кадр (его подберёт сканер
		// таймаутов), чем заблокировать чтение WebSocket
		c.log.Error("fill buffer full, dropping update", utils.OrderRef(msg.OrderRef))
	}
}

func sideToVenue(side string) string {
	if side == "long" {
		return "buy"
	}
	return "sell"
}
