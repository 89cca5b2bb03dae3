package exchange

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"hedger/pkg/utils"
)

// ws_reconnect.go - WebSocket соединение с автоматическим переподключением
//
// Приватный поток биржи доставляет уведомления о заполнении ордеров.
// Разрыв соединения не должен ронять движок: соединение восстанавливается
// с exponential backoff, подписки переигрываются после реконнекта.

// WSConfig - параметры переподключения
type WSConfig struct {
	InitialDelay   time.Duration // задержка перед первым реконнектом
	MaxDelay       time.Duration // потолок backoff
	MaxRetries     int           // 0 = без ограничения
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

// DefaultWSConfig - backoff 2s, 4s, 8s, 16s
func DefaultWSConfig() WSConfig {
	return WSConfig{
		InitialDelay:   2 * time.Second,
		MaxDelay:       16 * time.Second,
		MaxRetries:     0,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
	}
}

// Состояния соединения
type wsState int32

const (
	wsDisconnected wsState = iota
	wsConnecting
	wsConnected
	wsClosed
)

// WSConn - соединение с автоматическим восстановлением.
//
// Подписки, отправленные через Subscribe, запоминаются и переигрываются
// после каждого успешного реконнекта.
type WSConn struct {
	url    string
	config WSConfig
	log    *utils.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	state atomic.Int32

	onMessage func([]byte)
	onConnect func()

	subsMu sync.Mutex
	subs   [][]byte // подписки для переигрывания

	closeOnce sync.Once
	closeChan chan struct{}
	wg        sync.WaitGroup
}

// NewWSConn создаёт соединение. onMessage вызывается для каждого
// входящего сообщения из горутины чтения.
func NewWSConn(url string, config WSConfig, onMessage func([]byte), log *utils.Logger) *WSConn {
	return &WSConn{
		url:       url,
		config:    config,
		log:       log.WithComponent("ws"),
		onMessage: onMessage,
		closeChan: make(chan struct{}),
	}
}

// SetOnConnect задаёт обработчик успешного (ре)подключения
func (w *WSConn) SetOnConnect(fn func()) {
	w.onConnect = fn
}

// Connect устанавливает соединение и запускает цикл чтения
func (w *WSConn) Connect() error {
	if !w.state.CompareAndSwap(int32(wsDisconnected), int32(wsConnecting)) {
		return fmt.Errorf("websocket already started")
	}

	if err := w.dial(); err != nil {
		w.state.Store(int32(wsDisconnected))
		return err
	}

	w.wg.Add(2)
	go w.readLoop()
	go w.pingLoop()
	return nil
}

func (w *WSConn) dial() error {
	dialer := websocket.Dialer{
		HandshakeTimeout: w.config.ConnectTimeout,
	}
	conn, _, err := dialer.Dial(w.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial %s: %w", w.url, err)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(w.config.PingInterval + w.config.PongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(w.config.PingInterval + w.config.PongTimeout))

	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()
	w.state.Store(int32(wsConnected))

	w.log.Info("websocket connected", utils.String("url", w.url))

	w.replaySubscriptions()
	if w.onConnect != nil {
		w.onConnect()
	}
	return nil
}

// Subscribe отправляет сообщение подписки и запоминает его для
// переигрывания после реконнекта
func (w *WSConn) Subscribe(msg []byte) error {
	w.subsMu.Lock()
	w.subs = append(w.subs, msg)
	w.subsMu.Unlock()

	return w.Send(msg)
}

// Send отправляет сообщение в текущее соединение
func (w *WSConn) Send(msg []byte) error {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("websocket is not connected")
	}
	return w.conn.WriteMessage(websocket.TextMessage, msg)
}

func (w *WSConn) replaySubscriptions() {
	w.subsMu.Lock()
	subs := append([][]byte(nil), w.subs...)
	w.subsMu.Unlock()

	for _, msg := range subs {
		if err := w.Send(msg); err != nil {
			w.log.Warn("subscription replay failed", utils.Err(err))
		}
	}
}

// readLoop читает сообщения и запускает реконнект при разрыве
func (w *WSConn) readLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeChan:
			return
		default:
		}

		w.connMu.Lock()
		conn := w.conn
		w.connMu.Unlock()
		if conn == nil {
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if wsState(w.state.Load()) == wsClosed {
				return
			}
			w.log.Warn("websocket read failed, reconnecting", utils.Err(err))
			if !w.reconnect() {
				return
			}
			continue
		}

		if w.onMessage != nil {
			w.onMessage(msg)
		}
	}
}

// reconnect восстанавливает соединение с exponential backoff.
// Возвращает false, если соединение закрыто или попытки исчерпаны.
func (w *WSConn) reconnect() bool {
	w.state.Store(int32(wsConnecting))

	w.connMu.Lock()
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.connMu.Unlock()

	delay := w.config.InitialDelay
	for attempt := 1; ; attempt++ {
		select {
		case <-w.closeChan:
			return false
		case <-time.After(delay):
		}

		if err := w.dial(); err == nil {
			return true
		} else {
			w.log.Warn("websocket reconnect failed",
				utils.Int("attempt", attempt),
				utils.Err(err),
			)
		}

		if w.config.MaxRetries > 0 && attempt >= w.config.MaxRetries {
			w.log.Error("websocket reconnect attempts exhausted")
			return false
		}
		delay *= 2
		if delay > w.config.MaxDelay {
			delay = w.config.MaxDelay
		}
	}
}

// pingLoop поддерживает соединение живым
func (w *WSConn) pingLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.connMu.Lock()
			conn := w.conn
			if conn != nil {
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.config.PongTimeout))
			}
			w.connMu.Unlock()
		case <-w.closeChan:
			return
		}
	}
}

// Close разрывает соединение и останавливает горутины
func (w *WSConn) Close() {
	w.closeOnce.Do(func() {
		w.state.Store(int32(wsClosed))
		close(w.closeChan)

		w.connMu.Lock()
		if w.conn != nil {
			_ = w.conn.Close()
			w.conn = nil
		}
		w.connMu.Unlock()

		w.wg.Wait()
	})
}
