package exchange

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type wsTestServer struct {
	server *httptest.Server

	mu       sync.Mutex
	conns    int
	received [][]byte
	// активное соединение для отправки в клиент и принудительного обрыва
	active *websocket.Conn
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	s := &wsTestServer{}
	upgrader := websocket.Upgrader{}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		s.active = conn
		s.mu.Unlock()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.received = append(s.received, msg)
			s.mu.Unlock()
		}
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *wsTestServer) url() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

func (s *wsTestServer) connCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func (s *wsTestServer) receivedCount(msg string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.received {
		if string(m) == msg {
			n++
		}
	}
	return n
}

func (s *wsTestServer) send(t *testing.T, msg string) {
	t.Helper()
	s.mu.Lock()
	conn := s.active
	s.mu.Unlock()
	if conn == nil {
		t.Fatal("no active connection")
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func (s *wsTestServer) dropConnection() {
	s.mu.Lock()
	conn := s.active
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func testWSConfig() WSConfig {
	cfg := DefaultWSConfig()
	cfg.InitialDelay = 10 * time.Millisecond
	cfg.MaxDelay = 50 * time.Millisecond
	cfg.ConnectTimeout = time.Second
	return cfg
}

func waitForWS(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestWSConnReceivesMessages(t *testing.T) {
	server := newWSTestServer(t)

	var mu sync.Mutex
	var got []string
	conn := NewWSConn(server.url(), testWSConfig(), func(msg []byte) {
		mu.Lock()
		got = append(got, string(msg))
		mu.Unlock()
	}, testLogger())

	if err := conn.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	server.send(t, `{"hello":true}`)

	waitForWS(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == `{"hello":true}`
	}, "message not delivered to callback")
}

func TestWSConnReplaysSubscriptionsOnReconnect(t *testing.T) {
	server := newWSTestServer(t)

	conn := NewWSConn(server.url(), testWSConfig(), func([]byte) {}, testLogger())
	if err := conn.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	sub := `{"op":"subscribe","channel":"orders"}`
	if err := conn.Subscribe([]byte(sub)); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	waitForWS(t, time.Second, func() bool {
		return server.receivedCount(sub) == 1
	}, "subscription not received")

	server.dropConnection()

	// после переподключения подписка воспроизводится заново
	waitForWS(t, 3*time.Second, func() bool {
		return server.connCount() >= 2 && server.receivedCount(sub) >= 2
	}, "subscription not replayed after reconnect")
}

func TestWSConnCloseStopsReconnect(t *testing.T) {
	server := newWSTestServer(t)

	conn := NewWSConn(server.url(), testWSConfig(), func([]byte) {}, testLogger())
	if err := conn.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	conn.Close()
	conn.Close() // повторное закрытие безопасно

	before := server.connCount()
	time.Sleep(100 * time.Millisecond)
	if server.connCount() != before {
		t.Error("connection attempted after Close")
	}

	if err := conn.Send([]byte("x")); err == nil {
		t.Error("Send after Close should fail")
	}
}
