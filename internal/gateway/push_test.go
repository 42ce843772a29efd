package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func TestPushChannelDeliversAndReconnects(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok" || r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := conns.Add(1)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"incident_created","n":`+string(rune('0'+n))+`}`))
		// La primera conexión se corta para forzar la reconexión.
		if n == 1 {
			conn.Close()
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	var (
		mu     sync.Mutex
		msgs   []string
		states []StateChange
	)
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan struct{}, 4)
	p := &PushChannel{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		Token:      "tok",
		BackoffMin: 10 * time.Millisecond,
		BackoffMax: 20 * time.Millisecond,
		OnMessage: func(raw []byte) {
			mu.Lock()
			msgs = append(msgs, string(raw))
			mu.Unlock()
			got <- struct{}{}
		},
		OnState: func(s StateChange) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-got:
		case <-time.After(3 * time.Second):
			t.Fatal("timeout esperando mensajes")
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run no terminó tras cancelar")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(msgs) != 2 {
		t.Fatalf("msgs = %v", msgs)
	}
	var sawFirst, sawReconnect bool
	for _, s := range states {
		if s.Connected && !s.Reconnect {
			sawFirst = true
		}
		if s.Connected && s.Reconnect {
			sawReconnect = true
		}
	}
	if !sawFirst || !sawReconnect {
		t.Fatalf("states = %+v", states)
	}
}

func TestPushChannelRejectedHandshakeKeepsRetrying(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	var failures atomic.Int32
	p := &PushChannel{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		Token:      "tok",
		BackoffMin: 5 * time.Millisecond,
		BackoffMax: 10 * time.Millisecond,
		OnState: func(s StateChange) {
			if !s.Connected && s.Err != nil {
				failures.Add(1)
			}
		},
	}
	if err := p.Run(ctx); err != context.DeadlineExceeded {
		t.Fatalf("Run = %v", err)
	}
	if hits.Load() < 2 || failures.Load() < 2 {
		t.Fatalf("hits=%d failures=%d", hits.Load(), failures.Load())
	}
}

func TestPushChannelEmptyToken(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	var errs atomic.Int32
	p := &PushChannel{
		URL:        "ws://127.0.0.1:1",
		BackoffMin: 5 * time.Millisecond,
		OnState:    func(s StateChange) { errs.Add(1) },
	}
	p.Run(ctx)
	if errs.Load() == 0 {
		t.Fatal("expected state reports for failed dials")
	}
}
