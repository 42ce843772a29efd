package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultPongWait   = 60 * time.Second
	defaultMaxMessage = 64 * 1024
	defaultBackoffMin = 500 * time.Millisecond
	defaultBackoffMax = 30 * time.Second
	writeWait         = 10 * time.Second
)

// StateChange se reporta en cada conexión o caída del canal push.
type StateChange struct {
	Connected bool
	// Reconnect es true cuando la conexión no es la primera de este Run.
	Reconnect bool
	Err       error
}

// ─── PushChannel ──────────────────────────────────────────────────────────────
// PushChannel mantiene el WebSocket hacia el backend. El cliente no envía
// mensajes de aplicación: solo recibe sobres y responde pings.

type PushChannel struct {
	URL            string
	Token          string
	Dialer         *websocket.Dialer
	MaxMessageSize int64
	PongWait       time.Duration
	BackoffMin     time.Duration
	BackoffMax     time.Duration

	OnMessage func(raw []byte)
	OnState   func(StateChange)
	Log       *slog.Logger
}

// Run conecta y reconecta hasta que ctx se cancele. Siempre devuelve ctx.Err().
func (p *PushChannel) Run(ctx context.Context) error {
	backoff := p.backoffMin()
	everConnected := false

	for {
		conn, err := p.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger().Warn("ws: no se pudo conectar", "error", err, "reintento_en", backoff)
			p.state(StateChange{Connected: false, Err: err})
		} else {
			p.state(StateChange{Connected: true, Reconnect: everConnected})
			everConnected = true
			backoff = p.backoffMin()

			err = p.read(ctx, conn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger().Info("ws: conexión perdida", "error", err)
			p.state(StateChange{Connected: false, Err: err})
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if limit := p.backoffMax(); backoff > limit {
			backoff = limit
		}
	}
}

func (p *PushChannel) dial(ctx context.Context) (*websocket.Conn, error) {
	if p.Token == "" {
		return nil, errors.New("ws: token vacío")
	}
	u, err := url.Parse(p.URL)
	if err != nil {
		return nil, fmt.Errorf("ws: url inválida: %w", err)
	}
	q := u.Query()
	q.Set("token", p.Token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.Token)

	dialer := p.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("ws: handshake status=%d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	return conn, nil
}

// read bloquea hasta que la conexión cae o ctx se cancela.
func (p *PushChannel) read(ctx context.Context, conn *websocket.Conn) error {
	pongWait := p.PongWait
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}
	limit := p.MaxMessageSize
	if limit <= 0 {
		limit = defaultMaxMessage
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	defer func() {
		close(done)
		conn.Close()
		wg.Wait()
	}()

	conn.SetReadLimit(limit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(pongWait * 9 / 10)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-ctx.Done():
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				conn.Close()
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.logger().Warn("ws: error de lectura", "error", err)
			}
			return err
		}
		if p.OnMessage != nil {
			p.OnMessage(msg)
		}
	}
}

func (p *PushChannel) state(s StateChange) {
	if p.OnState != nil {
		p.OnState(s)
	}
}

func (p *PushChannel) backoffMin() time.Duration {
	if p.BackoffMin > 0 {
		return p.BackoffMin
	}
	return defaultBackoffMin
}

func (p *PushChannel) backoffMax() time.Duration {
	if p.BackoffMax > 0 {
		return p.BackoffMax
	}
	return defaultBackoffMax
}

func (p *PushChannel) logger() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}
