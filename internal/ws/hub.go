package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/utec/campusdesk/config"
	"github.com/utec/campusdesk/internal/models"
)

// Channel es el canal de Redis compartido por todas las instancias del espejo.
const Channel = "campusdesk:desk"

// ─── Upgrader ─────────────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// El espejo escucha en localhost; el origen lo filtra CORS en el router.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message es lo que recibe cada visor.
type Message struct {
	Kind         string               `json:"kind"`
	Envelope     *models.Envelope     `json:"envelope,omitempty"`
	Notification *models.Notification `json:"notification,omitempty"`
}

const (
	KindEnvelope     = "envelope"
	KindNotification = "notification"
)

// ─── Visor ────────────────────────────────────────────────────────────────────

type Viewer struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	ID   string
}

func (v *Viewer) readPump(maxMsgSize int64, pongWait time.Duration) {
	defer func() {
		select {
		case v.hub.unregister <- v:
		case <-v.hub.done:
		}
		v.conn.Close()
	}()

	v.conn.SetReadLimit(maxMsgSize)
	v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		v.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				v.hub.log.Warn("ws: error de visor", "visor", v.ID, "error", err)
			}
			return
		}
		// Los visores solo leen; las acciones van por REST.
	}
}

func (v *Viewer) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		v.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-v.send:
			v.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				v.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := v.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			v.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ─── Hub ──────────────────────────────────────────────────────────────────────
// El Hub reparte sobres reconciliados y avisos a los visores conectados.
// Con Redis, publica en un canal compartido y cada instancia entrega a sus
// visores locales; sin Redis, entrega directo.

type Hub struct {
	viewers    map[*Viewer]bool
	mu         sync.RWMutex
	register   chan *Viewer
	unregister chan *Viewer
	// done se cierra cuando Run termina.
	done       chan struct{}
	redis      *redis.Client
	cfg        config.WSConfig
	log        *slog.Logger
}

// NewHub acepta redisClient nil para el modo local.
func NewHub(redisClient *redis.Client, cfg *config.Config, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		viewers:    make(map[*Viewer]bool),
		register:   make(chan *Viewer, 64),
		unregister: make(chan *Viewer, 64),
		done:       make(chan struct{}),
		redis:      redisClient,
		cfg:        cfg.WS,
		log:        log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.redis != nil {
		go h.subscribeRedis(ctx)
	}

	for {
		select {
		case v := <-h.register:
			h.mu.Lock()
			h.viewers[v] = true
			h.mu.Unlock()
			h.log.Info("visor conectado", "visor", v.ID)

		case v := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.viewers[v]; ok {
				delete(h.viewers, v)
				close(v.send)
			}
			h.mu.Unlock()
			h.log.Info("visor desconectado", "visor", v.ID)

		case <-ctx.Done():
			h.mu.Lock()
			for v := range h.viewers {
				delete(h.viewers, v)
				close(v.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) stopped() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Hub) PublishEnvelope(ctx context.Context, env models.Envelope) error {
	return h.publish(ctx, Message{Kind: KindEnvelope, Envelope: &env})
}

func (h *Hub) PublishNotification(ctx context.Context, n models.Notification) error {
	return h.publish(ctx, Message{Kind: KindNotification, Notification: &n})
}

func (h *Hub) publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if h.redis == nil {
		h.broadcast(data)
		return nil
	}
	return h.redis.Publish(ctx, Channel, data).Err()
}

// Count devuelve cuántos visores hay registrados.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.redis.Subscribe(ctx, Channel)
	defer pubsub.Close()

	for {
		select {
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			h.broadcast([]byte(msg.Payload))

		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for v := range h.viewers {
		select {
		case v.send <- data:
		default:
			// Buffer lleno: se corta al visor lento.
			close(v.send)
			delete(h.viewers, v)
		}
	}
}

// ─── Upgrade HTTP → WebSocket ─────────────────────────────────────────────────

func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request, viewerID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws: error en upgrade", "error", err)
		return
	}
	if h.stopped() {
		conn.Close()
		return
	}

	v := &Viewer{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
		ID:   viewerID,
	}
	select {
	case h.register <- v:
	case <-h.done:
		conn.Close()
		return
	}

	pongWait := h.cfg.PongWait
	if pongWait <= 0 {
		pongWait = 60 * time.Second
	}
	maxSize := h.cfg.MaxMessageSize
	if maxSize <= 0 {
		maxSize = 65536
	}

	go v.writePump(pongWait * 9 / 10)
	go v.readPump(maxSize, pongWait)
}
