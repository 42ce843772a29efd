package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/utec/campusdesk/internal/models"
)

const DefaultCapacity = 50

// Queue guarda los avisos visibles de una sesión. Se crea por sesión y se
// vacía en el logout; no hay estado global.
type Queue struct {
	mu       sync.Mutex
	items    []models.Notification
	capacity int
	now      func() time.Time
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{capacity: capacity, now: time.Now}
}

// Push asigna id y hora, y descarta el más antiguo si se llena.
func (q *Queue) Push(n models.Notification) models.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt == 0 {
		n.CreatedAt = q.now().UnixMilli()
	}
	q.items = append(q.items, n)
	if over := len(q.items) - q.capacity; over > 0 {
		q.items = append([]models.Notification(nil), q.items[over:]...)
	}
	return n
}

// Add es el atajo para avisos de acciones locales (éxito o error de REST).
func (q *Queue) Add(level models.Level, msg string) models.Notification {
	return q.Push(models.Notification{Level: level, Message: msg})
}

// List devuelve una copia, del más antiguo al más nuevo.
func (q *Queue) List() []models.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.Notification, len(q.items))
	copy(out, q.items)
	return out
}

func (q *Queue) Dismiss(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, n := range q.items {
		if n.ID == id {
			q.items = append(q.items[:i:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
