package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/utec/campusdesk/internal/models"
	"github.com/utec/campusdesk/internal/reconcile"
)

// ─── Store ────────────────────────────────────────────────────────────────────
// Store es la colección autoritativa de la vista activa. Solo cambia por la
// salida del reconciliador o por un reemplazo completo tras un fetch masivo.
// Un único RWMutex serializa escrituras y lecturas, así que quien renderiza
// nunca ve un sobre aplicado a medias.

type Store struct {
	mu        sync.RWMutex
	incidents []models.Incident
	workers   []models.Worker
	filters   models.Filters
	detail    *models.Incident
	seeded    bool

	listeners map[int]func(Change)
	nextID    int
}

// Change describe qué se modificó; los listeners vuelven a leer el Store.
type Change struct {
	Kind     ChangeKind
	EntityID string
	// DetailClosed es true cuando un borrado cerró la vista de detalle.
	DetailClosed bool
	// Applied es false cuando el sobre traía un snapshot más viejo que la
	// fila guardada y el reconciliador lo descartó.
	Applied bool
}

type ChangeKind string

const (
	ChangeReplaced ChangeKind = "replaced"
	ChangeEnvelope ChangeKind = "envelope"
	ChangeMutation ChangeKind = "mutation"
	ChangeWorkers  ChangeKind = "workers"
	ChangeFilters  ChangeKind = "filters"
	ChangeDetail   ChangeKind = "detail"
	ChangeCleared  ChangeKind = "cleared"
)

func New() *Store {
	return &Store{listeners: make(map[int]func(Change))}
}

// Subscribe registra un listener y devuelve la función para quitarlo.
// Los listeners se llaman fuera del lock.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// ─── Escrituras ───────────────────────────────────────────────────────────────

// Replace sustituye la colección completa (fetch masivo exitoso).
func (s *Store) Replace(list []models.Incident) {
	cp := make([]models.Incident, len(list))
	copy(cp, list)
	s.mu.Lock()
	s.incidents = cp
	s.seeded = true
	s.refreshDetailLocked()
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeReplaced})
}

// Seed ejecuta el fetch y solo reemplaza si tuvo éxito. Si falla, la
// colección anterior queda intacta y el error vuelve al llamador.
func (s *Store) Seed(ctx context.Context, fetch func(context.Context) ([]models.Incident, error)) error {
	list, err := fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch de incidentes: %w", err)
	}
	s.Replace(list)
	return nil
}

func (s *Store) ReplaceWorkers(list []models.Worker) {
	cp := make([]models.Worker, len(list))
	copy(cp, list)
	s.mu.Lock()
	s.workers = cp
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeWorkers})
}

// Apply pasa un sobre por el reconciliador: lista, trabajadores y detalle en
// el mismo turno.
func (s *Store) Apply(env models.Envelope) Change {
	s.mu.Lock()
	ch := Change{Kind: ChangeEnvelope, EntityID: env.EntityID(), Applied: true}
	if env.Type == models.EventWorkerUpdated {
		s.workers = reconcile.Workers(s.workers, env)
	} else {
		ch.Applied = !reconcile.Stale(s.incidents, env)
		s.incidents = reconcile.Incidents(s.incidents, env)
		detail, closed := reconcile.Detail(s.detail, env)
		s.detail = detail
		ch.DetailClosed = closed
	}
	s.mu.Unlock()
	s.emit(ch)
	return ch
}

// ApplyMutation aplica el resultado REST de una mutación local.
func (s *Store) ApplyMutation(inc models.Incident) {
	s.Apply(models.Envelope{Type: models.EventIncidentUpdated, Incident: &inc})
}

func (s *Store) SetFilters(f models.Filters) {
	s.mu.Lock()
	s.filters = f
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeFilters})
}

// OpenDetail abre la vista de detalle de un incidente presente en la lista.
func (s *Store) OpenDetail(id string) (models.Incident, bool) {
	s.mu.Lock()
	idx := indexOf(s.incidents, id)
	if idx < 0 {
		s.mu.Unlock()
		return models.Incident{}, false
	}
	snap := s.incidents[idx]
	s.detail = &snap
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeDetail, EntityID: id})
	return snap, true
}

// CloseDetail deja de seguir el incidente; los sobres posteriores ya no lo tocan.
func (s *Store) CloseDetail() {
	s.mu.Lock()
	s.detail = nil
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeDetail})
}

// Clear vacía todo (logout).
func (s *Store) Clear() {
	s.mu.Lock()
	s.incidents = nil
	s.workers = nil
	s.filters = models.Filters{}
	s.detail = nil
	s.seeded = false
	s.mu.Unlock()
	s.emit(Change{Kind: ChangeCleared})
}

// ─── Lecturas ─────────────────────────────────────────────────────────────────

// Incidents devuelve una copia de la colección sin filtrar.
func (s *Store) Incidents() []models.Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Incident, len(s.incidents))
	copy(out, s.incidents)
	return out
}

// Filtered recalcula la vista filtrada en cada lectura.
func (s *Store) Filtered() []models.Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Filter(s.incidents, s.filters)
}

func (s *Store) Filters() models.Filters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

func (s *Store) Get(id string) (models.Incident, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.incidents, id); i >= 0 {
		return s.incidents[i], true
	}
	return models.Incident{}, false
}

func (s *Store) Detail() (models.Incident, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.detail == nil {
		return models.Incident{}, false
	}
	return *s.detail, true
}

// Workers en orden derivado: disponibilidad y luego carga ascendente.
func (s *Store) Workers() []models.Worker {
	s.mu.RLock()
	out := make([]models.Worker, len(s.workers))
	copy(out, s.workers)
	s.mu.RUnlock()
	SortWorkers(out)
	return out
}

// Stats son los contadores del tablero.
func (s *Store) Stats() models.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st models.Stats
	for _, inc := range s.incidents {
		switch inc.Status {
		case models.StatusPending:
			st.Pending++
		case models.StatusInProgress:
			st.InProgress++
		case models.StatusResolved:
			st.Resolved++
		}
		if inc.Priority == models.PriorityUrgent {
			st.Urgent++
		}
	}
	return st
}

func (s *Store) Seeded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seeded
}

// ─── Funciones puras ──────────────────────────────────────────────────────────

// Filter no modifica list y siempre devuelve un slice nuevo.
func Filter(list []models.Incident, f models.Filters) []models.Incident {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]models.Incident, 0, len(list))
	for _, inc := range list {
		if f.Status != "" && inc.Status != f.Status {
			continue
		}
		if f.Priority != "" && inc.Priority != f.Priority {
			continue
		}
		if f.Category != "" && inc.Category != f.Category {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(inc.Title), search) &&
			!strings.Contains(strings.ToLower(inc.Description), search) {
			continue
		}
		out = append(out, inc)
	}
	return out
}

func SortWorkers(list []models.Worker) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Status.Rank() != b.Status.Rank() {
			return a.Status.Rank() < b.Status.Rank()
		}
		if a.WorkloadPoints != b.WorkloadPoints {
			return a.WorkloadPoints < b.WorkloadPoints
		}
		return a.Name < b.Name
	})
}

// ─── internos ─────────────────────────────────────────────────────────────────

// refreshDetailLocked alinea el detalle abierto con un fetch masivo. Si el
// incidente ya no está en la lista, el detalle se conserva: el fetch puede
// venir filtrado y no implica borrado.
func (s *Store) refreshDetailLocked() {
	if s.detail == nil {
		return
	}
	if i := indexOf(s.incidents, s.detail.IncidentID); i >= 0 {
		snap := s.incidents[i]
		s.detail = &snap
	}
}

func (s *Store) emit(ch Change) {
	s.mu.RLock()
	fns := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(ch)
	}
}

func indexOf(list []models.Incident, id string) int {
	for i := range list {
		if list[i].IncidentID == id {
			return i
		}
	}
	return -1
}
