package models

import (
	"encoding/json"
	"strings"
)

// ─── Roles ────────────────────────────────────────────────────────────────────

type Role string

const (
	RoleStudent Role = "alumno"
	RoleWorker  Role = "worker"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleWorker, RoleAdmin:
		return true
	}
	return false
}

// Label es la etiqueta visual del rol
func (r Role) Label() string {
	switch r {
	case RoleStudent:
		return "Alumno"
	case RoleWorker:
		return "Trabajador"
	case RoleAdmin:
		return "Administrador"
	default:
		return string(r)
	}
}

// ─── Usuario ──────────────────────────────────────────────────────────────────

type User struct {
	UserID      string `json:"userId"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Role        Role   `json:"role"`
	StudentCode string `json:"studentCode,omitempty"`
	Faculty     string `json:"faculty,omitempty"`
	Career      string `json:"career,omitempty"`
	Specialty   string `json:"specialty,omitempty"`
	Department  string `json:"department,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// Viewer es quien mira la lista: solo importan rol e id para filtrar avisos.
type Viewer struct {
	ID   string
	Role Role
}

func (u User) Viewer() Viewer { return Viewer{ID: u.UserID, Role: u.Role} }

// ─── Incidente ────────────────────────────────────────────────────────────────

type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Categorías conocidas; el conjunto es abierto.
const (
	CategoryElectricity    = "electricidad"
	CategoryPlumbing       = "plomeria"
	CategoryCleaning       = "limpieza"
	CategorySecurity       = "seguridad"
	CategoryInfrastructure = "infraestructura"
	CategoryTechnology     = "sistemas-tecnologia"
	CategoryElevators      = "ascensores"
	CategoryOther          = "otros"
)

type Location struct {
	Building         string `json:"building"`
	Floor            int    `json:"floor"`
	Room             string `json:"room"`
	SpecificLocation string `json:"specificLocation,omitempty"`
}

type Comment struct {
	AuthorID   string `json:"userId"`
	AuthorName string `json:"userName"`
	Text       string `json:"comment"`
	Timestamp  int64  `json:"timestamp"`
}

type Incident struct {
	IncidentID  string    `json:"incidentId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Priority    Priority  `json:"priority"`
	Status      Status    `json:"status"`
	Location    Location  `json:"location"`
	Images      []string  `json:"images,omitempty"`
	ReportedBy  Ref       `json:"reportedBy"`
	AssignedTo  *Ref      `json:"assignedTo,omitempty"`
	CreatedAt   int64     `json:"createdAt"`
	UpdatedAt   int64     `json:"updatedAt"`
	ResolvedAt  *int64    `json:"resolvedAt,omitempty"`
	Comments    []Comment `json:"comments,omitempty"`
}

// UnmarshalJSON acepta "incidentId" o "id" (string o número) y pliega el
// antiguo "imageUrl" como primera imagen.
func (i *Incident) UnmarshalJSON(data []byte) error {
	type alias Incident
	aux := struct {
		*alias
		IncidentID json.RawMessage `json:"incidentId"`
		ID         json.RawMessage `json:"id"`
		ImageURL   string          `json:"imageUrl"`
	}{alias: (*alias)(i)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	i.IncidentID = rawID(aux.IncidentID)
	if i.IncidentID == "" {
		i.IncidentID = rawID(aux.ID)
	}
	if aux.ImageURL != "" && !contains(i.Images, aux.ImageURL) {
		i.Images = append([]string{aux.ImageURL}, i.Images...)
	}
	return nil
}

// AssigneeID devuelve "" si no hay nadie asignado.
func (i Incident) AssigneeID() string {
	if i.AssignedTo == nil {
		return ""
	}
	return i.AssignedTo.ID
}

type CreateIncidentRequest struct {
	Title       string   `json:"title" binding:"required"`
	Description string   `json:"description" binding:"required"`
	Category    string   `json:"category" binding:"required"`
	Priority    Priority `json:"priority" binding:"required"`
	Location    Location `json:"location"`
	Images      []string `json:"images"`
}

type UpdateIncidentRequest struct {
	Status  Status `json:"status" binding:"required"`
	Comment string `json:"comment"`
}

type AssignIncidentRequest struct {
	WorkerID string `json:"workerId" binding:"required"`
}

type CommentRequest struct {
	Comment string `json:"comment"`
}

// ─── Trabajador ───────────────────────────────────────────────────────────────

type WorkerStatus string

const (
	WorkerAvailable WorkerStatus = "available"
	WorkerModerate  WorkerStatus = "moderate"
	WorkerBusy      WorkerStatus = "busy"
)

// Rank ordena available < moderate < busy; estados desconocidos van al final.
func (s WorkerStatus) Rank() int {
	switch s {
	case WorkerAvailable:
		return 0
	case WorkerModerate:
		return 1
	case WorkerBusy:
		return 2
	default:
		return 3
	}
}

type CurrentIncident struct {
	IncidentID string   `json:"incidentId"`
	Title      string   `json:"title"`
	Priority   Priority `json:"priority"`
	Status     Status   `json:"status"`
	AssignedAt int64    `json:"assignedAt"`
}

type WorkerStats struct {
	TotalResolved          int     `json:"totalResolved"`
	AvgResolutionTimeHours float64 `json:"avgResolutionTimeHours"`
	Rating                 float64 `json:"rating"`
}

type Worker struct {
	UserID            string            `json:"userId"`
	Name              string            `json:"name"`
	Email             string            `json:"email"`
	Phone             string            `json:"phone,omitempty"`
	Specialty         string            `json:"specialty"`
	Department        string            `json:"department,omitempty"`
	Status            WorkerStatus      `json:"status"`
	WorkloadPoints    int               `json:"workloadPoints"`
	MaxWorkloadPoints int               `json:"maxWorkloadPoints"`
	ActiveIncidents   int               `json:"activeIncidents"`
	CurrentIncidents  []CurrentIncident `json:"currentIncidents,omitempty"`
	Stats             *WorkerStats      `json:"stats,omitempty"`
}

func (w *Worker) UnmarshalJSON(data []byte) error {
	type alias Worker
	aux := struct {
		*alias
		UserID json.RawMessage `json:"userId"`
		ID     json.RawMessage `json:"id"`
	}{alias: (*alias)(w)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	w.UserID = rawID(aux.UserID)
	if w.UserID == "" {
		w.UserID = rawID(aux.ID)
	}
	return nil
}

type WorkerQuery struct {
	Status    string
	Specialty string
	SortBy    string
	Order     string
}

// ─── Filtros ──────────────────────────────────────────────────────────────────

type Filters struct {
	Status   Status   `json:"status,omitempty" form:"status"`
	Priority Priority `json:"priority,omitempty" form:"priority"`
	Category string   `json:"category,omitempty" form:"category"`
	Search   string   `json:"search,omitempty" form:"search"`
}

func (f Filters) Empty() bool {
	return f.Status == "" && f.Priority == "" && f.Category == "" && strings.TrimSpace(f.Search) == ""
}

// ListQuery son los filtros que viajan al backend en el fetch masivo.
type ListQuery struct {
	Status     Status
	Priority   Priority
	Category   string
	AssignedTo string
}

type Stats struct {
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
	Resolved   int `json:"resolved"`
	Urgent     int `json:"urgent"`
}

// ─── Eventos push ─────────────────────────────────────────────────────────────

type EventType string

const (
	EventIncidentCreated  EventType = "incident_created"
	EventIncidentUpdated  EventType = "incident_updated"
	EventIncidentAssigned EventType = "incident_assigned"
	EventIncidentDeleted  EventType = "incident_deleted"
	EventWorkerUpdated    EventType = "worker_updated"
)

func (t EventType) Known() bool {
	switch t {
	case EventIncidentCreated, EventIncidentUpdated, EventIncidentAssigned,
		EventIncidentDeleted, EventWorkerUpdated:
		return true
	}
	return false
}

// Envelope es un mensaje push ya validado. Exactamente uno de Incident o
// Worker viene poblado según Type.
type Envelope struct {
	Type     EventType `json:"type"`
	Incident *Incident `json:"incident,omitempty"`
	Worker   *Worker   `json:"worker,omitempty"`
}

// EntityID es el id del incidente o del trabajador que trae el sobre.
func (e Envelope) EntityID() string {
	switch {
	case e.Incident != nil:
		return e.Incident.IncidentID
	case e.Worker != nil:
		return e.Worker.UserID
	}
	return ""
}

// ─── Notificaciones ───────────────────────────────────────────────────────────

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

type Notification struct {
	ID        string    `json:"id"`
	Level     Level     `json:"type"`
	Message   string    `json:"message"`
	Event     EventType `json:"event,omitempty"`
	EntityID  string    `json:"entityId,omitempty"`
	CreatedAt int64     `json:"createdAt"`
}

// ─── Respuestas ───────────────────────────────────────────────────────────────

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
