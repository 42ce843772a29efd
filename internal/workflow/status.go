// Package workflow contiene la progresión de estados que la interfaz ofrece
// al usuario. Es solo una ayuda visual: el backend es quien valida.
package workflow

import (
	"fmt"
	"strings"

	"github.com/utec/campusdesk/internal/models"
)

var next = map[models.Status]models.Status{
	models.StatusPending:    models.StatusAssigned,
	models.StatusAssigned:   models.StatusInProgress,
	models.StatusInProgress: models.StatusResolved,
	models.StatusResolved:   models.StatusClosed,
	models.StatusClosed:     models.StatusClosed,
}

// Next devuelve el siguiente estado. closed es terminal y un estado
// desconocido se devuelve tal cual.
func Next(s models.Status) models.Status {
	if n, ok := next[s]; ok {
		return n
	}
	return s
}

// CanAdvance indica si la acción "avanzar" debe habilitarse.
func CanAdvance(s models.Status) bool {
	return Next(s) != s
}

var labels = map[models.Status]string{
	models.StatusPending:    "Pendiente",
	models.StatusAssigned:   "Asignado",
	models.StatusInProgress: "En Progreso",
	models.StatusResolved:   "Resuelto",
	models.StatusClosed:     "Cerrado",
}

func Label(s models.Status) string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

var priorityLabels = map[models.Priority]string{
	models.PriorityLow:    "Baja",
	models.PriorityMedium: "Media",
	models.PriorityHigh:   "Alta",
	models.PriorityUrgent: "Urgente",
}

func PriorityLabel(p models.Priority) string {
	if l, ok := priorityLabels[p]; ok {
		return l
	}
	return string(p)
}

// PriorityRank: low < medium < high < urgent. Solo para énfasis visual.
func PriorityRank(p models.Priority) int {
	switch p {
	case models.PriorityLow:
		return 1
	case models.PriorityMedium:
		return 2
	case models.PriorityHigh:
		return 3
	case models.PriorityUrgent:
		return 4
	}
	return 0
}

// ValidationError bloquea una acción antes de cualquier llamada de red.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidateTransition exige un comentario no vacío y que el estado pueda
// avanzar. Devuelve el estado destino.
func ValidateTransition(current models.Status, comment string) (models.Status, error) {
	if strings.TrimSpace(comment) == "" {
		return current, &ValidationError{Field: "comment", Reason: "el comentario es obligatorio"}
	}
	if !CanAdvance(current) {
		return current, &ValidationError{Field: "status", Reason: fmt.Sprintf("el estado %q no admite más cambios", current)}
	}
	return Next(current), nil
}

// ValidateStatusChange es la variante con destino explícito: solo se acepta
// el mismo estado o el siguiente.
func ValidateStatusChange(current, target models.Status, comment string) error {
	if strings.TrimSpace(comment) == "" {
		return &ValidationError{Field: "comment", Reason: "el comentario es obligatorio"}
	}
	if _, ok := next[target]; !ok {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("estado desconocido %q", target)}
	}
	if target != current && target != Next(current) {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("no se puede pasar de %q a %q", current, target)}
	}
	return nil
}
