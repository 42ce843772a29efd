package notify

import (
	"fmt"

	"github.com/utec/campusdesk/internal/models"
	"github.com/utec/campusdesk/internal/workflow"
)

// Notify decide si un sobre produce un aviso para quien mira la lista.
//
// Reglas de negocio por tipo:
//
//	incident_created  → admin y worker (el que reporta no recibe aviso aparte)
//	incident_assigned → admin; worker solo si es el asignado
//	incident_updated  → admin; el asignado; el que reportó
//	incident_deleted  → solo admin
//	worker_updated    → solo admin
//
// El resultado no tiene ID ni CreatedAt: eso lo pone la Queue.
func Notify(env models.Envelope, viewer models.Viewer) (models.Notification, bool) {
	admin := viewer.Role == models.RoleAdmin

	switch env.Type {
	case models.EventIncidentCreated:
		if env.Incident == nil || (!admin && viewer.Role != models.RoleWorker) {
			return models.Notification{}, false
		}
		inc := env.Incident
		return build(env, models.LevelInfo, fmt.Sprintf("Nuevo incidente reportado: %s (%s)",
			inc.Title, workflow.PriorityLabel(inc.Priority))), true

	case models.EventIncidentAssigned:
		if env.Incident == nil {
			return models.Notification{}, false
		}
		inc := env.Incident
		if admin {
			who := "un trabajador"
			if inc.AssignedTo != nil {
				who = inc.AssignedTo.DisplayName()
			}
			return build(env, models.LevelInfo, fmt.Sprintf("Incidente %q asignado a %s", inc.Title, who)), true
		}
		if viewer.Role == models.RoleWorker && isAssignee(inc, viewer.ID) {
			return build(env, models.LevelWarning, fmt.Sprintf("Se te asignó el incidente: %s", inc.Title)), true
		}
		return models.Notification{}, false

	case models.EventIncidentUpdated:
		if env.Incident == nil {
			return models.Notification{}, false
		}
		inc := env.Incident
		msg := fmt.Sprintf("Incidente %q ahora está %s", inc.Title, workflow.Label(inc.Status))
		switch {
		case admin:
			return build(env, models.LevelInfo, msg), true
		case isAssignee(inc, viewer.ID):
			return build(env, models.LevelInfo, msg), true
		case viewer.ID != "" && inc.ReportedBy.ID == viewer.ID:
			return build(env, models.LevelSuccess, fmt.Sprintf("Tu reporte %q ahora está %s", inc.Title, workflow.Label(inc.Status))), true
		}
		return models.Notification{}, false

	case models.EventIncidentDeleted:
		if !admin || env.Incident == nil {
			return models.Notification{}, false
		}
		return build(env, models.LevelWarning, fmt.Sprintf("Incidente eliminado: %s", titleOrID(env.Incident))), true

	case models.EventWorkerUpdated:
		if !admin || env.Worker == nil {
			return models.Notification{}, false
		}
		w := env.Worker
		return build(env, models.LevelInfo, fmt.Sprintf("%s ahora está %s (%d/%d pts)",
			w.Name, workerStatusLabel(w.Status), w.WorkloadPoints, w.MaxWorkloadPoints)), true
	}
	return models.Notification{}, false
}

func isAssignee(inc *models.Incident, id string) bool {
	return id != "" && inc.AssigneeID() == id
}

func build(env models.Envelope, level models.Level, msg string) models.Notification {
	return models.Notification{
		Level:    level,
		Message:  msg,
		Event:    env.Type,
		EntityID: env.EntityID(),
	}
}

func titleOrID(inc *models.Incident) string {
	if inc.Title != "" {
		return inc.Title
	}
	return inc.IncidentID
}

func workerStatusLabel(s models.WorkerStatus) string {
	switch s {
	case models.WorkerAvailable:
		return "Disponible"
	case models.WorkerModerate:
		return "Moderado"
	case models.WorkerBusy:
		return "Ocupado"
	}
	return string(s)
}
