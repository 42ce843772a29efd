// Package reconcile aplica sobres push y resultados de mutaciones locales a
// las listas en memoria. Todas las funciones son puras: devuelven una lista
// nueva y nunca modifican la recibida.
package reconcile

import "github.com/utec/campusdesk/internal/models"

// Incidents aplica un sobre a la lista de incidentes.
//
//	created           → al inicio si el id no existe; si existe, se trata como update
//	updated, assigned → reemplaza por id; si no existe se inserta al inicio
//	deleted           → quita por id; sin cambios si no existe
//
// Un snapshot con updatedAt anterior al que ya está en la lista se ignora, y
// un created sobre una fila existente solo la reemplaza si ambos traen
// updatedAt y el suyo es estrictamente más nuevo.
func Incidents(list []models.Incident, env models.Envelope) []models.Incident {
	if env.Incident == nil {
		return clone(list)
	}
	inc := *env.Incident
	switch env.Type {
	case models.EventIncidentCreated, models.EventIncidentUpdated, models.EventIncidentAssigned:
		return upsert(list, inc, env.Type)
	case models.EventIncidentDeleted:
		return remove(list, inc.IncidentID)
	default:
		return clone(list)
	}
}

// Mutation aplica la respuesta REST de una mutación local por el mismo camino
// que un incident_updated. Un push posterior para el mismo id es un replay
// idempotente.
func Mutation(list []models.Incident, inc models.Incident) []models.Incident {
	return Incidents(list, models.Envelope{Type: models.EventIncidentUpdated, Incident: &inc})
}

// Workers aplica worker_updated; cualquier otro tipo deja la lista igual.
func Workers(list []models.Worker, env models.Envelope) []models.Worker {
	out := make([]models.Worker, len(list), len(list)+1)
	copy(out, list)
	if env.Type != models.EventWorkerUpdated || env.Worker == nil {
		return out
	}
	for i := range out {
		if out[i].UserID == env.Worker.UserID {
			out[i] = *env.Worker
			return out
		}
	}
	return append(out, *env.Worker)
}

// Detail refresca la vista de detalle abierta al mismo paso que la lista.
// Devuelve el nuevo snapshot y si la vista debe cerrarse.
func Detail(selected *models.Incident, env models.Envelope) (*models.Incident, bool) {
	if selected == nil || env.Incident == nil || env.Incident.IncidentID != selected.IncidentID {
		return selected, false
	}
	switch env.Type {
	case models.EventIncidentDeleted:
		return nil, true
	case models.EventIncidentCreated, models.EventIncidentUpdated, models.EventIncidentAssigned:
		if !supersedes(*selected, *env.Incident, env.Type) {
			return selected, false
		}
		snap := *env.Incident
		return &snap, false
	}
	return selected, false
}

// supersedes decide si next reemplaza a cur para el mismo id.
func supersedes(cur, next models.Incident, typ models.EventType) bool {
	if cur.UpdatedAt != 0 && next.UpdatedAt != 0 && next.UpdatedAt < cur.UpdatedAt {
		return false
	}
	if typ == models.EventIncidentCreated {
		return cur.UpdatedAt != 0 && next.UpdatedAt > cur.UpdatedAt
	}
	return true
}

// Stale indica si el reconciliador descartaría el snapshot del sobre porque
// la fila existente es más nueva. Los borrados y los ids ausentes nunca son
// stale.
func Stale(list []models.Incident, env models.Envelope) bool {
	if env.Incident == nil {
		return false
	}
	switch env.Type {
	case models.EventIncidentCreated, models.EventIncidentUpdated, models.EventIncidentAssigned:
	default:
		return false
	}
	for i := range list {
		if list[i].IncidentID == env.Incident.IncidentID {
			return !supersedes(list[i], *env.Incident, env.Type)
		}
	}
	return false
}

func upsert(list []models.Incident, inc models.Incident, typ models.EventType) []models.Incident {
	for i := range list {
		if list[i].IncidentID == inc.IncidentID {
			out := clone(list)
			if !supersedes(list[i], inc, typ) {
				return out
			}
			out[i] = inc
			return out
		}
	}
	out := make([]models.Incident, 0, len(list)+1)
	out = append(out, inc)
	return append(out, list...)
}

func remove(list []models.Incident, id string) []models.Incident {
	out := make([]models.Incident, 0, len(list))
	for _, inc := range list {
		if inc.IncidentID != id {
			out = append(out, inc)
		}
	}
	return out
}

func clone(list []models.Incident) []models.Incident {
	out := make([]models.Incident, len(list))
	copy(out, list)
	return out
}
