package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utec/campusdesk/internal/models"
)

// DecodeError describe un mensaje push que no se puede convertir en sobre.
type DecodeError struct {
	Type   string
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return "sobre inválido: " + e.Reason
	}
	return fmt.Sprintf("sobre inválido (%s): %s", e.Type, e.Reason)
}

type wireEnvelope struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Payload json.RawMessage `json:"payload"`
}

// Decode valida un mensaje {type, data} y lo convierte en models.Envelope.
func Decode(raw []byte) (models.Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(raw, &w); err != nil {
		return models.Envelope{}, &DecodeError{Reason: "json: " + err.Error()}
	}
	if strings.TrimSpace(w.Type) == "" {
		return models.Envelope{}, &DecodeError{Reason: "falta type"}
	}
	typ := NormalizeType(w.Type)
	if !typ.Known() {
		return models.Envelope{}, &DecodeError{Type: w.Type, Reason: "type desconocido"}
	}

	data := w.Data
	if isEmpty(data) {
		data = w.Payload
	}
	if isEmpty(data) || bytes.TrimSpace(data)[0] != '{' {
		return models.Envelope{}, &DecodeError{Type: w.Type, Reason: "payload no es un objeto"}
	}

	env := models.Envelope{Type: typ}
	if typ == models.EventWorkerUpdated {
		var wk models.Worker
		if err := json.Unmarshal(data, &wk); err != nil {
			return models.Envelope{}, &DecodeError{Type: w.Type, Reason: err.Error()}
		}
		if wk.UserID == "" {
			return models.Envelope{}, &DecodeError{Type: w.Type, Reason: "payload sin userId"}
		}
		env.Worker = &wk
		return env, nil
	}

	var inc models.Incident
	if err := json.Unmarshal(data, &inc); err != nil {
		return models.Envelope{}, &DecodeError{Type: w.Type, Reason: err.Error()}
	}
	if inc.IncidentID == "" {
		return models.Envelope{}, &DecodeError{Type: w.Type, Reason: "payload sin incidentId"}
	}
	env.Incident = &inc
	return env, nil
}

var aliases = map[string]models.EventType{
	"entity_created":  models.EventIncidentCreated,
	"entity_updated":  models.EventIncidentUpdated,
	"entity_assigned": models.EventIncidentAssigned,
	"entity_deleted":  models.EventIncidentDeleted,
	"new_incident":    models.EventIncidentCreated,
	"incident_status": models.EventIncidentUpdated,
	"worker_status":   models.EventWorkerUpdated,
}

// NormalizeType acepta INCIDENT_CREATED, incident.created, incident-created
// y los alias entity-* como el mismo tipo.
func NormalizeType(s string) models.EventType {
	t := strings.ToLower(strings.TrimSpace(s))
	t = strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(t)
	if a, ok := aliases[t]; ok {
		return a
	}
	return models.EventType(t)
}

func isEmpty(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// ─── Dispatcher ───────────────────────────────────────────────────────────────

// Dispatcher decodifica mensajes del canal push y entrega solo los válidos.
// Los errores se registran y se descartan: el canal sigue corriendo.
type Dispatcher struct {
	Handle func(models.Envelope)
	Log    *slog.Logger

	dropped int
}

func (d *Dispatcher) Dispatch(raw []byte) {
	env, err := Decode(raw)
	if err != nil {
		d.dropped++
		d.logger().Warn("mensaje push descartado", "error", err, "descartados", d.dropped)
		return
	}
	if d.Handle != nil {
		d.Handle(env)
	}
}

// Dropped cuenta los mensajes descartados desde la creación.
func (d *Dispatcher) Dropped() int { return d.dropped }

func (d *Dispatcher) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}
