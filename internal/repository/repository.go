package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/utec/campusdesk/internal/models"
)

// ─── Journal ──────────────────────────────────────────────────────────────────
// JournalRepo guarda cada sobre aplicado y cada aviso emitido. Es opcional
// (JOURNAL_ENABLED) y solo sirve para auditoría: el store nunca lo lee.

type JournalRepo struct{ db *sqlx.DB }

func NewJournalRepo(db *sqlx.DB) *JournalRepo { return &JournalRepo{db: db} }

const schema = `
CREATE TABLE IF NOT EXISTS journal_envelopes (
	id          BIGSERIAL PRIMARY KEY,
	type        TEXT        NOT NULL,
	entity_id   TEXT        NOT NULL,
	payload     JSONB       NOT NULL,
	received_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS journal_envelopes_entity_idx ON journal_envelopes (entity_id);

CREATE TABLE IF NOT EXISTS journal_notifications (
	id         TEXT PRIMARY KEY,
	level      TEXT   NOT NULL,
	message    TEXT   NOT NULL,
	event      TEXT   NOT NULL DEFAULT '',
	entity_id  TEXT   NOT NULL DEFAULT '',
	created_at BIGINT NOT NULL
);
`

// Migrate crea las tablas si no existen.
func (r *JournalRepo) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// EnvelopeRecord es una fila de journal_envelopes.
type EnvelopeRecord struct {
	ID         int64           `db:"id" json:"id"`
	Type       string          `db:"type" json:"type"`
	EntityID   string          `db:"entity_id" json:"entityId"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	ReceivedAt time.Time       `db:"received_at" json:"receivedAt"`
}

type notificationRow struct {
	ID        string `db:"id"`
	Level     string `db:"level"`
	Message   string `db:"message"`
	Event     string `db:"event"`
	EntityID  string `db:"entity_id"`
	CreatedAt int64  `db:"created_at"`
}

func (r *JournalRepo) RecordEnvelope(ctx context.Context, env models.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO journal_envelopes (type, entity_id, payload)
		VALUES ($1, $2, $3)
	`, string(env.Type), env.EntityID(), string(payload))
	return err
}

func (r *JournalRepo) RecordNotification(ctx context.Context, n models.Notification) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO journal_notifications (id, level, message, event, entity_id, created_at)
		VALUES (:id, :level, :message, :event, :entity_id, :created_at)
		ON CONFLICT (id) DO NOTHING
	`, toRow(n))
	return err
}

// RecentEnvelopes devuelve los últimos sobres, del más nuevo al más viejo.
// entityID vacío no filtra.
func (r *JournalRepo) RecentEnvelopes(ctx context.Context, entityID string, limit int) ([]EnvelopeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	lista := []EnvelopeRecord{}
	err := r.db.SelectContext(ctx, &lista, `
		SELECT id, type, entity_id, payload, received_at
		FROM journal_envelopes
		WHERE $1 = '' OR entity_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, entityID, limit)
	return lista, err
}

// RecentNotifications devuelve los últimos avisos registrados.
func (r *JournalRepo) RecentNotifications(ctx context.Context, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []notificationRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, level, message, event, entity_id, created_at
		FROM journal_notifications
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	out := make([]models.Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.notification())
	}
	return out, nil
}

func toRow(n models.Notification) notificationRow {
	return notificationRow{
		ID:        n.ID,
		Level:     string(n.Level),
		Message:   n.Message,
		Event:     string(n.Event),
		EntityID:  n.EntityID,
		CreatedAt: n.CreatedAt,
	}
}

func (row notificationRow) notification() models.Notification {
	return models.Notification{
		ID:        row.ID,
		Level:     models.Level(row.Level),
		Message:   row.Message,
		Event:     models.EventType(row.Event),
		EntityID:  row.EntityID,
		CreatedAt: row.CreatedAt,
	}
}
