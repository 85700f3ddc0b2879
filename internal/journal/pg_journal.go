package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/petclinic-scheduling/internal/appointment"
)

const schema = `
CREATE TABLE IF NOT EXISTS scheduling_events (
	id             BIGSERIAL PRIMARY KEY,
	event_type     TEXT        NOT NULL,
	appointment_id TEXT,
	clinic_id      TEXT,
	payload        JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS scheduling_events_appointment_idx ON scheduling_events (appointment_id);
CREATE INDEX IF NOT EXISTS scheduling_events_created_idx ON scheduling_events (created_at);
`

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Entry is one journaled scheduling event as read back from Postgres.
type Entry struct {
	ID            int64           `json:"id"`
	EventType     string          `json:"event_type"`
	AppointmentID string          `json:"appointment_id,omitempty"`
	ClinicID      string          `json:"clinic_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// PgJournal stores scheduling events in Postgres.
type PgJournal struct {
	db db
}

func NewPgJournal(db db) *PgJournal {
	return &PgJournal{db: db}
}

func (j *PgJournal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure journal schema: %w", err)
	}
	return nil
}

func (j *PgJournal) InsertEvent(ctx context.Context, ev appointment.EventLog) error {
	var payload []byte
	if ev.Payload != nil {
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
		payload = data
	}

	_, err := j.db.Exec(ctx, `
		INSERT INTO scheduling_events (event_type, appointment_id, clinic_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, nullableString(ev.AppointmentID), nullableString(ev.ClinicID), payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

// ListByAppointment returns the newest events of one appointment first.
func (j *PgJournal) ListByAppointment(ctx context.Context, appointmentID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	rows, err := j.db.Query(ctx, `
		SELECT id, event_type, COALESCE(appointment_id, ''), COALESCE(clinic_id, ''),
		       COALESCE(payload, '{}'::jsonb), created_at
		FROM scheduling_events
		WHERE appointment_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, appointmentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		var e Entry
		var payload []byte
		if err := rows.Scan(&e.ID, &e.EventType, &e.AppointmentID, &e.ClinicID, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Payload = payload
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Prune deletes events older than before and reports how many went.
func (j *PgJournal) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := j.db.Exec(ctx, `DELETE FROM scheduling_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
