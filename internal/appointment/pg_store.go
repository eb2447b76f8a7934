package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/hackgods/doctor-scheduling/internal/directory"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore keeps appointments in Postgres. The status history is a JSONB array
// appended in the same statement that moves the status, so the conditional
// update and the history entry commit together.
type PgStore struct {
	db dbtx
}

func NewPgStore(db dbtx) *PgStore {
	if db == nil {
		panic("appointment: pgx pool required")
	}
	return &PgStore{db: db}
}

const appointmentColumns = `id, doctor_id, patient_id, slot_date, slot_id, slot_start, slot_end,
	consultation_type, status, fee_snapshot, created_at, updated_at, history,
	cancellation_reason, supersedes, superseded_by`

// Helpers

func scanAppointment(row pgx.Row) (Appointment, error) {
	var a Appointment
	var consult, status string
	var history []byte
	var supersedes, supersededBy pgtype.UUID

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Slot.Date,
		&a.Slot.SlotID,
		&a.SlotStart,
		&a.SlotEnd,
		&consult,
		&status,
		&a.FeeSnapshot,
		&a.CreatedAt,
		&a.UpdatedAt,
		&history,
		&a.CancellationReason,
		&supersedes,
		&supersededBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Appointment{}, ErrAppointmentNotFound
		}
		return Appointment{}, err
	}

	a.Slot.DoctorID = a.DoctorID
	a.ConsultationType = directory.ConsultationType(consult)
	a.Status = Status(status)
	a.Supersedes = fromPGUUID(supersedes)
	a.SupersededBy = fromPGUUID(supersededBy)
	if len(history) > 0 {
		if err := json.Unmarshal(history, &a.History); err != nil {
			return Appointment{}, fmt.Errorf("decode history: %w", err)
		}
	}
	return a, nil
}

func toPGUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: [16]byte(*id), Valid: true}
}

func fromPGUUID(u pgtype.UUID) *uuid.UUID {
	if !u.Valid {
		return nil
	}
	id := uuid.UUID(u.Bytes)
	return &id
}

// Interface methods

func (s *PgStore) Create(ctx context.Context, a Appointment) error {
	history, err := json.Marshal(a.History)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb, $14, $15, $16)
	`, a.ID, a.DoctorID, a.PatientID, a.Slot.Date, a.Slot.SlotID, a.SlotStart, a.SlotEnd,
		string(a.ConsultationType), string(a.Status), a.FeeSnapshot, a.CreatedAt, a.UpdatedAt,
		string(history), a.CancellationReason, toPGUUID(a.Supersedes), toPGUUID(a.SupersededBy))
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (s *PgStore) Get(ctx context.Context, id uuid.UUID) (Appointment, error) {
	return scanAppointment(s.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
}

func (s *PgStore) UpdateStatus(ctx context.Context, id uuid.UUID, t Transition) (Appointment, error) {
	entry, err := json.Marshal([]StatusChange{t.Change})
	if err != nil {
		return Appointment{}, fmt.Errorf("encode history entry: %w", err)
	}

	a, err := scanAppointment(s.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    history = history || $3::jsonb,
		    cancellation_reason = COALESCE(NULLIF($4::text, ''), cancellation_reason),
		    superseded_by = COALESCE($5, superseded_by),
		    updated_at = $6
		WHERE id = $1
		  AND status = $7
		RETURNING `+appointmentColumns,
		id, string(t.Change.Status), string(entry), t.CancellationReason,
		toPGUUID(t.SupersededBy), t.Change.At, string(t.From)))
	if errors.Is(err, ErrAppointmentNotFound) {
		// no row matched: missing, or the status moved under us
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return Appointment{}, getErr
		}
		return Appointment{}, errStaleStatus
	}
	if err != nil {
		return Appointment{}, fmt.Errorf("update appointment status: %w", err)
	}
	return a, nil
}

func (s *PgStore) List(ctx context.Context, f Filter) ([]Appointment, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.PatientID != "" {
		add("patient_id = $%d", f.PatientID)
	}
	if f.DoctorID != "" {
		add("doctor_id = $%d", f.DoctorID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.From != "" {
		add("slot_date >= $%d", f.From)
	}
	if f.To != "" {
		add("slot_date <= $%d", f.To)
	}

	sql := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY slot_start, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		sql += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		sql += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	return s.query(ctx, sql, args...)
}

func (s *PgStore) PendingSupersessions(ctx context.Context) ([]Appointment, error) {
	return s.query(ctx, `
		SELECT `+prefixed("n", appointmentColumns)+`
		FROM appointments n
		JOIN appointments o ON o.id = n.supersedes
		WHERE n.status IN ('scheduled', 'confirmed')
		  AND o.status IN ('scheduled', 'confirmed')
		ORDER BY n.slot_start, n.id
	`)
}

func (s *PgStore) query(ctx context.Context, sql string, args ...any) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
