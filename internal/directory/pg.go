package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// dbtx is the subset of *pgxpool.Pool the directory needs.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PgDirectory stores doctors in Postgres. Slot compare-and-swap is a
// conditional UPDATE, which holds across processes.
type PgDirectory struct {
	db dbtx
}

func NewPgDirectory(db dbtx) *PgDirectory {
	if db == nil {
		panic("directory: pgx pool required")
	}
	return &PgDirectory{db: db}
}

const doctorColumns = `id, name, specialization, subspecialties, address, city, state, lat, lng,
	languages, consultation_fee, rating, review_count, years_experience, accepts_insurance, consultation_types`

func scanDoctor(row pgx.Row) (DoctorProfile, error) {
	var p DoctorProfile
	var types []string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Specialization,
		&p.Subspecialties,
		&p.Location.Address,
		&p.Location.City,
		&p.Location.State,
		&p.Location.Lat,
		&p.Location.Lng,
		&p.Languages,
		&p.ConsultationFee,
		&p.Rating,
		&p.ReviewCount,
		&p.YearsExperience,
		&p.AcceptsInsurance,
		&types,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DoctorProfile{}, ErrDoctorNotFound
		}
		return DoctorProfile{}, err
	}

	for _, t := range types {
		p.ConsultationTypes = append(p.ConsultationTypes, ConsultationType(t))
	}
	return p, nil
}

type slotRow struct {
	doctorID string
	date     string
	slot     TimeSlot
}

func scanSlotRow(row pgx.Row) (slotRow, error) {
	var r slotRow
	var status string

	err := row.Scan(&r.doctorID, &r.date, &r.slot.ID, &r.slot.Start, &r.slot.End, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return slotRow{}, ErrSlotNotFound
		}
		return slotRow{}, err
	}
	r.slot.Status = SlotStatus(status)
	return r, nil
}

func (d *PgDirectory) GetByID(ctx context.Context, id string) (DoctorProfile, error) {
	p, err := scanDoctor(d.db.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE id = $1
	`, id))
	if err != nil {
		return DoctorProfile{}, err
	}

	slots, err := d.querySlots(ctx, `
		SELECT doctor_id, slot_date, slot_id, start_time, end_time, status
		FROM doctor_slots
		WHERE doctor_id = $1
		ORDER BY slot_date, start_time, slot_id
	`, id)
	if err != nil {
		return DoctorProfile{}, err
	}
	attachSlots(&p, slots)
	return p, nil
}

func (d *PgDirectory) ListAll(ctx context.Context) ([]DoctorProfile, error) {
	rows, err := d.db.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	defer rows.Close()

	var result []DoctorProfile
	index := make(map[string]int)
	for rows.Next() {
		p, err := scanDoctor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan doctor: %w", err)
		}
		index[p.ID] = len(result)
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slots, err := d.querySlots(ctx, `
		SELECT doctor_id, slot_date, slot_id, start_time, end_time, status
		FROM doctor_slots
		ORDER BY doctor_id, slot_date, start_time, slot_id
	`)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]slotRow)
	for _, s := range slots {
		grouped[s.doctorID] = append(grouped[s.doctorID], s)
	}
	for id, i := range index {
		attachSlots(&result[i], grouped[id])
	}
	return result, nil
}

func (d *PgDirectory) querySlots(ctx context.Context, sql string, args ...any) ([]slotRow, error) {
	rows, err := d.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	var out []slotRow
	for rows.Next() {
		r, err := scanSlotRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// attachSlots groups rows, already ordered by date, into windows.
func attachSlots(p *DoctorProfile, rows []slotRow) {
	for _, r := range rows {
		n := len(p.Availability)
		if n == 0 || p.Availability[n-1].Date != r.date {
			p.Availability = append(p.Availability, AvailabilityWindow{Date: r.date})
			n++
		}
		p.Availability[n-1].Slots = append(p.Availability[n-1].Slots, r.slot)
	}
}

func (d *PgDirectory) GetSlot(ctx context.Context, ref SlotRef) (TimeSlot, error) {
	r, err := scanSlotRow(d.db.QueryRow(ctx, `
		SELECT doctor_id, slot_date, slot_id, start_time, end_time, status
		FROM doctor_slots
		WHERE doctor_id = $1 AND slot_date = $2 AND slot_id = $3
	`, ref.DoctorID, ref.Date, ref.SlotID))
	if err != nil {
		return TimeSlot{}, err
	}
	return r.slot, nil
}

func (d *PgDirectory) SetSlotStatus(ctx context.Context, ref SlotRef, from, to SlotStatus) error {
	ct, err := d.db.Exec(ctx, `
		UPDATE doctor_slots
		SET status = $4,
		    updated_at = now()
		WHERE doctor_id = $1
		  AND slot_date = $2
		  AND slot_id = $3
		  AND status = $5
	`, ref.DoctorID, ref.Date, ref.SlotID, string(to), string(from))
	if err != nil {
		return fmt.Errorf("set slot status: %w", err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	// Nothing updated: either the slot is missing or someone else moved it.
	if _, err := d.GetSlot(ctx, ref); err != nil {
		return err
	}
	return ErrSlotConflict
}

// Upsert writes profile fields and inserts new slots as open. Existing slots
// keep their status; open slots missing from the profile are removed.
func (d *PgDirectory) Upsert(ctx context.Context, p DoctorProfile) error {
	if p.ID == "" {
		return errMissingID
	}

	tx, err := d.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	types := make([]string, 0, len(p.ConsultationTypes))
	for _, t := range p.ConsultationTypes {
		types = append(types, string(t))
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO doctors (`+doctorColumns+`, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			specialization = EXCLUDED.specialization,
			subspecialties = EXCLUDED.subspecialties,
			address = EXCLUDED.address,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			languages = EXCLUDED.languages,
			consultation_fee = EXCLUDED.consultation_fee,
			rating = EXCLUDED.rating,
			review_count = EXCLUDED.review_count,
			years_experience = EXCLUDED.years_experience,
			accepts_insurance = EXCLUDED.accepts_insurance,
			consultation_types = EXCLUDED.consultation_types,
			updated_at = now()
	`, p.ID, p.Name, p.Specialization, nonNil(p.Subspecialties), p.Location.Address, p.Location.City,
		p.Location.State, p.Location.Lat, p.Location.Lng, nonNil(p.Languages), p.ConsultationFee,
		p.Rating, p.ReviewCount, p.YearsExperience, p.AcceptsInsurance, types)
	if err != nil {
		return fmt.Errorf("upsert doctor: %w", err)
	}

	keep := []string{}
	for _, w := range p.Availability {
		for _, s := range w.Slots {
			_, err := tx.Exec(ctx, `
				INSERT INTO doctor_slots (doctor_id, slot_date, slot_id, start_time, end_time, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, 'open', now(), now())
				ON CONFLICT (doctor_id, slot_date, slot_id) DO UPDATE SET
					start_time = EXCLUDED.start_time,
					end_time = EXCLUDED.end_time,
					updated_at = now()
			`, p.ID, w.Date, s.ID, s.Start, s.End)
			if err != nil {
				return fmt.Errorf("upsert slot %s/%s: %w", w.Date, s.ID, err)
			}
			keep = append(keep, w.Date+"/"+s.ID)
		}
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM doctor_slots
		WHERE doctor_id = $1
		  AND status = 'open'
		  AND NOT ((slot_date || '/' || slot_id) = ANY($2))
	`, p.ID, keep)
	if err != nil {
		return fmt.Errorf("prune slots: %w", err)
	}

	return tx.Commit(ctx)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
