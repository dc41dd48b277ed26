package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	activeSlotConstraint = "appointments_active_slot_uniq"
)

// dbtx is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txBeginner interface {
	dbtx
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	pgStore
	pool txBeginner
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	if pool == nil {
		panic("appointment: pgx pool required")
	}
	return newPgRepositoryWithDB(pool)
}

func newPgRepositoryWithDB(db txBeginner) *PgRepository {
	return &PgRepository{pgStore: pgStore{q: db}, pool: db}
}

func (r *PgRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(ctx, pgStore{q: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// pgStore implements Store over either the pool or a transaction.
type pgStore struct {
	q dbtx
}

// Helpers

const appointmentColumns = `id, patient_id, dentist_id, to_char(date, 'YYYY-MM-DD'), to_char(time, 'HH24:MI'),
	status, COALESCE(reason, ''), created_at, updated_at`

const patientColumns = `id, name, COALESCE(email, ''), COALESCE(phone, ''), created_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DentistID,
		&a.Date,
		&a.Time,
		&a.Status,
		&a.Reason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanDentist(row pgx.Row) (*Dentist, error) {
	var d Dentist
	if err := row.Scan(&d.ID, &d.Name, &d.Specialization); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDentistNotFound
		}
		return nil, err
	}
	return &d, nil
}

func collectPatients(rows pgx.Rows, err error) ([]Patient, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func collectAppointments(rows pgx.Rows, err error) ([]Appointment, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// translateWriteError maps constraint violations onto domain errors.
func translateWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == activeSlotConstraint:
		return ErrSlotTaken
	case pgErr.Code == pgForeignKeyViolation:
		return ErrDentistNotFound
	}
	return err
}

// nullable sends empty strings as SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Store methods

func (s pgStore) BookedTimes(ctx context.Context, date string, dentistID int64) ([]string, error) {
	rows, err := s.q.Query(ctx, `
		SELECT to_char(time, 'HH24:MI')
		FROM appointments
		WHERE date = $1::date
		  AND dentist_id = $2
		  AND status = 'booked'
	`, date, dentistID)
	if err != nil {
		return nil, fmt.Errorf("query booked times: %w", err)
	}
	defer rows.Close()

	var times []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan booked time: %w", err)
		}
		times = append(times, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate booked times: %w", err)
	}
	return times, nil
}

func (s pgStore) FindPatients(ctx context.Context, name, email string) ([]Patient, error) {
	patients, err := collectPatients(s.q.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE name = $1
		  AND ($2::text IS NULL OR email = $2::text)
		ORDER BY id DESC
	`, name, nullable(email)))
	if err != nil {
		return nil, fmt.Errorf("find patients: %w", err)
	}
	return patients, nil
}

func (s pgStore) FindPatientsByEmail(ctx context.Context, email string) ([]Patient, error) {
	patients, err := collectPatients(s.q.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE email = $1
		ORDER BY id
	`, email))
	if err != nil {
		return nil, fmt.Errorf("find patients by email: %w", err)
	}
	return patients, nil
}

func (s pgStore) CreatePatient(ctx context.Context, name, email string) (*Patient, error) {
	row := s.q.QueryRow(ctx, `
		INSERT INTO patients (name, email, phone, created_at)
		VALUES ($1, $2, '', now())
		RETURNING `+patientColumns,
		name, nullable(email))

	p, err := scanPatient(row)
	if err != nil {
		return nil, fmt.Errorf("insert patient: %w", err)
	}
	return p, nil
}

func (s pgStore) ActiveAppointmentsForPatients(ctx context.Context, patientIDs []int64, date, slot string) ([]Appointment, error) {
	if len(patientIDs) == 0 {
		return nil, nil
	}
	appts, err := collectAppointments(s.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = ANY($1)
		  AND status = 'booked'
		  AND ($2::date IS NULL OR date = $2::date)
		  AND ($3::time IS NULL OR time = $3::time)
		ORDER BY date, time, id
		FOR UPDATE
	`, patientIDs, nullable(date), nullable(slot)))
	if err != nil {
		return nil, fmt.Errorf("list active appointments: %w", err)
	}
	return appts, nil
}

func (s pgStore) GetActiveAppointment(ctx context.Context, id int64) (*Appointment, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		  AND status = 'booked'
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (s pgStore) CreateAppointment(ctx context.Context, appt NewAppointment) (*Appointment, error) {
	row := s.q.QueryRow(ctx, `
		INSERT INTO appointments (patient_id, dentist_id, date, time, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3::date, $4::time, 'booked', $5, now(), now())
		RETURNING `+appointmentColumns,
		appt.PatientID, appt.DentistID, appt.Date, appt.Time, nullable(string(appt.Reason)))

	created, err := scanAppointment(row)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", translateWriteError(err))
	}
	return created, nil
}

func (s pgStore) MoveAppointment(ctx context.Context, id, dentistID int64, date, slot string) (*Appointment, error) {
	row := s.q.QueryRow(ctx, `
		UPDATE appointments
		SET date = $2::date,
		    time = $3::time,
		    dentist_id = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'booked'
		RETURNING `+appointmentColumns,
		id, date, slot, dentistID)

	moved, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("move appointment: %w", translateWriteError(err))
	}
	return moved, nil
}

func (s pgStore) LockEmail(ctx context.Context, email string) error {
	_, err := s.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "patient-email:"+email)
	if err != nil {
		return fmt.Errorf("advisory lock email: %w", err)
	}
	return nil
}

func (s pgStore) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Directory reads

func (r *PgRepository) GetDentist(ctx context.Context, id int64) (*Dentist, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, specialization
		FROM dentists
		WHERE id = $1
	`, id)
	return scanDentist(row)
}

func (r *PgRepository) ListDentists(ctx context.Context) ([]Dentist, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, name, specialization
		FROM dentists
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list dentists: %w", err)
	}
	defer rows.Close()

	var result []Dentist
	for rows.Next() {
		d, err := scanDentist(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) ListPatients(ctx context.Context) ([]Patient, error) {
	patients, err := collectPatients(r.q.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		ORDER BY name, id
	`))
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return patients, nil
}

func (r *PgRepository) ListAppointments(ctx context.Context, limit, offset int) ([]AppointmentDetail, error) {
	rows, err := r.q.Query(ctx, `
		SELECT a.id, a.patient_id, a.dentist_id, to_char(a.date, 'YYYY-MM-DD'), to_char(a.time, 'HH24:MI'),
		       a.status, COALESCE(a.reason, ''), a.created_at, a.updated_at,
		       p.name, COALESCE(p.email, ''), COALESCE(p.phone, ''),
		       d.name, d.specialization
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN dentists d ON d.id = a.dentist_id
		ORDER BY a.date DESC, a.time DESC, a.id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		var d AppointmentDetail
		if err := rows.Scan(
			&d.ID,
			&d.PatientID,
			&d.DentistID,
			&d.Date,
			&d.Time,
			&d.Status,
			&d.Reason,
			&d.CreatedAt,
			&d.UpdatedAt,
			&d.Patient.Name,
			&d.Patient.Email,
			&d.Patient.Phone,
			&d.Dentist.Name,
			&d.Dentist.Specialization,
		); err != nil {
			return nil, fmt.Errorf("scan appointment detail: %w", err)
		}
		d.Patient.ID = d.PatientID
		d.Dentist.ID = d.DentistID
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
