package appointment

import (
	"context"
	"errors"
)

var (
	ErrDentistNotFound     = errors.New("dentist not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrSlotTaken is returned by writes that would put a second booked
	// appointment on the same dentist, date and time.
	ErrSlotTaken = errors.New("slot already has a booked appointment")
)

// Store holds the reads and writes the scheduling engines need. The same
// methods run on the pool or inside a transaction handed out by WithTx.
type Store interface {
	// BookedTimes returns HH:MM starts of booked appointments for one dentist and day.
	BookedTimes(ctx context.Context, date string, dentistID int64) ([]string, error)

	// FindPatients matches by name, and by email too when email is non-empty.
	// Results are ordered newest first.
	FindPatients(ctx context.Context, name, email string) ([]Patient, error)
	FindPatientsByEmail(ctx context.Context, email string) ([]Patient, error)
	CreatePatient(ctx context.Context, name, email string) (*Patient, error)

	// ActiveAppointmentsForPatients returns booked appointments of the given
	// patients, optionally narrowed to one date and time. Rows are locked when
	// called inside a transaction.
	ActiveAppointmentsForPatients(ctx context.Context, patientIDs []int64, date, time string) ([]Appointment, error)
	GetActiveAppointment(ctx context.Context, id int64) (*Appointment, error)
	CreateAppointment(ctx context.Context, appt NewAppointment) (*Appointment, error)
	MoveAppointment(ctx context.Context, id, dentistID int64, date, time string) (*Appointment, error)

	// LockEmail serializes transactions that check or change the active
	// appointments of one email address until the transaction ends.
	LockEmail(ctx context.Context, email string) error

	InsertEvent(ctx context.Context, ev EventLog) error
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	Store

	// WithTx runs fn in one transaction. A non-nil error from fn rolls back.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	GetDentist(ctx context.Context, id int64) (*Dentist, error)
	ListDentists(ctx context.Context) ([]Dentist, error)
	ListPatients(ctx context.Context) ([]Patient, error)
	ListAppointments(ctx context.Context, limit, offset int) ([]AppointmentDetail, error)
}
