package appointment

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	redisclient "github.com/hackgods/dental-appointment-assistant/internal/redis"
)

type BookRequest struct {
	PatientName  string `json:"patient_name"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	DentistID    string `json:"dentist_id,omitempty"`
	PatientEmail string `json:"patient_email,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

type bookInput struct {
	name    string
	email   string
	date    string
	slot    string
	dentist int64
	reason  Reason
}

// Book creates a booked appointment when the slot is free and the patient's
// email has no active appointment. Rule violations come back as an Outcome.
func (s *Service) Book(ctx context.Context, req BookRequest) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "appointment.book")
	defer span.End()

	out, err := s.book(ctx, req)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveOutcome("book", "error")
		return Outcome{}, err
	}
	span.SetAttributes(attribute.String("dental.outcome", string(out.Kind)))
	s.metrics.ObserveOutcome("book", string(out.Kind))
	return out, nil
}

func (s *Service) book(ctx context.Context, req BookRequest) (Outcome, error) {
	in, rejected := validateBooking(req)
	if rejected != nil {
		return *rejected, nil
	}

	key := redisclient.SlotKey{DentistID: in.dentist, Date: in.date, Time: in.slot}

	var out Outcome
	err := s.locker.WithSlotLock(ctx, key, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx Store) error {
			var err error
			out, err = s.bookInTx(ctx, tx, in)
			return err
		})
	})

	switch {
	case err == nil:
		if out.Succeeded() {
			s.logger.Info("appointment booked",
				"appointment_id", out.Appointment.ID,
				"dentist_id", in.dentist,
				"date", in.date,
				"time", in.slot,
			)
		}
		return out, nil
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		return reject(OutcomeSlotBusy, msgSlotBusy), nil
	case errors.Is(err, ErrSlotTaken):
		return reject(OutcomeSlotTaken, msgSlotTaken), nil
	case errors.Is(err, ErrDentistNotFound):
		return reject(OutcomeDentistNotFound, msgDentistNotFound), nil
	default:
		return Outcome{}, err
	}
}

func validateBooking(req BookRequest) (bookInput, *Outcome) {
	in := bookInput{
		name:  strings.TrimSpace(req.PatientName),
		email: NormalizeEmail(req.PatientEmail),
	}
	if in.name == "" {
		o := reject(OutcomeInvalidRequest, msgNameRequired)
		return in, &o
	}

	date, err := ParseDate(req.Date)
	if err != nil {
		o := reject(OutcomeInvalidRequest, msgInvalidDate)
		return in, &o
	}
	in.date = date

	dentist, err := ParseDentistID(req.DentistID)
	if err != nil {
		o := reject(OutcomeInvalidRequest, msgInvalidDentist)
		return in, &o
	}
	in.dentist = dentist

	reason, err := ParseReason(req.Reason)
	if err != nil {
		o := reject(OutcomeInvalidRequest, msgInvalidReason)
		return in, &o
	}
	in.reason = reason

	// A time that is not a clock reading can never be free, so it falls
	// through to the availability check unchanged.
	in.slot, _ = NormalizeTime(req.Time)
	return in, nil
}

// bookInTx returns a non-nil error only when the transaction must roll back.
func (s *Service) bookInTx(ctx context.Context, tx Store, in bookInput) (Outcome, error) {
	if in.email != "" {
		if err := tx.LockEmail(ctx, in.email); err != nil {
			return Outcome{}, err
		}
		existing, _, err := activeAppointmentsByEmail(ctx, tx, in.email, "", "")
		if err != nil {
			return Outcome{}, err
		}
		if len(existing) > 0 {
			return activeAppointmentsOutcome(existing), nil
		}
	}

	free, err := slotIsFree(ctx, tx, in.date, in.dentist, in.slot)
	if err != nil {
		return Outcome{}, err
	}
	if !free {
		return reject(OutcomeSlotTaken, msgSlotTaken), nil
	}

	patientID, created, err := s.resolvePatient(ctx, tx, in.name, in.email)
	if err != nil {
		return Outcome{}, err
	}

	appt, err := tx.CreateAppointment(ctx, NewAppointment{
		PatientID: patientID,
		DentistID: in.dentist,
		Date:      in.date,
		Time:      in.slot,
		Reason:    in.reason,
	})
	if err != nil {
		return Outcome{}, err
	}

	if created {
		if err := logEvent(ctx, tx, appt.ID, EventPatientCreated, map[string]any{
			"patient_id": patientID,
			"name":       in.name,
			"email":      in.email,
		}); err != nil {
			return Outcome{}, err
		}
	}
	if err := logEvent(ctx, tx, appt.ID, EventAppointmentBooked, map[string]any{
		"patient_id": patientID,
		"dentist_id": in.dentist,
		"date":       in.date,
		"time":       in.slot,
		"reason":     in.reason,
	}); err != nil {
		return Outcome{}, err
	}

	return Outcome{Kind: OutcomeBooked, Message: msgBooked, Appointment: appt}, nil
}
