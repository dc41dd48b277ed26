package appointment

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	redisclient "github.com/hackgods/dental-appointment-assistant/internal/redis"
)

type RescheduleRequest struct {
	PatientName   string `json:"patient_name,omitempty"`
	NewDate       string `json:"new_date"`
	NewTime       string `json:"new_time"`
	DentistID     string `json:"dentist_id,omitempty"`
	PatientEmail  string `json:"patient_email,omitempty"`
	AppointmentID *int64 `json:"appointment_id,omitempty"`
	OriginalDate  string `json:"original_date,omitempty"`
	OriginalTime  string `json:"original_time,omitempty"`
}

type rescheduleInput struct {
	id        int64 // 0 when absent
	email     string
	origDate  string
	origTime  string
	hasFilter bool
	newDate   string
	newTime   string
	dentist   int64
}

// Reschedule moves one booked appointment, identified by id or by the
// patient's email, to a new slot.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "appointment.reschedule")
	defer span.End()

	out, err := s.reschedule(ctx, req)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveOutcome("reschedule", "error")
		return Outcome{}, err
	}
	span.SetAttributes(attribute.String("dental.outcome", string(out.Kind)))
	s.metrics.ObserveOutcome("reschedule", string(out.Kind))
	return out, nil
}

func (s *Service) reschedule(ctx context.Context, req RescheduleRequest) (Outcome, error) {
	in, rejected := validateReschedule(req)
	if rejected != nil {
		return *rejected, nil
	}

	key := redisclient.SlotKey{DentistID: in.dentist, Date: in.newDate, Time: in.newTime}

	var out Outcome
	err := s.locker.WithSlotLock(ctx, key, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx Store) error {
			var err error
			if in.id > 0 {
				out, err = s.rescheduleByID(ctx, tx, in)
			} else {
				out, err = s.rescheduleByEmail(ctx, tx, in)
			}
			return err
		})
	})

	switch {
	case err == nil:
		if out.Succeeded() {
			s.logger.Info("appointment rescheduled",
				"appointment_id", out.Appointment.ID,
				"dentist_id", in.dentist,
				"date", in.newDate,
				"time", in.newTime,
			)
		}
		return out, nil
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		return reject(OutcomeSlotBusy, msgSlotBusy), nil
	case errors.Is(err, ErrSlotTaken):
		return reject(OutcomeSlotUnavailable, msgSlotUnavailable), nil
	case errors.Is(err, ErrDentistNotFound):
		return reject(OutcomeDentistNotFound, msgDentistNotFound), nil
	case errors.Is(err, ErrAppointmentNotFound):
		return reject(OutcomeNotFound, msgAppointmentIDAbsent), nil
	default:
		return Outcome{}, err
	}
}

func validateReschedule(req RescheduleRequest) (rescheduleInput, *Outcome) {
	in := rescheduleInput{
		email:    NormalizeEmail(req.PatientEmail),
		origDate: req.OriginalDate,
		origTime: req.OriginalTime,
	}
	if req.AppointmentID != nil && *req.AppointmentID > 0 {
		in.id = *req.AppointmentID
	}
	in.hasFilter = in.origDate != "" && in.origTime != ""

	if in.email == "" && in.id == 0 && !in.hasFilter {
		o := reject(OutcomeInsufficientInformation, msgEmailRequired)
		return in, &o
	}

	date, err := ParseDate(req.NewDate)
	if err != nil {
		o := reject(OutcomeInvalidRequest, msgInvalidDate)
		return in, &o
	}
	in.newDate = date

	dentist, err := ParseDentistID(req.DentistID)
	if err != nil {
		o := reject(OutcomeInvalidRequest, msgInvalidDentist)
		return in, &o
	}
	in.dentist = dentist

	in.newTime, _ = NormalizeTime(req.NewTime)
	return in, nil
}

func (s *Service) rescheduleByID(ctx context.Context, tx Store, in rescheduleInput) (Outcome, error) {
	appt, err := tx.GetActiveAppointment(ctx, in.id)
	if errors.Is(err, ErrAppointmentNotFound) {
		return reject(OutcomeNotFound, msgAppointmentIDAbsent), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("get appointment %d: %w", in.id, err)
	}

	free, err := slotIsFree(ctx, tx, in.newDate, in.dentist, in.newTime)
	if err != nil {
		return Outcome{}, err
	}
	if !free {
		return reject(OutcomeSlotUnavailable, msgSlotUnavailable), nil
	}

	moved, err := s.move(ctx, tx, *appt, in)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Kind:        OutcomeRescheduled,
		Message:     fmt.Sprintf("Appointment successfully rescheduled to %s at %s.", in.newDate, in.newTime),
		Appointment: moved,
	}, nil
}

func (s *Service) rescheduleByEmail(ctx context.Context, tx Store, in rescheduleInput) (Outcome, error) {
	if in.email == "" {
		return reject(OutcomeInsufficientInformation, msgCannotIdentify), nil
	}

	if err := tx.LockEmail(ctx, in.email); err != nil {
		return Outcome{}, err
	}

	var filterDate, filterTime string
	if in.hasFilter {
		d, dateErr := ParseDate(in.origDate)
		t, timeOK := NormalizeTime(in.origTime)
		if dateErr != nil || !timeOK {
			// Not a real slot, so nothing can be booked there.
			return noAppointmentAt(in.origDate, in.origTime), nil
		}
		filterDate, filterTime = d, t
	}

	appts, patientsFound, err := activeAppointmentsByEmail(ctx, tx, in.email, filterDate, filterTime)
	if err != nil {
		return Outcome{}, err
	}
	if !patientsFound {
		return reject(OutcomeNotFound, msgNoPatientForEmail), nil
	}
	if len(appts) == 0 {
		if in.hasFilter {
			return noAppointmentAt(in.origDate, in.origTime), nil
		}
		return reject(OutcomeNotFound, msgNoActiveForEmail), nil
	}
	if len(appts) > 1 && !in.hasFilter {
		return ambiguousOutcome(appts), nil
	}

	candidate := appts[0]
	if candidate.Date == in.newDate && candidate.Time == in.newTime && candidate.DentistID == in.dentist {
		return reject(OutcomeSameSlot, msgSameSlot), nil
	}

	free, err := slotIsFree(ctx, tx, in.newDate, in.dentist, in.newTime)
	if err != nil {
		return Outcome{}, err
	}
	if !free {
		return reject(OutcomeSlotUnavailable, msgSlotUnavailable), nil
	}

	moved, err := s.move(ctx, tx, candidate, in)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Kind: OutcomeRescheduled,
		Message: fmt.Sprintf("Appointment successfully rescheduled from %s to %s at %s.",
			candidate.When(), in.newDate, in.newTime),
		Appointment: moved,
	}, nil
}

func (s *Service) move(ctx context.Context, tx Store, from Appointment, in rescheduleInput) (*Appointment, error) {
	moved, err := tx.MoveAppointment(ctx, from.ID, in.dentist, in.newDate, in.newTime)
	if err != nil {
		return nil, err
	}

	if err := logEvent(ctx, tx, moved.ID, EventAppointmentRescheduled, map[string]any{
		"from": map[string]any{"dentist_id": from.DentistID, "date": from.Date, "time": from.Time},
		"to":   map[string]any{"dentist_id": moved.DentistID, "date": moved.Date, "time": moved.Time},
	}); err != nil {
		return nil, err
	}
	return moved, nil
}

func noAppointmentAt(date, slot string) Outcome {
	return reject(OutcomeNotFound, fmt.Sprintf("No appointment found for %s at %s.", date, slot))
}
