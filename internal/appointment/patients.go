package appointment

import (
	"context"
	"fmt"
)

// resolvePatient finds or creates the patient for a booking. Lookups return a
// set; when several rows share the name (and email) the newest one wins.
func (s *Service) resolvePatient(ctx context.Context, tx Store, name, email string) (patientID int64, created bool, err error) {
	matches, err := tx.FindPatients(ctx, name, email)
	if err != nil {
		return 0, false, fmt.Errorf("resolve patient: %w", err)
	}

	if len(matches) == 0 {
		p, err := tx.CreatePatient(ctx, name, email)
		if err != nil {
			return 0, false, fmt.Errorf("create patient: %w", err)
		}
		return p.ID, true, nil
	}

	newest := matches[0]
	for _, p := range matches[1:] {
		if p.ID > newest.ID {
			newest = p
		}
	}
	if len(matches) > 1 {
		s.logger.Warn("multiple patient records match, using newest",
			"matches", len(matches),
			"patient_id", newest.ID,
		)
	}
	return newest.ID, false, nil
}

// activeAppointmentsByEmail returns booked appointments across every patient
// record sharing email. patientsFound is false when no record has that email.
func activeAppointmentsByEmail(ctx context.Context, tx Store, email, date, slot string) (appts []Appointment, patientsFound bool, err error) {
	patients, err := tx.FindPatientsByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	if len(patients) == 0 {
		return nil, false, nil
	}

	ids := make([]int64, 0, len(patients))
	for _, p := range patients {
		ids = append(ids, p.ID)
	}

	appts, err = tx.ActiveAppointmentsForPatients(ctx, ids, date, slot)
	if err != nil {
		return nil, true, err
	}
	return appts, true, nil
}
