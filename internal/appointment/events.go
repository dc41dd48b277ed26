package appointment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventPatientCreated         = "PATIENT_CREATED"
)

// logEvent writes an audit row inside tx. A failure aborts the transaction.
func logEvent(ctx context.Context, tx Store, appointmentID int64, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	ev := EventLog{
		EventType: eventType,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}
	if appointmentID > 0 {
		ev.AppointmentID = &appointmentID
	}

	if err := tx.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("log %s: %w", eventType, err)
	}
	return nil
}
