package appointment

import (
	"fmt"
	"strings"
)

// OutcomeKind classifies the result of a booking or reschedule request.
type OutcomeKind string

const (
	OutcomeBooked                  OutcomeKind = "booked"
	OutcomeRescheduled             OutcomeKind = "rescheduled"
	OutcomeActiveAppointmentExists OutcomeKind = "active_appointment_exists"
	OutcomeSlotTaken               OutcomeKind = "slot_taken"
	OutcomeSlotBusy                OutcomeKind = "slot_busy"
	OutcomeSlotUnavailable         OutcomeKind = "slot_unavailable"
	OutcomeSameSlot                OutcomeKind = "same_slot"
	OutcomeNotFound                OutcomeKind = "not_found"
	OutcomeAmbiguous               OutcomeKind = "ambiguous"
	OutcomeInsufficientInformation OutcomeKind = "insufficient_information"
	OutcomeInvalidRequest          OutcomeKind = "invalid_request"
	OutcomeDentistNotFound         OutcomeKind = "dentist_not_found"
)

// Outcome is what the patient is told. Business-rule rejections are outcomes,
// never errors; errors are reserved for infrastructure faults.
type Outcome struct {
	Kind        OutcomeKind   `json:"outcome"`
	Message     string        `json:"message"`
	Appointment *Appointment  `json:"appointment,omitempty"`
	Candidates  []Appointment `json:"candidates,omitempty"`
}

// Succeeded reports whether an appointment was created or moved.
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeBooked || o.Kind == OutcomeRescheduled
}

const (
	msgBooked              = "Appointment booked successfully."
	msgSlotTaken           = "Slot is already booked."
	msgSlotBusy            = "This slot is currently being booked by someone else. Please try again shortly."
	msgSlotUnavailable     = "New slot is not available."
	msgSameSlot            = "New slot is the same as the original slot."
	msgAppointmentIDAbsent = "Appointment not found with the provided ID."
	msgNoPatientForEmail   = "No patient found with the provided email."
	msgNoActiveForEmail    = "No active appointments found for this email."
	msgEmailRequired       = "Email is required to reschedule an appointment."
	msgCannotIdentify      = "Unable to identify which appointment to reschedule. Please provide either an appointment ID or patient email."
	msgDentistNotFound     = "Dentist not found."
	msgNameRequired        = "Patient name is required."
	msgInvalidDate         = "Invalid date. Please use the YYYY-MM-DD format."
	msgInvalidDentist      = "Invalid dentist ID."
	msgInvalidReason       = "Reason must be one of Checkup, Emergency, Filling."
)

func reject(kind OutcomeKind, msg string) Outcome {
	return Outcome{Kind: kind, Message: msg}
}

func activeAppointmentsOutcome(existing []Appointment) Outcome {
	slots := make([]string, 0, len(existing))
	for _, a := range existing {
		slots = append(slots, a.When())
	}
	return Outcome{
		Kind: OutcomeActiveAppointmentExists,
		Message: fmt.Sprintf("You already have active appointment(s) scheduled: %s. "+
			"Please reschedule or cancel existing appointments before booking a new one.", strings.Join(slots, ", ")),
		Candidates: existing,
	}
}

func ambiguousOutcome(candidates []Appointment) Outcome {
	lines := make([]string, 0, len(candidates))
	for _, a := range candidates {
		lines = append(lines, fmt.Sprintf("ID: %d, Date: %s, Time: %s", a.ID, a.Date, a.Time))
	}
	return Outcome{
		Kind:       OutcomeAmbiguous,
		Message:    "Multiple appointments found. Please specify which one to reschedule:\n" + strings.Join(lines, "\n"),
		Candidates: candidates,
	}
}
