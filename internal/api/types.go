package api

import (
	"github.com/hackgods/dental-appointment-assistant/internal/appointment"
)

type AvailabilityResponse struct {
	Date           string   `json:"date"`
	DentistID      string   `json:"dentist_id"`
	AvailableSlots []string `json:"availableSlots"`
}

// SchedulingResponse wraps a booking or reschedule outcome. Success reports
// that the request was handled, not that a slot was taken.
type SchedulingResponse struct {
	Success bool `json:"success"`
	appointment.Outcome
}

type SchedulingErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
