package appointment

import (
	"errors"
	"strings"
	"time"
)

type AppointmentStatus string

const (
	StatusBooked    AppointmentStatus = "booked"
	StatusCancelled AppointmentStatus = "cancelled"
)

type Reason string

const (
	ReasonCheckup   Reason = "Checkup"
	ReasonEmergency Reason = "Emergency"
	ReasonFilling   Reason = "Filling"
)

var ErrInvalidReason = errors.New("reason must be one of Checkup, Emergency, Filling")

// Reasons lists the accepted appointment reasons in display order.
func Reasons() []Reason {
	return []Reason{ReasonCheckup, ReasonEmergency, ReasonFilling}
}

// ParseReason matches case-insensitively. An empty string means no reason.
func ParseReason(raw string) (Reason, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	for _, r := range Reasons() {
		if strings.EqualFold(raw, string(r)) {
			return r, nil
		}
	}
	return "", ErrInvalidReason
}

type Patient struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Dentist struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
}

type Appointment struct {
	ID        int64             `json:"id"`
	PatientID int64             `json:"patient_id"`
	DentistID int64             `json:"dentist_id"`
	Date      string            `json:"date"` // YYYY-MM-DD
	Time      string            `json:"time"` // HH:MM slot start
	Status    AppointmentStatus `json:"status"`
	Reason    Reason            `json:"reason,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// When renders the slot the way patients read it, e.g. "2023-11-01 at 11:00".
func (a Appointment) When() string {
	return a.Date + " at " + a.Time
}

// NewAppointment is the insert shape for a booked appointment.
type NewAppointment struct {
	PatientID int64
	DentistID int64
	Date      string
	Time      string
	Reason    Reason
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *int64
	Payload       []byte
	CreatedAt     time.Time
}

type AppointmentDetail struct {
	Appointment
	Patient Patient `json:"patient"`
	Dentist Dentist `json:"dentist"`
}
