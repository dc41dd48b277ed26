package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	NameCurrentDate           = "get_current_date"
	NameCheckAvailability     = "check_availability"
	NameBookAppointment       = "book_appointment"
	NameRescheduleAppointment = "reschedule_appointment"

	defaultDentistID = "1"
	defaultReason    = "Checkup"
)

var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Call is one tool invocation requested by the conversational layer. The set
// of implementations is closed.
type Call interface {
	Name() string
	isCall()
}

type CurrentDate struct{}

type CheckAvailability struct {
	Date      string `json:"date"`
	DentistID string `json:"dentist_id"`
}

type BookAppointment struct {
	PatientName  string `json:"patient_name"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	DentistID    string `json:"dentist_id"`
	PatientEmail string `json:"patient_email"`
	Reason       string `json:"reason"`
}

type RescheduleAppointment struct {
	PatientName   string `json:"patient_name"`
	PatientEmail  string `json:"patient_email"`
	NewDate       string `json:"new_date"`
	NewTime       string `json:"new_time"`
	DentistID     string `json:"dentist_id"`
	AppointmentID *int64 `json:"appointment_id"`
	OriginalDate  string `json:"original_date"`
	OriginalTime  string `json:"original_time"`
}

func (CurrentDate) Name() string           { return NameCurrentDate }
func (CheckAvailability) Name() string     { return NameCheckAvailability }
func (BookAppointment) Name() string       { return NameBookAppointment }
func (RescheduleAppointment) Name() string { return NameRescheduleAppointment }

func (CurrentDate) isCall()           {}
func (CheckAvailability) isCall()     {}
func (BookAppointment) isCall()       {}
func (RescheduleAppointment) isCall() {}

// Decode parses the JSON arguments of the named tool and fills in defaults.
func Decode(name string, args []byte) (Call, error) {
	if strings.TrimSpace(string(args)) == "" {
		args = []byte("{}")
	}

	switch name {
	case NameCurrentDate:
		return CurrentDate{}, nil

	case NameCheckAvailability:
		var c CheckAvailability
		if err := unmarshalArgs(name, args, &c); err != nil {
			return nil, err
		}
		if c.DentistID == "" {
			c.DentistID = defaultDentistID
		}
		return c, nil

	case NameBookAppointment:
		var c BookAppointment
		if err := unmarshalArgs(name, args, &c); err != nil {
			return nil, err
		}
		if c.DentistID == "" {
			c.DentistID = defaultDentistID
		}
		if c.Reason == "" {
			c.Reason = defaultReason
		}
		return c, nil

	case NameRescheduleAppointment:
		var c RescheduleAppointment
		if err := unmarshalArgs(name, args, &c); err != nil {
			return nil, err
		}
		if c.DentistID == "" {
			c.DentistID = defaultDentistID
		}
		return c, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
}

func unmarshalArgs(name string, args []byte, v any) error {
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w for %s: %w", ErrInvalidArguments, name, err)
	}
	return nil
}
