package tools

import "github.com/sashabaranov/go-openai/jsonschema"

// Definition describes a tool to the completion service.
type Definition struct {
	Name        string
	Description string
	Parameters  jsonschema.Definition
}

func str(description string) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.String, Description: description}
}

// Definitions lists every tool the dispatcher can run.
func Definitions() []Definition {
	return []Definition{
		{
			Name:        NameCurrentDate,
			Description: "Get the current date",
			Parameters:  jsonschema.Definition{Type: jsonschema.Object, Properties: map[string]jsonschema.Definition{}},
		},
		{
			Name:        NameCheckAvailability,
			Description: "Check available appointment slots for a specific date",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"date":       str("The date to check availability for (format: YYYY-MM-DD)"),
					"dentist_id": str("The dentist ID to check availability for (default: 1)"),
				},
				Required: []string{"date"},
			},
		},
		{
			Name: NameBookAppointment,
			Description: "Book a new appointment for a patient. If the patient provides an email, the system will " +
				"check for existing appointments and prevent booking multiple appointments with the same email.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"patient_name":  str("The patient name"),
					"date":          str("The appointment date (format: YYYY-MM-DD)"),
					"time":          str("The appointment time (format: HH:MM)"),
					"dentist_id":    str("The dentist ID (default: 1)"),
					"patient_email": str("The patient email (required for checking existing appointments)"),
					"reason": {
						Type:        jsonschema.String,
						Enum:        []string{"Checkup", "Emergency", "Filling"},
						Description: "The reason for the appointment",
					},
				},
				Required: []string{"patient_name", "date", "time"},
			},
		},
		{
			Name: NameRescheduleAppointment,
			Description: "Reschedule an existing appointment by finding it using the patient email. " +
				"The system will look up existing appointments for the email provided.",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"patient_name":  str("The patient name"),
					"patient_email": str("The patient email (required to find their appointments)"),
					"new_date":      str("The new appointment date (format: YYYY-MM-DD)"),
					"new_time":      str("The new appointment time (format: HH:MM)"),
					"dentist_id":    str("The dentist ID (default: 1)"),
					"appointment_id": {
						Type:        jsonschema.Integer,
						Description: "The specific appointment ID to reschedule (optional if providing email)",
					},
					"original_date": str("The original appointment date if known (format: YYYY-MM-DD, optional)"),
					"original_time": str("The original appointment time if known (format: HH:MM, optional)"),
				},
				Required: []string{"patient_name", "patient_email", "new_date", "new_time"},
			},
		},
	}
}
