package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hackgods/dental-appointment-assistant/internal/appointment"
	"github.com/hackgods/dental-appointment-assistant/internal/observability/metrics"
	"github.com/hackgods/dental-appointment-assistant/pkg/logging"
)

const (
	msgAvailabilityFailed = "Failed to check availability"
	msgBookFailed         = "Sorry, there was an unexpected error booking your appointment. Please try again later."
	msgRescheduleFailed   = "Sorry, there was an unexpected error rescheduling your appointment. Please try again later."
)

// Scheduler is the part of appointment.Service the tools call into.
type Scheduler interface {
	Availability(ctx context.Context, date, dentistID string) ([]string, error)
	Book(ctx context.Context, req appointment.BookRequest) (appointment.Outcome, error)
	Reschedule(ctx context.Context, req appointment.RescheduleRequest) (appointment.Outcome, error)
}

type AvailabilityResult struct {
	Date           string   `json:"date"`
	AvailableSlots []string `json:"availableSlots"`
	DentistID      string   `json:"dentist_id"`
	Error          string   `json:"error,omitempty"`
}

type MessageResult struct {
	Message string `json:"message"`
	Outcome string `json:"outcome,omitempty"`
}

type CurrentDateResult struct {
	CurrentDate   string `json:"current_date"`
	FormattedDate string `json:"formatted_date"`
}

type handler func(ctx context.Context, call Call) (any, error)

// Dispatcher routes decoded calls to their handler. Scheduler faults become
// results the model can relay; only an unroutable call is an error.
type Dispatcher struct {
	sched    Scheduler
	handlers map[string]handler
	loc      *time.Location
	now      func() time.Time
	logger   *logging.Logger
	metrics  *metrics.SchedulingMetrics
}

func NewDispatcher(sched Scheduler, loc *time.Location, logger *logging.Logger, m *metrics.SchedulingMetrics) *Dispatcher {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{
		sched:   sched,
		loc:     loc,
		now:     time.Now,
		logger:  logger.With("component", "tools"),
		metrics: m,
	}
	d.handlers = map[string]handler{
		NameCurrentDate:           d.currentDate,
		NameCheckAvailability:     d.checkAvailability,
		NameBookAppointment:       d.bookAppointment,
		NameRescheduleAppointment: d.rescheduleAppointment,
	}
	return d
}

func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (any, error) {
	h, ok := d.handlers[call.Name()]
	if !ok {
		d.metrics.ObserveToolCall(call.Name(), "unknown")
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, call.Name())
	}
	return h(ctx, call)
}

// Execute decodes raw arguments, runs the tool and returns its JSON result.
func (d *Dispatcher) Execute(ctx context.Context, name string, args []byte) (string, error) {
	call, err := Decode(name, args)
	if err != nil {
		d.metrics.ObserveToolCall(name, "invalid")
		return "", err
	}

	result, err := d.Dispatch(ctx, call)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal %s result: %w", name, err)
	}
	return string(data), nil
}

func (d *Dispatcher) currentDate(_ context.Context, _ Call) (any, error) {
	today := d.now().In(d.loc)
	d.metrics.ObserveToolCall(NameCurrentDate, "ok")
	return CurrentDateResult{
		CurrentDate:   today.Format("2006-01-02"),
		FormattedDate: today.Format("Monday, January 2, 2006"),
	}, nil
}

func (d *Dispatcher) checkAvailability(ctx context.Context, call Call) (any, error) {
	c := call.(CheckAvailability)
	res := AvailabilityResult{Date: c.Date, DentistID: c.DentistID, AvailableSlots: []string{}}

	slots, err := d.sched.Availability(ctx, c.Date, c.DentistID)
	switch {
	case err == nil:
		res.AvailableSlots = slots
		d.metrics.ObserveToolCall(NameCheckAvailability, "ok")
	case errors.Is(err, appointment.ErrInvalidDate):
		res.Error = "Invalid date. Please use the YYYY-MM-DD format."
		d.metrics.ObserveToolCall(NameCheckAvailability, "rejected")
	case errors.Is(err, appointment.ErrInvalidDentistID):
		res.Error = "Invalid dentist ID."
		d.metrics.ObserveToolCall(NameCheckAvailability, "rejected")
	default:
		d.logger.Error("check availability failed", "date", c.Date, "dentist_id", c.DentistID, "error", err)
		res.Error = msgAvailabilityFailed
		d.metrics.ObserveToolCall(NameCheckAvailability, "fault")
	}
	return res, nil
}

func (d *Dispatcher) bookAppointment(ctx context.Context, call Call) (any, error) {
	c := call.(BookAppointment)
	out, err := d.sched.Book(ctx, appointment.BookRequest{
		PatientName:  c.PatientName,
		Date:         c.Date,
		Time:         c.Time,
		DentistID:    c.DentistID,
		PatientEmail: c.PatientEmail,
		Reason:       c.Reason,
	})
	if err != nil {
		d.logger.Error("book appointment failed", "date", c.Date, "time", c.Time, "error", err)
		d.metrics.ObserveToolCall(NameBookAppointment, "fault")
		return MessageResult{Message: msgBookFailed}, nil
	}
	d.metrics.ObserveToolCall(NameBookAppointment, "ok")
	return MessageResult{Message: out.Message, Outcome: string(out.Kind)}, nil
}

func (d *Dispatcher) rescheduleAppointment(ctx context.Context, call Call) (any, error) {
	c := call.(RescheduleAppointment)
	out, err := d.sched.Reschedule(ctx, appointment.RescheduleRequest{
		PatientName:   c.PatientName,
		NewDate:       c.NewDate,
		NewTime:       c.NewTime,
		DentistID:     c.DentistID,
		PatientEmail:  c.PatientEmail,
		AppointmentID: c.AppointmentID,
		OriginalDate:  c.OriginalDate,
		OriginalTime:  c.OriginalTime,
	})
	if err != nil {
		d.logger.Error("reschedule appointment failed", "new_date", c.NewDate, "new_time", c.NewTime, "error", err)
		d.metrics.ObserveToolCall(NameRescheduleAppointment, "fault")
		return MessageResult{Message: msgRescheduleFailed}, nil
	}
	d.metrics.ObserveToolCall(NameRescheduleAppointment, "ok")
	return MessageResult{Message: out.Message, Outcome: string(out.Kind)}, nil
}
