package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/dental-appointment-assistant/internal/appointment"
	"github.com/hackgods/dental-appointment-assistant/internal/assistant"
	"github.com/hackgods/dental-appointment-assistant/pkg/logging"
)

// Scheduler is implemented by appointment.Service.
type Scheduler interface {
	Availability(ctx context.Context, date, dentistID string) ([]string, error)
	Book(ctx context.Context, req appointment.BookRequest) (appointment.Outcome, error)
	Reschedule(ctx context.Context, req appointment.RescheduleRequest) (appointment.Outcome, error)
	ListAppointments(ctx context.Context, limit, offset int) ([]appointment.AppointmentDetail, error)
	ListPatients(ctx context.Context) ([]appointment.Patient, error)
	ListDentists(ctx context.Context) ([]appointment.Dentist, error)
	GetDentist(ctx context.Context, id int64) (*appointment.Dentist, error)
}

// ChatResponder is implemented by assistant.Assistant.
type ChatResponder interface {
	Reply(ctx context.Context, req assistant.ChatRequest) (*assistant.ChatResponse, error)
}

const (
	msgAvailabilityFailed = "Failed to check availability"
	msgInternalError      = "Internal server error"
)

func availabilityHandler(svc Scheduler, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		dentistID := r.URL.Query().Get("dentist_id")
		if dentistID == "" {
			dentistID = "1"
		}

		slots, err := svc.Availability(r.Context(), date, dentistID)
		switch {
		case err == nil:
		case errors.Is(err, appointment.ErrInvalidDate):
			writeError(w, http.StatusBadRequest, "invalid_date", "date must use the YYYY-MM-DD format")
			return
		case errors.Is(err, appointment.ErrInvalidDentistID):
			writeError(w, http.StatusBadRequest, "invalid_dentist_id", "dentist_id must be a positive integer")
			return
		default:
			logger.Error("check availability failed", "request_id", GetRequestID(r.Context()), "error", err)
			writeError(w, http.StatusInternalServerError, msgAvailabilityFailed, "")
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{Date: date, DentistID: dentistID, AvailableSlots: slots})
	}
}

func bookAppointmentHandler(svc Scheduler, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req appointment.BookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		out, err := svc.Book(r.Context(), req)
		if err != nil {
			logger.Error("book appointment failed", "request_id", GetRequestID(r.Context()), "error", err)
			writeJSON(w, http.StatusInternalServerError, SchedulingErrorResponse{Error: "Failed to book appointment"})
			return
		}
		writeJSON(w, http.StatusOK, SchedulingResponse{Success: true, Outcome: out})
	}
}

func rescheduleAppointmentHandler(svc Scheduler, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req appointment.RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		out, err := svc.Reschedule(r.Context(), req)
		if err != nil {
			logger.Error("reschedule appointment failed", "request_id", GetRequestID(r.Context()), "error", err)
			writeJSON(w, http.StatusInternalServerError, SchedulingErrorResponse{Error: "Failed to reschedule appointment"})
			return
		}
		writeJSON(w, http.StatusOK, SchedulingResponse{Success: true, Outcome: out})
	}
}

func listAppointmentsHandler(svc Scheduler, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryInt(r, "limit")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		offset, ok := queryInt(r, "offset")
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be an integer")
			return
		}

		appts, err := svc.ListAppointments(r.Context(), limit, offset)
		if err != nil {
			logger.Error("list appointments failed", "request_id", GetRequestID(r.Context()), "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", msgInternalError)
			return
		}
		if appts == nil {
			appts = []appointment.AppointmentDetail{}
		}
		writeJSON(w, http.StatusOK, appts)
	}
}

func listPatientsHandler(svc Scheduler, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patients, err := svc.ListPatients(r.Context())
		if err != nil {
			logger.Error("list patients failed", "request_id", GetRequestID(r.Context()), "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", msgInternalError)
			return
		}
		if patients == nil {
			patients = []appointment.Patient{}
		}
		writeJSON(w, http.StatusOK, patients)
	}
}

func listDentistsHandler(svc Scheduler, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dentists, err := svc.ListDentists(r.Context())
		if err != nil {
			logger.Error("list dentists failed", "request_id", GetRequestID(r.Context()), "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", msgInternalError)
			return
		}
		if dentists == nil {
			dentists = []appointment.Dentist{}
		}
		writeJSON(w, http.StatusOK, dentists)
	}
}

func getDentistHandler(svc Scheduler, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_dentist_id", "id must be a positive integer")
			return
		}

		dentist, err := svc.GetDentist(r.Context(), id)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, dentist)
		case errors.Is(err, appointment.ErrDentistNotFound):
			writeError(w, http.StatusNotFound, "dentist_not_found", "Dentist not found.")
		default:
			logger.Error("get dentist failed", "request_id", GetRequestID(r.Context()), "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", msgInternalError)
		}
	}
}

func chatHandler(chat ChatResponder, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if chat == nil {
			writeError(w, http.StatusServiceUnavailable, "chat_unavailable", assistant.ErrUnavailable.Error())
			return
		}

		var req assistant.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Messages == nil {
			writeError(w, http.StatusBadRequest, "Invalid request format", "")
			return
		}

		resp, err := chat.Reply(r.Context(), req)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, resp)
		case errors.Is(err, assistant.ErrNoMessages):
			writeError(w, http.StatusBadRequest, "Invalid request format", err.Error())
		default:
			logger.Error("chat reply failed", "request_id", GetRequestID(r.Context()), "error", err)
			writeError(w, http.StatusInternalServerError, msgInternalError, "")
		}
	}
}

// queryInt returns 0 for a missing parameter.
func queryInt(r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
