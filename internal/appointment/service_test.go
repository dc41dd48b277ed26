package appointment

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/dental-appointment-assistant/internal/observability/metrics"
	redisclient "github.com/hackgods/dental-appointment-assistant/internal/redis"
	"github.com/hackgods/dental-appointment-assistant/pkg/logging"
)

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	return NewService(repo, nil, logging.NewWithWriter(io.Discard, "error"), nil)
}

func janeBooking(slot string) BookRequest {
	return BookRequest{
		PatientName:  "Jane Doe",
		Date:         "2023-11-01",
		Time:         slot,
		DentistID:    "1",
		PatientEmail: "jane@example.com",
		Reason:       "Checkup",
	}
}

func int64Ptr(v int64) *int64 { return &v }

func TestAvailabilityIsCanonicalMinusBooked(t *testing.T) {
	repo := newMemRepository()
	repo.seedAppointment("A", "a@example.com", "2023-11-01", "09:30", 1)
	repo.seedAppointment("B", "b@example.com", "2023-11-01", "16:30", 1)
	repo.seedAppointment("C", "c@example.com", "2023-11-01", "10:00", 2)
	svc := newTestService(t, repo)

	slots, err := svc.Availability(context.Background(), "2023-11-01", "1")
	require.NoError(t, err)

	assert.Len(t, slots, 14)
	assert.NotContains(t, slots, "09:30")
	assert.NotContains(t, slots, "16:30")
	assert.Contains(t, slots, "10:00")

	// subsequence of the canonical calendar
	canon := CanonicalSlots()
	i := 0
	for _, s := range slots {
		for i < len(canon) && canon[i] != s {
			i++
		}
		require.Less(t, i, len(canon), "slot %s out of order", s)
	}
}

func TestAvailabilityDefaultsDentistAndValidates(t *testing.T) {
	svc := newTestService(t, newMemRepository())

	slots, err := svc.Availability(context.Background(), "2023-11-01", "")
	require.NoError(t, err)
	assert.Equal(t, CanonicalSlots(), slots)

	_, err = svc.Availability(context.Background(), "tomorrow", "1")
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = svc.Availability(context.Background(), "2023-11-01", "x")
	assert.ErrorIs(t, err, ErrInvalidDentistID)
}

func TestAvailabilityStoreFailure(t *testing.T) {
	repo := newMemRepository()
	repo.failBookedTimes = errStoreDown
	svc := newTestService(t, repo)

	_, err := svc.Availability(context.Background(), "2023-11-01", "1")
	assert.ErrorIs(t, err, ErrAvailabilityUnavailable)
	assert.ErrorIs(t, err, errStoreDown)
}

func TestBookFreeSlotRemovesItFromAvailability(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(t, repo)
	ctx := context.Background()

	out, err := svc.Book(ctx, janeBooking("11:00"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeBooked, out.Kind)
	assert.Equal(t, "Appointment booked successfully.", out.Message)
	require.NotNil(t, out.Appointment)
	assert.Equal(t, ReasonCheckup, out.Appointment.Reason)
	assert.Equal(t, StatusBooked, out.Appointment.Status)

	slots, err := svc.Availability(ctx, "2023-11-01", "1")
	require.NoError(t, err)
	assert.NotContains(t, slots, "11:00")
	assert.Len(t, slots, 15)

	assert.Equal(t, []string{EventPatientCreated, EventAppointmentBooked}, repo.eventTypes())
}

func TestBookTakenSlotCreatesNothing(t *testing.T) {
	repo := newMemRepository()
	repo.seedAppointment("Someone", "someone@example.com", "2023-11-01", "11:00", 1)
	svc := newTestService(t, repo)

	out, err := svc.Book(context.Background(), janeBooking("11:00"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSlotTaken, out.Kind)
	assert.Equal(t, "Slot is already booked.", out.Message)
	assert.Equal(t, 1, repo.appointmentCount())
	assert.Equal(t, 1, repo.patientCount())
}

func TestBookNonCanonicalTimeIsRejectedAsTaken(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(t, repo)

	for _, slot := range []string{"17:00", "09:15", "lunchtime"} {
		out, err := svc.Book(context.Background(), janeBooking(slot))
		require.NoError(t, err)
		assert.Equal(t, OutcomeSlotTaken, out.Kind, slot)
	}
	assert.Zero(t, repo.appointmentCount())
}

func TestBookScenarioJaneDoeSecondBookingRejected(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(t, repo)
	ctx := context.Background()

	first, err := svc.Book(ctx, janeBooking("11:00"))
	require.NoError(t, err)
	require.Equal(t, OutcomeBooked, first.Kind)

	second, err := svc.Book(ctx, janeBooking("14:00"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeActiveAppointmentExists, second.Kind)
	assert.Equal(t,
		"You already have active appointment(s) scheduled: 2023-11-01 at 11:00. "+
			"Please reschedule or cancel existing appointments before booking a new one.",
		second.Message)
	assert.Equal(t, 1, repo.appointmentCount())

	// Email matching ignores case and surrounding space.
	req := janeBooking("15:00")
	req.PatientEmail = " JANE@example.com"
	third, err := svc.Book(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeActiveAppointmentExists, third.Kind)
}

func TestBookActiveCheckSpansPatientsSharingEmail(t *testing.T) {
	repo := newMemRepository()
	repo.seedAppointment("J. Doe", "jane@example.com", "2023-11-03", "10:00", 2)
	svc := newTestService(t, repo)

	out, err := svc.Book(context.Background(), janeBooking("11:00"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeActiveAppointmentExists, out.Kind)
	assert.Contains(t, out.Message, "2023-11-03 at 10:00")
}

func TestBookWithoutEmailReusesNewestPatient(t *testing.T) {
	repo := newMemRepository()
	repo.seedAppointment("Test Patient", "", "2023-11-01", "09:00", 1)
	svc := newTestService(t, repo)

	out, err := svc.Book(context.Background(), BookRequest{PatientName: "Test Patient", Date: "2023-11-01", Time: "10:00"})
	require.NoError(t, err)
	require.Equal(t, OutcomeBooked, out.Kind)
	assert.Equal(t, 1, repo.patientCount())
	assert.Equal(t, int64(1), out.Appointment.PatientID)
	assert.Equal(t, DefaultDentistID, out.Appointment.DentistID)
	assert.Equal(t, []string{EventAppointmentBooked}, repo.eventTypes())
}

func TestBookInvalidRequests(t *testing.T) {
	svc := newTestService(t, newMemRepository())

	cases := []struct {
		name string
		req  BookRequest
		msg  string
	}{
		{"missing name", BookRequest{Date: "2023-11-01", Time: "09:00"}, "Patient name is required."},
		{"bad date", BookRequest{PatientName: "A", Date: "01/11/2023", Time: "09:00"}, "Invalid date. Please use the YYYY-MM-DD format."},
		{"bad dentist", BookRequest{PatientName: "A", Date: "2023-11-01", Time: "09:00", DentistID: "abc"}, "Invalid dentist ID."},
		{"bad reason", BookRequest{PatientName: "A", Date: "2023-11-01", Time: "09:00", Reason: "Whitening"}, "Reason must be one of Checkup, Emergency, Filling."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := svc.Book(context.Background(), tc.req)
			require.NoError(t, err)
			assert.Equal(t, OutcomeInvalidRequest, out.Kind)
			assert.Equal(t, tc.msg, out.Message)
		})
	}
}

func TestBookUnknownDentist(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(t, repo)

	req := janeBooking("09:00")
	req.DentistID = "99"
	out, err := svc.Book(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDentistNotFound, out.Kind)
	assert.Zero(t, repo.patientCount(), "patient creation must roll back with the failed insert")
}

func TestBookEventFailureRollsBack(t *testing.T) {
	repo := newMemRepository()
	repo.failInsertEvent = errStoreDown
	svc := newTestService(t, repo)

	_, err := svc.Book(context.Background(), janeBooking("09:00"))
	require.ErrorIs(t, err, errStoreDown)
	assert.Zero(t, repo.appointmentCount())
	assert.Zero(t, repo.patientCount())
}

// memRepository runs transactions one at a time, so this covers how the engine
// reports contention, not database serialization. The Postgres side rests on
// the unique slot index, see TestPgCreateAppointmentMapsConstraintViolations.
func TestBookConcurrentSameSlotOutcomes(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(t, repo)

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		outcome = map[OutcomeKind]int{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := svc.Book(context.Background(), BookRequest{
				PatientName: "Patient",
				Date:        "2023-11-01",
				Time:        "13:00",
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			outcome[out.Kind]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, outcome[OutcomeBooked])
	assert.Equal(t, n-1, outcome[OutcomeSlotTaken])
	assert.Equal(t, 1, repo.appointmentCount())
}

type busyLocker struct{}

func (busyLocker) WithSlotLock(context.Context, redisclient.SlotKey, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestBookSlotBusy(t *testing.T) {
	repo := newMemRepository()
	svc := NewService(repo, busyLocker{}, logging.NewWithWriter(io.Discard, "error"), nil)

	out, err := svc.Book(context.Background(), janeBooking("09:00"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSlotBusy, out.Kind)
	assert.Zero(t, repo.appointmentCount())
}

func TestSchedulingContinuesWhenRedisIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.NewSchedulingMetrics(reg)
	logger := logging.NewWithWriter(io.Discard, "error")
	repo := newMemRepository()
	svc := NewService(repo, redisclient.NewRedisSlotLocker(client, time.Second, logger, m), logger, m)

	mr.Close()

	out, err := svc.Book(context.Background(), janeBooking("09:00"))
	require.NoError(t, err)
	require.Equal(t, OutcomeBooked, out.Kind)

	moved, err := svc.Reschedule(context.Background(), RescheduleRequest{
		AppointmentID: int64Ptr(out.Appointment.ID),
		NewDate:       "2023-11-02",
		NewTime:       "10:00",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRescheduled, moved.Kind)

	expected := `
# HELP dental_scheduling_slot_lock_bypass_total Writes that ran without the Redis slot lock because Redis failed
# TYPE dental_scheduling_slot_lock_bypass_total counter
dental_scheduling_slot_lock_bypass_total 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "dental_scheduling_slot_lock_bypass_total"))
}

func TestBookRecordsOutcomeMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewSchedulingMetrics(reg)
	svc := NewService(newMemRepository(), nil, logging.NewWithWriter(io.Discard, "error"), m)

	_, err := svc.Book(context.Background(), janeBooking("09:00"))
	require.NoError(t, err)
	_, err = svc.Book(context.Background(), janeBooking("09:30"))
	require.NoError(t, err)

	expected := `
# HELP dental_scheduling_outcomes_total Booking and reschedule results by outcome kind
# TYPE dental_scheduling_outcomes_total counter
dental_scheduling_outcomes_total{operation="book",outcome="active_appointment_exists"} 1
dental_scheduling_outcomes_total{operation="book",outcome="booked"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "dental_scheduling_outcomes_total"))
}

func TestRescheduleRequiresIdentification(t *testing.T) {
	svc := newTestService(t, newMemRepository())

	out, err := svc.Reschedule(context.Background(), RescheduleRequest{NewDate: "2023-11-02", NewTime: "09:00"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInsufficientInformation, out.Kind)
	assert.Equal(t, "Email is required to reschedule an appointment.", out.Message)

	out, err = svc.Reschedule(context.Background(), RescheduleRequest{
		NewDate: "2023-11-02", NewTime: "09:00", AppointmentID: int64Ptr(0), OriginalDate: "2023-11-01",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInsufficientInformation, out.Kind)

	out, err = svc.Reschedule(context.Background(), RescheduleRequest{
		NewDate: "2023-11-02", NewTime: "09:00", OriginalDate: "2023-11-01", OriginalTime: "11:00",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInsufficientInformation, out.Kind)
	assert.Equal(t, "Unable to identify which appointment to reschedule. "+
		"Please provide either an appointment ID or patient email.", out.Message)
}

func TestRescheduleByID(t *testing.T) {
	repo := newMemRepository()
	appt := repo.seedAppointment("Jane Doe", "jane@example.com", "2023-11-01", "11:00", 1)
	repo.seedAppointment("Other", "other@example.com", "2023-11-02", "10:00", 1)
	svc := newTestService(t, repo)
	ctx := context.Background()

	out, err := svc.Reschedule(ctx, RescheduleRequest{AppointmentID: int64Ptr(999), NewDate: "2023-11-02", NewTime: "09:00"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, out.Kind)
	assert.Equal(t, "Appointment not found with the provided ID.", out.Message)

	out, err = svc.Reschedule(ctx, RescheduleRequest{AppointmentID: int64Ptr(appt.ID), NewDate: "2023-11-02", NewTime: "10:00"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSlotUnavailable, out.Kind)
	assert.Equal(t, "New slot is not available.", out.Message)

	out, err = svc.Reschedule(ctx, RescheduleRequest{AppointmentID: int64Ptr(appt.ID), NewDate: "2023-11-02", NewTime: "09:00"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRescheduled, out.Kind)
	assert.Equal(t, "Appointment successfully rescheduled to 2023-11-02 at 09:00.", out.Message)

	moved := repo.appointment(appt.ID)
	assert.Equal(t, "2023-11-02", moved.Date)
	assert.Equal(t, "09:00", moved.Time)
	assert.Contains(t, repo.eventTypes(), EventAppointmentRescheduled)
}

func TestRescheduleByEmailSingleMatchFreesOldSlot(t *testing.T) {
	repo := newMemRepository()
	repo.seedAppointment("Jane Doe", "jane@example.com", "2023-11-01", "11:00", 1)
	svc := newTestService(t, repo)
	ctx := context.Background()

	out, err := svc.Reschedule(ctx, RescheduleRequest{
		PatientEmail: "jane@example.com",
		NewDate:      "2023-11-02",
		NewTime:      "09:00",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRescheduled, out.Kind)
	assert.Equal(t, "Appointment successfully rescheduled from 2023-11-01 at 11:00 to 2023-11-02 at 09:00.", out.Message)

	oldDay, err := svc.Availability(ctx, "2023-11-01", "1")
	require.NoError(t, err)
	assert.Contains(t, oldDay, "11:00")

	newDay, err := svc.Availability(ctx, "2023-11-02", "1")
	require.NoError(t, err)
	assert.NotContains(t, newDay, "09:00")
}

func TestRescheduleSameSlotMutatesNothing(t *testing.T) {
	repo := newMemRepository()
	appt := repo.seedAppointment("Jane Doe", "jane@example.com", "2023-11-01", "11:00", 1)
	svc := newTestService(t, repo)

	out, err := svc.Reschedule(context.Background(), RescheduleRequest{
		PatientEmail: "jane@example.com",
		NewDate:      "2023-11-01",
		NewTime:      "11:00",
		DentistID:    "1",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSameSlot, out.Kind)
	assert.Equal(t, "New slot is the same as the original slot.", out.Message)
	assert.Equal(t, appt, repo.appointment(appt.ID))
	assert.Empty(t, repo.eventTypes())
}

func TestRescheduleScenarioAmbiguousListsCandidates(t *testing.T) {
	repo := newMemRepository()
	a := repo.seedAppointment("Jane Doe", "jane@example.com", "2023-11-01", "11:00", 1)
	b := repo.seedAppointment("Jane Doe", "jane@example.com", "2023-11-01", "14:00", 1)
	svc := newTestService(t, repo)

	out, err := svc.Reschedule(context.Background(), RescheduleRequest{
		PatientName:  "Jane Doe",
		PatientEmail: "jane@example.com",
		NewDate:      "2023-11-02",
		NewTime:      "09:00",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAmbiguous, out.Kind)
	assert.Equal(t, "Multiple appointments found. Please specify which one to reschedule:\n"+
		"ID: 1, Date: 2023-11-01, Time: 11:00\n"+
		"ID: 2, Date: 2023-11-01, Time: 14:00", out.Message)
	require.Len(t, out.Candidates, 2)
	assert.Equal(t, a.ID, out.Candidates[0].ID)
	assert.Equal(t, b.ID, out.Candidates[1].ID)
	assert.Equal(t, a, repo.appointment(a.ID))
}

func TestRescheduleByEmailWithOriginalSlotFilter(t *testing.T) {
	repo := newMemRepository()
	repo.seedAppointment("Jane Doe", "jane@example.com", "2023-11-01", "11:00", 1)
	b := repo.seedAppointment("Jane Doe", "jane@example.com", "2023-11-01", "14:00", 1)
	svc := newTestService(t, repo)
	ctx := context.Background()

	out, err := svc.Reschedule(ctx, RescheduleRequest{
		PatientEmail: "jane@example.com",
		OriginalDate: "2023-11-01",
		OriginalTime: "14:00",
		NewDate:      "2023-11-03",
		NewTime:      "15:30",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRescheduled, out.Kind)
	assert.Equal(t, "2023-11-03", repo.appointment(b.ID).Date)

	out, err = svc.Reschedule(ctx, RescheduleRequest{
		PatientEmail: "jane@example.com",
		OriginalDate: "2023-11-01",
		OriginalTime: "16:00",
		NewDate:      "2023-11-03",
		NewTime:      "16:00",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, out.Kind)
	assert.Equal(t, "No appointment found for 2023-11-01 at 16:00.", out.Message)
}

func TestRescheduleByEmailNotFound(t *testing.T) {
	repo := newMemRepository()
	repo.seedAppointment("Jane Doe", "jane@example.com", "2023-11-01", "11:00", 1)
	repo.mu.Lock()
	repo.patients = append(repo.patients, Patient{ID: 50, Name: "Idle", Email: "idle@example.com"})
	repo.mu.Unlock()
	svc := newTestService(t, repo)
	ctx := context.Background()

	out, err := svc.Reschedule(ctx, RescheduleRequest{PatientEmail: "nobody@example.com", NewDate: "2023-11-02", NewTime: "09:00"})
	require.NoError(t, err)
	assert.Equal(t, "No patient found with the provided email.", out.Message)

	out, err = svc.Reschedule(ctx, RescheduleRequest{PatientEmail: "idle@example.com", NewDate: "2023-11-02", NewTime: "09:00"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, out.Kind)
	assert.Equal(t, "No active appointments found for this email.", out.Message)
}

func TestRescheduleToTakenSlot(t *testing.T) {
	repo := newMemRepository()
	repo.seedAppointment("Jane Doe", "jane@example.com", "2023-11-01", "11:00", 1)
	repo.seedAppointment("Other", "other@example.com", "2023-11-02", "09:00", 1)
	svc := newTestService(t, repo)

	out, err := svc.Reschedule(context.Background(), RescheduleRequest{
		PatientEmail: "jane@example.com",
		NewDate:      "2023-11-02",
		NewTime:      "09:00",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSlotUnavailable, out.Kind)
}

func TestRescheduleMovesToRequestedDentist(t *testing.T) {
	repo := newMemRepository()
	appt := repo.seedAppointment("Jane Doe", "jane@example.com", "2023-11-01", "11:00", 1)
	svc := newTestService(t, repo)

	out, err := svc.Reschedule(context.Background(), RescheduleRequest{
		PatientEmail: "jane@example.com",
		NewDate:      "2023-11-01",
		NewTime:      "11:00",
		DentistID:    "2",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeRescheduled, out.Kind)
	assert.Equal(t, int64(2), repo.appointment(appt.ID).DentistID)
}

func TestRescheduleStoreFailurePropagates(t *testing.T) {
	repo := newMemRepository()
	appt := repo.seedAppointment("Jane Doe", "jane@example.com", "2023-11-01", "11:00", 1)
	repo.failBookedTimes = errStoreDown
	svc := newTestService(t, repo)

	_, err := svc.Reschedule(context.Background(), RescheduleRequest{AppointmentID: int64Ptr(appt.ID), NewDate: "2023-11-02", NewTime: "09:00"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errStoreDown))
	assert.Equal(t, "2023-11-01", repo.appointment(appt.ID).Date)
}

func TestListAppointmentsClampsLimit(t *testing.T) {
	repo := newMemRepository()
	for _, slot := range []string{"09:00", "09:30", "10:00"} {
		repo.seedAppointment("P "+slot, "", "2023-11-01", slot, 1)
	}
	svc := newTestService(t, repo)

	all, err := svc.ListAppointments(context.Background(), 0, -5)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	page, err := svc.ListAppointments(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "09:30", page[0].Time)

	_, err = svc.GetDentist(context.Background(), 42)
	assert.ErrorIs(t, err, ErrDentistNotFound)
}
