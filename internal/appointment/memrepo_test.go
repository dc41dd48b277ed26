package appointment

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"
)

// memRepository is an in-memory Repository. WithTx holds the lock for the
// whole transaction and restores a snapshot when fn fails.
type memRepository struct {
	mu sync.Mutex

	nextPatientID int64
	nextApptID    int64
	dentists      map[int64]Dentist
	patients      []Patient
	appts         []Appointment
	events        []EventLog

	failBookedTimes error
	failInsertEvent error
}

func newMemRepository() *memRepository {
	return &memRepository{
		dentists: map[int64]Dentist{
			1: {ID: 1, Name: "Dr. Smith", Specialization: "General Dentistry"},
			2: {ID: 2, Name: "Dr. Jones", Specialization: "Orthodontics"},
		},
	}
}

type memSnapshot struct {
	nextPatientID int64
	nextApptID    int64
	patients      []Patient
	appts         []Appointment
	events        []EventLog
}

func (r *memRepository) snapshot() memSnapshot {
	return memSnapshot{
		nextPatientID: r.nextPatientID,
		nextApptID:    r.nextApptID,
		patients:      slices.Clone(r.patients),
		appts:         slices.Clone(r.appts),
		events:        slices.Clone(r.events),
	}
}

func (r *memRepository) restore(s memSnapshot) {
	r.nextPatientID = s.nextPatientID
	r.nextApptID = s.nextApptID
	r.patients = s.patients
	r.appts = s.appts
	r.events = s.events
}

func (r *memRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.snapshot()
	if err := fn(ctx, memTx{r}); err != nil {
		r.restore(snap)
		return err
	}
	return nil
}

// seedAppointment inserts a booked appointment directly, bypassing the rules.
func (r *memRepository) seedAppointment(patientName, email, date, slot string, dentistID int64) Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := memTx{r}
	matches, _ := tx.FindPatients(context.Background(), patientName, email)
	var pid int64
	if len(matches) > 0 {
		pid = matches[0].ID
	} else {
		p, _ := tx.CreatePatient(context.Background(), patientName, email)
		pid = p.ID
	}
	a, err := tx.CreateAppointment(context.Background(), NewAppointment{PatientID: pid, DentistID: dentistID, Date: date, Time: slot})
	if err != nil {
		panic(err)
	}
	return *a
}

func (r *memRepository) appointmentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.appts)
}

func (r *memRepository) patientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.patients)
}

func (r *memRepository) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (r *memRepository) appointment(id int64) Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appts {
		if a.ID == id {
			return a
		}
	}
	return Appointment{}
}

// Store methods outside a transaction take the lock per call.

func (r *memRepository) BookedTimes(ctx context.Context, date string, dentistID int64) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memTx{r}.BookedTimes(ctx, date, dentistID)
}

func (r *memRepository) FindPatients(ctx context.Context, name, email string) ([]Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memTx{r}.FindPatients(ctx, name, email)
}

func (r *memRepository) FindPatientsByEmail(ctx context.Context, email string) ([]Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memTx{r}.FindPatientsByEmail(ctx, email)
}

func (r *memRepository) CreatePatient(ctx context.Context, name, email string) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memTx{r}.CreatePatient(ctx, name, email)
}

func (r *memRepository) ActiveAppointmentsForPatients(ctx context.Context, ids []int64, date, slot string) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memTx{r}.ActiveAppointmentsForPatients(ctx, ids, date, slot)
}

func (r *memRepository) GetActiveAppointment(ctx context.Context, id int64) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memTx{r}.GetActiveAppointment(ctx, id)
}

func (r *memRepository) CreateAppointment(ctx context.Context, appt NewAppointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memTx{r}.CreateAppointment(ctx, appt)
}

func (r *memRepository) MoveAppointment(ctx context.Context, id, dentistID int64, date, slot string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memTx{r}.MoveAppointment(ctx, id, dentistID, date, slot)
}

func (r *memRepository) LockEmail(context.Context, string) error { return nil }

func (r *memRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memTx{r}.InsertEvent(ctx, ev)
}

func (r *memRepository) GetDentist(_ context.Context, id int64) (*Dentist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dentists[id]
	if !ok {
		return nil, ErrDentistNotFound
	}
	return &d, nil
}

func (r *memRepository) ListDentists(context.Context) ([]Dentist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Dentist, 0, len(r.dentists))
	for _, d := range r.dentists {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memRepository) ListPatients(context.Context) ([]Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := slices.Clone(r.patients)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memRepository) ListAppointments(_ context.Context, limit, offset int) ([]AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AppointmentDetail
	for i := len(r.appts) - 1; i >= 0; i-- {
		a := r.appts[i]
		out = append(out, AppointmentDetail{Appointment: a, Dentist: r.dentists[a.DentistID]})
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memTx operates on the repository data without locking.
type memTx struct {
	r *memRepository
}

func (t memTx) BookedTimes(_ context.Context, date string, dentistID int64) ([]string, error) {
	if t.r.failBookedTimes != nil {
		return nil, t.r.failBookedTimes
	}
	var out []string
	for _, a := range t.r.appts {
		if a.Status == StatusBooked && a.Date == date && a.DentistID == dentistID {
			out = append(out, a.Time)
		}
	}
	return out, nil
}

func (t memTx) FindPatients(_ context.Context, name, email string) ([]Patient, error) {
	var out []Patient
	for i := len(t.r.patients) - 1; i >= 0; i-- {
		p := t.r.patients[i]
		if p.Name == name && (email == "" || p.Email == email) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t memTx) FindPatientsByEmail(_ context.Context, email string) ([]Patient, error) {
	var out []Patient
	for _, p := range t.r.patients {
		if p.Email == email {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t memTx) CreatePatient(_ context.Context, name, email string) (*Patient, error) {
	t.r.nextPatientID++
	p := Patient{ID: t.r.nextPatientID, Name: name, Email: email, CreatedAt: time.Now()}
	t.r.patients = append(t.r.patients, p)
	return &p, nil
}

func (t memTx) ActiveAppointmentsForPatients(_ context.Context, ids []int64, date, slot string) ([]Appointment, error) {
	var out []Appointment
	for _, a := range t.r.appts {
		if a.Status != StatusBooked || !slices.Contains(ids, a.PatientID) {
			continue
		}
		if date != "" && a.Date != date {
			continue
		}
		if slot != "" && a.Time != slot {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

func (t memTx) GetActiveAppointment(_ context.Context, id int64) (*Appointment, error) {
	for _, a := range t.r.appts {
		if a.ID == id && a.Status == StatusBooked {
			return &a, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (t memTx) slotHeld(exceptID, dentistID int64, date, slot string) bool {
	for _, a := range t.r.appts {
		if a.ID != exceptID && a.Status == StatusBooked && a.DentistID == dentistID && a.Date == date && a.Time == slot {
			return true
		}
	}
	return false
}

func (t memTx) CreateAppointment(_ context.Context, in NewAppointment) (*Appointment, error) {
	if _, ok := t.r.dentists[in.DentistID]; !ok {
		return nil, ErrDentistNotFound
	}
	if t.slotHeld(0, in.DentistID, in.Date, in.Time) {
		return nil, ErrSlotTaken
	}
	t.r.nextApptID++
	now := time.Now()
	a := Appointment{
		ID:        t.r.nextApptID,
		PatientID: in.PatientID,
		DentistID: in.DentistID,
		Date:      in.Date,
		Time:      in.Time,
		Status:    StatusBooked,
		Reason:    in.Reason,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.r.appts = append(t.r.appts, a)
	return &a, nil
}

func (t memTx) MoveAppointment(_ context.Context, id, dentistID int64, date, slot string) (*Appointment, error) {
	if _, ok := t.r.dentists[dentistID]; !ok {
		return nil, ErrDentistNotFound
	}
	if t.slotHeld(id, dentistID, date, slot) {
		return nil, ErrSlotTaken
	}
	for i := range t.r.appts {
		a := &t.r.appts[i]
		if a.ID == id && a.Status == StatusBooked {
			a.DentistID, a.Date, a.Time, a.UpdatedAt = dentistID, date, slot, time.Now()
			moved := *a
			return &moved, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (t memTx) LockEmail(context.Context, string) error { return nil }

func (t memTx) InsertEvent(_ context.Context, ev EventLog) error {
	if t.r.failInsertEvent != nil {
		return t.r.failInsertEvent
	}
	t.r.events = append(t.r.events, ev)
	return nil
}

var errStoreDown = errors.New("store unavailable")
