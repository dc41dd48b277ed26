package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/dental-appointment-assistant/internal/appointment"
	"github.com/hackgods/dental-appointment-assistant/pkg/logging"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	RescheduleRatio float64
	ReadRatio       float64
	Days            int // booking horizon starting tomorrow
	PatientPool     int // distinct fake patients shared by all workers
}

type fakePatient struct {
	Name  string
	Email string
}

// DataPool holds the shared targets workers pick from. Keeping the patient and
// slot space small makes workers collide on purpose.
type DataPool struct {
	Patients   []fakePatient
	DentistIDs []int64
	Dates      []string
	Slots      []string

	mu     sync.RWMutex
	booked []appointment.Appointment
}

func (dp *DataPool) AddAppointment(a appointment.Appointment) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.booked = append(dp.booked, a)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (appointment.Appointment, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.booked) == 0 {
		return appointment.Appointment{}, false
	}
	return dp.booked[rng.Intn(len(dp.booked))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex

	outcomes sync.Map // outcome kind -> *int64
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) RecordOutcome(kind appointment.OutcomeKind) {
	v, _ := om.outcomes.LoadOrStore(kind, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]

	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking      OperationMetrics
	Reschedule   OperationMetrics
	Availability OperationMetrics
	List         OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *logging.Logger
	metrics Metrics
}

type schedulingResponse struct {
	Success bool `json:"success"`
	appointment.Outcome
}

func main() {
	logger := logging.New(os.Getenv("LOG_LEVEL"))
	logger.Info("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger.Info("config",
		"duration", cfg.Duration,
		"workers", cfg.Workers,
		"booking", cfg.BookingRatio,
		"reschedule", cfg.RescheduleRatio,
		"read", cfg.ReadRatio,
	)

	client := &http.Client{Timeout: 10 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dataPool, err := loadDataPool(ctx, client, cfg)
	if err != nil {
		logger.Error("load data pool", "error", err)
		os.Exit(1)
	}

	logger.Info("data pool ready",
		"patients", len(dataPool.Patients),
		"dentists", len(dataPool.DentistIDs),
		"dates", len(dataPool.Dates),
	)

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: client,
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.5),
		RescheduleRatio: getFloat("SIM_RESCHEDULE_RATIO", 0.2),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.3),
		Days:            getInt("SIM_DAYS", 5),
		PatientPool:     getInt("SIM_PATIENTS", 200),
	}

	total := cfg.BookingRatio + cfg.RescheduleRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.RescheduleRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.APIBaseURL == "" {
		return fmt.Errorf("SIM_API_BASE_URL is required")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 || cfg.PatientPool <= 0 {
		return fmt.Errorf("SIM_DAYS and SIM_PATIENTS must be > 0")
	}
	return nil
}

// loadDataPool asks the API for the dentist roster and fakes a patient pool.
// The run id keeps emails of separate runs from tripping the one active
// appointment per email rule.
func loadDataPool(ctx context.Context, client *http.Client, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{Slots: appointment.CanonicalSlots()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.APIBaseURL+"/dentists", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("load dentists: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("load dentists: status %d", resp.StatusCode)
	}

	var dentists []appointment.Dentist
	if err := json.NewDecoder(resp.Body).Decode(&dentists); err != nil {
		return nil, fmt.Errorf("decode dentists: %w", err)
	}
	for _, d := range dentists {
		dataPool.DentistIDs = append(dataPool.DentistIDs, d.ID)
	}
	if len(dataPool.DentistIDs) == 0 {
		return nil, fmt.Errorf("no dentists loaded")
	}

	tomorrow := time.Now().AddDate(0, 0, 1)
	for i := 0; i < cfg.Days; i++ {
		dataPool.Dates = append(dataPool.Dates, tomorrow.AddDate(0, 0, i).Format("2006-01-02"))
	}

	runID := uuid.NewString()[:8]
	faker := gofakeit.New(uint64(time.Now().UnixNano()))
	for i := 0; i < cfg.PatientPool; i++ {
		first, last := faker.FirstName(), faker.LastName()
		dataPool.Patients = append(dataPool.Patients, fakePatient{
			Name:  first + " " + last,
			Email: strings.ToLower(fmt.Sprintf("%s.%s.%d+%s@%s", first, last, i, runID, faker.DomainName())),
		})
	}

	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation", "duration", s.config.Duration, "workers", s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			if r < s.config.BookingRatio {
				s.doBooking(ctx, rng)
			} else if r < s.config.BookingRatio+s.config.RescheduleRatio {
				s.doReschedule(ctx, rng)
			} else if rng.Intn(2) == 0 {
				s.doAvailability(ctx, rng)
			} else {
				s.doList(ctx)
			}
		}
	}
}

func (s *Simulator) randomSlot(rng *rand.Rand) (date, slot string, dentistID int64) {
	date = s.pool.Dates[rng.Intn(len(s.pool.Dates))]
	slot = s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	dentistID = s.pool.DentistIDs[rng.Intn(len(s.pool.DentistIDs))]
	return date, slot, dentistID
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	date, slot, dentistID := s.randomSlot(rng)
	reasons := appointment.Reasons()

	body := appointment.BookRequest{
		PatientName:  patient.Name,
		PatientEmail: patient.Email,
		Date:         date,
		Time:         slot,
		DentistID:    strconv.FormatInt(dentistID, 10),
		Reason:       string(reasons[rng.Intn(len(reasons))]),
	}

	res, latency, err := s.postScheduling(ctx, "/appointments", body)
	s.recordScheduling(ctx, &s.metrics.Booking, res, latency, err, appointment.OutcomeBooked)

	if err == nil && res.Kind == appointment.OutcomeBooked && res.Appointment != nil {
		s.pool.AddAppointment(*res.Appointment)
	}
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	date, slot, dentistID := s.randomSlot(rng)

	id := appt.ID
	body := appointment.RescheduleRequest{
		AppointmentID: &id,
		NewDate:       date,
		NewTime:       slot,
		DentistID:     strconv.FormatInt(dentistID, 10),
	}

	res, latency, err := s.postScheduling(ctx, "/appointments/reschedule", body)
	s.recordScheduling(ctx, &s.metrics.Reschedule, res, latency, err, appointment.OutcomeRescheduled)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	date, _, dentistID := s.randomSlot(rng)

	q := url.Values{}
	q.Set("date", date)
	q.Set("dentist_id", strconv.FormatInt(dentistID, 10))

	latency, status, err := s.get(ctx, "/availability?"+q.Encode())
	s.metrics.Availability.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doList(ctx context.Context) {
	latency, status, err := s.get(ctx, "/appointments?limit=20&offset=0")
	s.metrics.List.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) postScheduling(ctx context.Context, path string, body any) (schedulingResponse, time.Duration, error) {
	var out schedulingResponse

	payload, err := json.Marshal(body)
	if err != nil {
		return out, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return out, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return out, latency, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return out, latency, fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, latency, err
	}
	return out, latency, nil
}

func (s *Simulator) get(ctx context.Context, path string) (time.Duration, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.APIBaseURL+path, nil)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("X-Request-ID", uuid.NewString())

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return latency, 0, err
	}
	resp.Body.Close()
	return latency, resp.StatusCode, nil
}

func (s *Simulator) recordScheduling(ctx context.Context, om *OperationMetrics, res schedulingResponse, latency time.Duration, err error, want appointment.OutcomeKind) {
	if err != nil {
		// Requests cut off by the end of the run are not failures of the API.
		if ctx.Err() == nil {
			om.Record(latency, false, false)
		}
		return
	}

	om.RecordOutcome(res.Kind)
	om.Record(latency, res.Kind == want, isConflict(res.Kind))
}

func isConflict(kind appointment.OutcomeKind) bool {
	switch kind {
	case appointment.OutcomeSlotTaken,
		appointment.OutcomeSlotBusy,
		appointment.OutcomeActiveAppointmentExists,
		appointment.OutcomeSlotUnavailable,
		appointment.OutcomeSameSlot:
		return true
	}
	return false
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("List appointments", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}

	var kinds []string
	om.outcomes.Range(func(k, v any) bool {
		kinds = append(kinds, fmt.Sprintf("%s=%d", k, atomic.LoadInt64(v.(*int64))))
		return true
	})
	if len(kinds) > 0 {
		sort.Strings(kinds)
		fmt.Printf("  Outcomes: %s\n", strings.Join(kinds, " "))
	}

	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
