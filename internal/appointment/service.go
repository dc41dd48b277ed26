package appointment

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/hackgods/dental-appointment-assistant/internal/observability/metrics"
	redisclient "github.com/hackgods/dental-appointment-assistant/internal/redis"
	"github.com/hackgods/dental-appointment-assistant/pkg/logging"
)

var tracer = otel.Tracer("dental.internal.appointment")

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	logger  *logging.Logger
	metrics *metrics.SchedulingMetrics
}

// NewService wires the scheduling engines. A nil locker disables the Redis
// front gate; a nil logger falls back to the default one.
func NewService(repo Repository, locker redisclient.Locker, logger *logging.Logger, m *metrics.SchedulingMetrics) *Service {
	if repo == nil {
		panic("appointment: repository required")
	}
	if locker == nil {
		locker = redisclient.NoopLocker{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:    repo,
		locker:  locker,
		logger:  logger.With("component", "appointment"),
		metrics: m,
	}
}

// GetDentist retrieves a dentist, ErrDentistNotFound when missing.
func (s *Service) GetDentist(ctx context.Context, id int64) (*Dentist, error) {
	d, err := s.repo.GetDentist(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get dentist: %w", err)
	}
	return d, nil
}

func (s *Service) ListDentists(ctx context.Context) ([]Dentist, error) {
	dentists, err := s.repo.ListDentists(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dentists: %w", err)
	}
	return dentists, nil
}

func (s *Service) ListPatients(ctx context.Context) ([]Patient, error) {
	patients, err := s.repo.ListPatients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return patients, nil
}

// ListAppointments returns appointments with patient and dentist, newest date first.
func (s *Service) ListAppointments(ctx context.Context, limit, offset int) ([]AppointmentDetail, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListAppointments(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}
