package appointment

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
)

var ErrAvailabilityUnavailable = errors.New("failed to check availability")

// Availability returns the free slots of one dentist on one day, in calendar order.
// dentistID defaults to "1" when empty.
func (s *Service) Availability(ctx context.Context, date, dentistID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "appointment.availability")
	defer span.End()

	day, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	dentist, err := ParseDentistID(dentistID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("dental.date", day), attribute.Int64("dental.dentist_id", dentist))

	slots, err := availableSlots(ctx, s.repo, day, dentist)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return slots, nil
}

func availableSlots(ctx context.Context, store Store, date string, dentistID int64) ([]string, error) {
	booked, err := store.BookedTimes(ctx, date, dentistID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAvailabilityUnavailable, err)
	}

	taken := make(map[string]struct{}, len(booked))
	for _, t := range booked {
		taken[t] = struct{}{}
	}

	free := make([]string, 0, len(canonicalSlots))
	for _, slot := range canonicalSlots {
		if _, ok := taken[slot]; !ok {
			free = append(free, slot)
		}
	}
	return free, nil
}

func slotIsFree(ctx context.Context, store Store, date string, dentistID int64, slot string) (bool, error) {
	free, err := availableSlots(ctx, store, date, dentistID)
	if err != nil {
		return false, err
	}
	return slices.Contains(free, slot), nil
}
