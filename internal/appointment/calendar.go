package appointment

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultDentistID int64 = 1

	clinicOpenHour  = 9
	clinicCloseHour = 17
	slotLength      = 30 * time.Minute

	dateLayout = "2006-01-02"
	slotLayout = "15:04"
)

var (
	ErrInvalidDate      = errors.New("date must use the YYYY-MM-DD format")
	ErrInvalidDentistID = errors.New("dentist id must be a positive integer")
)

var canonicalSlots = buildCanonicalSlots()

func buildCanonicalSlots() []string {
	day := time.Date(2000, 1, 1, clinicOpenHour, 0, 0, 0, time.UTC)
	closing := time.Date(2000, 1, 1, clinicCloseHour, 0, 0, 0, time.UTC)

	var slots []string
	for t := day; t.Before(closing); t = t.Add(slotLength) {
		slots = append(slots, t.Format(slotLayout))
	}
	return slots
}

// CanonicalSlots returns the bookable slot starts of a clinic day, 09:00 through 16:30.
// The returned slice is a copy.
func CanonicalSlots() []string {
	out := make([]string, len(canonicalSlots))
	copy(out, canonicalSlots)
	return out
}

func IsCanonicalSlot(slot string) bool {
	for _, s := range canonicalSlots {
		if s == slot {
			return true
		}
	}
	return false
}

// NormalizeTime turns "9:00", "09:00" or "09:00:00" into "09:00". The second
// return value is false when the input is not a clock time at all.
func NormalizeTime(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(slotLayout), true
		}
	}
	return raw, false
}

// ParseDate validates an ISO calendar date and returns it normalized.
func ParseDate(raw string) (string, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return t.Format(dateLayout), nil
}

// ParseDentistID defaults to the clinic's first dentist when raw is empty.
func ParseDentistID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultDentistID, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDentistID, raw)
	}
	return id, nil
}

// NormalizeEmail trims and lower-cases so lookups do not depend on how the patient typed it.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
