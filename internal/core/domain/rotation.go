package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// MaxRotationAge is the largest rotation age accepted, in minutes.
const MaxRotationAge = math.MaxInt32 / 60

// DefaultRotationAge rotates once a day, at local midnight.
const DefaultRotationAge = 24 * 60

var ErrInvalidRotationAge = errors.New("invalid rotation age")

// NextRotation returns the first instant after now that falls on a multiple
// of ageMinutes counted from local midnight in loc. An age of zero disables
// time-based rotation and yields the zero time.
func NextRotation(now time.Time, loc *time.Location, ageMinutes int) time.Time {
	if ageMinutes <= 0 {
		return time.Time{}
	}
	if loc == nil {
		loc = time.Local
	}

	_, offset := now.In(loc).Zone()
	interval := int64(ageMinutes) * 60

	secs := now.Unix() + int64(offset)
	secs -= floorMod(secs, interval)
	secs += interval
	secs -= int64(offset)

	return time.Unix(secs, 0).In(loc)
}

// IntervalStart is the beginning of the interval that ends at next.
func IntervalStart(next time.Time, ageMinutes int) time.Time {
	return next.Add(-time.Duration(ageMinutes) * time.Minute)
}

// ValidateRotationAge checks the bounds accepted for log_rotation_age.
func ValidateRotationAge(ageMinutes int) error {
	if ageMinutes < 0 || ageMinutes > MaxRotationAge {
		return fmt.Errorf("%w: %d (must be between 0 and %d minutes)", ErrInvalidRotationAge, ageMinutes, MaxRotationAge)
	}
	return nil
}

// floorMod keeps instants before the epoch aligned downwards.
func floorMod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
