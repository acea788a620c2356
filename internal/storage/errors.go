package storage

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrAreaUnknown is returned when an area name is not recognized.
	ErrAreaUnknown = errors.New("unknown storage area")
	// ErrAreaUnavailable is returned when an area exists but cannot be
	// reached (closed provider, broken backend).
	ErrAreaUnavailable = errors.New("storage area unavailable")
	// ErrQuotaExceeded is returned when a write would exceed the area's
	// byte quota.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// ErrorClass labels the cause of a failed storage operation.
type ErrorClass string

const (
	// ClassQuotaExceeded marks writes rejected by an area quota.
	ClassQuotaExceeded ErrorClass = "quota-exceeded"
	// ClassAreaUnavailable marks failures of an unreachable area.
	ClassAreaUnavailable ErrorClass = "area-unavailable"
	// ClassAreaUnknown marks requests against an unrecognized area name.
	ClassAreaUnknown ErrorClass = "area-unknown"
	// ClassCanceled marks operations abandoned by their context.
	ClassCanceled ErrorClass = "canceled"
	// ClassUnknown covers every other failure.
	ClassUnknown ErrorClass = "unknown"
)

// Classify maps an error from an Area call to its class.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQuotaExceeded):
		return ClassQuotaExceeded
	case errors.Is(err, ErrAreaUnavailable):
		return ClassAreaUnavailable
	case errors.Is(err, ErrAreaUnknown):
		return ClassAreaUnknown
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ClassCanceled
	default:
		return ClassUnknown
	}
}
