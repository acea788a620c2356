package schema

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidDocument is returned when the schema document fails shape
	// validation. Loaders recover from it via the fallback document.
	ErrInvalidDocument = errors.New("invalid schema document")

	// ErrSourceNil is returned when a loader is constructed without a
	// document source.
	ErrSourceNil = errors.New("schema source cannot be nil")
)
