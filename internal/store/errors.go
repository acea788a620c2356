package store

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a read names an unknown setting key.
	ErrNotFound = errors.New("setting not found")
	// ErrInvalidValue is returned when a caller-supplied value violates
	// its definition's type or constraints. Never retried automatically.
	ErrInvalidValue = errors.New("invalid setting value")
	// ErrInvalidImport is returned when an import document cannot be
	// parsed or lacks the settings field.
	ErrInvalidImport = errors.New("invalid import document")
	// ErrNothingImported is returned when no entry of an import document
	// survived validation.
	ErrNothingImported = errors.New("no valid settings to import")
	// ErrDestroyed is returned for operations on a destroyed store.
	ErrDestroyed = errors.New("settings store destroyed")
	// ErrEmptyKey is returned when an update names an empty key.
	ErrEmptyKey = errors.New("setting key cannot be empty")
)
