package config

import (
	"errors"
)

var (
	// ErrListenEmpty error if config listen address is empty.
	ErrListenEmpty = errors.New("config listen address can not be empty")

	// ErrDBPathEmpty error if config db.path is empty.
	ErrDBPathEmpty = errors.New("config db.path can not be empty")

	// ErrUnknownArea error if config store.area is not local or sync.
	ErrUnknownArea = errors.New("config store.area must be local or sync")

	// ErrTimingNotPositive error if debounce or retry delay is not positive.
	ErrTimingNotPositive = errors.New("config store.debounce and store.retryDelay must be positive")
)
