package logger

import (
	"errors"
)

var (
	// ErrServiceNameIsEmpty is returned if Config.ServiceName was not defined.
	ErrServiceNameIsEmpty = errors.New("config Log.ServiceName can not be empty")
)
