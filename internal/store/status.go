package store

import (
	"time"
)

// State is one phase of the save-status machine. Initial state is
// StateSaved; the machine has no terminal state.
type State string

const (
	// StateSaved means every accepted mutation has been persisted.
	StateSaved State = "saved"
	// StateSaving means a flush is in flight.
	StateSaving State = "saving"
	// StatePending means accepted mutations await the debounce flush.
	StatePending State = "pending"
	// StateError means the last flush failed and a retry is scheduled.
	StateError State = "error"
)

// SaveStatus reports the persistence health of the store. Listeners are
// told about state changes only, not every update.
type SaveStatus struct {
	State        State     `json:"state"`
	LastError    error     `json:"-"`
	PendingCount int       `json:"pendingCount"`
	Timestamp    time.Time `json:"timestamp"`
}
