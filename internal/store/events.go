package store

// Event names a listener notification.
type Event string

const (
	// EventInitialized fires once the store has merged schema defaults
	// with persisted overrides.
	EventInitialized Event = "initialized"
	// EventUpdated fires synchronously for accepted mutations, before
	// persistence completes.
	EventUpdated Event = "updated"
	// EventImported fires after an import replaced in-memory records.
	EventImported Event = "imported"
	// EventReset fires after the store was rebuilt from defaults.
	EventReset Event = "reset"
	// EventSaved fires when a flush resolves.
	EventSaved Event = "saved"
	// EventSaveFailed fires when a flush rejects.
	EventSaveFailed Event = "save-failed"
	// EventSaveStatusChanged fires on save-status state transitions.
	EventSaveStatusChanged Event = "save-status-changed"
)

// Listener receives store notifications. A throwing listener is caught
// and logged; it never breaks notification of subsequent listeners.
type Listener func(event Event, payload any)

// InitializedPayload accompanies EventInitialized.
type InitializedPayload struct {
	Count int `json:"count"`
}

// UpdatedPayload accompanies EventUpdated.
type UpdatedPayload struct {
	Settings map[string]any `json:"settings"`
}

// ImportedPayload accompanies EventImported.
type ImportedPayload struct {
	TotalImported int               `json:"totalImported"`
	Keys          []string          `json:"keys"`
	Skipped       map[string]string `json:"skipped,omitempty"`
}

// ResetPayload accompanies EventReset.
type ResetPayload struct {
	Count int `json:"count"`
}

// SavedPayload accompanies EventSaved.
type SavedPayload struct {
	Keys []string `json:"keys"`
}

// SaveFailedPayload accompanies EventSaveFailed.
type SaveFailedPayload struct {
	Keys  []string `json:"keys"`
	Error string   `json:"error"`
}
