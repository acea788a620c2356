package store

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type listenerEntry struct {
	id string
	fn Listener
}

// AddListener registers a callback and returns its handle.
func (s *Store) AddListener(fn Listener) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})

	return id
}

// RemoveListener unregisters the callback with the given handle.
func (s *Store) RemoveListener(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, entry := range s.listeners {
		if entry.id == id {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

type pendingEvent struct {
	name    Event
	payload any
}

// emit invokes every registered listener synchronously, isolating
// panics so one failing listener cannot prevent notifying the rest.
func (s *Store) emit(events ...pendingEvent) {
	if len(events) == 0 {
		return
	}

	s.mu.Lock()
	snapshot := make([]listenerEntry, len(s.listeners))
	copy(snapshot, s.listeners)
	s.mu.Unlock()

	for _, ev := range events {
		for _, entry := range snapshot {
			invokeListener(entry, ev)
		}
	}
}

func invokeListener(entry listenerEntry, ev pendingEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("event", string(ev.name)).
				Str("listener", entry.id).
				Msg("settings listener panicked")
		}
	}()

	entry.fn(ev.name, ev.payload)
}
