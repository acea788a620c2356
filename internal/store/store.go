// Package store keeps a structured set of typed settings consistent
// between an in-memory working copy and the slow, quota-limited store
// behind the operation queue. Mutations are validated against schema,
// applied to memory immediately, batched, and flushed after a debounce
// interval; a save-status state machine reports persistence health to
// listeners.
package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/prefstore/prefstore/internal/schema"
	"github.com/prefstore/prefstore/internal/storage"
	"github.com/prefstore/prefstore/internal/storage/queue"
)

const (
	// DefaultDebounce is the quiet period before a flush; reset on every
	// new update, coalescing rapid edits into one write.
	DefaultDebounce = 500 * time.Millisecond
	// DefaultRetryDelay is the fixed delay before a failed auto-save
	// flush is retried. Attempts are unbounded; see DESIGN.md.
	DefaultRetryDelay = 2 * time.Second
)

// Store is the settings orchestrator. It owns the in-memory record map
// exclusively; every getter returns copies.
type Store struct {
	loader     *schema.Loader
	queue      *queue.Queue
	area       storage.AreaName
	clock      Clock
	debounce   time.Duration
	retryDelay time.Duration

	initMu sync.Mutex

	mu            sync.Mutex
	initialized   bool
	destroyed     bool
	records       map[string]Record
	pending       map[string]Record
	status        SaveStatus
	debounceTimer Timer
	retryTimer    Timer
	listeners     []listenerEntry
}

// Option configures a Store.
type Option func(*Store)

// WithArea selects the storage area settings persist to.
func WithArea(area storage.AreaName) Option {
	return func(s *Store) {
		s.area = area
	}
}

// WithDebounce overrides the debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		s.debounce = d
	}
}

// WithRetryDelay overrides the auto-save retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Store) {
		s.retryDelay = d
	}
}

// WithClock substitutes the timer source, letting tests drive the
// debounce and retry timers deterministically.
func WithClock(c Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// New creates a settings store over the given schema loader and
// operation queue. The store owns the queue and releases it on Destroy.
func New(loader *schema.Loader, q *queue.Queue, opts ...Option) *Store {
	s := &Store{
		loader:     loader,
		queue:      q,
		area:       storage.AreaLocal,
		clock:      realClock{},
		debounce:   DefaultDebounce,
		retryDelay: DefaultRetryDelay,
		records:    make(map[string]Record),
		pending:    make(map[string]Record),
		status:     SaveStatus{State: StateSaved, Timestamp: time.Now()},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.status.Timestamp = s.clock.Now()

	return s
}

// Initialize merges schema defaults with persisted overrides and marks
// the store ready. Overrides replace only the value, never the
// definition; an override failing validation is dropped with a warning.
// Callers are expected to retry on failure.
func (s *Store) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}

	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	m := s.loader.Load()

	result, err := s.queue.Do(ctx, queue.Operation{Type: queue.OpGet, Area: s.area}, queue.PriorityNormal)
	if err != nil {
		return errors.Wrap(err, "failed to read persisted settings")
	}

	records := make(map[string]Record, m.Len())

	for _, key := range m.Keys() {
		def, _ := m.Get(key)
		rec := Record{Key: key, Value: def.Value, Definition: def}

		if raw, ok := result.Values[key]; ok {
			var value any
			if err := json.Unmarshal(raw, &value); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("discarding unreadable persisted override")
			} else if err := validateValue(key, def, value); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("discarding invalid persisted override")
			} else {
				rec.Value = value
			}
		}

		records[key] = rec
	}

	s.mu.Lock()
	s.records = records
	s.initialized = true
	count := len(records)
	s.mu.Unlock()

	s.emit(pendingEvent{EventInitialized, InitializedPayload{Count: count}})

	return nil
}

func (s *Store) ensureInitialized(ctx context.Context) error {
	s.mu.Lock()
	destroyed, initialized := s.destroyed, s.initialized
	s.mu.Unlock()

	if destroyed {
		return ErrDestroyed
	}

	if initialized {
		return nil
	}

	return s.Initialize(ctx)
}

// GetSetting returns a defensive copy of one record, initializing the
// store implicitly if needed.
func (s *Store) GetSetting(ctx context.Context, key string) (Record, error) {
	if err := s.ensureInitialized(ctx); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return Record{}, errors.Wrapf(ErrNotFound, "%q", key)
	}

	return copyRecord(rec), nil
}

// GetSettings returns copies of the records for the given keys. Unknown
// keys are simply absent from the result, mirroring the underlying
// store's get semantics.
func (s *Store) GetSettings(ctx context.Context, keys []string) (map[string]Record, error) {
	if err := s.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Record, len(keys))

	for _, key := range keys {
		if rec, ok := s.records[key]; ok {
			out[key] = copyRecord(rec)
		}
	}

	return out, nil
}

// GetAllSettings returns copies of every record.
func (s *Store) GetAllSettings(ctx context.Context) (map[string]Record, error) {
	if err := s.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Record, len(s.records))
	for key, rec := range s.records {
		out[key] = copyRecord(rec)
	}

	return out, nil
}

// UpdateSetting validates and applies a single value.
func (s *Store) UpdateSetting(ctx context.Context, key string, value any) error {
	return s.UpdateSettings(ctx, map[string]any{key: value})
}

// UpdateSettings validates every value before mutating anything; one
// invalid entry aborts the whole call with no partial mutation. Accepted
// values are applied to memory together, listeners are notified
// synchronously, and a debounced flush is (re)scheduled.
func (s *Store) UpdateSettings(ctx context.Context, values map[string]any) error {
	if err := s.ensureInitialized(ctx); err != nil {
		return err
	}

	if len(values) == 0 {
		return nil
	}

	s.mu.Lock()

	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}

	// All-or-nothing validation stage.
	for key, value := range values {
		if key == "" {
			s.mu.Unlock()
			return ErrEmptyKey
		}

		rec, ok := s.records[key]
		if !ok {
			s.mu.Unlock()
			return errors.Wrapf(ErrNotFound, "%q", key)
		}

		if err := validateValue(key, rec.Definition, value); err != nil {
			s.mu.Unlock()
			return err
		}
	}

	updated := make(map[string]any, len(values))

	for key, value := range values {
		rec := s.records[key]
		rec.Value = copyValue(value)
		s.records[key] = rec
		s.pending[key] = rec
		updated[key] = value
	}

	s.armDebounceLocked()

	var statusEvents []pendingEvent
	if s.status.State == StateSaved {
		statusEvents = s.setStateLocked(StatePending, nil)
	} else {
		s.refreshStatusLocked()
	}
	s.mu.Unlock()

	s.emit(pendingEvent{EventUpdated, UpdatedPayload{Settings: updated}})
	s.emit(statusEvents...)

	return nil
}

// GetPendingChanges returns a copy of the pending-change batch.
func (s *Store) GetPendingChanges() map[string]Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Record, len(s.pending))
	for key, rec := range s.pending {
		out[key] = copyRecord(rec)
	}

	return out
}

// GetSaveStatus returns the current save status.
func (s *Store) GetSaveStatus() SaveStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

// ExportSettings serializes the full record set.
func (s *Store) ExportSettings(ctx context.Context) (Document, error) {
	if err := s.ensureInitialized(ctx); err != nil {
		return Document{}, err
	}

	s.mu.Lock()
	settings := make(map[string]Record, len(s.records))
	for key, rec := range s.records {
		settings[key] = copyRecord(rec)
	}
	s.mu.Unlock()

	return Document{
		Version:   ExportVersion,
		Timestamp: s.clock.Now().UTC().Format(time.RFC3339),
		Settings:  settings,
	}, nil
}

// ImportSettings parses and validates an import document. Entries for
// unknown keys or failing validation are skipped with a warning, not
// fatal; the call fails when nothing valid remains. Valid entries
// replace the matching in-memory records and are flushed immediately at
// elevated priority, bypassing the debounce. A flush failure propagates
// to the caller and is never silently retried.
func (s *Store) ImportSettings(ctx context.Context, data []byte) (ImportResult, error) {
	if err := s.ensureInitialized(ctx); err != nil {
		return ImportResult{}, err
	}

	doc, err := parseImportDocument(data)
	if err != nil {
		return ImportResult{}, err
	}

	keys := make([]string, 0, len(doc.Settings))
	for key := range doc.Settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := ImportResult{Skipped: make(map[string]string)}
	batch := make(map[string]Record, len(keys))

	s.mu.Lock()

	if s.destroyed {
		s.mu.Unlock()
		return ImportResult{}, ErrDestroyed
	}

	for _, key := range keys {
		rec, ok := s.records[key]
		if !ok {
			result.Skipped[key] = "unknown setting"
			continue
		}

		var entry importEntry
		if err := json.Unmarshal(doc.Settings[key], &entry); err != nil {
			result.Skipped[key] = "malformed entry"
			continue
		}

		if err := validateValue(key, rec.Definition, entry.Value); err != nil {
			result.Skipped[key] = err.Error()
			continue
		}

		rec.Value = copyValue(entry.Value)
		batch[key] = rec
		result.Keys = append(result.Keys, key)
	}

	if len(batch) == 0 {
		s.mu.Unlock()
		return result, errors.Wrapf(ErrNothingImported, "%d entries skipped", len(result.Skipped))
	}

	for key, rec := range batch {
		s.records[key] = rec
	}

	result.TotalImported = len(batch)

	statusEvents := s.setStateLocked(StateSaving, nil)
	s.mu.Unlock()

	for key, reason := range result.Skipped {
		log.Warn().Str("key", key).Str("reason", reason).Msg("skipping import entry")
	}

	s.emit(pendingEvent{EventImported, ImportedPayload{
		TotalImported: result.TotalImported,
		Keys:          result.Keys,
		Skipped:       result.Skipped,
	}})
	s.emit(statusEvents...)

	err = s.persist(ctx, batch, queue.PriorityHigh)
	s.finishFlush(batch, err, false)

	if err != nil {
		return result, errors.Wrap(err, "failed to persist imported settings")
	}

	return result, nil
}

// ResetToDefaults clears the persisted area, discards all pending
// changes and timers, rebuilds every record from schema defaults, and
// notifies listeners. A clear failure propagates to the caller.
func (s *Store) ResetToDefaults(ctx context.Context) error {
	if err := s.ensureInitialized(ctx); err != nil {
		return err
	}

	s.mu.Lock()

	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}

	s.stopTimersLocked()
	s.pending = make(map[string]Record)
	s.mu.Unlock()

	if _, err := s.queue.Do(ctx, queue.Operation{Type: queue.OpClear, Area: s.area}, queue.PriorityNormal); err != nil {
		return errors.Wrap(err, "failed to clear persisted settings")
	}

	m := s.loader.Load()
	records := make(map[string]Record, m.Len())

	for _, key := range m.Keys() {
		def, _ := m.Get(key)
		records[key] = Record{Key: key, Value: def.Value, Definition: def}
	}

	s.mu.Lock()
	s.records = records
	count := len(records)
	statusEvents := s.setStateLocked(StateSaved, nil)
	s.mu.Unlock()

	s.emit(pendingEvent{EventReset, ResetPayload{Count: count}})
	s.emit(statusEvents...)

	return nil
}

// ForceSave flushes either the given record set or all pending changes
// immediately at elevated priority, bypassing the debounce timer. A
// failure propagates to the caller and is never silently retried.
func (s *Store) ForceSave(ctx context.Context, records map[string]Record) error {
	if err := s.ensureInitialized(ctx); err != nil {
		return err
	}

	s.mu.Lock()

	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}

	var batch map[string]Record

	if len(records) > 0 {
		batch = make(map[string]Record, len(records))
		for key, rec := range records {
			batch[key] = rec
		}
	} else {
		batch = s.pending
		s.pending = make(map[string]Record)
		s.stopDebounceLocked()
	}

	if len(batch) == 0 {
		s.mu.Unlock()
		return nil
	}

	statusEvents := s.setStateLocked(StateSaving, nil)
	s.mu.Unlock()
	s.emit(statusEvents...)

	err := s.persist(ctx, batch, queue.PriorityHigh)
	s.finishFlush(batch, err, false)

	if err != nil {
		return errors.Wrap(err, "failed to force-save settings")
	}

	return nil
}

// Destroy cancels the timers, attempts a best-effort final flush of any
// pending changes, releases the operation queue, and clears all
// in-memory collections.
func (s *Store) Destroy() {
	s.mu.Lock()

	if s.destroyed {
		s.mu.Unlock()
		return
	}

	s.destroyed = true
	s.stopTimersLocked()

	batch := s.pending
	s.pending = make(map[string]Record)
	s.mu.Unlock()

	if len(batch) > 0 {
		if err := s.persist(context.Background(), batch, queue.PriorityHigh); err != nil {
			log.Warn().Err(err).Int("count", len(batch)).Msg("final flush failed during destroy")
		}
	}

	s.queue.Destroy()

	s.mu.Lock()
	s.records = make(map[string]Record)
	s.listeners = nil
	s.mu.Unlock()
}

// flushAuto is the debounce timer callback: it takes the whole pending
// batch and hands it to the queue at normal priority.
func (s *Store) flushAuto() {
	s.mu.Lock()

	if s.destroyed || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}

	batch := s.pending
	s.pending = make(map[string]Record)
	s.debounceTimer = nil

	statusEvents := s.setStateLocked(StateSaving, nil)
	s.mu.Unlock()
	s.emit(statusEvents...)

	err := s.persist(context.Background(), batch, queue.PriorityNormal)
	s.finishFlush(batch, err, true)
}

// retryFlush is the retry timer callback for failed auto-saves.
func (s *Store) retryFlush() {
	s.mu.Lock()

	s.retryTimer = nil

	if s.destroyed || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}

	statusEvents := s.setStateLocked(StatePending, nil)
	s.mu.Unlock()
	s.emit(statusEvents...)

	s.flushAuto()
}

// finishFlush settles the state machine after a flush. On failure the
// batch is re-merged into the pending set (a newer in-memory value for
// the same key wins) and, for the auto-save path, a retry is scheduled.
func (s *Store) finishFlush(batch map[string]Record, err error, scheduleRetry bool) {
	keys := make([]string, 0, len(batch))
	for key := range batch {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	s.mu.Lock()

	if err != nil {
		for key, rec := range batch {
			if _, ok := s.pending[key]; !ok {
				s.pending[key] = rec
			}
		}

		statusEvents := s.setStateLocked(StateError, err)

		if scheduleRetry && !s.destroyed && s.retryTimer == nil {
			s.retryTimer = s.clock.AfterFunc(s.retryDelay, s.retryFlush)
		}
		s.mu.Unlock()

		s.emit(statusEvents...)
		s.emit(pendingEvent{EventSaveFailed, SaveFailedPayload{Keys: keys, Error: err.Error()}})

		return
	}

	next := StateSaved
	if len(s.pending) > 0 {
		next = StatePending
	}

	statusEvents := s.setStateLocked(next, nil)
	s.mu.Unlock()

	s.emit(pendingEvent{EventSaved, SavedPayload{Keys: keys}})
	s.emit(statusEvents...)
}

// persist marshals the batch values and hands them to the queue as a
// single set operation.
func (s *Store) persist(ctx context.Context, batch map[string]Record, priority queue.Priority) error {
	values := make(map[string]json.RawMessage, len(batch))

	for key, rec := range batch {
		data, err := json.Marshal(rec.Value)
		if err != nil {
			return errors.Wrapf(err, "failed to marshal value for %q", key)
		}

		values[key] = data
	}

	_, err := s.queue.Do(ctx, queue.Operation{Type: queue.OpSet, Area: s.area, Values: values}, priority)

	return err
}

func (s *Store) armDebounceLocked() {
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}

	s.debounceTimer = s.clock.AfterFunc(s.debounce, s.flushAuto)
}

func (s *Store) stopDebounceLocked() {
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
		s.debounceTimer = nil
	}
}

func (s *Store) stopTimersLocked() {
	s.stopDebounceLocked()

	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

// setStateLocked moves the machine and returns the status event to emit
// once the lock is released. Pending count and timestamp refresh on
// every call; listeners hear about state changes only.
func (s *Store) setStateLocked(state State, lastErr error) []pendingEvent {
	changed := s.status.State != state

	s.status.State = state
	s.status.LastError = lastErr
	s.refreshStatusLocked()

	if !changed {
		return nil
	}

	return []pendingEvent{{EventSaveStatusChanged, s.status}}
}

func (s *Store) refreshStatusLocked() {
	s.status.PendingCount = len(s.pending)
	s.status.Timestamp = s.clock.Now()
}
