package schema

import (
	_ "embed"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

//go:embed fallback.json
var fallbackDocument []byte

// DefaultCacheTTL bounds how long a loaded document is served from memory.
const DefaultCacheTTL = 5 * time.Minute

// Source produces the raw schema document. The resource location and fetch
// mechanism are the caller's concern.
type Source func() ([]byte, error)

// FileSource reads the schema document from a file path.
func FileSource(path string) Source {
	return func() ([]byte, error) {
		return os.ReadFile(path)
	}
}

// StaticSource serves a fixed document, mainly for tests and ephemeral
// deployments.
func StaticSource(data []byte) Source {
	return func() ([]byte, error) {
		return data, nil
	}
}

// Loader fetches, validates, and caches the schema document.
type Loader struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	cached   Map
	loaded   bool
	loadedAt time.Time
}

// Option configures a Loader.
type Option func(*Loader)

// WithCacheTTL overrides the cache window.
func WithCacheTTL(ttl time.Duration) Option {
	return func(l *Loader) {
		l.ttl = ttl
	}
}

// WithNow overrides the loader's clock for tests.
func WithNow(now func() time.Time) Option {
	return func(l *Loader) {
		l.now = now
	}
}

// NewLoader creates a loader over the given source.
func NewLoader(source Source, opts ...Option) (*Loader, error) {
	if source == nil {
		return nil, ErrSourceNil
	}

	l := &Loader{
		source: source,
		ttl:    DefaultCacheTTL,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Load returns the schema map, serving the cached copy while it is fresh.
// On any fetch, parse, or validation failure it logs the cause and returns
// the embedded fallback document, so callers can always initialize.
func (l *Loader) Load() Map {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded && l.now().Sub(l.loadedAt) < l.ttl {
		return l.cached
	}

	m, err := l.fetch()
	if err != nil {
		log.Warn().Err(err).Msg("schema load failed, using fallback document")

		m = Fallback()
	}

	l.cached = m
	l.loaded = true
	l.loadedAt = l.now()

	return m
}

func (l *Loader) fetch() (Map, error) {
	data, err := l.source()
	if err != nil {
		return Map{}, err
	}

	return Parse(data)
}

// ClearCache resets the loader to its unloaded state.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cached = Map{}
	l.loaded = false
	l.loadedAt = time.Time{}
}

// Get returns the definition for key from the current schema.
func (l *Loader) Get(key string) (Definition, bool) {
	return l.Load().Get(key)
}

// Has reports whether key is defined in the current schema.
func (l *Loader) Has(key string) bool {
	return l.Load().Has(key)
}

// Keys returns every defined key of the current schema.
func (l *Loader) Keys() []string {
	return l.Load().Keys()
}

var fallbackOnce sync.Once //nolint:gochecknoglobals
var fallbackMap Map        //nolint:gochecknoglobals

// Fallback returns the embedded minimal schema. The embedded document is
// validated like any other; it covers a handful of representative
// settings so the settings store can always initialize.
func Fallback() Map {
	fallbackOnce.Do(func() {
		m, err := Parse(fallbackDocument)
		if err != nil {
			log.Error().Err(err).Msg("embedded fallback schema is invalid")
		}

		fallbackMap = m
	})

	return fallbackMap
}
