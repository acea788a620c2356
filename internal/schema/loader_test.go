package schema

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDocument = `{
	"enabled": {"type": "boolean", "value": true, "description": "d"}
}`

func TestNewLoaderRequiresSource(t *testing.T) {
	_, err := NewLoader(nil)
	require.ErrorIs(t, err, ErrSourceNil)
}

func TestLoaderCaching(t *testing.T) {
	now := time.Now()
	fetches := 0

	source := func() ([]byte, error) {
		fetches++
		return []byte(validDocument), nil
	}

	l, err := NewLoader(source, WithNow(func() time.Time { return now }))
	require.NoError(t, err)

	m := l.Load()
	assert.True(t, m.Has("enabled"))
	assert.Equal(t, 1, fetches)

	// Within the cache window the source is not consulted again.
	now = now.Add(4 * time.Minute)
	l.Load()
	assert.Equal(t, 1, fetches)

	// Past the window it is.
	now = now.Add(2 * time.Minute)
	l.Load()
	assert.Equal(t, 2, fetches)
}

func TestLoaderClearCache(t *testing.T) {
	fetches := 0

	source := func() ([]byte, error) {
		fetches++
		return []byte(validDocument), nil
	}

	l, err := NewLoader(source)
	require.NoError(t, err)

	l.Load()
	l.ClearCache()
	l.Load()

	assert.Equal(t, 2, fetches)
}

func TestLoaderFallback(t *testing.T) {
	testCases := []struct {
		name   string
		source Source
	}{
		{
			name: "fetch error",
			source: func() ([]byte, error) {
				return nil, errors.New("resource missing")
			},
		},
		{
			name:   "parse error",
			source: StaticSource([]byte(`not json`)),
		},
		{
			name:   "validation error",
			source: StaticSource([]byte(`{"a": {"type": "boolean"}}`)),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			l, err := NewLoader(tc.source)
			require.NoError(t, err)

			m := l.Load()

			// The fallback guarantees the store can still initialize.
			require.NotZero(t, m.Len())
			assert.True(t, m.Has("refresh_interval"))
		})
	}
}

func TestLoaderHelpers(t *testing.T) {
	l, err := NewLoader(StaticSource([]byte(validDocument)))
	require.NoError(t, err)

	def, ok := l.Get("enabled")
	require.True(t, ok)
	assert.Equal(t, TypeBoolean, def.Type)

	assert.True(t, l.Has("enabled"))
	assert.Equal(t, []string{"enabled"}, l.Keys())
}
