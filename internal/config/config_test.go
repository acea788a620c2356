package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "prefstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestReadDefaults(t *testing.T) {
	c, err := Read("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8093", c.Listen)
	assert.Equal(t, "prefstore.db", c.DB.Path)
	assert.Equal(t, int64(100*1024), c.DB.SyncQuota)
	assert.Equal(t, "etc/schema.json", c.Schema.Path)
	assert.Equal(t, 5*time.Minute, c.Schema.CacheTTL)
	assert.Equal(t, "local", c.Store.Area)
	assert.Equal(t, 500*time.Millisecond, c.Store.Debounce)
	assert.Equal(t, 2*time.Second, c.Store.RetryDelay)
	assert.Equal(t, "@every 5m", c.Cron.SafetyFlush)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "prefstore", c.Log.ServiceName)
	assert.True(t, c.Log.Console.Enabled)
}

func TestReadFile(t *testing.T) {
	path := writeConfigFile(t, `
listen: 0.0.0.0:9000
db:
  path: /var/lib/prefstore/kv.db
  syncQuota: 204800
store:
  area: sync
  debounce: 250ms
  retryDelay: 5s
cron:
  safetyFlush: ""
`)

	c, err := Read(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", c.Listen)
	assert.Equal(t, "/var/lib/prefstore/kv.db", c.DB.Path)
	assert.Equal(t, int64(204800), c.DB.SyncQuota)
	assert.Equal(t, "sync", c.Store.Area)
	assert.Equal(t, 250*time.Millisecond, c.Store.Debounce)
	assert.Equal(t, 5*time.Second, c.Store.RetryDelay)
	assert.Empty(t, c.Cron.SafetyFlush)

	// Untouched sections keep their defaults.
	assert.Equal(t, "etc/schema.json", c.Schema.Path)
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestReadEnvOverride(t *testing.T) {
	t.Setenv("PREFSTORE_LISTEN", "127.0.0.1:18093")
	t.Setenv("PREFSTORE_STORE_AREA", "sync")

	c, err := Read("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:18093", c.Listen)
	assert.Equal(t, "sync", c.Store.Area)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name          string
		content       string
		expectedError error
	}{
		{
			name:          "empty listen address",
			content:       `listen: ""`,
			expectedError: ErrListenEmpty,
		},
		{
			name: "empty db path",
			content: `
db:
  path: ""
`,
			expectedError: ErrDBPathEmpty,
		},
		{
			name: "unknown storage area",
			content: `
store:
  area: session
`,
			expectedError: ErrUnknownArea,
		},
		{
			name: "zero debounce",
			content: `
store:
  debounce: 0s
`,
			expectedError: ErrTimingNotPositive,
		},
		{
			name: "negative retry delay",
			content: `
store:
  retryDelay: -1s
`,
			expectedError: ErrTimingNotPositive,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Read(writeConfigFile(t, tc.content))
			require.ErrorIs(t, err, tc.expectedError)
		})
	}
}
