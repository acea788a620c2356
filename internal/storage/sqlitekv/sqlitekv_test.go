package sqlitekv

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prefstore/prefstore/internal/storage"
)

// setupTestProvider creates an in-memory SQLite provider for testing.
func setupTestProvider(t *testing.T, opts ...Option) *Provider {
	t.Helper()

	p, err := Open(":memory:", opts...)
	require.NoError(t, err, "failed to create test provider")

	t.Cleanup(func() {
		_ = p.Close()
	})

	return p
}

func TestArea(t *testing.T) {
	p := setupTestProvider(t)

	testCases := []struct {
		name          string
		area          storage.AreaName
		expectedError error
	}{
		{name: "local area", area: storage.AreaLocal},
		{name: "sync area", area: storage.AreaSync},
		{name: "unknown area", area: "session", expectedError: storage.ErrAreaUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a, err := p.Area(tc.area)

			if tc.expectedError != nil {
				require.ErrorIs(t, err, tc.expectedError)
				assert.Nil(t, a)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, a)
			}
		})
	}
}

func TestSetGet(t *testing.T) {
	p := setupTestProvider(t)
	ctx := context.Background()

	local, err := p.Area(storage.AreaLocal)
	require.NoError(t, err)

	err = local.Set(ctx, map[string]json.RawMessage{
		"theme":   json.RawMessage(`"dark"`),
		"timeout": json.RawMessage(`120`),
	})
	require.NoError(t, err)

	// Upsert replaces the existing row.
	err = local.Set(ctx, map[string]json.RawMessage{
		"theme": json.RawMessage(`"light"`),
	})
	require.NoError(t, err)

	all, err := local.Get(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.JSONEq(t, `"light"`, string(all["theme"]))

	subset, err := local.Get(ctx, []string{"timeout", "missing"})
	require.NoError(t, err)
	assert.Len(t, subset, 1)
	assert.JSONEq(t, `120`, string(subset["timeout"]))
}

func TestAreasAreIsolated(t *testing.T) {
	p := setupTestProvider(t)
	ctx := context.Background()

	local, err := p.Area(storage.AreaLocal)
	require.NoError(t, err)
	sync, err := p.Area(storage.AreaSync)
	require.NoError(t, err)

	require.NoError(t, local.Set(ctx, map[string]json.RawMessage{"k": json.RawMessage(`1`)}))

	values, err := sync.Get(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, values)

	require.NoError(t, local.Clear(ctx))

	values, err = local.Get(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestSyncQuota(t *testing.T) {
	p := setupTestProvider(t, WithSyncQuota(24))
	ctx := context.Background()

	sync, err := p.Area(storage.AreaSync)
	require.NoError(t, err)

	require.NoError(t, sync.Set(ctx, map[string]json.RawMessage{
		"small": json.RawMessage(`"ok"`), // 5 + 4 bytes
	}))

	err = sync.Set(ctx, map[string]json.RawMessage{
		"big": json.RawMessage(`"aaaaaaaaaaaaaaaaaaaaaaaa"`),
	})
	require.ErrorIs(t, err, storage.ErrQuotaExceeded)

	// Replacing a key counts the replacement, not both versions.
	require.NoError(t, sync.Set(ctx, map[string]json.RawMessage{
		"small": json.RawMessage(`"still ok"`),
	}))

	// The failed write must not have persisted anything.
	values, err := sync.Get(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, values, 1)
}

func TestBytesInUse(t *testing.T) {
	p := setupTestProvider(t)
	ctx := context.Background()

	local, err := p.Area(storage.AreaLocal)
	require.NoError(t, err)

	require.NoError(t, local.Set(ctx, map[string]json.RawMessage{
		"ab": json.RawMessage(`12`), // 2 + 2
		"cd": json.RawMessage(`3456`), // 2 + 4
	}))

	total, err := local.BytesInUse(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)

	one, err := local.BytesInUse(ctx, []string{"ab"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), one)
}
