package store

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prefstore/prefstore/internal/schema"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestToFloat(t *testing.T) {
	testCases := []struct {
		name     string
		value    any
		expected float64
		ok       bool
	}{
		{name: "float64", value: 1.5, expected: 1.5, ok: true},
		{name: "int", value: 42, expected: 42, ok: true},
		{name: "int64", value: int64(-7), expected: -7, ok: true},
		{name: "uint32", value: uint32(9), expected: 9, ok: true},
		{name: "json number", value: json.Number("3.25"), expected: 3.25, ok: true},
		{name: "bad json number", value: json.Number("abc"), ok: false},
		{name: "string", value: "12", ok: false},
		{name: "nil", value: nil, ok: false},
		{name: "bool", value: true, ok: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := toFloat(tc.value)

			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.expected, got)
			}
		})
	}
}

func TestValidateValueNumbers(t *testing.T) {
	def := schema.Definition{
		Type: schema.TypeNumber,
		Min:  floatPtr(10),
		Max:  floatPtr(100),
	}

	assert.NoError(t, validateValue("n", def, 10))
	assert.NoError(t, validateValue("n", def, float64(100)))
	assert.NoError(t, validateValue("n", def, json.Number("55")))

	for _, bad := range []any{9.99, 101, math.NaN(), math.Inf(1), "50", nil} {
		err := validateValue("n", def, bad)
		require.Error(t, err, "value %v must be rejected", bad)
		assert.ErrorIs(t, err, ErrInvalidValue)
	}
}

func TestValidateValueText(t *testing.T) {
	def := schema.Definition{Type: schema.TypeText, MaxLength: intPtr(3)}

	assert.NoError(t, validateValue("t", def, "abc"))
	assert.NoError(t, validateValue("t", def, ""))
	assert.ErrorIs(t, validateValue("t", def, "abcd"), ErrInvalidValue)
	assert.ErrorIs(t, validateValue("t", def, 5), ErrInvalidValue)

	// The cap counts characters, so multi-byte input within the limit
	// passes even though its byte length exceeds it.
	assert.NoError(t, validateValue("t", def, "äöü"))
	assert.ErrorIs(t, validateValue("t", def, "äöüx"), ErrInvalidValue)

	// longtext shares the text rules but typically has no cap.
	long := schema.Definition{Type: schema.TypeLongText}
	assert.NoError(t, validateValue("t", long, "anything goes here"))
}

func TestValidateValueJSON(t *testing.T) {
	def := schema.Definition{Type: schema.TypeJSON}

	type options struct {
		Enabled bool `json:"enabled"`
	}

	assert.NoError(t, validateValue("j", def, map[string]any{"a": 1}))
	assert.NoError(t, validateValue("j", def, options{Enabled: true}))
	assert.NoError(t, validateValue("j", def, &options{}))

	assert.ErrorIs(t, validateValue("j", def, nil), ErrInvalidValue)
	assert.ErrorIs(t, validateValue("j", def, (*options)(nil)), ErrInvalidValue)
	assert.ErrorIs(t, validateValue("j", def, []any{"list"}), ErrInvalidValue)
	assert.ErrorIs(t, validateValue("j", def, "scalar"), ErrInvalidValue)

	// Values that cannot survive a JSON round trip are rejected even
	// when they are objects.
	assert.ErrorIs(t, validateValue("j", def, map[string]any{"fn": func() {}}), ErrInvalidValue)
}

func TestCopyValueIsolation(t *testing.T) {
	original := map[string]any{"nested": map[string]any{"a": float64(1)}}

	copied := copyValue(original).(map[string]any)
	copied["nested"].(map[string]any)["a"] = float64(2)

	assert.Equal(t, float64(1), original["nested"].(map[string]any)["a"])

	// Primitives pass through untouched.
	assert.Equal(t, "s", copyValue("s"))
	assert.Equal(t, true, copyValue(true))
	assert.Equal(t, 3.5, copyValue(3.5))
	assert.Nil(t, copyValue(nil))
}
